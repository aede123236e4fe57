// Package refcode отвечает за выдачу коротких публичных реферальных кодов.
// Код — 8 символов из заглавных латинских букв и цифр. Уникальность
// гарантируется проверкой в хранилище с ограниченным числом попыток;
// уникальный индекс в базе остается последней линией защиты от гонок.
package refcode

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

// Length длина реферального кода.
const Length = 8

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const maxAttempts = 10

// ErrExhausted не удалось подобрать свободный код за отведенные попытки.
// При размере пространства кодов это событие практически фатально.
var ErrExhausted = errors.New("failed to generate unique ref code")

// CodeStore описывает контракт проверки занятости кода в хранилище.
type CodeStore interface {
	RefCodeExists(ctx context.Context, code string) (bool, error)
}

// Allocator выдает уникальные реферальные коды.
type Allocator struct {
	store CodeStore
}

// NewAllocator создает Allocator поверх хранилища пользователей.
func NewAllocator(store CodeStore) *Allocator {
	return &Allocator{store: store}
}

// Generate возвращает случайный код без проверки уникальности.
func Generate() (string, error) {
	buf := make([]byte, Length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			return "", err
		}
		buf[i] = alphabet[n.Int64()]
	}
	return string(buf), nil
}

// Allocate подбирает свободный код, делая до 10 попыток.
// Возвращает ErrExhausted, если свободный код не найден.
func (a *Allocator) Allocate(ctx context.Context) (string, error) {
	const op = "refcode.Allocate"
	for range maxAttempts {
		code, err := Generate()
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		exists, err := a.store.RefCodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", ErrExhausted
}
