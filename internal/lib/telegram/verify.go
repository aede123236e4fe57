// Package telegram реализует проверку подписи данных, полученных от
// телеграм-виджета входа. Алгоритм должен побайтово совпадать с
// эталонным: ключ подписи — sha256 от токена бота, подпись — hmac-sha256
// от канонической строки проверки в нижнем hex.
package telegram

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"
)

// MaxAuthAge максимальный возраст auth_date, после которого вход отклоняется.
const MaxAuthAge = 86400 * time.Second

var (
	// ErrExpiredAssertion auth_date отсутствует или старше MaxAuthAge
	ErrExpiredAssertion = errors.New("telegram authentication session is expired")
	// ErrSignatureMismatch подпись отсутствует или не совпала
	ErrSignatureMismatch = errors.New("telegram data signature mismatch")
)

// LoginData данные виджета входа. Hash — подпись, присланная виджетом,
// в строку проверки не входит. Пустые строковые поля из строки проверки
// исключаются.
type LoginData struct {
	ID        int64
	FirstName string
	LastName  string
	Username  string
	PhotoURL  string
	AuthDate  int64
	Hash      string
}

// Verifier проверяет подпись данных входа общим секретом бота.
type Verifier struct {
	secretKey []byte
}

// NewVerifier создает Verifier, ключ подписи вычисляется один раз.
func NewVerifier(botToken string) *Verifier {
	key := sha256.Sum256([]byte(botToken))
	return &Verifier{secretKey: key[:]}
}

// Verify проверяет возраст auth_date и подпись данных относительно now.
// Возвращает ErrExpiredAssertion или ErrSignatureMismatch.
func (v *Verifier) Verify(data LoginData, now time.Time) error {
	if data.Hash == "" {
		return ErrSignatureMismatch
	}
	if data.AuthDate == 0 || now.Unix()-data.AuthDate > int64(MaxAuthAge/time.Second) {
		return ErrExpiredAssertion
	}

	mac := hmac.New(sha256.New, v.secretKey)
	mac.Write([]byte(checkString(data)))
	computed := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(computed), []byte(data.Hash)) {
		return ErrSignatureMismatch
	}
	return nil
}

// checkString собирает каноническую строку проверки: непустые поля,
// отсортированные по имени, в виде пар key=value через перевод строки.
func checkString(data LoginData) string {
	fields := map[string]string{
		"id":         strconv.FormatInt(data.ID, 10),
		"auth_date":  strconv.FormatInt(data.AuthDate, 10),
		"first_name": data.FirstName,
		"last_name":  data.LastName,
		"username":   data.Username,
		"photo_url":  data.PhotoURL,
	}

	keys := make([]string, 0, len(fields))
	for k, v := range fields {
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+fields[k])
	}
	return strings.Join(pairs, "\n")
}
