// Package models содержит модели данных сервиса идентификации.
package models

import "time"

// Role роль пользователя. Значения упорядочены: большее значение
// означает больше прав.
type Role int

const (
	// RoleUser обычный пользователь
	RoleUser Role = 0
	// RoleAdmin администратор
	RoleAdmin Role = 7
)

// String возвращает строковое имя роли.
func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "ADMIN"
	default:
		return "USER"
	}
}

// User модель пользователя. ID назначается телеграмом и никогда не
// генерируется сервисом. Баланс хранится в копейках, только целочисленная
// арифметика. RefCode после первого присвоения не меняется, ReferredByID
// выставляется не более одного раза.
type User struct {
	ID             int64
	Username       *string
	FirstName      *string
	LastName       *string
	PhotoURL       *string
	Role           Role
	LicenseEndDate *time.Time
	Balance        int64
	RefCode        *string
	ReferredByID   *int64

	// Учетные данные OpenRouter, общие для всех проектов пользователя
	ORApiKey  *string
	ORApiHash *string
	ORModel   *string
}

// HasActiveLicense сообщает, действует ли лицензия на момент now.
func (u *User) HasActiveLicense(now time.Time) bool {
	return u.LicenseEndDate != nil && u.LicenseEndDate.After(now)
}
