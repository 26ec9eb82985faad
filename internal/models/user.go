// Package models содержит доменную модель учетной записи пользователя,
// включающую идентификационные данные, хеш пароля и состояние активации.
// Структуры используются в бизнес-логике и при работе с хранилищем.
package models

import (
	"strings"
	"time"

	"github.com/lirumlarum/registration-service/internal/lib/password"
)

// ActivatedKey значение, которым заменяется ключ активации после успешного
// подтверждения учетной записи. Повторная активация по нему невозможна.
const ActivatedKey = "ACTIVATED"

// User представляет учетную запись пользователя системы.
type User struct {
	UID           string     // Уникальный идентификатор пользователя
	Username      string     // Имя пользователя (уникальное)
	FirstName     string     // Имя
	LastName      string     // Фамилия
	Email         string     // Электронная почта (необязательное поле)
	PasswordHash  string     // Хеш пароля в формате "algo$salt$hash"
	IsStaff       bool       // Признак сотрудника
	IsSuperuser   bool       // Признак суперпользователя
	IsActive      bool       // Активирована ли учетная запись
	LastLogin     *time.Time // Время последнего входа
	DateJoined    time.Time  // Дата регистрации, UTC
	ActivationKey string     // Ключ активации, присутствует только до активации
}

// FullName возвращает имя и фамилию, разделенные пробелом.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// SetPassword хеширует пароль алгоритмом по умолчанию и сохраняет результат.
func (u *User) SetPassword(rawPassword string) error {
	hash, err := password.GetHash(rawPassword)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

// CheckPassword проверяет соответствие пароля сохраненному хешу.
// Возвращает nil при совпадении.
func (u *User) CheckPassword(rawPassword string) error {
	return password.CompareHash(u.PasswordHash, rawPassword)
}

// SetUnusablePassword запрещает вход по паролю для этой учетной записи.
func (u *User) SetUnusablePassword() {
	u.PasswordHash = password.UnusablePassword
}

// HasUsablePassword сообщает, возможен ли вход по паролю.
func (u *User) HasUsablePassword() bool {
	return password.IsUsable(u.PasswordHash)
}
