package repository

import "errors"

// ErrUserNotFound учетная запись не найдена. Ожидаемый исход для операций
// поиска, не признак сбоя хранилища.
var ErrUserNotFound = errors.New("user not found")

// ErrUsernameTaken имя пользователя уже занято другой учетной записью.
var ErrUsernameTaken = errors.New("username is already taken")
