// Package password реализует хеширование и проверку паролей учетных записей.
//
// Хеш хранится в текстовом формате "algo$salt$hash". Новые пароли хешируются
// алгоритмом pbkdf2_sha256, устаревший формат sha1 (один проход быстрого хеша)
// поддерживается для проверки записей, созданных старой системой.
package password

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Поддерживаемые алгоритмы хеширования.
const (
	AlgorithmPBKDF2SHA256 = "pbkdf2_sha256"
	AlgorithmSHA1         = "sha1"
)

// UnusablePassword значение-заглушка вместо хеша: никогда не совпадет
// ни с одним вычисленным хешем, вход по паролю для такой записи невозможен.
const UnusablePassword = "!"

const (
	pbkdf2Iterations = 390000
	pbkdf2KeyLength  = 32
	saltLength       = 12
)

// ErrPasswordMismatch пароль не соответствует сохраненному хешу.
var ErrPasswordMismatch = errors.New("password does not match stored hash")

// ErrUnknownAlgorithm неизвестный идентификатор алгоритма в хеше.
var ErrUnknownAlgorithm = errors.New("unknown hashing algorithm")

// ErrMalformedHash сохраненный хеш не соответствует формату "algo$salt$hash".
var ErrMalformedHash = errors.New("malformed password hash")

// GetHash принимает пароль пользователя и возвращает его хеш
// в формате "algo$salt$hash" с алгоритмом по умолчанию.
func GetHash(rawPassword string) (string, error) {
	return GetHashWithAlgorithm(AlgorithmPBKDF2SHA256, rawPassword)
}

// GetHashWithAlgorithm хеширует пароль указанным алгоритмом.
//
// Для sha1 соль формируется по правилам старой системы: первые пять символов
// шестнадцатеричного sha1-дайджеста двух независимых случайных значений.
func GetHashWithAlgorithm(algo, rawPassword string) (string, error) {
	const op = "password.GetHashWithAlgorithm"

	var salt string
	var err error
	switch algo {
	case AlgorithmSHA1:
		salt, err = legacySalt()
	case AlgorithmPBKDF2SHA256:
		salt, err = newSalt()
	default:
		return "", fmt.Errorf("%s: %q: %w", op, algo, ErrUnknownAlgorithm)
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	hsh, err := digest(algo, salt, rawPassword)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return algo + "$" + salt + "$" + hsh, nil
}

// CompareHash сравнивает сохраненный хеш с введенным паролем.
//
// Возвращает nil при совпадении, ErrPasswordMismatch при несовпадении
// (в том числе для записей с UnusablePassword), либо ошибку разбора хеша.
// Сравнение дайджестов выполняется за постоянное время.
func CompareHash(storedHash, rawPassword string) error {
	const op = "password.CompareHash"

	if storedHash == UnusablePassword {
		return ErrPasswordMismatch
	}

	parts := strings.SplitN(storedHash, "$", 3)
	if len(parts) != 3 {
		return fmt.Errorf("%s: %w", op, ErrMalformedHash)
	}
	algo, salt, hsh := parts[0], parts[1], parts[2]

	expected, err := digest(algo, salt, rawPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if subtle.ConstantTimeCompare([]byte(expected), []byte(hsh)) != 1 {
		return ErrPasswordMismatch
	}
	return nil
}

// IsUsable сообщает, разрешен ли для данного хеша вход по паролю.
func IsUsable(storedHash string) bool {
	return storedHash != UnusablePassword
}

func digest(algo, salt, rawPassword string) (string, error) {
	switch algo {
	case AlgorithmSHA1:
		sum := sha1.Sum([]byte(salt + rawPassword))
		return hex.EncodeToString(sum[:]), nil
	case AlgorithmPBKDF2SHA256:
		key := pbkdf2.Key([]byte(rawPassword), []byte(salt), pbkdf2Iterations, pbkdf2KeyLength, sha256.New)
		return hex.EncodeToString(key), nil
	default:
		return "", fmt.Errorf("%q: %w", algo, ErrUnknownAlgorithm)
	}
}

func newSalt() (string, error) {
	buf := make([]byte, saltLength/2)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func legacySalt() (string, error) {
	a := make([]byte, 8)
	b := make([]byte, 8)
	if _, err := rand.Read(a); err != nil {
		return "", err
	}
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	sum := sha1.Sum(append(a, b...))
	return hex.EncodeToString(sum[:])[:5], nil
}
