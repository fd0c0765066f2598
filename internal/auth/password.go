package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength минимальная длина пароля оператора
const MinPasswordLength = 8

// ErrWeakPassword возвращается для слишком короткого пароля
var ErrWeakPassword = errors.New("auth: password too short")

// HashPassword возвращает bcrypt хэш пароля оператора для admin_password_hash
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", fmt.Errorf("%w: need at least %d characters", ErrWeakPassword, MinPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(hash), nil
}

// CheckPassword сверяет пароль с хэшем. Пустой или битый хэш не пропускает никого.
func CheckPassword(hash string, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
