package service

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"atlas-auth/internal/model"
)

const minPasswordLength = 8

// passwordCost is lowered by tests.
var passwordCost = 12

// dummyHash is compared against when a login names an unknown user, so the
// response time does not reveal whether the account exists.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("atlas-auth-dummy-password"), bcrypt.DefaultCost)

func HashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", fmt.Errorf("%w: password must be at least %d characters", model.ErrInvalidInput, minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", fmt.Errorf("%w: password must be at most 72 bytes", model.ErrInvalidInput)
	}
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	if hash == "" {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
