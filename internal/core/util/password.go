package util

import (
	"errors"
	"regexp"

	"golang.org/x/crypto/bcrypt"
)

// PasswordCost is the bcrypt work factor for account passwords.
const PasswordCost = 10

var ErrEmptyPassword = errors.New("password is empty")

func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	encrypted, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)

	if err != nil {
		return "", err
	}

	return string(encrypted), nil
}

// VerifyPassword reports whether password matches the stored hash. A mismatch
// is not an error; malformed hashes are.
func VerifyPassword(password, encrypted string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encrypted), []byte(password))

	if err == nil {
		return true, nil
	}

	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}

	return false, err
}

var (
	emailPattern   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	passwordLength = regexp.MustCompile(`^.{5,}$`)
	passwordLower  = regexp.MustCompile(`[a-z]`)
	passwordUpper  = regexp.MustCompile(`[A-Z]`)
	passwordDigit  = regexp.MustCompile(`[0-9]`)
)

func IsValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// IsStrongPassword requires at least five characters on a single line with
// one lowercase letter, one uppercase letter and one digit.
func IsStrongPassword(password string) bool {
	return passwordLength.MatchString(password) &&
		passwordLower.MatchString(password) &&
		passwordUpper.MatchString(password) &&
		passwordDigit.MatchString(password)
}
