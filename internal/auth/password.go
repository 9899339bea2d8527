// internal/auth/password.go
package auth

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// Operator - единственная учетная запись дашборда.
type Operator struct {
	Username     string
	passwordHash string
}

// NewOperator принимает готовый bcrypt-хеш или, если его нет, хеширует
// открытый пароль при старте, чтобы сравнение всегда шло через bcrypt.
func NewOperator(username, password, passwordHash string) (*Operator, error) {
	if passwordHash == "" {
		hash, err := HashPassword(password)
		if err != nil {
			return nil, fmt.Errorf("не удалось захешировать пароль оператора: %w", err)
		}
		passwordHash = hash
	} else if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
		return nil, fmt.Errorf("AUTH_PASSWORD_HASH не является bcrypt-хешем: %w", err)
	}
	return &Operator{Username: username, passwordHash: passwordHash}, nil
}

func (o *Operator) Authenticate(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(o.Username)) == 1
	passOK := CheckPasswordHash(password, o.passwordHash)
	return userOK && passOK
}
