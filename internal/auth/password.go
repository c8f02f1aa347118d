package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("incorrect password")

// Ensure PasswordGate implements Authenticator
var _ Authenticator = (*PasswordGate)(nil)

// PasswordGate implements Authenticator with a single shared app password.
// Only the bcrypt hash is kept in memory.
type PasswordGate struct {
	hash []byte
}

// NewPasswordGate hashes password. An empty password disables the gate.
func NewPasswordGate(password string) (*PasswordGate, error) {
	if password == "" {
		return &PasswordGate{}, nil
	}
	// bcrypt only reads the first 72 bytes.
	if len(password) > 72 {
		return nil, fmt.Errorf("APP_PASSWORD must be at most 72 bytes")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return &PasswordGate{hash: hash}, nil
}

// Required reports whether an app password is configured.
func (g *PasswordGate) Required() bool {
	return len(g.hash) > 0
}

// Authenticate compares credential against the password hash. Any credential
// is accepted when no password is configured.
func (g *PasswordGate) Authenticate(credential string) error {
	if !g.Required() {
		return nil
	}
	if credential == "" {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(g.hash, []byte(credential)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
