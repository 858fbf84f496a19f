package auth

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength applies to new passwords set through Change.
const MinPasswordLength = 8

const bcryptCost = 12

var (
	// ErrWrongPassword is returned when a supplied password does not match.
	ErrWrongPassword = errors.New("wrong password")
	// ErrWeakPassword is returned by Change for a too-short new password.
	ErrWeakPassword = fmt.Errorf("new password must be at least %d characters", MinPasswordLength)
)

// Passwords holds the admin password as a bcrypt hash. It lives in memory
// only, so a restart reverts to the configured password.
type Passwords struct {
	mu   sync.RWMutex
	hash []byte
	cost int
}

// NewPasswords hashes the initial password.
func NewPasswords(initial string) (*Passwords, error) {
	return newPasswords(initial, bcryptCost)
}

func newPasswords(initial string, cost int) (*Passwords, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(initial), cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return &Passwords{hash: hash, cost: cost}, nil
}

// Check reports whether pw matches.
func (p *Passwords) Check(pw string) bool {
	p.mu.RLock()
	hash := p.hash
	p.mu.RUnlock()
	return bcrypt.CompareHashAndPassword(hash, []byte(pw)) == nil
}

// Change replaces the password after verifying current.
func (p *Passwords) Change(current, next string) error {
	if len(next) < MinPasswordLength {
		return ErrWeakPassword
	}
	if !p.Check(current) {
		return ErrWrongPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), p.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	p.mu.Lock()
	p.hash = hash
	p.mu.Unlock()
	return nil
}
