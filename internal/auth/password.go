// Password hashing.
//
// bcrypt generates a random salt on every call and embeds it, together with
// the cost, in the output:
//
//	$2a$12$<22-char salt><31-char hash>
//
// so the whole string goes into the password column and nothing else needs
// storing. Two registrations with the same password get different hashes.

package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used outside tests.
// Each +1 doubles the hashing time; 12 is roughly 250ms on current hardware.
const DefaultCost = 12

// maxPasswordBytes is bcrypt's input limit.
const maxPasswordBytes = 72

var (
	// ErrPasswordTooLong is returned by Hash for input bcrypt would truncate.
	ErrPasswordTooLong = errors.New("auth: password must be 72 bytes or fewer")

	// ErrPasswordMismatch is returned by Verify when the password is wrong.
	ErrPasswordMismatch = errors.New("auth: invalid password")
)

// PasswordService provides bcrypt hashing and verification.
//
// The cost is injected; tests use bcrypt.MinCost (4) to keep each hash in
// the millisecond range.
type PasswordService struct {
	cost int
}

// NewPasswordService creates a PasswordService with the given cost.
// A cost outside bcrypt's [MinCost, MaxCost] range falls back to DefaultCost.
func NewPasswordService(cost int) *PasswordService {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &PasswordService{cost: cost}
}

// Cost returns the configured work factor.
func (p *PasswordService) Cost() int {
	return p.cost
}

// Hash hashes the given plaintext password with bcrypt.
//
// Passwords longer than 72 bytes are rejected with ErrPasswordTooLong
// instead of being silently truncated.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}

	return string(hashed), nil
}

// Verify checks whether a plaintext password matches a stored bcrypt hash.
//
// Returns nil on a match and ErrPasswordMismatch when the password is wrong.
// A stored value that is not a bcrypt hash yields a different, wrapped error.
// The comparison itself is constant-time.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}
