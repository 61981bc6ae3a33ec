package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// AdminCredentials is the configured operator login. Exactly one of
// Password or PasswordHash (bcrypt) is expected.
type AdminCredentials struct {
	Email        string
	Password     string
	PasswordHash string
}

// Authenticator checks the fixed administrative credential pair. It never
// reads the principal store.
type Authenticator struct {
	email        string
	emailDigest  [sha256.Size]byte
	passwordHash []byte
}

type AuthenticatorOption func(*authenticatorOptions)

type authenticatorOptions struct {
	cost int
}

// WithBcryptCost sets the cost used when hashing a plaintext password.
func WithBcryptCost(cost int) AuthenticatorOption {
	return func(o *authenticatorOptions) {
		o.cost = cost
	}
}

func NewAuthenticator(creds AdminCredentials, opts ...AuthenticatorOption) (*Authenticator, error) {
	o := authenticatorOptions{cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(&o)
	}

	email := strings.ToLower(strings.TrimSpace(creds.Email))
	if email == "" {
		return nil, errors.New("admin email is required")
	}

	var hash []byte
	switch {
	case creds.PasswordHash != "":
		hash = []byte(creds.PasswordHash)
		if _, err := bcrypt.Cost(hash); err != nil {
			return nil, fmt.Errorf("admin password hash: %w", err)
		}
	case creds.Password != "":
		h, err := bcrypt.GenerateFromPassword([]byte(creds.Password), o.cost)
		if err != nil {
			return nil, fmt.Errorf("hash admin password: %w", err)
		}
		hash = h
	default:
		return nil, errors.New("admin password is required")
	}

	return &Authenticator{
		email:        email,
		emailDigest:  sha256.Sum256([]byte(email)),
		passwordHash: hash,
	}, nil
}

// Email is the normalized admin address.
func (a *Authenticator) Email() string {
	return a.email
}

// Verify reports whether email and password match the configured pair. The
// password check always runs so the response time does not depend on
// whether the email matched.
func (a *Authenticator) Verify(email, password string) bool {
	digest := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	emailOK := subtle.ConstantTimeCompare(digest[:], a.emailDigest[:]) == 1
	passwordOK := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)) == nil
	return emailOK && passwordOK
}
