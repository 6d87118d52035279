package password

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used when Config.Cost is zero.
const DefaultCost = 12

// MaxPasswordBytes is the longest input bcrypt accepts without truncation.
const MaxPasswordBytes = 72

var (
	// ErrPasswordTooLong is returned by Hash for inputs bcrypt would truncate.
	ErrPasswordTooLong = errors.New("password exceeds 72 bytes")
	// ErrEmptyPassword is returned by Hash for empty input.
	ErrEmptyPassword = errors.New("password is empty")
)

// Config defines the hashing work factor.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Cost int
}

// Bcrypt hashes and verifies passwords with golang.org/x/crypto/bcrypt.
//
// Bcrypt instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Bcrypt struct {
	config Config

	dummyOnce sync.Once
	dummy     string
}

// NewBcrypt validates cfg and returns a hasher. A zero cost selects [DefaultCost].
func NewBcrypt(cfg Config) (*Bcrypt, error) {
	if cfg.Cost == 0 {
		cfg.Cost = DefaultCost
	}
	if cfg.Cost < bcrypt.MinCost || cfg.Cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost must be in [%d, %d]", bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &Bcrypt{config: cfg}, nil
}

// Cost reports the configured work factor.
func (b *Bcrypt) Cost() int {
	return b.config.Cost
}

// Hash describes the hash operation and its observable behavior.
//
// Hash returns a salted bcrypt digest of password at the configured cost. It
// fails for empty input and for input longer than [MaxPasswordBytes].
func (b *Bcrypt) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(password) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	digest, err := bcrypt.GenerateFromPassword([]byte(password), b.config.Cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Verify describes the verify operation and its observable behavior.
//
// Verify reports whether password matches encodedHash. A mismatch is (false, nil);
// a malformed hash is an error. Comparison is delegated to bcrypt, which is
// constant-time with respect to the digest.
func (b *Bcrypt) Verify(password string, encodedHash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}

// NeedsRehash reports whether encodedHash was produced with a cost other than
// the configured one. Unparseable hashes report false.
func (b *Bcrypt) NeedsRehash(encodedHash string) bool {
	cost, err := bcrypt.Cost([]byte(encodedHash))
	if err != nil {
		return false
	}
	return cost != b.config.Cost
}

// DummyHash returns a valid digest at the configured cost for a password no
// one knows. Verifying against it costs the same as a real comparison.
func (b *Bcrypt) DummyHash() string {
	b.dummyOnce.Do(func() {
		digest, err := bcrypt.GenerateFromPassword([]byte("authcore-dummy-password"), b.config.Cost)
		if err == nil {
			b.dummy = string(digest)
		}
	})
	return b.dummy
}
