// Package credential implements password hashing, validation and strength
// scoring for the journal lock credential.
package credential

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/forest6511/daybook/pkg/crypto"
)

// hashVersion tags the encoded hash format so parameters can change later
// without breaking stored credentials.
const hashVersion = "v1"

// Password rules.
const (
	MinPasswordLength   = 8
	GoodPasswordLength  = 12
	MaxStrengthScore    = 6
	weakScoreThreshold  = 2
	mediumScoreThreshold = 4
)

// Sentinel errors.
var (
	// ErrMalformedHash indicates a stored hash that cannot be parsed.
	ErrMalformedHash = errors.New("credential: malformed stored hash")
)

// Strength labels a password score.
type Strength string

const (
	StrengthNone   Strength = "None"
	StrengthWeak   Strength = "Weak"
	StrengthMedium Strength = "Medium"
	StrengthStrong Strength = "Strong"
)

// ValidationResult reports whether a password satisfies the credential
// rules, with one human-readable error per missing requirement.
type ValidationResult struct {
	IsValid bool
	Errors  []string
}

// StrengthResult is the outcome of scoring a password.
type StrengthResult struct {
	Score int // 0..6
	Label Strength
}

// Service hashes and checks lock credentials. Each hash carries its own
// random salt, generated per install when the credential is set, so the
// stored value is self-contained.
type Service struct{}

// NewService returns a credential service.
func NewService() *Service {
	return &Service{}
}

// HashPassword derives a salted Argon2id hash and encodes it together with
// its salt as "v1$<base64 salt>$<base64 hash>".
func (s *Service) HashPassword(password string) (string, error) {
	salt, err := crypto.GenerateSalt()
	if err != nil {
		return "", err
	}

	hash := crypto.DeriveKey([]byte(password), salt)
	defer crypto.SecureWipe(hash)

	return strings.Join([]string{
		hashVersion,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(hash),
	}, "$"), nil
}

// VerifyPassword reports whether input matches the stored hash. The
// comparison is constant-time.
func (s *Service) VerifyPassword(input, storedHash string) (bool, error) {
	salt, hash, err := parseHash(storedHash)
	if err != nil {
		return false, err
	}

	candidate := crypto.DeriveKey([]byte(input), salt)
	defer crypto.SecureWipe(candidate)

	return subtle.ConstantTimeCompare(candidate, hash) == 1, nil
}

func parseHash(encoded string) (salt, hash []byte, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 3 || parts[0] != hashVersion {
		return nil, nil, ErrMalformedHash
	}
	salt, err = base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: bad salt encoding", ErrMalformedHash)
	}
	hash, err = base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: bad hash encoding", ErrMalformedHash)
	}
	return salt, hash, nil
}

// ValidatePassword enforces the credential rules: minimum length plus
// uppercase, lowercase, digit and symbol classes. Each missing requirement
// contributes one error string.
func (s *Service) ValidatePassword(password string) ValidationResult {
	var errs []string

	if len(password) < MinPasswordLength {
		errs = append(errs, fmt.Sprintf("Password must be at least %d characters", MinPasswordLength))
	}

	classes := characterClasses(password)
	if !classes.upper {
		errs = append(errs, "Password must contain an uppercase letter")
	}
	if !classes.lower {
		errs = append(errs, "Password must contain a lowercase letter")
	}
	if !classes.digit {
		errs = append(errs, "Password must contain a digit")
	}
	if !classes.symbol {
		errs = append(errs, "Password must contain a symbol")
	}

	return ValidationResult{IsValid: len(errs) == 0, Errors: errs}
}

// ScoreStrength scores a password 0..6: one point each for length >= 8 and
// length >= 12, and one per character class present.
func (s *Service) ScoreStrength(password string) StrengthResult {
	if password == "" {
		return StrengthResult{Score: 0, Label: StrengthNone}
	}

	score := 0
	if len(password) >= MinPasswordLength {
		score++
	}
	if len(password) >= GoodPasswordLength {
		score++
	}

	classes := characterClasses(password)
	if classes.upper {
		score++
	}
	if classes.lower {
		score++
	}
	if classes.digit {
		score++
	}
	if classes.symbol {
		score++
	}

	label := StrengthStrong
	switch {
	case score <= weakScoreThreshold:
		label = StrengthWeak
	case score <= mediumScoreThreshold:
		label = StrengthMedium
	}

	return StrengthResult{Score: score, Label: label}
}

type classSet struct {
	upper, lower, digit, symbol bool
}

func characterClasses(password string) classSet {
	var c classSet
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			c.upper = true
		case unicode.IsLower(r):
			c.lower = true
		case unicode.IsDigit(r):
			c.digit = true
		default:
			c.symbol = true
		}
	}
	return c
}
