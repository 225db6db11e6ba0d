package credential

import (
	"errors"
	"strings"
	"testing"
)

func TestHashVerifyRoundTrip(t *testing.T) {
	s := NewService()

	hash, err := s.HashPassword("Correct1!")
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}
	if !strings.HasPrefix(hash, "v1$") {
		t.Errorf("HashPassword() = %q, missing version prefix", hash)
	}

	ok, err := s.VerifyPassword("Correct1!", hash)
	if err != nil {
		t.Fatalf("VerifyPassword() error: %v", err)
	}
	if !ok {
		t.Error("VerifyPassword() rejected the correct password")
	}

	ok, err = s.VerifyPassword("Wrong1!!", hash)
	if err != nil {
		t.Fatalf("VerifyPassword() error: %v", err)
	}
	if ok {
		t.Error("VerifyPassword() accepted a wrong password")
	}
}

func TestHashPasswordSaltIsRandom(t *testing.T) {
	s := NewService()

	h1, err := s.HashPassword("Same1!pw")
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}
	h2, err := s.HashPassword("Same1!pw")
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}
	if h1 == h2 {
		t.Error("two hashes of the same password are identical, salt is not random")
	}
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	s := NewService()

	for _, stored := range []string{"", "v0$a$b", "v1$only-two", "v1$%%%$AAAA", "v1$AAAA$%%%"} {
		if _, err := s.VerifyPassword("x", stored); !errors.Is(err, ErrMalformedHash) {
			t.Errorf("VerifyPassword(stored=%q): got %v, want ErrMalformedHash", stored, err)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	s := NewService()

	tests := []struct {
		name      string
		password  string
		valid     bool
		errCount  int
		mustMatch string
	}{
		{"too short", "Ab1!", false, 1, "at least 8 characters"},
		{"valid", "Abcdef1!", true, 0, ""},
		{"no uppercase", "abcdef1!", false, 1, "uppercase"},
		{"no digit or symbol", "Abcdefgh", false, 2, "digit"},
		{"empty", "", false, 5, "at least 8 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := s.ValidatePassword(tt.password)
			if result.IsValid != tt.valid {
				t.Errorf("ValidatePassword(%q).IsValid = %v, want %v", tt.password, result.IsValid, tt.valid)
			}
			if len(result.Errors) != tt.errCount {
				t.Errorf("ValidatePassword(%q) returned %d errors %v, want %d",
					tt.password, len(result.Errors), result.Errors, tt.errCount)
			}
			if tt.mustMatch != "" {
				found := false
				for _, e := range result.Errors {
					if strings.Contains(e, tt.mustMatch) {
						found = true
					}
				}
				if !found {
					t.Errorf("ValidatePassword(%q) errors %v do not mention %q",
						tt.password, result.Errors, tt.mustMatch)
				}
			}
		})
	}
}

func TestScoreStrength(t *testing.T) {
	s := NewService()

	tests := []struct {
		password string
		score    int
		label    Strength
	}{
		{"", 0, StrengthNone},
		{"abc", 1, StrengthWeak},                 // lowercase only
		{"abcdefgh", 2, StrengthWeak},            // length 8 + lowercase
		{"Abcdefg1", 4, StrengthMedium},          // length 8 + upper + lower + digit
		{"Abcdef1!", 5, StrengthStrong},          // length 8 + all four classes
		{"Abcdefghij1!", 6, StrengthStrong},      // length 12 + all four classes
		{"abcdefghijkl", 3, StrengthMedium},      // length 12 + lowercase
		{"ABCDEFGHIJK1", 4, StrengthMedium},      // length 12 + upper + digit
	}

	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			got := s.ScoreStrength(tt.password)
			if got.Score != tt.score {
				t.Errorf("ScoreStrength(%q).Score = %d, want %d", tt.password, got.Score, tt.score)
			}
			if got.Label != tt.label {
				t.Errorf("ScoreStrength(%q).Label = %s, want %s", tt.password, got.Label, tt.label)
			}
		})
	}
}
