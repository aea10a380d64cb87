package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nbutton23/zxcvbn-go"
	"gorm.io/gorm"

	"github.com/wardenhq/warden/internal/database"
	"github.com/wardenhq/warden/internal/models"
	apperrors "github.com/wardenhq/warden/pkg/errors"
)

// MaxPasswordSize caps accepted passwords. Hashing cost grows with input
// length, so oversized candidates are rejected before any scoring.
const MaxPasswordSize = 512

const defaultMinimumScore = 2

// PasswordPolicy scores candidate passwords against the zxcvbn estimator
// using the account holder's own details as penalised inputs. Enforcement
// and the minimum score both come from system settings.
type PasswordPolicy struct {
	db *gorm.DB
}

// NewPasswordPolicy constructs a policy bound to the settings store.
func NewPasswordPolicy(db *gorm.DB) (*PasswordPolicy, error) {
	if db == nil {
		return nil, errors.New("password policy: db is required")
	}
	return &PasswordPolicy{db: db}, nil
}

// UserInputs lists the account details a password must not resemble.
func UserInputs(user *models.User) []string {
	if user == nil {
		return nil
	}
	candidates := []string{user.FirstName, user.MiddleName, user.LastName, user.Email}
	if user.BirthDate != nil {
		candidates = append(candidates, user.BirthDate.Format("2006-01-02"))
	}
	inputs := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate = strings.TrimSpace(candidate); candidate != "" {
			inputs = append(inputs, candidate)
		}
	}
	return inputs
}

// Check validates the candidate password. A nil return means the password
// is acceptable under the current settings.
func (p *PasswordPolicy) Check(ctx context.Context, password string, userInputs []string) error {
	ctx = ensureContext(ctx)

	if password == "" {
		return nil
	}
	if len(password) > MaxPasswordSize {
		return apperrors.NewBadRequest("Password size exceeded the maximum allowed size.")
	}

	enabled, err := database.GetSystemSettingBool(ctx, p.db, models.SettingEnablePasswordPolicy, false)
	if err != nil {
		return err
	}
	if !enabled {
		return nil
	}

	minimum, err := database.GetSystemSettingInt(ctx, p.db, models.SettingMinimumPasswordScore, defaultMinimumScore)
	if err != nil {
		return err
	}
	if minimum <= 0 {
		minimum = defaultMinimumScore
	}

	strength := zxcvbn.PasswordStrength(password, userInputs)
	if strength.Score >= minimum {
		return nil
	}

	return apperrors.NewWeakPassword(feedbackMessage(strength.Score, strength.CrackTime))
}

// feedbackMessage mirrors the estimator's feedback: a warning for the
// weakest passwords followed by concrete suggestions, joined into one
// sentence for the caller.
func feedbackMessage(score int, crackTime float64) string {
	var parts []string

	switch {
	case score <= 1:
		parts = append(parts, "This password is easy to guess.")
	case crackTime < (10 * time.Minute).Seconds():
		parts = append(parts, "This password could be cracked quickly.")
	default:
		parts = append(parts, "This password is not strong enough.")
	}

	parts = append(parts,
		"Add another word or two. Uncommon words are better.",
		"Avoid names, dates, and other details linked to you.",
	)

	return strings.Join(parts, " ")
}
