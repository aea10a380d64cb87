package users

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/wardenhq/warden/internal/auditctx"
	"github.com/wardenhq/warden/internal/identity"
	"github.com/wardenhq/warden/internal/models"
	"github.com/wardenhq/warden/pkg/crypto"
	apperrors "github.com/wardenhq/warden/pkg/errors"
)

// APIKeyPair is handed back exactly once per rotation. Only a hash of
// the secret survives, so there is no way to show it again.
type APIKeyPair struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}

// GenerateKeys rotates the account's API secret, minting the key on
// first use. Only a System Manager may call it.
func (s *UserService) GenerateKeys(ctx context.Context, name string) (*APIKeyPair, error) {
	ctx = ensureContext(ctx)

	if err := s.requireSystemManager(ctx); err != nil {
		return nil, err
	}

	user, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	secret, err := crypto.GenerateHash(15)
	if err != nil {
		return nil, err
	}
	stored, err := s.storeableSecret(secret)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{"api_secret": stored}
	apiKey := user.APIKey
	if apiKey == "" {
		apiKey, err = crypto.GenerateHash(15)
		if err != nil {
			return nil, err
		}
		updates["api_key"] = apiKey
	}

	err = s.db.WithContext(ctx).Model(&models.User{}).
		Where("name = ?", user.Name).
		Updates(updates).Error
	if err != nil {
		return nil, err
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "user.generate_keys",
		Resource: user.Name,
		Result:   "success",
	})

	return &APIKeyPair{APIKey: apiKey, APISecret: secret}, nil
}

// VerifyAPICredentials resolves a key/secret pair presented by an API
// client. Lookup and comparison failures are indistinguishable.
func (s *UserService) VerifyAPICredentials(ctx context.Context, apiKey, apiSecret string) (*models.User, error) {
	ctx = ensureContext(ctx)

	if apiKey == "" || apiSecret == "" {
		return nil, apperrors.ErrInvalidCredentials
	}

	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "api_key = ?", apiKey).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, err
	}
	if user.APISecret == "" || !s.secretMatches(user.APISecret, apiSecret) {
		return nil, apperrors.ErrInvalidCredentials
	}
	if !user.Enabled {
		return nil, apperrors.ErrUserDisabled
	}
	return &user, nil
}

// storeableSecret prepares an API secret for persistence. With a sealer
// configured the secret is encrypted and recoverable; otherwise it is
// bcrypt-hashed and can only be compared.
func (s *UserService) storeableSecret(secret string) (string, error) {
	if s.sealer != nil {
		return s.sealer.Seal(secret)
	}
	return crypto.HashPassword(secret)
}

func (s *UserService) secretMatches(stored, presented string) bool {
	if s.sealer != nil {
		plain, err := s.sealer.Open(stored)
		if err != nil {
			return false
		}
		return crypto.SecureCompare(plain, presented)
	}
	return crypto.VerifyPassword(stored, presented)
}

// HasRole reports whether the account carries the given role.
func (s *UserService) HasRole(ctx context.Context, name, role string) (bool, error) {
	ctx = ensureContext(ctx)

	var count int64
	err := s.db.WithContext(ctx).Model(&models.UserRole{}).
		Where("user_name = ? AND role = ?", name, role).
		Count(&count).Error
	return count > 0, err
}

// requireSystemManager checks the acting user. The built-in
// Administrator always passes.
func (s *UserService) requireSystemManager(ctx context.Context) error {
	actor, ok := auditctx.FromContext(ctx)
	if !ok || actor.UserName == "" {
		return apperrors.ErrForbidden
	}
	if actor.UserName == identity.Administrator {
		return nil
	}
	allowed, err := s.HasRole(ctx, actor.UserName, models.RoleSystemManager)
	if err != nil {
		return err
	}
	if !allowed {
		return apperrors.ErrForbidden
	}
	return nil
}
