package users

import (
	"context"
	"fmt"

	"github.com/wardenhq/warden/internal/auditctx"
	"github.com/wardenhq/warden/internal/identity"
	"github.com/wardenhq/warden/internal/models"
	apperrors "github.com/wardenhq/warden/pkg/errors"
)

// Impersonate records an administrator taking over the target account
// and leaves the target a notice saying so. Only the built-in
// Administrator may impersonate. The caller performs the actual session
// switch afterwards; the notice is written first so the target learns
// about the takeover even if the switch fails.
func (s *UserService) Impersonate(ctx context.Context, target, reason string) (*models.User, error) {
	ctx = ensureContext(ctx)

	actor, ok := auditctx.FromContext(ctx)
	if !ok || actor.UserName != identity.Administrator {
		return nil, apperrors.ErrForbidden
	}

	user, err := s.Get(ctx, target)
	if err != nil {
		return nil, err
	}
	if !user.Enabled {
		return nil, apperrors.ErrUserDisabled
	}

	notice := models.Notification{
		UserName: user.Name,
		FromUser: actor.UserName,
		Type:     models.NotificationTypeImpersonate,
		Subject:  fmt.Sprintf("%s just impersonated as you. They gave this reason: %s", actor.UserName, reason),
	}
	if err := s.db.WithContext(ctx).Create(&notice).Error; err != nil {
		return nil, err
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "user.impersonate",
		Resource: user.Name,
		Result:   "success",
		Metadata: map[string]any{
			"subject": fmt.Sprintf("User %s impersonated as %s", actor.UserName, user.Name),
			"reason":  reason,
		},
	})

	return user, nil
}
