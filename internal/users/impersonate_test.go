package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/auditctx"
	"github.com/wardenhq/warden/internal/models"
	apperrors "github.com/wardenhq/warden/pkg/errors"
)

func TestImpersonateRequiresAdministrator(t *testing.T) {
	svc, db := newTestUserService(t)
	seedQueryUser(t, db, "target@example.com", nil)
	seedQueryUser(t, db, "manager@example.com", nil)
	require.NoError(t, db.Create(&models.UserRole{
		UserName: "manager@example.com",
		Role:     models.RoleSystemManager,
	}).Error)

	_, err := svc.Impersonate(context.Background(), "target@example.com", "support case")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	// System Manager is not enough, only the built-in Administrator may
	// take over an account.
	ctx := auditctx.WithActor(context.Background(), auditctx.Actor{UserName: "manager@example.com"})
	_, err = svc.Impersonate(ctx, "target@example.com", "support case")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestImpersonateRejectsDisabledTarget(t *testing.T) {
	svc, db := newTestUserService(t)
	seedQueryUser(t, db, "frozen@example.com", func(u *models.User) {
		u.Enabled = false
	})

	_, err := svc.Impersonate(adminContext(), "frozen@example.com", "debugging")
	assert.ErrorIs(t, err, apperrors.ErrUserDisabled)
}

func TestImpersonateNotifiesTarget(t *testing.T) {
	svc, db := newTestUserService(t)
	seedQueryUser(t, db, "target@example.com", nil)

	user, err := svc.Impersonate(adminContext(), "target@example.com", "reproducing a report")
	require.NoError(t, err)
	assert.Equal(t, "target@example.com", user.Name)

	var notice models.Notification
	require.NoError(t, db.Take(&notice, "user_name = ?", "target@example.com").Error)
	assert.Equal(t, "Administrator", notice.FromUser)
	assert.Equal(t, models.NotificationTypeImpersonate, notice.Type)
	assert.Equal(t,
		"Administrator just impersonated as you. They gave this reason: reproducing a report",
		notice.Subject)
}
