package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/wardenhq/warden/internal/identity"
	"github.com/wardenhq/warden/internal/models"
	apperrors "github.com/wardenhq/warden/pkg/errors"
)

func TestRenameGuardsReservedUsers(t *testing.T) {
	svc, _ := newTestUserService(t)

	_, err := svc.Rename(context.Background(), identity.Administrator, "root@example.com")
	require.Error(t, err)
	appErr := apperrors.FromError(err)
	assert.Equal(t, "PROTECTED_USER", appErr.Code)
	assert.Equal(t, "User Administrator cannot be renamed", appErr.Message)
}

func TestRenameValidatesTarget(t *testing.T) {
	svc, db := newTestUserService(t)
	ctx := context.Background()

	seedQueryUser(t, db, "mover@example.com", nil)
	seedQueryUser(t, db, "taken@example.com", nil)

	_, err := svc.Rename(ctx, "mover@example.com", "not an address")
	require.Error(t, err)
	assert.Equal(t, "not an address is not a valid email address", apperrors.FromError(err).Message)

	_, err = svc.Rename(ctx, "mover@example.com", "Taken@Example.com")
	require.Error(t, err)
	assert.Equal(t, "CONFLICT", apperrors.FromError(err).Code)

	unchanged, err := svc.Rename(ctx, "mover@example.com", "MOVER@example.com")
	require.NoError(t, err)
	assert.Equal(t, "mover@example.com", unchanged.Name)
}

func TestRenameMovesEveryReference(t *testing.T) {
	svc, db := newTestUserService(t)
	ctx := context.Background()

	old := "old@example.com"
	fresh := "fresh@example.com"

	_, err := svc.Create(ctx, CreateUserInput{
		Email:     old,
		FirstName: "Old",
		Roles:     []string{models.RoleSystemManager},
	})
	require.NoError(t, err)

	assigned := old
	require.NoError(t, db.Create(&models.Todo{AllocatedTo: old, AssignedBy: &assigned, Description: "carry over"}).Error)
	require.NoError(t, db.Create(&models.Event{Subject: "standup", EventType: models.EventTypePublic, Owner: old, ModifiedBy: old}).Error)
	require.NoError(t, db.Create(&models.Notification{UserName: old, FromUser: old, Type: models.NotificationTypeAlert, Subject: "hi"}).Error)
	require.NoError(t, db.Create(&models.DocShare{UserName: old, SharedBy: old, DocumentType: "Note", DocumentName: "n-1", Read: true}).Error)

	forUser := old
	require.NoError(t, db.Create(&models.ListFilter{FilterName: "mine", ReferenceType: "Todo", ForUser: &forUser}).Error)
	require.NoError(t, db.Create(&models.DefaultValue{Parent: old, DefKey: "last_project", DefValue: "apollo"}).Error)
	require.NoError(t, db.Create(&models.UserEmail{UserName: old, EmailAccount: "Support", AwaitingPassword: true}).Error)
	require.NoError(t, db.Create(&models.Note{
		Title:  "release notes",
		SeenBy: datatypes.JSON(`["old@example.com","other@example.com"]`),
	}).Error)

	renamed, err := svc.Rename(ctx, old, "Fresh@Example.com")
	require.NoError(t, err)
	assert.Equal(t, fresh, renamed.Name)
	assert.Equal(t, fresh, renamed.Email)
	assert.Equal(t, []string{models.RoleSystemManager}, renamed.RoleNames())

	_, err = svc.Get(ctx, old)
	assert.ErrorIs(t, err, ErrUserNotFound)

	count := func(model any, query string, args ...any) int64 {
		t.Helper()
		var n int64
		require.NoError(t, db.Model(model).Where(query, args...).Count(&n).Error)
		return n
	}

	assert.EqualValues(t, 1, count(&models.Todo{}, "allocated_to = ? AND assigned_by = ?", fresh, fresh))
	assert.EqualValues(t, 1, count(&models.Event{}, "owner = ? AND modified_by = ?", fresh, fresh))
	assert.EqualValues(t, 1, count(&models.Notification{}, "user_name = ? AND from_user = ?", fresh, fresh))
	assert.EqualValues(t, 1, count(&models.DocShare{}, "user_name = ? AND shared_by = ? AND document_type = ?", fresh, fresh, "Note"))
	assert.EqualValues(t, 1, count(&models.ListFilter{}, "for_user = ?", fresh))
	assert.EqualValues(t, 1, count(&models.DefaultValue{}, "parent = ? AND def_key = ?", fresh, "last_project"))
	assert.Zero(t, count(&models.DefaultValue{}, "parent = ?", old))
	assert.EqualValues(t, 1, count(&models.NotificationSettings{}, "user_name = ?", fresh))
	assert.Zero(t, count(&models.NotificationSettings{}, "user_name = ?", old))
	assert.Zero(t, count(&models.UserRole{}, "user_name = ?", old))

	// The self-share points at the user record by type and name, so the
	// document side follows the rename too.
	assert.EqualValues(t, 1, count(&models.DocShare{}, "user_name = ? AND document_type = ? AND document_name = ?", fresh, "User", fresh))
	assert.Zero(t, count(&models.DocShare{}, "document_type = ? AND document_name = ?", "User", old))

	var note models.Note
	require.NoError(t, db.Take(&note, "title = ?", "release notes").Error)
	assert.JSONEq(t, `["fresh@example.com","other@example.com"]`, string(note.SeenBy))

	var registry models.DefaultValue
	err = db.Take(&registry, "parent = ? AND def_key = ?", defaultsParentGlobal, defaultKeyAwaitingPasswords).Error
	require.NoError(t, err)
	assert.Equal(t, fresh, registry.DefValue)
}
