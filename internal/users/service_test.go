package users

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/wardenhq/warden/internal/auditctx"
	"github.com/wardenhq/warden/internal/database/testutil"
	"github.com/wardenhq/warden/internal/identity"
	"github.com/wardenhq/warden/internal/jobs"
	"github.com/wardenhq/warden/internal/models"
	"github.com/wardenhq/warden/pkg/crypto"
	apperrors "github.com/wardenhq/warden/pkg/errors"
)

// captureQueue records enqueued jobs without running them, so tests
// decide which side effects actually fire.
type captureQueue struct {
	jobs []jobs.Job
}

func (q *captureQueue) Enqueue(job jobs.Job) bool {
	q.jobs = append(q.jobs, job)
	return true
}

func (q *captureQueue) kinds() []string {
	kinds := make([]string, 0, len(q.jobs))
	for _, job := range q.jobs {
		kinds = append(kinds, job.Kind)
	}
	return kinds
}

func (q *captureQueue) run(t *testing.T, kind string) error {
	t.Helper()
	for _, job := range q.jobs {
		if job.Kind == kind {
			return job.Run(context.Background())
		}
	}
	t.Fatalf("no %q job enqueued", kind)
	return nil
}

type fakeSessions struct {
	loggedOut []string
}

func (f *fakeSessions) LogoutUser(_ context.Context, name string) error {
	f.loggedOut = append(f.loggedOut, name)
	return nil
}

func newTestUserService(t *testing.T, opts ...UserOption) (*UserService, *gorm.DB) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	return newUserServiceOn(t, db, opts...)
}

func newUserServiceOn(t *testing.T, db *gorm.DB, opts ...UserOption) (*UserService, *gorm.DB) {
	t.Helper()

	reconciler, err := NewRoleProfileReconciler(db)
	require.NoError(t, err)
	policy, err := NewPasswordPolicy(db)
	require.NoError(t, err)
	pipeline, err := NewPipeline(db, reconciler, policy)
	require.NoError(t, err)
	reset, err := NewResetService(db, policy)
	require.NoError(t, err)

	svc, err := NewUserService(db, pipeline, reset, opts...)
	require.NoError(t, err)
	return svc, db
}

func TestCreateUserPersistsChildRows(t *testing.T) {
	svc, db := newTestUserService(t)

	result, err := svc.Create(context.Background(), CreateUserInput{
		Email:     "Pat.Smith@Example.com",
		FirstName: "Pat",
		LastName:  "Smith",
		Roles:     []string{models.RoleSystemManager},
	})
	require.NoError(t, err)

	user := result.User
	assert.Equal(t, "pat.smith@example.com", user.Name)
	assert.Equal(t, "pat.smith@example.com", user.Email)
	assert.Equal(t, "Pat Smith", user.FullName)
	assert.Equal(t, models.UserTypeSystem, user.UserType)
	assert.Equal(t, identity.Administrator, user.Owner)
	assert.Empty(t, result.Warnings)

	stored, err := svc.Get(context.Background(), user.Name)
	require.NoError(t, err)
	assert.Equal(t, []string{models.RoleSystemManager}, stored.RoleNames())
	require.Len(t, stored.SocialLogins, 1)
	assert.Equal(t, socialLoginProvider, stored.SocialLogins[0].Provider)

	var roleRows int64
	require.NoError(t, db.Model(&models.UserRole{}).
		Where("user_name = ?", user.Name).
		Count(&roleRows).Error)
	assert.EqualValues(t, 1, roleRows)
}

func TestCreateUserValidatesInput(t *testing.T) {
	svc, _ := newTestUserService(t)

	_, err := svc.Create(context.Background(), CreateUserInput{FirstName: "Pat"})
	require.Error(t, err)
	assert.Equal(t, "email is required", apperrors.FromError(err).Message)

	_, err = svc.Create(context.Background(), CreateUserInput{Email: "pat@example.com"})
	require.Error(t, err)
	assert.Equal(t, "first name is required", apperrors.FromError(err).Message)
}

func TestCreateUserDuplicateEmailConflicts(t *testing.T) {
	svc, _ := newTestUserService(t)

	input := CreateUserInput{Email: "pat@example.com", FirstName: "Pat"}
	_, err := svc.Create(context.Background(), input)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), input)
	require.Error(t, err)
	appErr := apperrors.FromError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, "CONFLICT", appErr.Code)
	assert.Contains(t, appErr.Message, "pat@example.com already exists")
}

func TestCreateUserHashesPassword(t *testing.T) {
	svc, db := newTestUserService(t)

	_, err := svc.Create(context.Background(), CreateUserInput{
		Email:     "pat@example.com",
		FirstName: "Pat",
		Password:  "circuit#swelter#prong",
	})
	require.NoError(t, err)

	var stored models.User
	require.NoError(t, db.Take(&stored, "name = ?", "pat@example.com").Error)
	assert.NotEqual(t, "circuit#swelter#prong", stored.Password)
	assert.True(t, crypto.VerifyPassword(stored.Password, "circuit#swelter#prong"))
}

func TestCreateUserFansOutSideEffects(t *testing.T) {
	queue := &captureQueue{}
	mailer := &capturedMail{}
	svc, db := newTestUserService(t,
		WithQueue(queue),
		WithMailer(mailer),
		WithSiteName("Warden"))

	result, err := svc.Create(context.Background(), CreateUserInput{
		Email:     "pat@example.com",
		FirstName: "Pat",
	})
	require.NoError(t, err)
	name := result.User.Name

	var settings models.NotificationSettings
	require.NoError(t, db.Take(&settings, "user_name = ?", name).Error)
	assert.True(t, settings.Enabled)

	var share models.DocShare
	err = db.Take(&share, "user_name = ? AND document_type = ? AND document_name = ?",
		name, "User", name).Error
	require.NoError(t, err)
	assert.True(t, share.Read)
	assert.True(t, share.Write)
	assert.True(t, share.Share)

	var tz models.DefaultValue
	require.NoError(t, db.Take(&tz, "parent = ? AND def_key = ?", name, "time_zone").Error)
	assert.Equal(t, "UTC", tz.DefValue)

	assert.Contains(t, queue.kinds(), "welcome-email")
	assert.Contains(t, queue.kinds(), "contact-sync")
	assert.Contains(t, queue.kinds(), "gravatar")
}

func TestWelcomeEmailJobIssuesResetKey(t *testing.T) {
	queue := &captureQueue{}
	mailer := &capturedMail{}
	svc, db := newTestUserService(t,
		WithQueue(queue),
		WithMailer(mailer),
		WithSiteName("Warden"))

	_, err := svc.Create(context.Background(), CreateUserInput{
		Email:     "pat@example.com",
		FirstName: "Pat",
	})
	require.NoError(t, err)

	require.NoError(t, queue.run(t, "welcome-email"))

	require.Len(t, mailer.messages, 1)
	msg := mailer.messages[0]
	assert.Equal(t, []string{"pat@example.com"}, msg.To)
	assert.Equal(t, "Welcome to Warden", msg.Subject)
	assert.Contains(t, msg.Body, "update-password?key=")

	var stored models.User
	require.NoError(t, db.Take(&stored, "name = ?", "pat@example.com").Error)
	assert.NotEmpty(t, stored.ResetPasswordKey)
}

func TestWelcomeEmailSubjectWithoutSiteName(t *testing.T) {
	queue := &captureQueue{}
	mailer := &capturedMail{}
	svc, _ := newTestUserService(t, WithQueue(queue), WithMailer(mailer))

	_, err := svc.Create(context.Background(), CreateUserInput{
		Email:     "pat@example.com",
		FirstName: "Pat",
	})
	require.NoError(t, err)

	require.NoError(t, queue.run(t, "welcome-email"))
	require.Len(t, mailer.messages, 1)
	assert.Equal(t, "Complete Registration", mailer.messages[0].Subject)
}

func TestWelcomeEmailSkippedWhenDeclined(t *testing.T) {
	queue := &captureQueue{}
	mailer := &capturedMail{}
	svc, _ := newTestUserService(t, WithQueue(queue), WithMailer(mailer))

	declined := false
	_, err := svc.Create(context.Background(), CreateUserInput{
		Email:            "pat@example.com",
		FirstName:        "Pat",
		SendWelcomeEmail: &declined,
	})
	require.NoError(t, err)
	assert.NotContains(t, queue.kinds(), "welcome-email")
}

func TestUpdateUserReplacesChildRows(t *testing.T) {
	svc, db := newTestUserService(t)

	_, err := svc.Create(context.Background(), CreateUserInput{
		Email:     "pat@example.com",
		FirstName: "Pat",
		Roles:     []string{models.RoleSystemManager},
	})
	require.NoError(t, err)

	ctx := auditctx.WithActor(context.Background(), auditctx.Actor{UserName: identity.Administrator})
	result, err := svc.Update(ctx, "pat@example.com", func(u *models.User) error {
		u.FirstName = "Patricia"
		u.Roles = []models.UserRole{{Role: models.RoleAll}, {Role: models.RoleSystemManager}}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Patricia", result.User.FirstName)
	assert.Equal(t, identity.Administrator, result.User.ModifiedBy)

	stored, err := svc.Get(context.Background(), "pat@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Patricia", stored.FirstName)
	assert.ElementsMatch(t, []string{models.RoleAll, models.RoleSystemManager}, stored.RoleNames())

	var roleRows int64
	require.NoError(t, db.Model(&models.UserRole{}).
		Where("user_name = ?", "pat@example.com").
		Count(&roleRows).Error)
	assert.EqualValues(t, 2, roleRows)
}

func TestUpdateRejectsNameChange(t *testing.T) {
	svc, _ := newTestUserService(t)

	_, err := svc.Create(context.Background(), CreateUserInput{
		Email:     "pat@example.com",
		FirstName: "Pat",
	})
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), "pat@example.com", func(u *models.User) error {
		u.Name = "other@example.com"
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, apperrors.FromError(err).Message, "use rename")
}

func TestUpdateDetectsConcurrentModification(t *testing.T) {
	svc, db := newTestUserService(t)

	_, err := svc.Create(context.Background(), CreateUserInput{
		Email:     "pat@example.com",
		FirstName: "Pat",
	})
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), "pat@example.com", func(u *models.User) error {
		// Another writer slips in after the load.
		return db.Model(&models.User{}).
			Where("name = ?", u.Name).
			UpdateColumn("updated_at", time.Now().Add(time.Hour)).Error
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrModified.Code, apperrors.FromError(err).Code)
}

func TestUpdateDisableTerminatesSessions(t *testing.T) {
	sessions := &fakeSessions{}
	svc, db := newTestUserService(t, WithSessions(sessions))

	_, err := svc.Create(context.Background(), CreateUserInput{
		Email:     "pat@example.com",
		FirstName: "Pat",
	})
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), "pat@example.com", func(u *models.User) error {
		u.Enabled = false
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"pat@example.com"}, sessions.loggedOut)

	var settings models.NotificationSettings
	require.NoError(t, db.Take(&settings, "user_name = ?", "pat@example.com").Error)
	assert.False(t, settings.Enabled)
}

func TestGetReturnsNotFound(t *testing.T) {
	svc, _ := newTestUserService(t)

	_, err := svc.Get(context.Background(), "missing@example.com")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestListFiltersUsers(t *testing.T) {
	svc, _ := newTestUserService(t)

	for _, input := range []CreateUserInput{
		{Email: "ann@example.com", FirstName: "Ann", Roles: []string{models.RoleSystemManager}},
		{Email: "bob@example.com", FirstName: "Bob"},
	} {
		_, err := svc.Create(context.Background(), input)
		require.NoError(t, err)
	}
	_, err := svc.Update(context.Background(), "bob@example.com", func(u *models.User) error {
		u.Enabled = false
		return nil
	})
	require.NoError(t, err)

	users, total, err := svc.List(context.Background(), ListUsersOptions{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	for _, u := range users {
		assert.False(t, identity.IsReserved(u.Name))
	}

	enabled := true
	users, total, err = svc.List(context.Background(), ListUsersOptions{
		Filters: UserFilters{Enabled: &enabled},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, users, 1)
	assert.Equal(t, "ann@example.com", users[0].Name)

	users, total, err = svc.List(context.Background(), ListUsersOptions{
		Filters: UserFilters{Query: "BOB"},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, users, 1)
	assert.Equal(t, "bob@example.com", users[0].Name)

	_, total, err = svc.List(context.Background(), ListUsersOptions{
		Filters: UserFilters{IncludeReserved: true},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
}

func TestUpdateLanguageKeepsDefaultInStep(t *testing.T) {
	svc, db := newTestUserService(t)

	_, err := svc.Create(context.Background(), CreateUserInput{
		Email:     "pat@example.com",
		FirstName: "Pat",
		Language:  "fr",
	})
	require.NoError(t, err)

	var lang models.DefaultValue
	require.NoError(t, db.Take(&lang, "parent = ? AND def_key = ?", "pat@example.com", "lang").Error)
	assert.Equal(t, "fr", lang.DefValue)

	_, err = svc.Update(context.Background(), "pat@example.com", func(u *models.User) error {
		u.Language = ""
		return nil
	})
	require.NoError(t, err)

	err = db.Take(&lang, "parent = ? AND def_key = ?", "pat@example.com", "lang").Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
