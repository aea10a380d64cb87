package users

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/wardenhq/warden/internal/cache"
	"github.com/wardenhq/warden/internal/database"
	"github.com/wardenhq/warden/internal/database/testutil"
	"github.com/wardenhq/warden/internal/models"
	"github.com/wardenhq/warden/pkg/crypto"
	apperrors "github.com/wardenhq/warden/pkg/errors"
)

func seedQueryUser(t *testing.T, db *gorm.DB, name string, mutate func(*models.User)) *models.User {
	t.Helper()

	user := &models.User{
		Name:      name,
		Email:     name,
		FirstName: "Query",
		FullName:  "Query User",
		Enabled:   true,
		UserType:  models.UserTypeSystem,
	}
	if mutate != nil {
		mutate(user)
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func TestGetSystemUsersSkipsReservedAndExcluded(t *testing.T) {
	svc, db := newTestUserService(t)

	seedQueryUser(t, db, "ann@example.com", nil)
	seedQueryUser(t, db, "bob@example.com", nil)
	seedQueryUser(t, db, "web@example.com", func(u *models.User) {
		u.UserType = models.UserTypeWebsite
	})
	seedQueryUser(t, db, "off@example.com", func(u *models.User) {
		u.Enabled = false
	})

	names, err := svc.GetSystemUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ann@example.com", "bob@example.com"}, names)

	names, err = svc.GetSystemUsers(context.Background(), "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob@example.com"}, names)
}

func TestGetTotalUsersSumsSessionSlots(t *testing.T) {
	svc, db := newTestUserService(t)

	seedQueryUser(t, db, "ann@example.com", func(u *models.User) {
		u.SimultaneousSessions = 2
	})
	seedQueryUser(t, db, "bob@example.com", func(u *models.User) {
		u.SimultaneousSessions = 3
	})
	seedQueryUser(t, db, "web@example.com", func(u *models.User) {
		u.UserType = models.UserTypeWebsite
		u.SimultaneousSessions = 5
	})

	total, err := svc.GetTotalUsers(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
}

func TestActiveUserCounts(t *testing.T) {
	svc, db := newTestUserService(t)

	recent := time.Now().Add(-time.Hour)
	stale := time.Now().Add(-100 * time.Hour)

	seedQueryUser(t, db, "ann@example.com", func(u *models.User) {
		u.LastActiveAt = &recent
	})
	seedQueryUser(t, db, "bob@example.com", func(u *models.User) {
		u.LastActiveAt = &stale
	})
	seedQueryUser(t, db, "idle@example.com", nil)
	seedQueryUser(t, db, "web@example.com", func(u *models.User) {
		u.UserType = models.UserTypeWebsite
		u.LastActiveAt = &recent
	})

	active, err := svc.GetActiveUsers(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, active)

	website, err := svc.GetWebsiteUsers(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, website)

	activeWebsite, err := svc.GetActiveWebsiteUsers(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, activeWebsite)
}

func TestGetEnabledUsersUsesCache(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	store := cache.NewDatabaseStore(db)
	aside := cache.NewAside(store, time.Minute)
	svc, _ := newUserServiceOn(t, db, WithCache(aside))

	seedQueryUser(t, db, "ann@example.com", nil)

	names, err := svc.GetEnabledUsers(context.Background())
	require.NoError(t, err)
	assert.Contains(t, names, "ann@example.com")
	assert.Contains(t, names, "Administrator")

	// Served from cache until invalidated: a raw row insert is not
	// visible, a save through the service is.
	seedQueryUser(t, db, "bob@example.com", nil)
	names, err = svc.GetEnabledUsers(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, names, "bob@example.com")

	_, err = svc.Create(context.Background(), CreateUserInput{
		Email:     "carol@example.com",
		FirstName: "Carol",
	})
	require.NoError(t, err)

	names, err = svc.GetEnabledUsers(context.Background())
	require.NoError(t, err)
	assert.Contains(t, names, "bob@example.com")
	assert.Contains(t, names, "carol@example.com")
}

func TestUsersForMentionsFilters(t *testing.T) {
	svc, db := newTestUserService(t)

	seedQueryUser(t, db, "ann@example.com", func(u *models.User) {
		u.AllowInMentions = true
		u.FullName = "Ann Mention"
	})
	seedQueryUser(t, db, "bob@example.com", nil)
	seedQueryUser(t, db, "web@example.com", func(u *models.User) {
		u.UserType = models.UserTypeWebsite
		u.AllowInMentions = true
	})

	mentions, err := svc.UsersForMentions(context.Background())
	require.NoError(t, err)
	require.Len(t, mentions, 1)
	assert.Equal(t, Mention{ID: "ann@example.com", Value: "Ann Mention"}, mentions[0])
}

func TestFindByCredentials(t *testing.T) {
	svc, db := newTestUserService(t)

	hash, err := crypto.HashPassword("open-sesame-417")
	require.NoError(t, err)
	seedQueryUser(t, db, "ann@example.com", func(u *models.User) {
		u.Password = hash
		u.Username = "ann"
		u.MobileNo = "+15550100"
	})

	user, err := svc.FindByCredentials(context.Background(), "ann@example.com", "open-sesame-417")
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", user.Name)

	_, err = svc.FindByCredentials(context.Background(), "ann@example.com", "wrong")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	_, err = svc.FindByCredentials(context.Background(), "missing@example.com", "open-sesame-417")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	// Username and mobile lookups stay off until the settings allow them.
	_, err = svc.FindByCredentials(context.Background(), "ann", "open-sesame-417")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	ctx := context.Background()
	require.NoError(t, database.UpsertSystemSetting(ctx, db, models.SettingAllowLoginUsingUserName, "true"))
	require.NoError(t, database.UpsertSystemSetting(ctx, db, models.SettingAllowLoginUsingMobileNumber, "true"))

	user, err = svc.FindByCredentials(ctx, "ann", "open-sesame-417")
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", user.Name)

	user, err = svc.FindByCredentials(ctx, "+15550100", "open-sesame-417")
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", user.Name)
}

func TestAwaitingPasswordMailboxes(t *testing.T) {
	svc, db := newTestUserService(t)

	seedQueryUser(t, db, "ann@example.com", nil)
	rows := []models.UserEmail{
		{UserName: "ann@example.com", EmailAccount: "Support", EmailID: "support@example.com", AwaitingPassword: true},
		{UserName: "ann@example.com", EmailAccount: "Sales", EmailID: "sales@example.com", AwaitingPassword: true, UsedOAuth: true},
		{UserName: "ann@example.com", EmailAccount: "Billing", EmailID: "billing@example.com"},
	}
	require.NoError(t, db.Create(&rows).Error)

	waiting, err := svc.AwaitingPasswordMailboxes(context.Background(), "ann@example.com")
	require.NoError(t, err)
	require.Len(t, waiting, 1)
	assert.Equal(t, "Support", waiting[0].EmailAccount)

	has, err := svc.HasMailboxFor(context.Background(), "billing@example.com")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = svc.HasMailboxFor(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestRestrictedIPs(t *testing.T) {
	assert.Nil(t, RestrictedIPs(nil))
	assert.Nil(t, RestrictedIPs(&models.User{}))
	assert.Equal(t,
		[]string{"10.0.0.1", "192.168.0.0/16"},
		RestrictedIPs(&models.User{RestrictIP: " 10.0.0.1, 192.168.0.0/16 ,"}))
}

func TestSwitchTheme(t *testing.T) {
	svc, db := newTestUserService(t)
	seedQueryUser(t, db, "ann@example.com", nil)

	require.NoError(t, svc.SwitchTheme(context.Background(), "ann@example.com", "Dark"))

	var stored models.User
	require.NoError(t, db.Take(&stored, "name = ?", "ann@example.com").Error)
	assert.Equal(t, "Dark", stored.DeskTheme)

	err := svc.SwitchTheme(context.Background(), "ann@example.com", "Neon")
	require.Error(t, err)
	assert.Equal(t, "Invalid theme", apperrors.FromError(err).Message)
}
