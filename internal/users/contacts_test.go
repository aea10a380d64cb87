package users

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/identity"
	"github.com/wardenhq/warden/internal/jobs"
	"github.com/wardenhq/warden/internal/models"
)

func TestContactSyncCreatesAddressBookEntry(t *testing.T) {
	queue := &captureQueue{}
	svc, db := newTestUserService(t, WithQueue(queue))

	_, err := svc.Create(context.Background(), CreateUserInput{
		Email:     "ann@example.com",
		FirstName: "Ann",
		LastName:  "Ári",
		Gender:    "Female",
		Phone:     "+1 555 0100",
	})
	require.NoError(t, err)
	require.NoError(t, queue.run(t, "contact-sync"))

	var contact models.Contact
	require.NoError(t, db.Take(&contact, "email_id = ?", "ann@example.com").Error)
	assert.Equal(t, "Ann", contact.FirstName)
	assert.Equal(t, "Ann Ári", contact.FullName)
	assert.Equal(t, "Female", contact.Gender)
	assert.Equal(t, "+1 555 0100", contact.Phone)
	require.NotNil(t, contact.UserName)
	assert.Equal(t, "ann@example.com", *contact.UserName)
	assert.Equal(t, identity.Administrator, contact.Owner)

	// Running the job again must not duplicate the entry.
	require.NoError(t, svc.syncContact(context.Background(), "ann@example.com"))
	var n int64
	require.NoError(t, db.Model(&models.Contact{}).Where("email_id = ?", "ann@example.com").Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestContactSyncSkipsReservedAndMissing(t *testing.T) {
	svc, db := newTestUserService(t)
	ctx := context.Background()

	require.NoError(t, svc.syncContact(ctx, identity.Administrator))
	require.NoError(t, svc.syncContact(ctx, "nobody@example.com"))

	var n int64
	require.NoError(t, db.Model(&models.Contact{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestContactSyncRefreshesExistingEntry(t *testing.T) {
	svc, db := newTestUserService(t)
	ctx := context.Background()

	seedQueryUser(t, db, "bob@example.com", func(u *models.User) {
		u.FirstName = "Robert"
		u.LastName = "Onda"
		u.MobileNo = "+1 555 0199"
	})
	require.NoError(t, db.Create(&models.Contact{
		FirstName: "Bob",
		FullName:  "Bob",
		EmailID:   "bob@example.com",
		Phone:     "+1 555 0111",
	}).Error)

	require.NoError(t, svc.syncContact(ctx, "bob@example.com"))

	var contact models.Contact
	require.NoError(t, db.Take(&contact, "email_id = ?", "bob@example.com").Error)
	assert.Equal(t, "Robert", contact.FirstName)
	assert.Equal(t, "Robert Onda", contact.FullName)
	assert.Equal(t, "+1 555 0111", contact.Phone, "existing phone is kept")
	assert.Equal(t, "+1 555 0199", contact.MobileNo, "missing mobile is filled in")
	assert.Nil(t, contact.UserName, "refresh does not relink the account")
}

func TestContactRefreshRetriesOnConcurrentEdit(t *testing.T) {
	svc, db := newTestUserService(t)
	ctx := context.Background()

	seedQueryUser(t, db, "bob@example.com", nil)
	contact := models.Contact{FirstName: "Bob", EmailID: "bob@example.com"}
	require.NoError(t, db.Create(&contact).Error)

	stale := contact
	require.NoError(t, db.Model(&models.Contact{}).
		Where("id = ?", contact.ID).
		UpdateColumn("updated_at", time.Now().Add(time.Minute)).Error)

	var user models.User
	require.NoError(t, db.Take(&user, "name = ?", "bob@example.com").Error)
	err := svc.refreshContact(ctx, &stale, &user)
	assert.ErrorIs(t, err, jobs.ErrRetryLater)
}
