package users

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/wardenhq/warden/internal/identity"
	"github.com/wardenhq/warden/internal/jobs"
	"github.com/wardenhq/warden/internal/models"
)

// syncContact mirrors the account into the shared address book so that
// communication addressed to the user resolves to a contact. Reserved
// accounts never get one.
func (s *UserService) syncContact(ctx context.Context, name string) error {
	if identity.IsReserved(name) {
		return nil
	}

	var user models.User
	if err := s.db.WithContext(ctx).Take(&user, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	var contact models.Contact
	err := s.db.WithContext(ctx).Where("email_id = ?", user.Email).Take(&contact).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return s.createContact(ctx, &user)
	case err != nil:
		return err
	}
	return s.refreshContact(ctx, &contact, &user)
}

func (s *UserService) createContact(ctx context.Context, user *models.User) error {
	link := user.Name
	contact := models.Contact{
		FirstName:  user.FirstName,
		LastName:   user.LastName,
		FullName:   contactFullName(user),
		Gender:     user.Gender,
		EmailID:    user.Email,
		Phone:      user.Phone,
		MobileNo:   user.MobileNo,
		UserName:   &link,
		Owner:      identity.Administrator,
		ModifiedBy: identity.Administrator,
	}
	if err := s.db.WithContext(ctx).Create(&contact).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil
		}
		return err
	}
	return nil
}

// refreshContact carries name changes over and fills in phone numbers
// the contact does not have yet. A stale update stamp means somebody
// edited the contact mid-flight, so the job asks to be retried.
func (s *UserService) refreshContact(ctx context.Context, contact *models.Contact, user *models.User) error {
	updates := map[string]any{
		"first_name":  user.FirstName,
		"last_name":   user.LastName,
		"full_name":   contactFullName(user),
		"gender":      user.Gender,
		"modified_by": identity.Administrator,
	}
	if contact.Phone == "" && user.Phone != "" {
		updates["phone"] = user.Phone
	}
	if contact.MobileNo == "" && user.MobileNo != "" {
		updates["mobile_no"] = user.MobileNo
	}

	res := s.db.WithContext(ctx).Model(&models.Contact{}).
		Where("id = ? AND updated_at = ?", contact.ID, contact.UpdatedAt).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return jobs.ErrRetryLater
	}
	return nil
}

func contactFullName(user *models.User) string {
	parts := make([]string, 0, 2)
	for _, part := range []string{user.FirstName, user.LastName} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, " ")
}
