package users

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wardenhq/warden/internal/models"
)

// updateGravatar adopts the avatar published for the account's email
// address, if there is one. Lookup failures are not worth retrying.
func (s *UserService) updateGravatar(ctx context.Context, name string) error {
	var user models.User
	if err := s.db.WithContext(ctx).Take(&user, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if user.Email == "" {
		return nil
	}

	url := s.gravatarURL(user.Email)
	resp, err := s.http.R().SetContext(ctx).Get(url)
	if err != nil {
		s.log.Debug("gravatar lookup failed", zap.String("user", name), zap.Error(err))
		return nil
	}
	if resp.StatusCode() != http.StatusOK {
		return nil
	}

	return s.db.WithContext(ctx).Model(&models.User{}).
		Where("name = ?", name).
		Update("user_image", url).Error
}

// gravatarURL requests a hard 404 instead of a generated placeholder so
// that "no avatar" is detectable.
func (s *UserService) gravatarURL(email string) string {
	sum := md5.Sum([]byte(email))
	return fmt.Sprintf("%s/avatar/%s?d=404", s.gravatarBase, hex.EncodeToString(sum[:]))
}
