package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/wardenhq/warden/internal/models"
)

// GetSystemSetting returns the stored value for key, or an empty string
// when the key does not exist. A missing table reads as missing keys so
// callers keep working before migrations have run.
func GetSystemSetting(ctx context.Context, db *gorm.DB, key string) (string, error) {
	if db == nil {
		return "", fmt.Errorf("system settings: db is nil")
	}

	var setting models.SystemSetting
	switch err := db.WithContext(ctx).Take(&setting, "key = ?", key).Error; {
	case err == nil:
		return setting.Value, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return "", nil
	case strings.Contains(err.Error(), "no such table"):
		return "", nil
	default:
		return "", fmt.Errorf("system settings: get %q: %w", key, err)
	}
}

// UpsertSystemSetting stores or updates a system setting value.
func UpsertSystemSetting(ctx context.Context, db *gorm.DB, key, value string) error {
	if db == nil {
		return fmt.Errorf("system settings: db is nil")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("system settings: key is required")
	}

	record := models.SystemSetting{Key: key, Value: value}
	err := db.WithContext(ctx).
		Where("key = ?", key).
		Assign(map[string]any{"value": value}).
		FirstOrCreate(&record).Error
	if err != nil {
		return fmt.Errorf("system settings: upsert %q: %w", key, err)
	}
	return nil
}

// GetSystemSettingInt retrieves an integer setting. Missing or malformed
// values fall back to def.
func GetSystemSettingInt(ctx context.Context, db *gorm.DB, key string, def int) (int, error) {
	raw, err := GetSystemSetting(ctx, db, key)
	if err != nil {
		return def, err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return def, nil
	}
	return value, nil
}

// GetSystemSettingBool retrieves a boolean setting. Both "1"/"0" and
// "true"/"false" spellings are accepted; anything else falls back to def.
func GetSystemSettingBool(ctx context.Context, db *gorm.DB, key string, def bool) (bool, error) {
	raw, err := GetSystemSetting(ctx, db, key)
	if err != nil {
		return def, err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return def, nil
	}
	return value, nil
}
