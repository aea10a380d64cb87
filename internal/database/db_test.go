package database

import (
	"testing"

	"github.com/wardenhq/warden/internal/identity"
	"github.com/wardenhq/warden/internal/models"
	"gorm.io/gorm"
)

func TestOpenSQLiteMemory(t *testing.T) {
	db := openTestDB(t)

	if err := db.Exec("SELECT 1").Error; err != nil {
		t.Fatalf("expected health query to succeed: %v", err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "oracle"}); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestAutoMigrateAndSeedData(t *testing.T) {
	db := openTestDB(t)

	if err := AutoMigrateAndSeed(db); err != nil {
		t.Fatalf("auto migrate and seed failed: %v", err)
	}

	var roleCount int64
	if err := db.Model(&models.Role{}).Count(&roleCount).Error; err != nil {
		t.Fatalf("count roles: %v", err)
	}
	if roleCount < 4 {
		t.Fatalf("expected at least 4 roles, got %d", roleCount)
	}

	var typeCount int64
	if err := db.Model(&models.UserType{}).Where("is_standard = ?", true).Count(&typeCount).Error; err != nil {
		t.Fatalf("count user types: %v", err)
	}
	if typeCount != 2 {
		t.Fatalf("expected 2 standard user types, got %d", typeCount)
	}

	var admin models.User
	if err := db.Preload("Roles").Take(&admin, "name = ?", identity.Administrator).Error; err != nil {
		t.Fatalf("load administrator: %v", err)
	}
	if admin.UserType != models.UserTypeSystem {
		t.Fatalf("expected administrator to be a system user, got %s", admin.UserType)
	}
	if !admin.HasRole(models.RoleSystemManager) {
		t.Fatal("expected administrator to hold System Manager")
	}

	var guest models.User
	if err := db.Take(&guest, "name = ?", identity.Guest).Error; err != nil {
		t.Fatalf("load guest: %v", err)
	}
	if guest.UserType != models.UserTypeWebsite {
		t.Fatalf("expected guest to be a website user, got %s", guest.UserType)
	}
}

func TestSeedDataIsIdempotent(t *testing.T) {
	db := openTestDB(t)

	if err := AutoMigrateAndSeed(db); err != nil {
		t.Fatalf("first seed: %v", err)
	}

	var admin models.User
	if err := db.Take(&admin, "name = ?", identity.Administrator).Error; err != nil {
		t.Fatalf("load administrator: %v", err)
	}
	if err := db.Model(&models.User{}).Where("name = ?", identity.Administrator).
		Update("password", "local-hash").Error; err != nil {
		t.Fatalf("set password: %v", err)
	}

	if err := SeedData(db); err != nil {
		t.Fatalf("second seed: %v", err)
	}

	if err := db.Take(&admin, "name = ?", identity.Administrator).Error; err != nil {
		t.Fatalf("reload administrator: %v", err)
	}
	if admin.Password != "local-hash" {
		t.Fatal("expected reseeding to leave the existing account untouched")
	}

	var roleRows int64
	if err := db.Model(&models.UserRole{}).Where("user_name = ?", identity.Administrator).Count(&roleRows).Error; err != nil {
		t.Fatalf("count role rows: %v", err)
	}
	if roleRows != 2 {
		t.Fatalf("expected role rows to stay at 2, got %d", roleRows)
	}
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := Open(Config{Driver: "sqlite"})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}
