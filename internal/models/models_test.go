package models

import "testing"

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	if err := base.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if base.ID == "" {
		t.Fatal("expected base model ID to be generated")
	}
}

func TestEmbeddedModelsUseBaseBeforeCreate(t *testing.T) {
	cases := []struct {
		name  string
		model func() *BaseModel
	}{
		{"user_role", func() *BaseModel {
			r := &UserRole{}
			return &r.BaseModel
		}},
		{"user_role_profile", func() *BaseModel {
			r := &UserRoleProfile{}
			return &r.BaseModel
		}},
		{"blocked_module", func() *BaseModel {
			b := &BlockedModule{}
			return &b.BaseModel
		}},
		{"social_login", func() *BaseModel {
			s := &SocialLogin{}
			return &s.BaseModel
		}},
		{"user_email", func() *BaseModel {
			u := &UserEmail{}
			return &u.BaseModel
		}},
		{"todo", func() *BaseModel {
			td := &Todo{}
			return &td.BaseModel
		}},
		{"doc_share", func() *BaseModel {
			d := &DocShare{}
			return &d.BaseModel
		}},
		{"notification", func() *BaseModel {
			n := &Notification{}
			return &n.BaseModel
		}},
		{"user_permission", func() *BaseModel {
			p := &UserPermission{}
			return &p.BaseModel
		}},
		{"default_value", func() *BaseModel {
			d := &DefaultValue{}
			return &d.BaseModel
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			model := tc.model()
			if err := model.BeforeCreate(nil); err != nil {
				t.Fatalf("before create: %v", err)
			}
			if model.ID == "" {
				t.Fatal("expected ID to be generated")
			}
		})
	}
}

func TestUserRoleHelpers(t *testing.T) {
	u := &User{
		Roles: []UserRole{{Role: "System Manager"}, {Role: "Blogger"}},
		RoleProfiles: []UserRoleProfile{
			{RoleProfile: "Operations"},
		},
	}

	if got := u.RoleNames(); len(got) != 2 || got[0] != "System Manager" || got[1] != "Blogger" {
		t.Fatalf("unexpected role names: %v", got)
	}
	if !u.HasRole("Blogger") {
		t.Fatal("expected HasRole to find assigned role")
	}
	if u.HasRole("blogger") {
		t.Fatal("role lookup must be case sensitive")
	}
	if got := u.RoleProfileNames(); len(got) != 1 || got[0] != "Operations" {
		t.Fatalf("unexpected role profile names: %v", got)
	}
}

func TestUserDisplayName(t *testing.T) {
	u := &User{Name: "jane@example.com", Email: "jane@example.com"}
	if got := u.DisplayName(); got != "jane" {
		t.Fatalf("expected email local part, got %q", got)
	}

	u.FullName = "Jane Doe"
	if got := u.DisplayName(); got != "Jane Doe" {
		t.Fatalf("expected full name, got %q", got)
	}
}
