package provision

import (
	"path/filepath"
	"testing"

	"github.com/mcclellann/agencyCRM/pkg/models"
	"github.com/mcclellann/agencyCRM/pkg/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "provision.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEnsureAdmin(t *testing.T) {
	s := newTestStore(t)
	admin := Admin{Email: "  Owner@Agency.example ", Password: "s3cret-pass", DisplayName: "Owner"}

	created, err := EnsureAdmin(s, admin)
	if err != nil {
		t.Fatalf("EnsureAdmin failed: %v", err)
	}
	if !created {
		t.Error("Expected the admin account to be created")
	}

	u, err := s.GetUserByEmail("owner@agency.example")
	if err != nil {
		t.Fatalf("Expected admin to be stored under the normalized email: %v", err)
	}
	if u.Role != models.RoleAdmin || u.SubscriptionStatus != models.SubscriptionActive {
		t.Errorf("Expected active admin, got role %s status %s", u.Role, u.SubscriptionStatus)
	}
	if u.PasswordHash == admin.Password {
		t.Error("Expected the password to be hashed")
	}
	if !CheckPassword(u, "s3cret-pass") {
		t.Error("Expected the configured password to match")
	}
	if CheckPassword(u, "wrong") {
		t.Error("Expected a wrong password to be rejected")
	}

	created, err = EnsureAdmin(s, admin)
	if err != nil {
		t.Fatalf("Second EnsureAdmin failed: %v", err)
	}
	if created {
		t.Error("Expected the second run to be a no-op")
	}

	rotated := admin
	rotated.Password = "changed-in-env"
	created, err = EnsureAdmin(s, rotated)
	if err != nil || created {
		t.Errorf("EnsureAdmin with a new password = %v, %v; want false, nil", created, err)
	}
	u, _ = s.GetUserByEmail("owner@agency.example")
	if !CheckPassword(u, "s3cret-pass") {
		t.Error("Expected the stored password to be left unchanged")
	}
}

func TestEnsureAdmin_SkipsWithoutCredentials(t *testing.T) {
	s := newTestStore(t)
	for _, admin := range []Admin{{}, {Email: "a@b.example"}, {Password: "x"}} {
		created, err := EnsureAdmin(s, admin)
		if err != nil || created {
			t.Errorf("EnsureAdmin(%+v) = %v, %v; want false, nil", admin, created, err)
		}
	}
}
