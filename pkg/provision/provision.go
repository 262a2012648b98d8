// Package provision holds one-off setup steps run during deployment or startup.
package provision

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/agencyCRM/pkg/models"
	"github.com/mcclellann/agencyCRM/pkg/store"
	"golang.org/x/crypto/bcrypt"
)

// Admin describes the privileged account to ensure.
type Admin struct {
	Email       string
	Password    string
	DisplayName string
}

// EnsureAdmin creates the admin account if no user with that email exists yet.
// It reports whether an account was created. Running it again is a no-op; an existing
// account whose password differs from the configured one is logged, not overwritten.
func EnsureAdmin(s store.Storage, admin Admin) (bool, error) {
	email := strings.ToLower(strings.TrimSpace(admin.Email))
	if email == "" || admin.Password == "" {
		log.Println("Admin credentials not configured, skipping admin provisioning.")
		return false, nil
	}

	existing, err := s.GetUserByEmail(email)
	if err == nil {
		switch {
		case existing.Role != models.RoleAdmin:
			log.Printf("User %s exists but is not an admin; leaving it unchanged.\n", email)
		case !CheckPassword(existing, admin.Password):
			log.Printf("Configured password for %s does not match the stored account; leaving it unchanged.\n", email)
		}
		return false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return false, fmt.Errorf("failed to look up admin user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(admin.Password), bcrypt.DefaultCost)
	if err != nil {
		return false, fmt.Errorf("failed to hash admin password: %w", err)
	}

	user := &models.User{
		ID:                 uuid.New(),
		Email:              email,
		DisplayName:        admin.DisplayName,
		Role:               models.RoleAdmin,
		PasswordHash:       string(hash),
		SubscriptionStatus: models.SubscriptionActive,
		CreatedAt:          time.Now(),
	}
	if err := s.CreateUser(user); err != nil {
		return false, fmt.Errorf("failed to create admin user: %w", err)
	}
	log.Printf("Provisioned admin account %s.\n", email)
	return true, nil
}

// CheckPassword reports whether password matches the user's stored hash.
func CheckPassword(u *models.User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}
