package store

import (
	"errors"

	"github.com/google/uuid"
	"github.com/mcclellann/agencyCRM/pkg/models"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Storage defines the persistence operations for leads, commission entries, settings and users.
type Storage interface {
	CreateLead(lead *models.Lead) error
	GetLead(id uuid.UUID) (*models.Lead, error)
	UpdateLead(lead *models.Lead) error
	GetAllLeads() ([]*models.Lead, error)

	CreateEntry(entry *models.CommissionEntry) error
	UpdateEntry(entry *models.CommissionEntry) error
	GetAllEntries() ([]*models.CommissionEntry, error)

	// SetDefaultBonus stores the new default and the entries recomputed with it in one transaction.
	SetDefaultBonus(pct decimal.Decimal, entries []models.CommissionEntry) error
	SetTarget(kind models.PeriodKind, target decimal.Decimal) error
	GetSettings() (*models.Settings, error)

	CreateUser(user *models.User) error
	GetUserByEmail(email string) (*models.User, error)

	Close() error
}
