package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/agencyCRM/pkg/models"
	"github.com/shopspring/decimal"

	_ "github.com/mattn/go-sqlite3"
)

const (
	dateLayout = "2006-01-02"

	settingDefaultBonus = "default_bonus_percentage"
	settingTargetPrefix = "target_"
)

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore and initializes the database.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON;")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	_, err = db.Exec("PRAGMA journal_mode = WAL;")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	log.Println("Database connection established and schema initialized.")
	return s, nil
}

// initSchema creates the tables if they don't already exist and adds columns introduced later.
// Money is stored as TEXT so no precision is lost; commission dates are stored as YYYY-MM-DD.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS leads (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		source TEXT NOT NULL,
		policy_type TEXT NOT NULL,
		coverage_amount TEXT NOT NULL DEFAULT '0',
		notes TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS commission_entries (
		id TEXT PRIMARY KEY,
		policy_id TEXT NOT NULL UNIQUE,
		policy_type TEXT NOT NULL,
		client_name TEXT NOT NULL,
		annual_premium TEXT NOT NULL,
		bonus_percentage TEXT NOT NULL,
		base_commission TEXT NOT NULL,
		total_commission TEXT NOT NULL,
		entry_date TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL,
		role TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		subscription_status TEXT NOT NULL,
		trial_ends_at DATETIME,
		created_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	if err != nil {
		return err
	}

	columns := []struct{ table, def string }{
		{"leads", "last_contacted_at DATETIME"},
		{"commission_entries", "uses_default_bonus INTEGER NOT NULL DEFAULT 0"},
	}
	for _, col := range columns {
		_, err = s.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", col.table, col.def))
		if err != nil && !isDuplicateColumnError(err) {
			return fmt.Errorf("failed to add column %s.%s: %w", col.table, col.def, err)
		}
	}

	return nil
}

// isDuplicateColumnError checks if the error indicates a duplicate column.
func isDuplicateColumnError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "duplicate column name")
}

const leadColumns = `id, name, email, phone, status, source, policy_type, coverage_amount, notes, created_at, last_contacted_at`

// CreateLead inserts a new lead.
func (s *SQLiteStore) CreateLead(lead *models.Lead) error {
	_, err := s.db.Exec(
		`INSERT INTO leads (`+leadColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lead.ID.String(), lead.Name, lead.Email, lead.Phone, lead.Status, lead.Source, lead.PolicyType,
		lead.CoverageAmount, lead.Notes, lead.CreatedAt, lead.LastContactedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create lead: %w", err)
	}
	return nil
}

// GetLead retrieves a lead by its ID.
func (s *SQLiteStore) GetLead(id uuid.UUID) (*models.Lead, error) {
	row := s.db.QueryRow(`SELECT `+leadColumns+` FROM leads WHERE id = ?`, id.String())
	lead, err := scanLead(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("lead %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}
	return lead, nil
}

// UpdateLead updates an existing lead.
func (s *SQLiteStore) UpdateLead(lead *models.Lead) error {
	result, err := s.db.Exec(
		`UPDATE leads SET name = ?, email = ?, phone = ?, status = ?, source = ?, policy_type = ?, coverage_amount = ?, notes = ?, last_contacted_at = ? WHERE id = ?`,
		lead.Name, lead.Email, lead.Phone, lead.Status, lead.Source, lead.PolicyType, lead.CoverageAmount,
		lead.Notes, lead.LastContactedAt, lead.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update lead: %w", err)
	}
	return checkAffected(result, "lead", lead.ID)
}

// GetAllLeads retrieves all leads, oldest first.
func (s *SQLiteStore) GetAllLeads() ([]*models.Lead, error) {
	rows, err := s.db.Query(`SELECT ` + leadColumns + ` FROM leads ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all leads: %w", err)
	}
	defer rows.Close()

	var leads []*models.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lead row: %w", err)
		}
		leads = append(leads, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return leads, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLead(row scanner) (*models.Lead, error) {
	var lead models.Lead
	var idStr string
	var lastContacted sql.NullTime
	if err := row.Scan(&idStr, &lead.Name, &lead.Email, &lead.Phone, &lead.Status, &lead.Source, &lead.PolicyType,
		&lead.CoverageAmount, &lead.Notes, &lead.CreatedAt, &lastContacted); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("bad lead id %q: %w", idStr, err)
	}
	lead.ID = id
	if lastContacted.Valid {
		lead.LastContactedAt = &lastContacted.Time
	}
	return &lead, nil
}

const entryColumns = `id, policy_id, policy_type, client_name, annual_premium, bonus_percentage, uses_default_bonus, base_commission, total_commission, entry_date, status, created_at`

// CreateEntry inserts a new commission entry.
func (s *SQLiteStore) CreateEntry(entry *models.CommissionEntry) error {
	_, err := s.db.Exec(
		`INSERT INTO commission_entries (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID.String(), entry.PolicyID, entry.PolicyType, entry.ClientName, entry.AnnualPremium,
		entry.BonusPercentage, entry.UsesDefaultBonus, entry.BaseCommission, entry.TotalCommission,
		entry.Date.Format(dateLayout), entry.Status, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create commission entry: %w", err)
	}
	return nil
}

// UpdateEntry updates an existing commission entry.
func (s *SQLiteStore) UpdateEntry(entry *models.CommissionEntry) error {
	return updateEntry(s.db, entry)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func updateEntry(db execer, entry *models.CommissionEntry) error {
	result, err := db.Exec(
		`UPDATE commission_entries SET policy_type = ?, client_name = ?, annual_premium = ?, bonus_percentage = ?, uses_default_bonus = ?, base_commission = ?, total_commission = ?, entry_date = ?, status = ? WHERE id = ?`,
		entry.PolicyType, entry.ClientName, entry.AnnualPremium, entry.BonusPercentage, entry.UsesDefaultBonus,
		entry.BaseCommission, entry.TotalCommission, entry.Date.Format(dateLayout), entry.Status, entry.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update commission entry: %w", err)
	}
	return checkAffected(result, "commission entry", entry.ID)
}

// GetAllEntries retrieves all commission entries, oldest first.
func (s *SQLiteStore) GetAllEntries() ([]*models.CommissionEntry, error) {
	rows, err := s.db.Query(`SELECT ` + entryColumns + ` FROM commission_entries ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all commission entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.CommissionEntry
	for rows.Next() {
		var e models.CommissionEntry
		var idStr, dateStr string
		if err := rows.Scan(&idStr, &e.PolicyID, &e.PolicyType, &e.ClientName, &e.AnnualPremium, &e.BonusPercentage,
			&e.UsesDefaultBonus, &e.BaseCommission, &e.TotalCommission, &dateStr, &e.Status, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan commission entry row: %w", err)
		}
		if e.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("bad commission entry id %q: %w", idStr, err)
		}
		if e.Date, err = time.Parse(dateLayout, dateStr); err != nil {
			return nil, fmt.Errorf("bad date %q on entry %s: %w", dateStr, idStr, err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for commission entries: %w", err)
	}
	return entries, nil
}

// SetDefaultBonus stores the default bonus percentage and the recomputed entries atomically.
func (s *SQLiteStore) SetDefaultBonus(pct decimal.Decimal, entries []models.CommissionEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := putSetting(tx, settingDefaultBonus, pct.String()); err != nil {
		return err
	}
	for i := range entries {
		if err := updateEntry(tx, &entries[i]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SetTarget stores the target for one period kind.
func (s *SQLiteStore) SetTarget(kind models.PeriodKind, target decimal.Decimal) error {
	return putSetting(s.db, settingTargetPrefix+string(kind), target.String())
}

func putSetting(db execer, key, value string) error {
	_, err := db.Exec(`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to store setting %s: %w", key, err)
	}
	return nil
}

// GetSettings returns the stored settings. Keys never written are left unset.
func (s *SQLiteStore) GetSettings() (*models.Settings, error) {
	rows, err := s.db.Query(`SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	defer rows.Close()

	settings := &models.Settings{Targets: make(map[models.PeriodKind]decimal.Decimal)}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setting row: %w", err)
		}
		d, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("bad value %q for setting %s: %w", value, key, err)
		}
		switch {
		case key == settingDefaultBonus:
			settings.DefaultBonusPercentage = d
		case strings.HasPrefix(key, settingTargetPrefix):
			kind := models.PeriodKind(strings.TrimPrefix(key, settingTargetPrefix))
			if kind.Valid() {
				settings.Targets[kind] = d
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for settings: %w", err)
	}
	return settings, nil
}

// CreateUser inserts a new user.
func (s *SQLiteStore) CreateUser(user *models.User) error {
	_, err := s.db.Exec(
		`INSERT INTO users (id, email, display_name, role, password_hash, subscription_status, trial_ends_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID.String(), user.Email, user.DisplayName, user.Role, user.PasswordHash, user.SubscriptionStatus,
		user.TrialEndsAt, user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(email string) (*models.User, error) {
	var u models.User
	var idStr string
	var trialEnds sql.NullTime
	err := s.db.QueryRow(
		`SELECT id, email, display_name, role, password_hash, subscription_status, trial_ends_at, created_at FROM users WHERE email = ?`,
		email,
	).Scan(&idStr, &u.Email, &u.DisplayName, &u.Role, &u.PasswordHash, &u.SubscriptionStatus, &trialEnds, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", email, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if u.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("bad user id %q: %w", idStr, err)
	}
	if trialEnds.Valid {
		u.TrialEndsAt = &trialEnds.Time
	}
	return &u, nil
}

func checkAffected(result sql.Result, kind string, id uuid.UUID) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
