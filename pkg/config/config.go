// Package config reads service settings from the environment, optionally seeded from a .env file.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/mcclellann/agencyCRM/pkg/models"
	"github.com/shopspring/decimal"
)

type Config struct {
	DBPath       string
	Addr         string
	DefaultBonus decimal.Decimal
	Targets      map[models.PeriodKind]decimal.Decimal

	// Admin account ensured at startup. Provisioning is skipped when email or password is empty.
	AdminEmail    string
	AdminPassword string
	AdminName     string
}

// Load reads the configuration. A missing .env file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads the configuration from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		DBPath:        getEnv("CRM_DB_PATH", "crm.db"),
		Addr:          getEnv("CRM_ADDR", ":8080"),
		AdminEmail:    os.Getenv("CRM_ADMIN_EMAIL"),
		AdminPassword: os.Getenv("CRM_ADMIN_PASSWORD"),
		AdminName:     getEnv("CRM_ADMIN_NAME", "Administrator"),
		Targets:       make(map[models.PeriodKind]decimal.Decimal),
	}

	var err error
	if cfg.DefaultBonus, err = getDecimal("CRM_DEFAULT_BONUS", "125"); err != nil {
		return nil, err
	}
	if cfg.DefaultBonus.LessThan(decimal.NewFromInt(100)) {
		return nil, fmt.Errorf("CRM_DEFAULT_BONUS must be at least 100, got %s", cfg.DefaultBonus)
	}

	defaults := map[models.PeriodKind]string{
		models.PeriodWeekly:  "5000",
		models.PeriodMonthly: "20000",
		models.PeriodYearly:  "240000",
	}
	for _, kind := range models.PeriodKinds {
		key := "CRM_TARGET_" + envSuffix(kind)
		target, err := getDecimal(key, defaults[kind])
		if err != nil {
			return nil, err
		}
		if target.IsNegative() {
			return nil, fmt.Errorf("%s must not be negative, got %s", key, target)
		}
		cfg.Targets[kind] = target
	}
	return cfg, nil
}

func envSuffix(kind models.PeriodKind) string {
	switch kind {
	case models.PeriodWeekly:
		return "WEEKLY"
	case models.PeriodMonthly:
		return "MONTHLY"
	case models.PeriodYearly:
		return "YEARLY"
	}
	return ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDecimal(key, fallback string) (decimal.Decimal, error) {
	raw := getEnv(key, fallback)
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}
