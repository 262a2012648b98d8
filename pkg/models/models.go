package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LeadStatus is a lead's position in the sales process.
type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "new"
	LeadStatusContacted LeadStatus = "contacted"
	LeadStatusQualified LeadStatus = "qualified"
	LeadStatusProposal  LeadStatus = "proposal"
	LeadStatusClosed    LeadStatus = "closed"
	LeadStatusLost      LeadStatus = "lost" // tracked outside the pipeline board
)

// PipelineStages lists the board columns in order. Lost leads are not on the board.
var PipelineStages = []LeadStatus{
	LeadStatusNew,
	LeadStatusContacted,
	LeadStatusQualified,
	LeadStatusProposal,
	LeadStatusClosed,
}

// Valid reports whether s is a known lead status, lost included.
func (s LeadStatus) Valid() bool {
	switch s {
	case LeadStatusNew, LeadStatusContacted, LeadStatusQualified, LeadStatusProposal, LeadStatusClosed, LeadStatusLost:
		return true
	}
	return false
}

// InPipeline reports whether leads with this status appear on the pipeline board.
func (s LeadStatus) InPipeline() bool {
	switch s {
	case LeadStatusNew, LeadStatusContacted, LeadStatusQualified, LeadStatusProposal, LeadStatusClosed:
		return true
	case LeadStatusLost:
		return false
	}
	return false
}

type LeadSource string

const (
	LeadSourceWebsite       LeadSource = "website"
	LeadSourceReferral      LeadSource = "referral"
	LeadSourceSocialMedia   LeadSource = "social_media"
	LeadSourceColdCall      LeadSource = "cold_call"
	LeadSourceEmailCampaign LeadSource = "email_campaign"
	LeadSourceEvent         LeadSource = "event"
	LeadSourceOther         LeadSource = "other"
)

// Valid reports whether s is a known lead source.
func (s LeadSource) Valid() bool {
	switch s {
	case LeadSourceWebsite, LeadSourceReferral, LeadSourceSocialMedia, LeadSourceColdCall,
		LeadSourceEmailCampaign, LeadSourceEvent, LeadSourceOther:
		return true
	}
	return false
}

// PolicyType is the insurance product category of a lead or sale.
type PolicyType string

const (
	PolicyTypeAuto     PolicyType = "auto"
	PolicyTypeHome     PolicyType = "home"
	PolicyTypeLife     PolicyType = "life"
	PolicyTypeHealth   PolicyType = "health"
	PolicyTypeBusiness PolicyType = "business"
	PolicyTypeUmbrella PolicyType = "umbrella"
)

// Valid reports whether p is a known policy type.
func (p PolicyType) Valid() bool {
	switch p {
	case PolicyTypeAuto, PolicyTypeHome, PolicyTypeLife, PolicyTypeHealth, PolicyTypeBusiness, PolicyTypeUmbrella:
		return true
	}
	return false
}

type Lead struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"name"`
	Email           string          `json:"email"`
	Phone           string          `json:"phone"`
	Status          LeadStatus      `json:"status"`
	Source          LeadSource      `json:"source"`
	PolicyType      PolicyType      `json:"policy_type"`
	CoverageAmount  decimal.Decimal `json:"coverage_amount"`
	Notes           string          `json:"notes"`
	CreatedAt       time.Time       `json:"created_at"`
	LastContactedAt *time.Time      `json:"last_contacted_at,omitempty"`
}

type EntryStatus string

const (
	EntryStatusPending   EntryStatus = "pending"
	EntryStatusPaid      EntryStatus = "paid"
	EntryStatusCancelled EntryStatus = "cancelled"
)

// Valid reports whether s is a known commission entry status.
func (s EntryStatus) Valid() bool {
	switch s {
	case EntryStatusPending, EntryStatusPaid, EntryStatusCancelled:
		return true
	}
	return false
}

// CommissionEntry is one policy sale. BaseCommission and TotalCommission are derived from
// AnnualPremium and BonusPercentage and are recomputed whenever either changes.
type CommissionEntry struct {
	ID               uuid.UUID       `json:"id"`
	PolicyID         string          `json:"policy_id"`
	PolicyType       PolicyType      `json:"policy_type"`
	ClientName       string          `json:"client_name"`
	AnnualPremium    decimal.Decimal `json:"annual_premium"`
	BonusPercentage  decimal.Decimal `json:"bonus_percentage"`
	UsesDefaultBonus bool            `json:"uses_default_bonus"`
	BaseCommission   decimal.Decimal `json:"base_commission"`
	TotalCommission  decimal.Decimal `json:"total_commission"`
	Date             time.Time       `json:"date"` // calendar date, UTC midnight
	Status           EntryStatus     `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
}

type PeriodKind string

const (
	PeriodWeekly  PeriodKind = "weekly"
	PeriodMonthly PeriodKind = "monthly"
	PeriodYearly  PeriodKind = "yearly"
)

var PeriodKinds = []PeriodKind{PeriodWeekly, PeriodMonthly, PeriodYearly}

// Valid reports whether k is weekly, monthly or yearly.
func (k PeriodKind) Valid() bool {
	switch k {
	case PeriodWeekly, PeriodMonthly, PeriodYearly:
		return true
	}
	return false
}

type CommissionPeriod struct {
	Kind      PeriodKind      `json:"kind"`
	Target    decimal.Decimal `json:"target"`
	Current   decimal.Decimal `json:"current"`
	StartDate time.Time       `json:"start_date"`
	EndDate   time.Time       `json:"end_date"`
}

type Role string

const (
	RoleAdmin Role = "admin"
	RoleAgent Role = "agent"
)

type SubscriptionStatus string

const (
	SubscriptionTrialing  SubscriptionStatus = "trialing"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

// User mirrors the identity provider's session metadata.
type User struct {
	ID                 uuid.UUID          `json:"id"`
	Email              string             `json:"email"`
	DisplayName        string             `json:"display_name"`
	Role               Role               `json:"role"`
	PasswordHash       string             `json:"-"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status"`
	TrialEndsAt        *time.Time         `json:"trial_ends_at,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
}

// Settings holds agency-wide commission configuration.
type Settings struct {
	DefaultBonusPercentage decimal.Decimal
	Targets                map[PeriodKind]decimal.Decimal
}

// DateOf truncates t to its calendar date at UTC midnight.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
