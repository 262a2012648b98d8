package commission

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/agencyCRM/pkg/crmerr"
	"github.com/mcclellann/agencyCRM/pkg/models"
	"github.com/shopspring/decimal"
)

const (
	policyIDPrefix   = "POL-"
	minPolicySuffix  = 10000
	maxPolicySuffix  = 99999
	policyIDAttempts = 100
)

// Sale is the input of a new commission entry.
type Sale struct {
	PolicyID        string
	PolicyType      models.PolicyType
	ClientName      string
	AnnualPremium   decimal.Decimal
	BonusPercentage *decimal.Decimal // nil applies the tracker's default bonus
	Date            time.Time
	Status          models.EntryStatus // empty means pending
}

// TrackerConfig configures a Tracker. Zero values fall back to defaults.
type TrackerConfig struct {
	DefaultBonus decimal.Decimal
	Targets      map[models.PeriodKind]decimal.Decimal
	Now          func() time.Time
	RandSource   rand.Source
}

// Tracker keeps the commission entry list and the weekly, monthly and yearly progress
// windows over it. All methods are safe for concurrent use.
type Tracker struct {
	mu sync.Mutex

	entries   []*models.CommissionEntry
	byID      map[uuid.UUID]*models.CommissionEntry
	policyIDs map[string]struct{}

	defaultBonus decimal.Decimal
	periods      map[models.PeriodKind]*models.CommissionPeriod
	boundsDay    time.Time // day the period bounds were computed for

	now  func() time.Time
	rand *rand.Rand
}

// NewTracker creates an empty tracker.
func NewTracker(cfg TrackerConfig) *Tracker {
	if cfg.DefaultBonus.IsZero() {
		cfg.DefaultBonus = DefaultBonusPercentage
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RandSource == nil {
		cfg.RandSource = rand.NewSource(time.Now().UnixNano())
	}

	t := &Tracker{
		byID:         make(map[uuid.UUID]*models.CommissionEntry),
		policyIDs:    make(map[string]struct{}),
		defaultBonus: cfg.DefaultBonus,
		periods:      make(map[models.PeriodKind]*models.CommissionPeriod, len(models.PeriodKinds)),
		now:          cfg.Now,
		rand:         rand.New(cfg.RandSource),
	}
	for _, kind := range models.PeriodKinds {
		target := decimal.Zero
		if v, ok := cfg.Targets[kind]; ok {
			target = v
		}
		t.periods[kind] = &models.CommissionPeriod{Kind: kind, Target: target, Current: decimal.Zero}
	}
	t.refreshLocked()
	return t
}

// DefaultBonus returns the bonus percentage applied to entries tracking the default.
func (t *Tracker) DefaultBonus() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.defaultBonus
}

// NewEntry validates a sale and builds the entry it would add, without adding it.
// A missing policy id is generated.
func (t *Tracker) NewEntry(s Sale) (models.CommissionEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := models.CommissionEntry{
		ID:            uuid.New(),
		PolicyID:      strings.TrimSpace(s.PolicyID),
		PolicyType:    s.PolicyType,
		ClientName:    strings.TrimSpace(s.ClientName),
		AnnualPremium: s.AnnualPremium,
		Date:          models.DateOf(s.Date),
		Status:        s.Status,
		CreatedAt:     t.now(),
	}
	if s.BonusPercentage == nil {
		e.BonusPercentage = t.defaultBonus
		e.UsesDefaultBonus = true
	} else {
		e.BonusPercentage = *s.BonusPercentage
	}
	if e.Status == "" {
		e.Status = models.EntryStatusPending
	}
	if s.Date.IsZero() {
		e.Date = models.DateOf(t.now())
	}

	if e.PolicyID == "" {
		id, err := t.generatePolicyIDLocked()
		if err != nil {
			return models.CommissionEntry{}, err
		}
		e.PolicyID = id
	}
	if err := t.validateLocked(&e); err != nil {
		return models.CommissionEntry{}, err
	}
	return e, nil
}

// generatePolicyIDLocked returns an unused id of the form POL-NNNNN.
func (t *Tracker) generatePolicyIDLocked() (string, error) {
	for i := 0; i < policyIDAttempts; i++ {
		id := fmt.Sprintf("%s%d", policyIDPrefix, t.rand.Intn(maxPolicySuffix-minPolicySuffix+1)+minPolicySuffix)
		if _, taken := t.policyIDs[id]; !taken {
			return id, nil
		}
	}
	return "", crmerr.Validation("policy_id", "could not generate an unused policy id")
}

func (t *Tracker) validateLocked(e *models.CommissionEntry) error {
	if e.ID == uuid.Nil {
		return crmerr.Validation("id", "must be set")
	}
	if _, exists := t.byID[e.ID]; exists {
		return crmerr.Validation("id", "duplicate entry "+e.ID.String())
	}
	if e.PolicyID == "" {
		return crmerr.Validation("policy_id", "must be set")
	}
	if _, exists := t.policyIDs[e.PolicyID]; exists {
		return crmerr.Validation("policy_id", "duplicate policy id "+e.PolicyID)
	}
	if !e.PolicyType.Valid() {
		return crmerr.Validation("policy_type", fmt.Sprintf("unknown policy type %q", e.PolicyType))
	}
	if e.ClientName == "" {
		return crmerr.Validation("client_name", "must not be empty")
	}
	if !e.Status.Valid() {
		return crmerr.Validation("status", fmt.Sprintf("unknown status %q", e.Status))
	}
	return Apply(e)
}

// Load replaces the entry list, e.g. with the entries read from storage.
// Derived commission fields are recomputed rather than trusted.
func (t *Tracker) Load(entries []models.CommissionEntry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	prevEntries, prevByID, prevPolicies := t.entries, t.byID, t.policyIDs
	t.entries = make([]*models.CommissionEntry, 0, len(entries))
	t.byID = make(map[uuid.UUID]*models.CommissionEntry, len(entries))
	t.policyIDs = make(map[string]struct{}, len(entries))

	for i := range entries {
		e := entries[i]
		e.Date = models.DateOf(e.Date)
		if err := t.validateLocked(&e); err != nil {
			t.entries, t.byID, t.policyIDs = prevEntries, prevByID, prevPolicies
			return fmt.Errorf("entry %s: %w", e.ID, err)
		}
		t.insertLocked(&e)
	}
	t.aggregateLocked()
	return nil
}

func (t *Tracker) insertLocked(e *models.CommissionEntry) {
	t.entries = append(t.entries, e)
	t.byID[e.ID] = e
	t.policyIDs[e.PolicyID] = struct{}{}
}

// AddEntry appends an entry and credits every period whose range contains its date.
// Cancelled entries are stored but credit nothing.
func (t *Tracker) AddEntry(entry models.CommissionEntry) (models.CommissionEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := entry
	e.Date = models.DateOf(e.Date)
	if err := t.validateLocked(&e); err != nil {
		return models.CommissionEntry{}, err
	}

	t.refreshLocked()
	t.insertLocked(&e)
	if e.Status != models.EntryStatusCancelled {
		for _, p := range t.periods {
			if Contains(*p, e.Date) {
				p.Current = p.Current.Add(e.TotalCommission)
			}
		}
	}
	return e, nil
}

// EditEntryBonus sets a custom bonus on one entry. The entry stops tracking the default.
func (t *Tracker) EditEntryBonus(id uuid.UUID, bonusPercentage decimal.Decimal) (models.CommissionEntry, error) {
	if err := ValidateBonus(bonusPercentage); err != nil {
		return models.CommissionEntry{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.byID[id]
	if !ok {
		return models.CommissionEntry{}, crmerr.NotFound("commission entry", id.String())
	}
	c := *e
	c.BonusPercentage = bonusPercentage
	c.UsesDefaultBonus = false
	if err := Apply(&c); err != nil {
		return models.CommissionEntry{}, err
	}
	*e = c
	t.aggregateLocked()
	return c, nil
}

// PreviewDefaultBonus returns the entries that RecalculateDefaultBonus would change,
// already recomputed with the new percentage. The tracker is not modified.
func (t *Tracker) PreviewDefaultBonus(bonusPercentage decimal.Decimal) ([]models.CommissionEntry, error) {
	if err := ValidateBonus(bonusPercentage); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	return t.previewDefaultBonusLocked(bonusPercentage)
}

func (t *Tracker) previewDefaultBonusLocked(bonusPercentage decimal.Decimal) ([]models.CommissionEntry, error) {
	var changed []models.CommissionEntry
	for _, e := range t.entries {
		if !e.UsesDefaultBonus {
			continue
		}
		c := *e
		c.BonusPercentage = bonusPercentage
		if err := Apply(&c); err != nil {
			return nil, err
		}
		changed = append(changed, c)
	}
	return changed, nil
}

// RecalculateDefaultBonus changes the default bonus. Only entries tracking the default are
// recomputed; entries with a custom bonus keep theirs. Returns the changed entries.
func (t *Tracker) RecalculateDefaultBonus(bonusPercentage decimal.Decimal) ([]models.CommissionEntry, error) {
	if err := ValidateBonus(bonusPercentage); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	changed, err := t.previewDefaultBonusLocked(bonusPercentage)
	if err != nil {
		return nil, err
	}
	for _, c := range changed {
		*t.byID[c.ID] = c
	}
	t.defaultBonus = bonusPercentage
	t.aggregateLocked()
	return changed, nil
}

// SetEntryStatus changes an entry's status, e.g. to cancel it.
func (t *Tracker) SetEntryStatus(id uuid.UUID, status models.EntryStatus) (models.CommissionEntry, error) {
	if !status.Valid() {
		return models.CommissionEntry{}, crmerr.Validation("status", fmt.Sprintf("unknown status %q", status))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.byID[id]
	if !ok {
		return models.CommissionEntry{}, crmerr.NotFound("commission entry", id.String())
	}
	e.Status = status
	t.aggregateLocked()
	return *e, nil
}

// SetTarget changes the target of one period.
func (t *Tracker) SetTarget(kind models.PeriodKind, target decimal.Decimal) (models.CommissionPeriod, error) {
	if !kind.Valid() {
		return models.CommissionPeriod{}, crmerr.Validation("period", fmt.Sprintf("unknown period %q", kind))
	}
	if target.IsNegative() {
		return models.CommissionPeriod{}, crmerr.Validation("target", "must not be negative")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.refreshLocked()
	p := t.periods[kind]
	p.Target = target
	return *p, nil
}

// Entry returns a copy of one entry.
func (t *Tracker) Entry(id uuid.UUID) (models.CommissionEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.byID[id]
	if !ok {
		return models.CommissionEntry{}, crmerr.NotFound("commission entry", id.String())
	}
	return *e, nil
}

// Entries returns copies of all entries in insertion order.
func (t *Tracker) Entries() []models.CommissionEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]models.CommissionEntry, len(t.entries))
	for i, e := range t.entries {
		out[i] = *e
	}
	return out
}

// Period returns one period with bounds relative to the current date.
func (t *Tracker) Period(kind models.PeriodKind) (models.CommissionPeriod, error) {
	if !kind.Valid() {
		return models.CommissionPeriod{}, crmerr.Validation("period", fmt.Sprintf("unknown period %q", kind))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.refreshLocked()
	return *t.periods[kind], nil
}

// Periods returns the weekly, monthly and yearly periods, in that order.
func (t *Tracker) Periods() []models.CommissionPeriod {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.refreshLocked()
	out := make([]models.CommissionPeriod, 0, len(models.PeriodKinds))
	for _, kind := range models.PeriodKinds {
		out = append(out, *t.periods[kind])
	}
	return out
}

// Progress returns every period with its progress against target.
func (t *Tracker) Progress() []Progress {
	periods := t.Periods()
	out := make([]Progress, len(periods))
	for i, p := range periods {
		out[i] = NewProgress(p)
	}
	return out
}

// refreshLocked moves the period bounds when the clock has crossed into a new day.
func (t *Tracker) refreshLocked() {
	today := models.DateOf(t.now())
	if today.Equal(t.boundsDay) {
		return
	}
	for kind, p := range t.periods {
		p.StartDate, p.EndDate = Bounds(kind, today)
	}
	t.boundsDay = today
	t.aggregateLocked()
}

// aggregateLocked recomputes every period's current value from the entry list.
func (t *Tracker) aggregateLocked() {
	for _, p := range t.periods {
		p.Current = decimal.Zero
	}
	for _, e := range t.entries {
		if e.Status == models.EntryStatusCancelled {
			continue
		}
		for _, p := range t.periods {
			if Contains(*p, e.Date) {
				p.Current = p.Current.Add(e.TotalCommission)
			}
		}
	}
}
