// Package agency ties the commission tracker and the pipeline board to persistent storage.
package agency

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/agencyCRM/pkg/commission"
	"github.com/mcclellann/agencyCRM/pkg/crmerr"
	"github.com/mcclellann/agencyCRM/pkg/models"
	"github.com/mcclellann/agencyCRM/pkg/pipeline"
	"github.com/mcclellann/agencyCRM/pkg/store"
	"github.com/shopspring/decimal"
)

// Options are the agency defaults used until stored settings override them.
type Options struct {
	DefaultBonus decimal.Decimal
	Targets      map[models.PeriodKind]decimal.Decimal
	Now          func() time.Time
	RandSource   rand.Source
}

// Service handles the business operations on leads and commissions.
// Storage is written first; in-memory state changes only once storage succeeded.
type Service struct {
	mu      sync.Mutex // serializes mutations and guards the tracker and board fields
	storage store.Storage
	opts    Options
	tracker *commission.Tracker
	board   *pipeline.Store
}

// NewService creates a Service with an empty tracker and board. Call Bootstrap to load stored data.
func NewService(s store.Storage, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		storage: s,
		opts:    opts,
		tracker: newTracker(opts, nil),
		board:   pipeline.NewStore(),
	}
}

func newTracker(opts Options, settings *models.Settings) *commission.Tracker {
	cfg := commission.TrackerConfig{
		DefaultBonus: opts.DefaultBonus,
		Targets:      make(map[models.PeriodKind]decimal.Decimal),
		Now:          opts.Now,
		RandSource:   opts.RandSource,
	}
	for k, v := range opts.Targets {
		cfg.Targets[k] = v
	}
	if settings != nil {
		if !settings.DefaultBonusPercentage.IsZero() {
			cfg.DefaultBonus = settings.DefaultBonusPercentage
		}
		for k, v := range settings.Targets {
			cfg.Targets[k] = v
		}
	}
	return commission.NewTracker(cfg)
}

// Bootstrap loads settings, commission entries and leads from storage.
func (s *Service) Bootstrap() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.storage.GetSettings()
	if err != nil {
		return s.external("load settings", err)
	}
	tracker := newTracker(s.opts, settings)

	stored, err := s.storage.GetAllEntries()
	if err != nil {
		return s.external("load commission entries", err)
	}
	entries := make([]models.CommissionEntry, len(stored))
	for i, e := range stored {
		entries[i] = *e
	}
	if err := tracker.Load(entries); err != nil {
		return fmt.Errorf("failed to load commission entries: %w", err)
	}
	if err := s.syncDefaultBonus(tracker, settings); err != nil {
		return err
	}

	storedLeads, err := s.storage.GetAllLeads()
	if err != nil {
		return s.external("load leads", err)
	}
	leads := make([]models.Lead, len(storedLeads))
	for i, l := range storedLeads {
		leads[i] = *l
	}
	board := pipeline.NewStore()
	if err := board.Load(leads); err != nil {
		return fmt.Errorf("failed to load pipeline: %w", err)
	}

	s.tracker = tracker
	s.board = board
	log.Printf("Loaded %d commission entries and %d leads.\n", len(entries), len(leads))
	return nil
}

// syncDefaultBonus stores the effective default bonus when none is stored yet and moves
// default-tracking entries still carrying an older default onto it.
func (s *Service) syncDefaultBonus(tracker *commission.Tracker, settings *models.Settings) error {
	def := tracker.DefaultBonus()
	stale := make(map[uuid.UUID]bool)
	for _, e := range tracker.Entries() {
		if e.UsesDefaultBonus && !e.BonusPercentage.Equal(def) {
			stale[e.ID] = true
		}
	}
	if !settings.DefaultBonusPercentage.IsZero() && len(stale) == 0 {
		return nil
	}

	preview, err := tracker.PreviewDefaultBonus(def)
	if err != nil {
		return fmt.Errorf("failed to apply default bonus: %w", err)
	}
	var changed []models.CommissionEntry
	for _, e := range preview {
		if stale[e.ID] {
			changed = append(changed, e)
		}
	}
	if err := s.storage.SetDefaultBonus(def, changed); err != nil {
		return s.external("store default bonus", err)
	}
	if _, err := tracker.RecalculateDefaultBonus(def); err != nil {
		return fmt.Errorf("failed to apply default bonus: %w", err)
	}
	if len(changed) > 0 {
		log.Printf("Moved %d commission entries onto the default bonus of %s%%.\n", len(changed), def)
	}
	return nil
}

// external logs a storage failure and wraps it.
func (s *Service) external(op string, err error) error {
	log.Printf("Error during %s: %v\n", op, err)
	return crmerr.External(op, err)
}

// storageErr maps a missing record to NotFoundError and any other failure to ExternalServiceError.
func (s *Service) storageErr(op, kind string, id uuid.UUID, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return crmerr.NotFound(kind, id.String())
	}
	return s.external(op, err)
}

// components returns the current tracker and board. Bootstrap may replace both.
func (s *Service) components() (*commission.Tracker, *pipeline.Store) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker, s.board
}

// RecordSale creates a commission entry for a policy sale.
func (s *Service) RecordSale(sale commission.Sale) (models.CommissionEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.tracker.NewEntry(sale)
	if err != nil {
		return models.CommissionEntry{}, err
	}
	if err := s.storage.CreateEntry(&entry); err != nil {
		return models.CommissionEntry{}, s.external("store commission entry", err)
	}
	return s.tracker.AddEntry(entry)
}

// EditEntryBonus gives one entry a custom bonus percentage.
func (s *Service) EditEntryBonus(id uuid.UUID, bonusPercentage decimal.Decimal) (models.CommissionEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.tracker.Entry(id)
	if err != nil {
		return models.CommissionEntry{}, err
	}
	e.BonusPercentage = bonusPercentage
	e.UsesDefaultBonus = false
	if err := commission.Apply(&e); err != nil {
		return models.CommissionEntry{}, err
	}
	if err := s.storage.UpdateEntry(&e); err != nil {
		return models.CommissionEntry{}, s.storageErr("update commission entry", "commission entry", id, err)
	}
	return s.tracker.EditEntryBonus(id, bonusPercentage)
}

// SetEntryStatus marks an entry pending, paid or cancelled.
func (s *Service) SetEntryStatus(id uuid.UUID, status models.EntryStatus) (models.CommissionEntry, error) {
	if !status.Valid() {
		return models.CommissionEntry{}, crmerr.Validation("status", fmt.Sprintf("unknown status %q", status))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.tracker.Entry(id)
	if err != nil {
		return models.CommissionEntry{}, err
	}
	e.Status = status
	if err := s.storage.UpdateEntry(&e); err != nil {
		return models.CommissionEntry{}, s.storageErr("update commission entry", "commission entry", id, err)
	}
	return s.tracker.SetEntryStatus(id, status)
}

// SetDefaultBonus changes the agency default bonus and recomputes every entry that tracks it.
func (s *Service) SetDefaultBonus(bonusPercentage decimal.Decimal) ([]models.CommissionEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed, err := s.tracker.PreviewDefaultBonus(bonusPercentage)
	if err != nil {
		return nil, err
	}
	if err := s.storage.SetDefaultBonus(bonusPercentage, changed); err != nil {
		return nil, s.external("store default bonus", err)
	}
	return s.tracker.RecalculateDefaultBonus(bonusPercentage)
}

// SetTarget changes the target of one period.
func (s *Service) SetTarget(kind models.PeriodKind, target decimal.Decimal) (commission.Progress, error) {
	if !kind.Valid() {
		return commission.Progress{}, crmerr.Validation("period", fmt.Sprintf("unknown period %q", kind))
	}
	if target.IsNegative() {
		return commission.Progress{}, crmerr.Validation("target", "must not be negative")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.SetTarget(kind, target); err != nil {
		return commission.Progress{}, s.external("store target", err)
	}
	p, err := s.tracker.SetTarget(kind, target)
	if err != nil {
		return commission.Progress{}, err
	}
	return commission.NewProgress(p), nil
}

func (s *Service) Entries() []models.CommissionEntry {
	tracker, _ := s.components()
	return tracker.Entries()
}

func (s *Service) Entry(id uuid.UUID) (models.CommissionEntry, error) {
	tracker, _ := s.components()
	return tracker.Entry(id)
}

func (s *Service) Progress() []commission.Progress {
	tracker, _ := s.components()
	return tracker.Progress()
}

func (s *Service) DefaultBonus() decimal.Decimal {
	tracker, _ := s.components()
	return tracker.DefaultBonus()
}

// LeadInput carries the fields of a new lead.
type LeadInput struct {
	Name           string
	Email          string
	Phone          string
	Status         models.LeadStatus
	Source         models.LeadSource
	PolicyType     models.PolicyType
	CoverageAmount decimal.Decimal
	Notes          string
}

// CreateLead stores a new lead and places it on the board unless it is lost.
func (s *Service) CreateLead(in LeadInput) (models.Lead, error) {
	lead := models.Lead{
		ID:             uuid.New(),
		Name:           strings.TrimSpace(in.Name),
		Email:          strings.TrimSpace(in.Email),
		Phone:          strings.TrimSpace(in.Phone),
		Status:         in.Status,
		Source:         in.Source,
		PolicyType:     in.PolicyType,
		CoverageAmount: in.CoverageAmount,
		Notes:          in.Notes,
		CreatedAt:      s.opts.Now(),
	}
	if lead.Status == "" {
		lead.Status = models.LeadStatusNew
	}
	if lead.Source == "" {
		lead.Source = models.LeadSourceOther
	}
	if err := validateLead(lead); err != nil {
		return models.Lead{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.CreateLead(&lead); err != nil {
		return models.Lead{}, s.external("store lead", err)
	}
	if lead.Status.InPipeline() {
		if err := s.board.Add(lead); err != nil {
			return models.Lead{}, err
		}
	}
	return lead, nil
}

func validateLead(l models.Lead) error {
	switch {
	case l.Name == "":
		return crmerr.Validation("name", "must not be empty")
	case !l.Status.Valid():
		return crmerr.Validation("status", fmt.Sprintf("unknown status %q", l.Status))
	case !l.Source.Valid():
		return crmerr.Validation("source", fmt.Sprintf("unknown source %q", l.Source))
	case !l.PolicyType.Valid():
		return crmerr.Validation("policy_type", fmt.Sprintf("unknown policy type %q", l.PolicyType))
	case l.CoverageAmount.IsNegative():
		return crmerr.Validation("coverage_amount", "must not be negative")
	}
	return nil
}

func (s *Service) GetLead(id uuid.UUID) (*models.Lead, error) {
	lead, err := s.storage.GetLead(id)
	if err != nil {
		return nil, s.storageErr("get lead", "lead", id, err)
	}
	return lead, nil
}

func (s *Service) ListLeads() ([]*models.Lead, error) {
	leads, err := s.storage.GetAllLeads()
	if err != nil {
		return nil, s.external("list leads", err)
	}
	return leads, nil
}

// Pipeline returns the board with its metrics.
func (s *Service) Pipeline() pipeline.Summary {
	_, board := s.components()
	return board.Summary()
}

// MoveLead moves a lead between board stages, as a drag and drop does.
// If storing the new status fails the move is undone.
func (s *Service) MoveLead(id uuid.UUID, from, to models.LeadStatus) (models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	moved, err := s.board.Move(id, from, to)
	if err != nil || from == to {
		return moved, err
	}

	now := s.opts.Now()
	moved.LastContactedAt = &now
	if err := s.storage.UpdateLead(&moved); err != nil {
		if _, undoErr := s.board.Move(id, to, from); undoErr != nil {
			log.Printf("Error undoing move of lead %s: %v\n", id, undoErr)
		}
		return models.Lead{}, s.storageErr("update lead status", "lead", id, err)
	}
	if err := s.board.Update(moved); err != nil {
		return models.Lead{}, err
	}
	return moved, nil
}

// UpdateLeadStatus sets a lead's status. Losing a lead takes it off the board; reviving
// a lost lead puts it back.
func (s *Service) UpdateLeadStatus(id uuid.UUID, status models.LeadStatus) (models.Lead, error) {
	if !status.Valid() {
		return models.Lead{}, crmerr.Validation("status", fmt.Sprintf("unknown status %q", status))
	}

	lead, err := s.GetLead(id)
	if err != nil {
		return models.Lead{}, err
	}
	from := lead.Status
	if from == status {
		return *lead, nil
	}
	if from.InPipeline() && status.InPipeline() {
		return s.MoveLead(id, from, status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.Now()
	lead.Status = status
	lead.LastContactedAt = &now
	if err := s.storage.UpdateLead(lead); err != nil {
		return models.Lead{}, s.storageErr("update lead status", "lead", id, err)
	}

	switch {
	case from.InPipeline():
		if _, err := s.board.Remove(id); err != nil {
			return models.Lead{}, err
		}
	case status.InPipeline():
		if err := s.board.Add(*lead); err != nil {
			return models.Lead{}, err
		}
	}
	return *lead, nil
}
