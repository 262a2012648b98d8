// Package pipeline projects leads onto the sales pipeline board and moves them between stages.
package pipeline

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/mcclellann/agencyCRM/pkg/crmerr"
	"github.com/mcclellann/agencyCRM/pkg/models"
	"github.com/shopspring/decimal"
)

type bucket struct {
	leads []*models.Lead
	value decimal.Decimal
}

func (b *bucket) index(id uuid.UUID) int {
	for i, l := range b.leads {
		if l.ID == id {
			return i
		}
	}
	return -1
}

func (b *bucket) add(l *models.Lead) {
	b.leads = append(b.leads, l)
	b.value = b.value.Add(l.CoverageAmount)
}

func (b *bucket) removeAt(i int) *models.Lead {
	l := b.leads[i]
	b.leads = append(b.leads[:i], b.leads[i+1:]...)
	b.value = b.value.Sub(l.CoverageAmount)
	return l
}

// Stage is a snapshot of one pipeline column.
type Stage struct {
	ID        models.LeadStatus `json:"id"`
	Leads     []models.Lead     `json:"leads"`
	LeadCount int               `json:"lead_count"`
	Value     decimal.Decimal   `json:"value"`
}

// Store holds leads grouped by pipeline stage. Every lead on the board is in exactly one
// stage, and each stage's value is the sum of its members' coverage amounts.
// All methods are safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	buckets map[models.LeadStatus]*bucket
}

// NewStore creates an empty board with every pipeline stage present.
func NewStore() *Store {
	s := &Store{}
	s.resetLocked()
	return s
}

func (s *Store) resetLocked() {
	s.buckets = make(map[models.LeadStatus]*bucket, len(models.PipelineStages))
	for _, stage := range models.PipelineStages {
		s.buckets[stage] = &bucket{value: decimal.Zero}
	}
}

// ParseStage validates a stage identifier.
func ParseStage(id string) (models.LeadStatus, error) {
	stage := models.LeadStatus(id)
	if !stage.InPipeline() {
		return "", crmerr.InvalidStage(id)
	}
	return stage, nil
}

// Load replaces the board contents. Lost leads are left off the board.
func (s *Store) Load(leads []models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[uuid.UUID]struct{}, len(leads))
	for _, l := range leads {
		if !l.Status.Valid() {
			return crmerr.Validation("status", fmt.Sprintf("lead %s has unknown status %q", l.ID, l.Status))
		}
		if _, dup := seen[l.ID]; dup {
			return crmerr.Validation("id", "duplicate lead "+l.ID.String())
		}
		seen[l.ID] = struct{}{}
	}

	s.resetLocked()
	for i := range leads {
		if !leads[i].Status.InPipeline() {
			continue
		}
		l := leads[i]
		s.buckets[l.Status].add(&l)
	}
	return nil
}

// Add places a lead on the board in the stage matching its status.
func (s *Store) Add(lead models.Lead) error {
	if !lead.Status.InPipeline() {
		return crmerr.InvalidStage(string(lead.Status))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, _, ok := s.findLocked(lead.ID); ok {
		return crmerr.Validation("id", "lead "+lead.ID.String()+" is already on the board")
	}
	l := lead
	s.buckets[l.Status].add(&l)
	return nil
}

// Remove takes a lead off the board, e.g. when it is lost.
func (s *Store) Remove(leadID uuid.UUID) (models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stage, i, ok := s.findLocked(leadID)
	if !ok {
		return models.Lead{}, crmerr.NotFound("lead", leadID.String())
	}
	return *s.buckets[stage].removeAt(i), nil
}

// Move transfers a lead from one stage to another and sets its status to the destination.
// Moving to the same stage is a no-op.
func (s *Store) Move(leadID uuid.UUID, from, to models.LeadStatus) (models.Lead, error) {
	if !from.InPipeline() {
		return models.Lead{}, crmerr.InvalidStage(string(from))
	}
	if !to.InPipeline() {
		return models.Lead{}, crmerr.InvalidStage(string(to))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	src := s.buckets[from]
	i := src.index(leadID)
	if i < 0 {
		return models.Lead{}, crmerr.NotFound("lead", fmt.Sprintf("%s in stage %s", leadID, from))
	}
	if from == to {
		return *src.leads[i], nil
	}

	l := src.removeAt(i)
	l.Status = to
	s.buckets[to].add(l)
	return *l, nil
}

// Update replaces a lead's details in place. The lead must stay in its current stage;
// status changes go through Move.
func (s *Store) Update(lead models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stage, i, ok := s.findLocked(lead.ID)
	if !ok {
		return crmerr.NotFound("lead", lead.ID.String())
	}
	if lead.Status != stage {
		return crmerr.Validation("status", fmt.Sprintf("lead %s is in stage %s, not %s", lead.ID, stage, lead.Status))
	}
	b := s.buckets[stage]
	b.value = b.value.Sub(b.leads[i].CoverageAmount).Add(lead.CoverageAmount)
	l := lead
	b.leads[i] = &l
	return nil
}

// Find returns the lead and the stage holding it.
func (s *Store) Find(leadID uuid.UUID) (models.Lead, models.LeadStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stage, i, ok := s.findLocked(leadID)
	if !ok {
		return models.Lead{}, "", crmerr.NotFound("lead", leadID.String())
	}
	return *s.buckets[stage].leads[i], stage, nil
}

func (s *Store) findLocked(leadID uuid.UUID) (models.LeadStatus, int, bool) {
	for _, stage := range models.PipelineStages {
		if i := s.buckets[stage].index(leadID); i >= 0 {
			return stage, i, true
		}
	}
	return "", -1, false
}

// Stage returns a snapshot of one stage.
func (s *Store) Stage(id models.LeadStatus) (Stage, error) {
	if !id.InPipeline() {
		return Stage{}, crmerr.InvalidStage(string(id))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(id), nil
}

// Stages returns snapshots of all stages in pipeline order.
func (s *Store) Stages() []Stage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Stage, 0, len(models.PipelineStages))
	for _, id := range models.PipelineStages {
		out = append(out, s.snapshotLocked(id))
	}
	return out
}

func (s *Store) snapshotLocked(id models.LeadStatus) Stage {
	b := s.buckets[id]
	leads := make([]models.Lead, len(b.leads))
	for i, l := range b.leads {
		leads[i] = *l
	}
	return Stage{ID: id, Leads: leads, LeadCount: len(leads), Value: b.value}
}
