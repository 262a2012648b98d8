package pipeline

import (
	"github.com/mcclellann/agencyCRM/pkg/crmerr"
	"github.com/mcclellann/agencyCRM/pkg/models"
	"github.com/shopspring/decimal"
)

// StageMetrics are the derived figures shown under a board column.
type StageMetrics struct {
	Stage
	ConversionRate  decimal.Decimal `json:"conversion_rate"`
	AverageDealSize decimal.Decimal `json:"average_deal_size"`
}

// Summary is the whole board with its metrics.
type Summary struct {
	Stages       []StageMetrics  `json:"stages"`
	TotalLeads   int             `json:"total_leads"`
	TotalValue   decimal.Decimal `json:"total_value"`
	ClosingRatio decimal.Decimal `json:"closing_ratio"`
}

// ratio divides and yields zero for an empty denominator.
func ratio(num decimal.Decimal, den int) decimal.Decimal {
	if den == 0 {
		return decimal.Zero
	}
	return num.Div(decimal.NewFromInt(int64(den)))
}

func next(stage models.LeadStatus) (models.LeadStatus, bool) {
	for i, s := range models.PipelineStages {
		if s == stage && i+1 < len(models.PipelineStages) {
			return models.PipelineStages[i+1], true
		}
	}
	return "", false
}

// ConversionRate is the next stage's lead count over this stage's. The last stage has none.
func (s *Store) ConversionRate(stage models.LeadStatus) (decimal.Decimal, error) {
	if !stage.InPipeline() {
		return decimal.Zero, crmerr.InvalidStage(string(stage))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversionRateLocked(stage), nil
}

func (s *Store) conversionRateLocked(stage models.LeadStatus) decimal.Decimal {
	n, ok := next(stage)
	if !ok {
		return decimal.Zero
	}
	return ratio(decimal.NewFromInt(int64(len(s.buckets[n].leads))), len(s.buckets[stage].leads))
}

// AverageDealSize is the stage value divided by its lead count.
func (s *Store) AverageDealSize(stage models.LeadStatus) (decimal.Decimal, error) {
	if !stage.InPipeline() {
		return decimal.Zero, crmerr.InvalidStage(string(stage))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.buckets[stage]
	return ratio(b.value, len(b.leads)), nil
}

// ClosingRatio is closed leads over new leads.
func (s *Store) ClosingRatio() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closingRatioLocked()
}

func (s *Store) closingRatioLocked() decimal.Decimal {
	closed := len(s.buckets[models.LeadStatusClosed].leads)
	return ratio(decimal.NewFromInt(int64(closed)), len(s.buckets[models.LeadStatusNew].leads))
}

// Summary returns every stage with its metrics, taken under a single lock.
func (s *Store) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := Summary{TotalValue: decimal.Zero}
	for _, id := range models.PipelineStages {
		snap := s.snapshotLocked(id)
		sum.Stages = append(sum.Stages, StageMetrics{
			Stage:           snap,
			ConversionRate:  s.conversionRateLocked(id),
			AverageDealSize: ratio(snap.Value, snap.LeadCount),
		})
		sum.TotalLeads += snap.LeadCount
		sum.TotalValue = sum.TotalValue.Add(snap.Value)
	}
	sum.ClosingRatio = s.closingRatioLocked()
	return sum
}
