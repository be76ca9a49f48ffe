package workflow

import (
	"context"

	"github.com/AngeKano/repfi/ledger"
	"github.com/AngeKano/repfi/models"
)

// FindOverlap returns the first period of clientId with a status in statuses whose interval
// intersects candidate (bounds inclusive), or nil.
func (s *Service) FindOverlap(ctx context.Context, clientId string, candidate ledger.Period, statuses []models.ProcessingStatus, excludeId string) (*models.ComptablePeriod, error) {
	existing, err := s.Store.FindOverlappingPeriod(ctx, OverlapQuery{
		ClientId:  clientId,
		Period:    candidate,
		Statuses:  statuses,
		ExcludeId: excludeId,
	})
	if err != nil {
		return nil, dependencyError(CodeDatabase, "overlap lookup failed", err)
	}
	// the store filters in SQL; re-check so a loose implementation cannot widen the match
	if existing != nil && !ledger.Overlaps(existing.Interval(), candidate) {
		return nil, nil
	}
	return existing, nil
}

func periodDetails(p ledger.Period) map[string]any {
	return map[string]any{
		"start": ledger.FormatFrench(p.Start),
		"end":   ledger.FormatFrench(p.End),
	}
}

func overlapError(candidate ledger.Period, existing *models.ComptablePeriod) *Error {
	return conflictError(CodePeriodOverlap,
		"period "+candidate.String()+" overlaps existing period "+existing.Interval().String(),
		map[string]any{
			"candidate": periodDetails(candidate),
			"existingPeriod": map[string]any{
				"id":      existing.ID,
				"batchId": existing.BatchId,
				"status":  existing.Status,
				"start":   ledger.FormatFrench(existing.PeriodStart),
				"end":     ledger.FormatFrench(existing.PeriodEnd),
			},
		})
}
