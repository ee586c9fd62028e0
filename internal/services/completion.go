package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/example/shramik/internal/models"
)

// CompletionService derives the "job done" flag of an application. The flag
// is never stored: it is true iff the latest shift of the application's
// (job, contractor, worker) triple is completed and the worker has rated
// the job.
type CompletionService struct {
	store ShiftStore
}

// NewCompletionService constructs a CompletionService.
func NewCompletionService(store ShiftStore) *CompletionService {
	return &CompletionService{store: store}
}

// Completed computes the flag for one application.
func (s *CompletionService) Completed(ctx context.Context, app *models.Application) (bool, error) {
	return completedWith(ctx, s.store, app)
}

// CompletionFlags computes flags for a page of applications keyed by
// application id. Rating lookups are shared between applications of the
// same (job, worker).
func (s *CompletionService) CompletionFlags(ctx context.Context, apps []models.Application) (map[uuid.UUID]bool, error) {
	flags := lo.SliceToMap(apps, func(a models.Application) (uuid.UUID, bool) {
		return a.ID, false
	})
	rated := make(map[[2]uuid.UUID]bool)

	for _, app := range apps {
		latest, err := s.store.LatestShift(ctx, app.JobID, app.ContractorID, app.WorkerID)
		if err != nil {
			return nil, persistenceError("load latest shift", err)
		}
		if latest == nil || latest.Status != models.ShiftStatusCompleted {
			continue
		}

		key := [2]uuid.UUID{app.JobID, app.WorkerID}
		ok, seen := rated[key]
		if !seen {
			ok, err = s.store.RatingExists(ctx, app.JobID, app.WorkerID)
			if err != nil {
				return nil, persistenceError("check rating", err)
			}
			rated[key] = ok
		}
		flags[app.ID] = ok
	}
	return flags, nil
}

func completedWith(ctx context.Context, store ShiftStore, app *models.Application) (bool, error) {
	if app == nil {
		return false, nil
	}
	latest, err := store.LatestShift(ctx, app.JobID, app.ContractorID, app.WorkerID)
	if err != nil {
		return false, persistenceError("load latest shift", err)
	}
	if latest == nil || latest.Status != models.ShiftStatusCompleted {
		return false, nil
	}
	ok, err := store.RatingExists(ctx, app.JobID, app.WorkerID)
	if err != nil {
		return false, persistenceError("check rating", err)
	}
	return ok, nil
}
