package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/example/shramik/internal/models"
	"github.com/example/shramik/internal/utils"
)

const maxReviewLength = 1000

// RatingInput is one party's review of another for a job.
type RatingInput struct {
	JobID   uuid.UUID
	RaterID uuid.UUID
	RatedID uuid.UUID
	Score   int
	Review  string
}

// ApplicationCompletion pairs an application with its recomputed flag.
type ApplicationCompletion struct {
	ApplicationID uuid.UUID `json:"application_id"`
	Completed     bool      `json:"completed"`
}

// RatingResult is returned after a rating is stored.
type RatingResult struct {
	Rating      *models.Rating          `json:"rating"`
	Completions []ApplicationCompletion `json:"completions"`
}

// RatingSummary aggregates the ratings a profile has received.
type RatingSummary struct {
	ProfileID uuid.UUID       `json:"profile_id"`
	Average   float64         `json:"average"`
	Count     int64           `json:"count"`
	Recent    []models.Rating `json:"recent"`
}

// RatingService stores ratings and refreshes completion flags.
type RatingService struct {
	store            ShiftStore
	audit            AuditSink
	rejectDuplicates bool
}

// NewRatingService constructs a RatingService. With rejectDuplicates off a
// second rating for the same (job, rater) is stored like any other.
func NewRatingService(store ShiftStore, audit AuditSink, rejectDuplicates bool) *RatingService {
	return &RatingService{store: store, audit: audit, rejectDuplicates: rejectDuplicates}
}

// Submit stores a rating and recomputes completion for the rater's
// applications on that job.
func (s *RatingService) Submit(ctx context.Context, in RatingInput) (*RatingResult, error) {
	in.Review = strings.TrimSpace(in.Review)
	if err := checkRatingInput(in); err != nil {
		return nil, err
	}

	rating := &models.Rating{
		JobID:   in.JobID,
		RaterID: in.RaterID,
		RatedID: in.RatedID,
		Score:   in.Score,
		Review:  in.Review,
	}

	err := s.store.WithinTx(ctx, func(tx ShiftStore) error {
		exists, err := tx.JobExists(ctx, in.JobID)
		if err != nil {
			return err
		}
		if !exists {
			return notFound("job")
		}

		if s.rejectDuplicates {
			dup, err := tx.RatingExists(ctx, in.JobID, in.RaterID)
			if err != nil {
				return err
			}
			if dup {
				return newError(ErrDuplicateRating, "you have already rated this job")
			}
		}
		return tx.CreateRating(ctx, rating)
	})
	if err != nil {
		return nil, persistenceError("save rating", err)
	}

	recordEvent(ctx, s.audit, EventRatingSubmitted, uuid.Nil, in.RaterID, map[string]any{
		"rating_id": rating.ID,
		"job_id":    rating.JobID,
		"rated_id":  rating.RatedID,
		"score":     rating.Score,
	})

	return &RatingResult{Rating: rating, Completions: s.recompute(ctx, in.JobID, in.RaterID)}, nil
}

// recompute refreshes completion for the rater's applications on the job.
// The rating is already stored, so a failed read is logged and the flags
// gathered so far are returned.
func (s *RatingService) recompute(ctx context.Context, jobID, raterID uuid.UUID) []ApplicationCompletion {
	completions := []ApplicationCompletion{}

	apps, err := s.store.ListApplicationsByJobWorker(ctx, jobID, raterID)
	if err != nil {
		utils.Logger.WithError(err).WithField("job_id", jobID).Warn("rating stored, cannot load applications for completion")
		return completions
	}

	for i := range apps {
		done, err := completedWith(ctx, s.store, &apps[i])
		if err != nil {
			utils.Logger.WithError(err).WithField("application_id", apps[i].ID).Warn("rating stored, cannot recompute completion")
			return completions
		}
		completions = append(completions, ApplicationCompletion{ApplicationID: apps[i].ID, Completed: done})
	}
	return completions
}

// Summary aggregates the ratings received by profileID.
func (s *RatingService) Summary(ctx context.Context, profileID uuid.UUID, recent int) (*RatingSummary, error) {
	avg, count, err := s.store.RatingStats(ctx, profileID)
	if err != nil {
		return nil, persistenceError("aggregate ratings", err)
	}
	latest, err := s.store.ListRatingsFor(ctx, profileID, recent)
	if err != nil {
		return nil, persistenceError("list ratings", err)
	}

	return &RatingSummary{
		ProfileID: profileID,
		Average:   avg,
		Count:     count,
		Recent: lo.Filter(latest, func(r models.Rating, _ int) bool {
			return r.Review != ""
		}),
	}, nil
}

func checkRatingInput(in RatingInput) error {
	if in.JobID == uuid.Nil {
		return validationError("job_id is required")
	}
	if in.RatedID == uuid.Nil {
		return validationError("rated_id is required")
	}
	if in.RaterID == in.RatedID {
		return validationError("you cannot rate yourself")
	}
	if in.Score < 1 || in.Score > 5 {
		return validationError("score must be between 1 and 5")
	}
	if utf8.RuneCountInString(in.Review) > maxReviewLength {
		return validationError("review must be at most %d characters", maxReviewLength)
	}
	return nil
}
