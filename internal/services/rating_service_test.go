package services_test

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/shramik/internal/models"
	"github.com/example/shramik/internal/services"
	"github.com/example/shramik/internal/testutil/memstore"
)

func (f *fixture) workShift(t *testing.T) {
	t.Helper()
	start := f.issue(t, models.OtpTypeStart)
	_, err := f.shifts.StartShift(testContext(t), f.app.ID, f.workerID, start.Code)
	require.NoError(t, err)
	f.clock.Advance(4 * time.Hour)
	end := f.issue(t, models.OtpTypeEnd)
	_, err = f.shifts.EndShift(testContext(t), f.app.ID, f.workerID, end.Code)
	require.NoError(t, err)
}

func (f *fixture) rateContractor(t *testing.T, score int, review string) *services.RatingResult {
	t.Helper()
	res, err := f.ratings.Submit(testContext(t), services.RatingInput{
		JobID:   f.job.ID,
		RaterID: f.workerID,
		RatedID: f.contractorID,
		Score:   score,
		Review:  review,
	})
	require.NoError(t, err)
	return res
}

func TestRatingAfterShiftCompletesApplication(t *testing.T) {
	f := newFixture(t, codes("111111", "222222"))

	done, err := f.completion.Completed(testContext(t), &f.app)
	require.NoError(t, err)
	assert.False(t, done)

	f.workShift(t)

	done, err = f.completion.Completed(testContext(t), &f.app)
	require.NoError(t, err)
	assert.False(t, done, "no rating yet")

	res := f.rateContractor(t, 5, "good")
	assert.Equal(t, 5, res.Rating.Score)
	assert.Equal(t, []services.ApplicationCompletion{{ApplicationID: f.app.ID, Completed: true}}, res.Completions)

	done, err = f.completion.Completed(testContext(t), &f.app)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestRatingWithoutShiftLeavesIncomplete(t *testing.T) {
	f := newFixture(t, nil)

	res := f.rateContractor(t, 4, "")
	assert.Equal(t, []services.ApplicationCompletion{{ApplicationID: f.app.ID, Completed: false}}, res.Completions)
}

func TestCompletionFollowsLatestShift(t *testing.T) {
	f := newFixture(t, codes("111111", "222222", "333333"))
	f.workShift(t)
	f.rateContractor(t, 5, "good")

	f.clock.Advance(time.Hour)
	start := f.issue(t, models.OtpTypeStart)
	_, err := f.shifts.StartShift(testContext(t), f.app.ID, f.workerID, start.Code)
	require.NoError(t, err)

	done, err := f.completion.Completed(testContext(t), &f.app)
	require.NoError(t, err)
	assert.False(t, done, "a newer shift is still ongoing")
}

func TestCompletionFlagsBatch(t *testing.T) {
	f := newFixture(t, codes("111111", "222222"))
	other := f.store.AddApplication(models.Application{
		JobID:        f.job.ID,
		WorkerID:     uuid.New(),
		ContractorID: f.contractorID,
		Status:       models.ApplicationStatusAccepted,
	})
	f.workShift(t)
	f.rateContractor(t, 3, "ok")

	flags, err := f.completion.CompletionFlags(testContext(t), []models.Application{f.app, other})
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]bool{f.app.ID: true, other.ID: false}, flags)
}

func TestRatingValidation(t *testing.T) {
	f := newFixture(t, nil)

	cases := []struct {
		name string
		in   services.RatingInput
		kind error
	}{
		{"score too low", services.RatingInput{JobID: f.job.ID, RaterID: f.workerID, RatedID: f.contractorID, Score: 0}, services.ErrValidation},
		{"score too high", services.RatingInput{JobID: f.job.ID, RaterID: f.workerID, RatedID: f.contractorID, Score: 6}, services.ErrValidation},
		{"self rating", services.RatingInput{JobID: f.job.ID, RaterID: f.workerID, RatedID: f.workerID, Score: 5}, services.ErrValidation},
		{"missing job", services.RatingInput{RaterID: f.workerID, RatedID: f.contractorID, Score: 5}, services.ErrValidation},
		{"long review", services.RatingInput{JobID: f.job.ID, RaterID: f.workerID, RatedID: f.contractorID, Score: 5, Review: strings.Repeat("a", 1001)}, services.ErrValidation},
		{"unknown job", services.RatingInput{JobID: uuid.New(), RaterID: f.workerID, RatedID: f.contractorID, Score: 5}, services.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.ratings.Submit(testContext(t), tc.in)
			assert.ErrorIs(t, err, tc.kind)
		})
	}
	assert.Empty(t, f.store.Ratings())
}

func TestDuplicateRatingsAllowedByDefault(t *testing.T) {
	f := newFixture(t, nil)
	f.rateContractor(t, 5, "good")
	f.rateContractor(t, 3, "changed my mind")

	summary, err := f.ratings.Summary(testContext(t), f.contractorID, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.Count)
	assert.InDelta(t, 4.0, summary.Average, 0.001)
	require.Len(t, summary.Recent, 2)
	assert.Equal(t, "changed my mind", summary.Recent[0].Review)
}

func TestDuplicateRatingsRejectedWhenConfigured(t *testing.T) {
	f := newFixture(t, nil)
	strict := services.NewRatingService(f.store, f.audit, true)
	in := services.RatingInput{JobID: f.job.ID, RaterID: f.workerID, RatedID: f.contractorID, Score: 5}

	_, err := strict.Submit(testContext(t), in)
	require.NoError(t, err)
	_, err = strict.Submit(testContext(t), in)
	assert.ErrorIs(t, err, services.ErrDuplicateRating)
	assert.Len(t, f.store.Ratings(), 1)
}

func TestSummaryForUnratedProfile(t *testing.T) {
	f := newFixture(t, nil)

	summary, err := f.ratings.Summary(testContext(t), uuid.New(), 5)
	require.NoError(t, err)
	assert.Zero(t, summary.Count)
	assert.Zero(t, summary.Average)
	assert.Empty(t, summary.Recent)
}

func TestRatingStoredWhenCompletionReadFails(t *testing.T) {
	f := newFixture(t, codes("111111", "222222"))
	f.workShift(t)

	f.store.FailOn("ListApplicationsByJobWorker", memstore.ErrInjected)
	res := f.rateContractor(t, 5, "good")
	require.NotNil(t, res.Rating)
	assert.Empty(t, res.Completions)
	assert.Len(t, f.store.Ratings(), 1)

	f.store.FailOn("ListApplicationsByJobWorker", nil)
	done, err := f.completion.Completed(testContext(t), &f.app)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestRatingStoredWhenShiftReadFails(t *testing.T) {
	f := newFixture(t, codes("111111", "222222"))
	f.workShift(t)

	f.store.FailOn("LatestShift", memstore.ErrInjected)
	res := f.rateContractor(t, 4, "")
	assert.Empty(t, res.Completions)
	assert.Len(t, f.store.Ratings(), 1)
}
