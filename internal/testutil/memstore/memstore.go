// Package memstore is an in-memory services.ShiftStore for tests.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/shramik/internal/models"
	"github.com/example/shramik/internal/services"
)

// ErrInjected is returned by operations armed with FailOn.
var ErrInjected = errors.New("memstore: injected failure")

type dataset struct {
	jobs         map[uuid.UUID]models.Job
	applications map[uuid.UUID]models.Application
	otps         map[uuid.UUID]models.ShiftOtp
	shifts       map[uuid.UUID]models.ShiftLog
	ratings      []models.Rating
	seq          int64
}

func newDataset() *dataset {
	return &dataset{
		jobs:         map[uuid.UUID]models.Job{},
		applications: map[uuid.UUID]models.Application{},
		otps:         map[uuid.UUID]models.ShiftOtp{},
		shifts:       map[uuid.UUID]models.ShiftLog{},
	}
}

func (d *dataset) clone() *dataset {
	c := newDataset()
	for k, v := range d.jobs {
		c.jobs[k] = v
	}
	for k, v := range d.applications {
		c.applications[k] = v
	}
	for k, v := range d.otps {
		c.otps[k] = v
	}
	for k, v := range d.shifts {
		c.shifts[k] = v
	}
	c.ratings = append([]models.Rating(nil), d.ratings...)
	c.seq = d.seq
	return c
}

// Store keeps every table in maps. Transactions work on a copy that is
// swapped in on success, so a failed transaction leaves no trace.
type Store struct {
	mu     sync.Mutex
	data   *dataset
	failOn map[string]error
}

// New returns an empty Store.
func New() *Store {
	return &Store{data: newDataset(), failOn: map[string]error{}}
}

// FailOn makes the named operation return ErrInjected until cleared with
// a nil error.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failOn, op)
		return
	}
	s.failOn[op] = err
}

// AddJob seeds a job.
func (s *Store) AddJob(job models.Job) models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.EnsureID()
	s.data.jobs[job.ID] = job
	return job
}

// AddApplication seeds an application.
func (s *Store) AddApplication(app models.Application) models.Application {
	s.mu.Lock()
	defer s.mu.Unlock()
	app.EnsureID()
	s.data.applications[app.ID] = app
	return app
}

// ShiftOtps returns every stored code.
func (s *Store) ShiftOtps() []models.ShiftOtp {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ShiftOtp, 0, len(s.data.otps))
	for _, o := range s.data.otps {
		out = append(out, o)
	}
	return out
}

// ShiftLogs returns every stored shift.
func (s *Store) ShiftLogs() []models.ShiftLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ShiftLog, 0, len(s.data.shifts))
	for _, l := range s.data.shifts {
		out = append(out, l)
	}
	return out
}

// Ratings returns every stored rating.
func (s *Store) Ratings() []models.Rating {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Rating(nil), s.data.ratings...)
}

// WithinTx implements services.ShiftStore.
func (s *Store) WithinTx(ctx context.Context, fn func(tx services.ShiftStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(&view{store: s, data: work}); err != nil {
		return err
	}
	s.data = work
	return nil
}

func (s *Store) do(fn func(v *view) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&view{store: s, data: s.data})
}

func (s *Store) GetApplication(ctx context.Context, id uuid.UUID) (app *models.Application, err error) {
	err = s.do(func(v *view) error { app, err = v.GetApplication(ctx, id); return err })
	return app, err
}

func (s *Store) LockApplication(ctx context.Context, id uuid.UUID) (app *models.Application, err error) {
	err = s.do(func(v *view) error { app, err = v.LockApplication(ctx, id); return err })
	return app, err
}

func (s *Store) ListApplicationsByJobWorker(ctx context.Context, jobID, workerID uuid.UUID) (apps []models.Application, err error) {
	err = s.do(func(v *view) error { apps, err = v.ListApplicationsByJobWorker(ctx, jobID, workerID); return err })
	return apps, err
}

func (s *Store) JobExists(ctx context.Context, id uuid.UUID) (ok bool, err error) {
	err = s.do(func(v *view) error { ok, err = v.JobExists(ctx, id); return err })
	return ok, err
}

func (s *Store) CreateShiftOtp(ctx context.Context, otp *models.ShiftOtp) error {
	return s.do(func(v *view) error { return v.CreateShiftOtp(ctx, otp) })
}

func (s *Store) SupersedeShiftOtps(ctx context.Context, applicationID uuid.UUID, otpType string, now time.Time) (n int64, err error) {
	err = s.do(func(v *view) error { n, err = v.SupersedeShiftOtps(ctx, applicationID, otpType, now); return err })
	return n, err
}

func (s *Store) FindUnusedShiftOtp(ctx context.Context, applicationID uuid.UUID, code, otpType string) (otp *models.ShiftOtp, err error) {
	err = s.do(func(v *view) error { otp, err = v.FindUnusedShiftOtp(ctx, applicationID, code, otpType); return err })
	return otp, err
}

func (s *Store) GetShiftOtp(ctx context.Context, id uuid.UUID) (otp *models.ShiftOtp, err error) {
	err = s.do(func(v *view) error { otp, err = v.GetShiftOtp(ctx, id); return err })
	return otp, err
}

func (s *Store) MarkShiftOtpUsed(ctx context.Context, id uuid.UUID) error {
	return s.do(func(v *view) error { return v.MarkShiftOtpUsed(ctx, id) })
}

func (s *Store) ListPendingShiftOtps(ctx context.Context, contractorID uuid.UUID, now time.Time) (otps []models.ShiftOtp, err error) {
	err = s.do(func(v *view) error { otps, err = v.ListPendingShiftOtps(ctx, contractorID, now); return err })
	return otps, err
}

func (s *Store) CreateShiftLog(ctx context.Context, log *models.ShiftLog) error {
	return s.do(func(v *view) error { return v.CreateShiftLog(ctx, log) })
}

func (s *Store) FindOngoingShift(ctx context.Context, jobID, contractorID, workerID uuid.UUID) (log *models.ShiftLog, err error) {
	err = s.do(func(v *view) error { log, err = v.FindOngoingShift(ctx, jobID, contractorID, workerID); return err })
	return log, err
}

func (s *Store) LatestShift(ctx context.Context, jobID, contractorID, workerID uuid.UUID) (log *models.ShiftLog, err error) {
	err = s.do(func(v *view) error { log, err = v.LatestShift(ctx, jobID, contractorID, workerID); return err })
	return log, err
}

func (s *Store) CompleteShiftLog(ctx context.Context, id uuid.UUID, endTime time.Time, endOtpID uuid.UUID) (ok bool, err error) {
	err = s.do(func(v *view) error { ok, err = v.CompleteShiftLog(ctx, id, endTime, endOtpID); return err })
	return ok, err
}

func (s *Store) ListShiftLogs(ctx context.Context, jobID, contractorID, workerID uuid.UUID) (logs []models.ShiftLog, err error) {
	err = s.do(func(v *view) error { logs, err = v.ListShiftLogs(ctx, jobID, contractorID, workerID); return err })
	return logs, err
}

func (s *Store) CreateRating(ctx context.Context, rating *models.Rating) error {
	return s.do(func(v *view) error { return v.CreateRating(ctx, rating) })
}

func (s *Store) RatingExists(ctx context.Context, jobID, raterID uuid.UUID) (ok bool, err error) {
	err = s.do(func(v *view) error { ok, err = v.RatingExists(ctx, jobID, raterID); return err })
	return ok, err
}

func (s *Store) ListRatingsFor(ctx context.Context, ratedID uuid.UUID, limit int) (out []models.Rating, err error) {
	err = s.do(func(v *view) error { out, err = v.ListRatingsFor(ctx, ratedID, limit); return err })
	return out, err
}

func (s *Store) RatingStats(ctx context.Context, ratedID uuid.UUID) (avg float64, count int64, err error) {
	err = s.do(func(v *view) error { avg, count, err = v.RatingStats(ctx, ratedID); return err })
	return avg, count, err
}

// view runs operations against one dataset with the store mutex held.
type view struct {
	store *Store
	data  *dataset
}

func (v *view) fail(op string) error {
	return v.store.failOn[op]
}

func (v *view) stamp(b *models.BaseModel) {
	b.EnsureID()
	v.data.seq++
	// Monotonic timestamps keep ordering stable when a test clock is frozen.
	now := time.Unix(0, v.data.seq)
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}

func (v *view) WithinTx(ctx context.Context, fn func(tx services.ShiftStore) error) error {
	return fn(v)
}

func (v *view) GetApplication(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	if err := v.fail("GetApplication"); err != nil {
		return nil, err
	}
	app, ok := v.data.applications[id]
	if !ok {
		return nil, nil
	}
	return &app, nil
}

func (v *view) LockApplication(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	if err := v.fail("LockApplication"); err != nil {
		return nil, err
	}
	return v.GetApplication(ctx, id)
}

func (v *view) ListApplicationsByJobWorker(ctx context.Context, jobID, workerID uuid.UUID) ([]models.Application, error) {
	if err := v.fail("ListApplicationsByJobWorker"); err != nil {
		return nil, err
	}
	var out []models.Application
	for _, a := range v.data.applications {
		if a.JobID == jobID && a.WorkerID == workerID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (v *view) JobExists(ctx context.Context, id uuid.UUID) (bool, error) {
	if err := v.fail("JobExists"); err != nil {
		return false, err
	}
	_, ok := v.data.jobs[id]
	return ok, nil
}

func (v *view) CreateShiftOtp(ctx context.Context, otp *models.ShiftOtp) error {
	if err := v.fail("CreateShiftOtp"); err != nil {
		return err
	}
	v.stamp(&otp.BaseModel)
	v.data.otps[otp.ID] = *otp
	return nil
}

func (v *view) SupersedeShiftOtps(ctx context.Context, applicationID uuid.UUID, otpType string, now time.Time) (int64, error) {
	if err := v.fail("SupersedeShiftOtps"); err != nil {
		return 0, err
	}
	var n int64
	for id, o := range v.data.otps {
		if o.ApplicationID == applicationID && o.Type == otpType && !o.Used && !o.Expired(now) {
			o.Used = true
			v.data.otps[id] = o
			n++
		}
	}
	return n, nil
}

func (v *view) FindUnusedShiftOtp(ctx context.Context, applicationID uuid.UUID, code, otpType string) (*models.ShiftOtp, error) {
	if err := v.fail("FindUnusedShiftOtp"); err != nil {
		return nil, err
	}
	var best *models.ShiftOtp
	for _, o := range v.data.otps {
		if o.ApplicationID != applicationID || o.Code != code || o.Type != otpType || o.Used {
			continue
		}
		if best == nil || o.IssuedAt.After(best.IssuedAt) ||
			(o.IssuedAt.Equal(best.IssuedAt) && o.CreatedAt.After(best.CreatedAt)) {
			o := o
			best = &o
		}
	}
	return best, nil
}

func (v *view) GetShiftOtp(ctx context.Context, id uuid.UUID) (*models.ShiftOtp, error) {
	if err := v.fail("GetShiftOtp"); err != nil {
		return nil, err
	}
	o, ok := v.data.otps[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (v *view) MarkShiftOtpUsed(ctx context.Context, id uuid.UUID) error {
	if err := v.fail("MarkShiftOtpUsed"); err != nil {
		return err
	}
	o, ok := v.data.otps[id]
	if !ok {
		return nil
	}
	o.Used = true
	v.data.otps[id] = o
	return nil
}

func (v *view) ListPendingShiftOtps(ctx context.Context, contractorID uuid.UUID, now time.Time) ([]models.ShiftOtp, error) {
	if err := v.fail("ListPendingShiftOtps"); err != nil {
		return nil, err
	}
	var out []models.ShiftOtp
	for _, o := range v.data.otps {
		if o.ContractorID == contractorID && !o.Used && !o.Expired(now) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IssuedAt.Equal(out[j].IssuedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].IssuedAt.After(out[j].IssuedAt)
	})
	return out, nil
}

func (v *view) CreateShiftLog(ctx context.Context, log *models.ShiftLog) error {
	if err := v.fail("CreateShiftLog"); err != nil {
		return err
	}
	if log.Status == models.ShiftStatusOngoing {
		for _, l := range v.data.shifts {
			if l.Status == models.ShiftStatusOngoing && l.JobID == log.JobID &&
				l.ContractorID == log.ContractorID && l.WorkerID == log.WorkerID {
				return &services.ShiftError{Kind: services.ErrShiftAlreadyOngoing, Message: "a shift is already in progress for this job"}
			}
		}
	}
	v.stamp(&log.BaseModel)
	v.data.shifts[log.ID] = *log
	return nil
}

func (v *view) triple(jobID, contractorID, workerID uuid.UUID) []models.ShiftLog {
	var out []models.ShiftLog
	for _, l := range v.data.shifts {
		if l.JobID == jobID && l.ContractorID == contractorID && l.WorkerID == workerID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out
}

func (v *view) FindOngoingShift(ctx context.Context, jobID, contractorID, workerID uuid.UUID) (*models.ShiftLog, error) {
	if err := v.fail("FindOngoingShift"); err != nil {
		return nil, err
	}
	for _, l := range v.triple(jobID, contractorID, workerID) {
		if l.Status == models.ShiftStatusOngoing {
			l := l
			return &l, nil
		}
	}
	return nil, nil
}

func (v *view) LatestShift(ctx context.Context, jobID, contractorID, workerID uuid.UUID) (*models.ShiftLog, error) {
	if err := v.fail("LatestShift"); err != nil {
		return nil, err
	}
	logs := v.triple(jobID, contractorID, workerID)
	if len(logs) == 0 {
		return nil, nil
	}
	return &logs[0], nil
}

func (v *view) CompleteShiftLog(ctx context.Context, id uuid.UUID, endTime time.Time, endOtpID uuid.UUID) (bool, error) {
	if err := v.fail("CompleteShiftLog"); err != nil {
		return false, err
	}
	l, ok := v.data.shifts[id]
	if !ok || l.Status != models.ShiftStatusOngoing {
		return false, nil
	}
	l.EndTime = &endTime
	l.EndOtpID = &endOtpID
	l.Status = models.ShiftStatusCompleted
	v.data.shifts[id] = l
	return true, nil
}

func (v *view) ListShiftLogs(ctx context.Context, jobID, contractorID, workerID uuid.UUID) ([]models.ShiftLog, error) {
	if err := v.fail("ListShiftLogs"); err != nil {
		return nil, err
	}
	return v.triple(jobID, contractorID, workerID), nil
}

func (v *view) CreateRating(ctx context.Context, rating *models.Rating) error {
	if err := v.fail("CreateRating"); err != nil {
		return err
	}
	v.stamp(&rating.BaseModel)
	v.data.ratings = append(v.data.ratings, *rating)
	return nil
}

func (v *view) RatingExists(ctx context.Context, jobID, raterID uuid.UUID) (bool, error) {
	if err := v.fail("RatingExists"); err != nil {
		return false, err
	}
	for _, r := range v.data.ratings {
		if r.JobID == jobID && r.RaterID == raterID {
			return true, nil
		}
	}
	return false, nil
}

func (v *view) ListRatingsFor(ctx context.Context, ratedID uuid.UUID, limit int) ([]models.Rating, error) {
	if err := v.fail("ListRatingsFor"); err != nil {
		return nil, err
	}
	var out []models.Rating
	for i := len(v.data.ratings) - 1; i >= 0; i-- {
		if v.data.ratings[i].RatedID == ratedID {
			out = append(out, v.data.ratings[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (v *view) RatingStats(ctx context.Context, ratedID uuid.UUID) (float64, int64, error) {
	if err := v.fail("RatingStats"); err != nil {
		return 0, 0, err
	}
	var sum, n int64
	for _, r := range v.data.ratings {
		if r.RatedID == ratedID {
			sum += int64(r.Score)
			n++
		}
	}
	if n == 0 {
		return 0, 0, nil
	}
	return float64(sum) / float64(n), n, nil
}

// AuditLog is an in-memory services.AuditSink.
type AuditLog struct {
	mu     sync.Mutex
	Events []models.ShiftEvent
	Err    error
}

// Record implements services.AuditSink.
func (a *AuditLog) Record(ctx context.Context, event *models.ShiftEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Err != nil {
		return a.Err
	}
	event.EnsureID()
	a.Events = append(a.Events, *event)
	return nil
}

// Types returns the recorded event types in order.
func (a *AuditLog) Types() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.Events))
	for i, e := range a.Events {
		out[i] = e.Type
	}
	return out
}
