package reminders

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/accountkit/internal/accounts"
	jobmetrics "github.com/odyssey-erp/accountkit/internal/jobs"
)

var now = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu       sync.Mutex
	pending  []accounts.PendingActivation
	filter   accounts.PendingFilter
	marked   map[int64]time.Time
	listErr  error
	markErrs map[int64]error
}

func (s *fakeStore) ListPendingActivations(_ context.Context, filter accounts.PendingFilter) ([]accounts.PendingActivation, error) {
	s.filter = filter
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.pending, nil
}

func (s *fakeStore) MarkReminderSent(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.markErrs[id]; err != nil {
		return err
	}
	if s.marked == nil {
		s.marked = map[int64]time.Time{}
	}
	s.marked[id] = at
	return nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []accounts.Activation
	fail map[string]bool
}

func (n *fakeNotifier) SendActivation(_ context.Context, a accounts.Activation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail[a.Association.Email] {
		return errors.New("smtp unavailable")
	}
	n.sent = append(n.sent, a)
	return nil
}

func pendingFor(id int64, email string) accounts.PendingActivation {
	return accounts.PendingActivation{
		Account:     accounts.Account{ID: id, Username: email},
		Association: accounts.EmailAssociation{ID: id * 10, AccountID: id, Email: email, ActivationKey: email},
	}
}

func TestBatchBuildsFilterFromConfig(t *testing.T) {
	store := &fakeStore{}
	batch := NewBatch(store, &fakeNotifier{}, BatchConfig{
		MinAge:      2 * time.Hour,
		ResendAfter: 48 * time.Hour,
		BatchSize:   25,
		Clock:       func() time.Time { return now },
	})

	_, err := batch.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, now.Add(-2*time.Hour), store.filter.CreatedBefore)
	assert.Equal(t, now.Add(-48*time.Hour), store.filter.RemindedBefore)
	assert.Equal(t, 25, store.filter.Limit)
}

func TestBatchDefaults(t *testing.T) {
	store := &fakeStore{}
	batch := NewBatch(store, &fakeNotifier{}, BatchConfig{Clock: func() time.Time { return now }})
	_, err := batch.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, now.Add(-defaultMinAge), store.filter.CreatedBefore)
	assert.Equal(t, defaultBatchSize, store.filter.Limit)
}

func TestBatchSendsAndMarksEachReminder(t *testing.T) {
	store := &fakeStore{pending: []accounts.PendingActivation{
		pendingFor(1, "a@example.com"),
		pendingFor(2, "b@example.com"),
		pendingFor(3, "c@example.com"),
	}}
	notifier := &fakeNotifier{fail: map[string]bool{"b@example.com": true}}
	reg := prometheus.NewRegistry()
	batch := NewBatch(store, notifier, BatchConfig{
		Domain:  "accounts.example.com",
		Metrics: jobmetrics.NewMetrics(reg),
		Clock:   func() time.Time { return now },
	})

	result, err := batch.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Selected: 3, Sent: 2, Failed: 1}, result)

	require.Len(t, notifier.sent, 2)
	for _, a := range notifier.sent {
		assert.True(t, a.Reminder)
		assert.Equal(t, "accounts.example.com", a.Domain)
	}
	assert.Equal(t, map[int64]time.Time{10: now, 30: now}, store.marked)
}

func TestBatchCountsMarkFailure(t *testing.T) {
	store := &fakeStore{
		pending:  []accounts.PendingActivation{pendingFor(1, "a@example.com")},
		markErrs: map[int64]error{10: errors.New("deadlock")},
	}
	result, err := NewBatch(store, &fakeNotifier{}, BatchConfig{}).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
}

func TestBatchSelectionFailureAborts(t *testing.T) {
	store := &fakeStore{listErr: errors.New("connection reset")}
	err := NewBatch(store, &fakeNotifier{}, BatchConfig{}).Run(context.Background())
	assert.ErrorContains(t, err, "connection reset")
}

func TestRunJobRecoversPanic(t *testing.T) {
	err := RunJob(context.Background(), nil, jobmetrics.NewMetrics(prometheus.NewRegistry()), "boom", func(context.Context) error {
		panic("kaboom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestRunJobPassesThroughResult(t *testing.T) {
	assert.NoError(t, RunJob(context.Background(), nil, nil, "ok", func(context.Context) error { return nil }))
	boom := errors.New("boom")
	assert.ErrorIs(t, RunJob(context.Background(), nil, nil, "fail", func(context.Context) error { return boom }), boom)
}

func TestRunnerOnceRunsExactlyOnce(t *testing.T) {
	var calls atomic.Int32
	runner := NewRunner(func(context.Context) error {
		calls.Add(1)
		return nil
	}, RunnerConfig{Mode: ModeOnce, Interval: time.Millisecond})

	require.NoError(t, runner.Run(context.Background()))
	assert.Equal(t, int32(1), calls.Load())
}

func TestRunnerOnceReturnsJobError(t *testing.T) {
	boom := errors.New("boom")
	runner := NewRunner(func(context.Context) error { return boom }, RunnerConfig{Mode: ModeOnce})
	assert.ErrorIs(t, runner.Run(context.Background()), boom)
}

func TestRunnerLoopSurvivesPanicsAndStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	runner := NewRunner(func(context.Context) error {
		if calls.Add(1) >= 3 {
			cancel()
		}
		panic("flaky")
	}, RunnerConfig{Mode: ModeLoop, Interval: time.Millisecond})

	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop after cancellation")
	}
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "once", ModeOnce.String())
	assert.Equal(t, "loop", ModeLoop.String())
}
