package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"storage-backend/internal/models"
	"storage-backend/internal/sqlitestore"
	"storage-backend/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDispatcher struct {
	mu    sync.Mutex
	calls map[int64]int
	fail  map[int64]error
	block bool
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{calls: map[int64]int{}, fail: map[int64]error{}}
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, e models.OutboxEntry) error {
	d.mu.Lock()
	d.calls[e.ID]++
	err := d.fail[e.ID]
	block := d.block
	d.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (d *recordingDispatcher) count(id int64) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[id]
}

// seedOutbox approves or rejects n requests so the outbox holds n entries.
func seedOutbox(t *testing.T, s *sqlitestore.Store, n int) {
	t.Helper()
	c := seedCustomer(t, s)
	svc := NewTransitionService(s, 0, 0)
	for i := 0; i < n; i++ {
		req := seedRequest(t, s, c.ID, models.RequestStatusPending, 5)
		_, err := svc.Reject(context.Background(), admin, RejectInput{RequestID: req.ID, Reason: "Outside service area"})
		require.NoError(t, err)
	}
}

func newTestWorker(s *sqlitestore.Store, d *recordingDispatcher, clock *time.Time) *NotificationWorker {
	w := NewNotificationWorker(s, d, WorkerConfig{
		Concurrency:     2,
		DispatchTimeout: 50 * time.Millisecond,
		Lease:           time.Minute,
		BackoffBase:     time.Minute,
		BackoffMax:      10 * time.Minute,
	})
	if clock != nil {
		w.now = func() time.Time { return *clock }
	}
	return w
}

func TestDrain_DeliversAll(t *testing.T) {
	s := newTestStore(t)
	seedOutbox(t, s, 3)
	d := newRecordingDispatcher()

	sum, err := newTestWorker(s, d, nil).Drain(context.Background(), 10, 3)
	require.NoError(t, err)
	assert.Equal(t, DrainSummary{Succeeded: 3}, sum)

	for _, e := range outboxEntries(t, s) {
		assert.True(t, e.Processed)
		assert.NotNil(t, e.ProcessedAt)
		assert.Nil(t, e.ClaimToken)
		assert.Equal(t, 1, d.count(e.ID))
	}

	sum, err = newTestWorker(s, d, nil).Drain(context.Background(), 10, 3)
	require.NoError(t, err)
	assert.Equal(t, DrainSummary{}, sum)
}

func TestDrain_RespectsBatchSize(t *testing.T) {
	s := newTestStore(t)
	seedOutbox(t, s, 5)
	d := newRecordingDispatcher()

	sum, err := newTestWorker(s, d, nil).Drain(context.Background(), 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Succeeded)
	assert.Equal(t, 1, d.count(1))
	assert.Equal(t, 1, d.count(2))
	assert.Equal(t, 0, d.count(3))
}

func TestDrain_FailureBacksOffAndRetries(t *testing.T) {
	s := newTestStore(t)
	seedOutbox(t, s, 2)
	d := newRecordingDispatcher()
	d.fail[1] = errors.New("gateway 502")

	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	w := newTestWorker(s, d, &clock)

	sum, err := w.Drain(context.Background(), 10, 3)
	require.NoError(t, err)
	assert.Equal(t, DrainSummary{Succeeded: 1, Failed: 1}, sum)

	e, err := s.GetOutboxEntry(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, e.Processed)
	assert.Equal(t, 1, e.Attempts)
	require.NotNil(t, e.LastError)
	assert.Equal(t, "gateway 502", *e.LastError)
	require.NotNil(t, e.NextAttemptAt)
	assert.True(t, e.NextAttemptAt.Equal(clock.Add(time.Minute)))

	// not due yet
	sum, err = w.Drain(context.Background(), 10, 3)
	require.NoError(t, err)
	assert.Equal(t, DrainSummary{}, sum)

	clock = clock.Add(2 * time.Minute)
	delete(d.fail, 1)
	sum, err = w.Drain(context.Background(), 10, 3)
	require.NoError(t, err)
	assert.Equal(t, DrainSummary{Succeeded: 1}, sum)
	assert.Equal(t, 2, d.count(1))
}

func TestDrain_ExhaustedEntriesBecomeStuck(t *testing.T) {
	s := newTestStore(t)
	seedOutbox(t, s, 1)
	d := newRecordingDispatcher()
	d.fail[1] = errors.New("number unreachable")

	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	w := newTestWorker(s, d, &clock)

	for i := 0; i < 2; i++ {
		sum, err := w.Drain(context.Background(), 10, 2)
		require.NoError(t, err)
		assert.Equal(t, 1, sum.Failed)
		clock = clock.Add(time.Hour)
	}

	sum, err := w.Drain(context.Background(), 10, 2)
	require.NoError(t, err)
	assert.Equal(t, DrainSummary{}, sum)
	assert.Equal(t, 2, d.count(1))

	stuck, err := w.Stuck(context.Background(), 2, 10)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, int64(1), stuck[0].ID)
	assert.Equal(t, 2, stuck[0].Attempts)

	// a higher ceiling makes the entry eligible again
	stuck, err = w.Stuck(context.Background(), 5, 10)
	require.NoError(t, err)
	assert.Empty(t, stuck)
}

func TestDrain_DispatchTimeoutCountsAsFailure(t *testing.T) {
	s := newTestStore(t)
	seedOutbox(t, s, 1)
	d := newRecordingDispatcher()
	d.block = true

	sum, err := newTestWorker(s, d, nil).Drain(context.Background(), 10, 3)
	require.NoError(t, err)
	assert.Equal(t, DrainSummary{Failed: 1}, sum)

	e, err := s.GetOutboxEntry(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, e.Attempts)
	assert.Contains(t, *e.LastError, "deadline exceeded")
}

func TestDrain_CancelledPassReleasesClaims(t *testing.T) {
	s := newTestStore(t)
	seedOutbox(t, s, 2)
	d := newRecordingDispatcher()

	ctx, cancel := context.WithCancel(context.Background())
	d.block = true
	w := newTestWorker(s, d, nil)
	w.Config.DispatchTimeout = time.Minute

	done := make(chan DrainSummary)
	go func() {
		sum, _ := w.Drain(ctx, 10, 3)
		done <- sum
	}()
	require.Eventually(t, func() bool { return d.count(1) == 1 && d.count(2) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	sum := <-done
	assert.Equal(t, DrainSummary{Skipped: 2}, sum)
	for _, e := range outboxEntries(t, s) {
		assert.False(t, e.Processed)
		assert.Equal(t, 0, e.Attempts)
		assert.Nil(t, e.ClaimToken)
	}

	d.block = false
	sum, err := w.Drain(context.Background(), 10, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Succeeded)
}

func TestDrain_ConcurrentWorkersDeliverOnce(t *testing.T) {
	s := newTestStore(t)
	seedOutbox(t, s, 12)
	d := newRecordingDispatcher()

	var wg sync.WaitGroup
	sums := make([]DrainSummary, 3)
	for i := range sums {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sums[i], _ = newTestWorker(s, d, nil).Drain(context.Background(), 12, 3)
		}(i)
	}
	wg.Wait()

	total := 0
	for _, sum := range sums {
		total += sum.Succeeded
		assert.Zero(t, sum.Failed)
	}
	assert.Equal(t, 12, total)
	for id := int64(1); id <= 12; id++ {
		assert.Equal(t, 1, d.count(id), "entry %d", id)
	}
}

func TestDrain_LostClaimIsSkipped(t *testing.T) {
	s := newTestStore(t)
	seedOutbox(t, s, 1)

	clock := time.Now().UTC()
	d := newRecordingDispatcher()
	w := newTestWorker(s, d, &clock)
	w.Config.Lease = time.Millisecond

	// the dispatcher lets the lease lapse and another worker takes the entry
	thief := newTestWorker(s, newRecordingDispatcher(), nil)
	stolen := &stealingDispatcher{inner: d, steal: func() {
		sum, err := thief.Drain(context.Background(), 10, 3)
		require.NoError(t, err)
		assert.Equal(t, 1, sum.Succeeded)
	}}
	w.Dispatcher = stolen

	sum, err := w.Drain(context.Background(), 10, 3)
	require.NoError(t, err)
	assert.Equal(t, DrainSummary{Skipped: 1}, sum)

	e, err := s.GetOutboxEntry(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, e.Processed)
}

type stealingDispatcher struct {
	inner *recordingDispatcher
	steal func()
}

func (s *stealingDispatcher) Dispatch(ctx context.Context, e models.OutboxEntry) error {
	time.Sleep(5 * time.Millisecond)
	s.steal()
	return s.inner.Dispatch(ctx, e)
}

func TestDrain_InvalidArguments(t *testing.T) {
	w := newTestWorker(newTestStore(t), newRecordingDispatcher(), nil)
	_, err := w.Drain(context.Background(), 0, 3)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = w.Drain(context.Background(), 10, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestBackoff(t *testing.T) {
	w := &NotificationWorker{Config: WorkerConfig{BackoffBase: time.Second, BackoffMax: 10 * time.Second}}
	assert.Equal(t, time.Second, w.backoff(0))
	assert.Equal(t, 2*time.Second, w.backoff(1))
	assert.Equal(t, 8*time.Second, w.backoff(3))
	assert.Equal(t, 10*time.Second, w.backoff(4))
	assert.Equal(t, 10*time.Second, w.backoff(60))
}

// strictTextOutbox refuses invalid UTF-8 in last_error, as a Postgres TEXT column does.
type strictTextOutbox struct {
	store.OutboxStore
}

func (o strictTextOutbox) MarkOutboxFailed(ctx context.Context, id int64, token string, at time.Time, errMsg string, next time.Time) (bool, error) {
	if !utf8.ValidString(errMsg) {
		return false, fmt.Errorf("invalid byte sequence for encoding \"UTF8\"")
	}
	return o.OutboxStore.MarkOutboxFailed(ctx, id, token, at, errMsg, next)
}

func TestDrain_LongMultiByteErrorStillCountsAttempts(t *testing.T) {
	s := newTestStore(t)
	seedOutbox(t, s, 1)
	d := newRecordingDispatcher()
	d.fail[1] = errors.New("SMS API error (status 500):  " + strings.Repeat("त्रुटि", 200))

	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	w := newTestWorker(s, d, &clock)
	w.Outbox = strictTextOutbox{s}

	for i := 0; i < 3; i++ {
		sum, err := w.Drain(context.Background(), 10, 3)
		require.NoError(t, err)
		assert.Equal(t, DrainSummary{Failed: 1}, sum)
		clock = clock.Add(time.Hour)
	}

	sum, err := w.Drain(context.Background(), 10, 3)
	require.NoError(t, err)
	assert.Equal(t, DrainSummary{}, sum)
	assert.Equal(t, 3, d.count(1))

	stuck, err := w.Stuck(context.Background(), 3, 10)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	require.NotNil(t, stuck[0].LastError)
	assert.True(t, utf8.ValidString(*stuck[0].LastError))
	assert.LessOrEqual(t, len(*stuck[0].LastError), maxErrorLength)
}

func TestTruncateError(t *testing.T) {
	assert.Equal(t, "short", truncateError("short"))
	assert.Equal(t, "bad \uFFFD byte", truncateError("bad \xff byte"))

	long := truncateError(strings.Repeat("é", maxErrorLength))
	assert.True(t, utf8.ValidString(long))
	assert.Len(t, long, maxErrorLength)

	// a three-byte rune straddles the limit
	odd := truncateError("ab" + strings.Repeat("त", maxErrorLength))
	assert.True(t, utf8.ValidString(odd))
	assert.Equal(t, 2+3*((maxErrorLength-2)/3), len(odd))
}
