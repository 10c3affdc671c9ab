package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"storage-backend/internal/metrics"
	"storage-backend/internal/models"
	"storage-backend/internal/notify"
	"storage-backend/internal/store"
	"storage-backend/internal/timeutil"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const maxErrorLength = 1000

// WorkerConfig tunes the notification worker. Zero values get defaults.
type WorkerConfig struct {
	Concurrency     int
	DispatchTimeout time.Duration
	// Lease is how long a claim stays exclusive; it must exceed DispatchTimeout.
	Lease       time.Duration
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.DispatchTimeout <= 0 {
		c.DispatchTimeout = 10 * time.Second
	}
	if c.Lease <= c.DispatchTimeout {
		c.Lease = 3 * c.DispatchTimeout
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 30 * time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = time.Hour
	}
	return c
}

// DrainSummary counts what one drain pass did. Skipped entries were claimed
// but left for a later pass.
type DrainSummary struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

type outcome string

const (
	outcomeDelivered outcome = "delivered"
	outcomeFailed    outcome = "failed"
	outcomeSkipped   outcome = "skipped"
)

// NotificationWorker drains the outbox. Delivery is at-least-once; any number of
// workers may run against the same outbox since every entry is claimed first.
type NotificationWorker struct {
	Outbox     store.OutboxStore
	Dispatcher notify.Dispatcher
	Config     WorkerConfig

	now func() time.Time
}

func NewNotificationWorker(outbox store.OutboxStore, d notify.Dispatcher, cfg WorkerConfig) *NotificationWorker {
	return &NotificationWorker{
		Outbox:     outbox,
		Dispatcher: d,
		Config:     cfg.withDefaults(),
		now:        timeutil.Now,
	}
}

// Drain claims up to batchSize due entries with fewer than maxAttempts failures
// and dispatches them. A dispatch failure never aborts the pass. Cancelling ctx
// stops new dispatches; unstarted entries are released, not failed.
func (w *NotificationWorker) Drain(ctx context.Context, batchSize, maxAttempts int) (DrainSummary, error) {
	var summary DrainSummary
	if batchSize <= 0 || maxAttempts <= 0 {
		return summary, fmt.Errorf("%w: batch size and max attempts must be positive", ErrInvalidArgument)
	}

	token := uuid.NewString()
	now := w.now()
	entries, err := w.Outbox.ClaimOutboxEntries(ctx, store.ClaimParams{
		Token:       token,
		Limit:       batchSize,
		MaxAttempts: maxAttempts,
		Now:         now,
		LeaseUntil:  now.Add(w.Config.Lease),
	})
	if err != nil {
		return summary, fmt.Errorf("claim outbox entries: %w", err)
	}
	if len(entries) == 0 {
		return summary, nil
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(w.Config.Concurrency)
	for _, e := range entries {
		e := e
		g.Go(func() error {
			out := w.process(ctx, e, token, maxAttempts)
			metrics.NotificationsTotal.WithLabelValues(string(out)).Inc()

			mu.Lock()
			defer mu.Unlock()
			switch out {
			case outcomeDelivered:
				summary.Succeeded++
			case outcomeFailed:
				summary.Failed++
			default:
				summary.Skipped++
			}
			return nil
		})
	}
	g.Wait()

	log.Printf("[Worker] Drained %d outbox entries: %d delivered, %d failed, %d skipped",
		len(entries), summary.Succeeded, summary.Failed, summary.Skipped)
	return summary, nil
}

func (w *NotificationWorker) process(ctx context.Context, e models.OutboxEntry, token string, maxAttempts int) outcome {
	// Status writes must land even when the pass is being cancelled.
	wctx, wcancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer wcancel()

	if ctx.Err() != nil {
		if _, err := w.Outbox.ReleaseOutboxClaim(wctx, e.ID, token); err != nil {
			log.Printf("[Worker] Failed to release outbox entry %d: %v", e.ID, err)
		}
		return outcomeSkipped
	}

	dctx, cancel := context.WithTimeout(ctx, w.Config.DispatchTimeout)
	dispatchErr := w.Dispatcher.Dispatch(dctx, e)
	cancel()

	at := w.now()
	if dispatchErr == nil {
		ok, err := w.Outbox.MarkOutboxDelivered(wctx, e.ID, token, at)
		if err != nil {
			// The lease will expire and the entry will be redelivered.
			log.Printf("[Worker] Delivered outbox entry %d but could not record it: %v", e.ID, err)
			return outcomeSkipped
		}
		if !ok {
			log.Printf("[Worker] Outbox entry %d delivered after its claim was lost", e.ID)
			return outcomeSkipped
		}
		return outcomeDelivered
	}

	if ctx.Err() != nil {
		// Interrupted by shutdown rather than a delivery failure.
		if _, err := w.Outbox.ReleaseOutboxClaim(wctx, e.ID, token); err != nil {
			log.Printf("[Worker] Failed to release outbox entry %d: %v", e.ID, err)
		}
		return outcomeSkipped
	}

	msg := truncateError(dispatchErr.Error())
	ok, err := w.Outbox.MarkOutboxFailed(wctx, e.ID, token, at, msg, at.Add(w.backoff(e.Attempts)))
	if err != nil {
		// The delivery still failed; the lease will hand the entry out again.
		log.Printf("[Worker] Could not record failure of outbox entry %d: %v", e.ID, err)
		return outcomeFailed
	}
	if !ok {
		return outcomeSkipped
	}

	if e.Attempts+1 >= maxAttempts {
		log.Printf("[Worker] Outbox entry %d (%s) gave up after %d attempts: %s", e.ID, e.Type, e.Attempts+1, msg)
	} else {
		log.Printf("[Worker] Outbox entry %d attempt %d failed: %s", e.ID, e.Attempts+1, msg)
	}
	return outcomeFailed
}

// truncateError caps msg at maxErrorLength bytes without splitting a rune.
// Vendor response bodies end up in here, so invalid bytes are replaced too.
func truncateError(msg string) string {
	msg = strings.ToValidUTF8(msg, "\uFFFD")
	if len(msg) <= maxErrorLength {
		return msg
	}
	n := maxErrorLength
	for n > 0 && !utf8.RuneStart(msg[n]) {
		n--
	}
	return msg[:n]
}

// backoff doubles from BackoffBase per prior failure, capped at BackoffMax
func (w *NotificationWorker) backoff(priorAttempts int) time.Duration {
	d := w.Config.BackoffBase
	for i := 0; i < priorAttempts && d < w.Config.BackoffMax; i++ {
		d *= 2
	}
	if d > w.Config.BackoffMax {
		d = w.Config.BackoffMax
	}
	return d
}

// Stuck lists unprocessed entries that have used up their attempts.
func (w *NotificationWorker) Stuck(ctx context.Context, maxAttempts, limit int) ([]models.OutboxEntry, error) {
	if maxAttempts <= 0 {
		return nil, fmt.Errorf("%w: max attempts must be positive", ErrInvalidArgument)
	}
	if limit <= 0 {
		limit = 100
	}
	entries, err := w.Outbox.ListStuckOutboxEntries(ctx, maxAttempts, limit)
	if err != nil {
		return nil, classify(ctx, err)
	}
	metrics.OutboxStuck.Set(float64(len(entries)))
	return entries, nil
}

// Run drains every interval until ctx is cancelled.
func (w *NotificationWorker) Run(ctx context.Context, interval time.Duration, batchSize, maxAttempts int) {
	log.Printf("[Worker] Notification worker started (every %s, batch %d)", interval, batchSize)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := w.Drain(ctx, batchSize, maxAttempts); err != nil && ctx.Err() == nil {
			log.Printf("[Worker] Drain failed: %v", err)
		}
		if _, err := w.Stuck(ctx, maxAttempts, 1000); err != nil && ctx.Err() == nil {
			log.Printf("[Worker] Stuck check failed: %v", err)
		}

		select {
		case <-ctx.Done():
			log.Printf("[Worker] Notification worker stopped")
			return
		case <-ticker.C:
		}
	}
}
