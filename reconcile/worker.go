package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/vitwit/x402-gate/logger"
	"github.com/vitwit/x402-gate/metrics"
	"github.com/vitwit/x402-gate/settlement"
)

const (
	DefaultInterval    = 30 * time.Second
	DefaultMaxAttempts = 10
)

// Worker periodically retries settlement of queued entries.
type Worker struct {
	store       Store
	settler     settlement.Settler
	log         logger.Logger
	metrics     metrics.Recorder
	interval    time.Duration
	maxAttempts int
	scheduler   *gocron.Scheduler
}

type WorkerOption func(*Worker)

func WithLogger(l logger.Logger) WorkerOption {
	return func(w *Worker) { w.log = l }
}

func WithMetrics(r metrics.Recorder) WorkerOption {
	return func(w *Worker) { w.metrics = r }
}

func WithInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithMaxAttempts(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

func NewWorker(store Store, settler settlement.Settler, opts ...WorkerOption) *Worker {
	w := &Worker{
		store:       store,
		settler:     settler,
		log:         logger.NoopLogger{},
		metrics:     metrics.NoopRecorder{},
		interval:    DefaultInterval,
		maxAttempts: DefaultMaxAttempts,
		scheduler:   gocron.NewScheduler(time.UTC),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start schedules the retry job. Runs never overlap.
func (w *Worker) Start() error {
	seconds := int(w.interval / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	if _, err := w.scheduler.Every(seconds).Seconds().SingletonMode().Do(w.run); err != nil {
		return err
	}
	w.scheduler.StartAsync()
	return nil
}

func (w *Worker) Stop() {
	w.scheduler.Stop()
}

func (w *Worker) run() {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("reconcile run panicked", map[string]any{"panic": r})
		}
	}()
	if _, err := w.RunOnce(context.Background()); err != nil {
		w.log.Error("reconcile run failed", map[string]any{"error": err})
	}
}

// RunOnce makes one settlement attempt for every pending entry still under
// the attempt limit and returns how many were settled. A store failure on
// one entry does not stop the others; the failures are joined in the
// returned error.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	entries, err := w.store.Pending()
	if err != nil {
		return 0, err
	}

	var storeErrs []error
	settled := 0
	for _, e := range entries {
		if e.Attempts >= w.maxAttempts {
			continue
		}

		res, err := settlement.Detached(ctx, w.settler, &e.Payload, &e.Requirements)
		fields := map[string]any{
			"id":       e.ID,
			"resource": e.Resource,
			"network":  e.Requirements.Network,
		}

		if err == nil {
			settled++
			fields["transactionId"] = res.TransactionID
			if ackErr := w.store.Ack(e.ID); ackErr != nil {
				fields["error"] = ackErr
				w.log.Error("settled payment could not be removed from the queue", fields)
				storeErrs = append(storeErrs, ackErr)
			} else {
				w.log.Info("reconciled unsettled payment", fields)
			}
			w.metrics.IncCounter(metrics.EventReconciled, map[string]string{"network": e.Requirements.Network})
			continue
		}

		e.Attempts++
		e.LastError = err.Error()
		fields["attempts"] = e.Attempts
		fields["error"] = err
		if updErr := w.store.Update(e); updErr != nil {
			fields["storeError"] = updErr
			w.log.Error("failed to record settlement retry", fields)
			storeErrs = append(storeErrs, updErr)
			continue
		}

		if e.Attempts >= w.maxAttempts {
			w.log.Error("giving up on unsettled payment", fields)
		} else {
			w.log.Warn("settlement retry failed", fields)
		}
	}
	return settled, errors.Join(storeErrs...)
}
