// Package reindex rebuilds the search index from the documentation
// archive. A rebuild writes into a fresh index generation and swaps it
// into service only when fully built, so queries always see a
// complete index.
package reindex

import (
	"context"
	"log/slog"
	"sync"

	"github.com/onec-help/onechelp/internal/docindex"
	helperrors "github.com/onec-help/onechelp/internal/errors"
	"github.com/onec-help/onechelp/internal/store"
)

// DefaultBatchSize is the number of documents per bulk write.
const DefaultBatchSize = 100

// Orchestrator owns the single rebuild job slot. Triggering while a
// job runs is rejected, never queued.
type Orchestrator struct {
	store     store.Store
	source    Source
	policy    helperrors.BackoffPolicy
	batchSize int
	logger    *slog.Logger

	mu      sync.Mutex
	running bool
	done    chan struct{}

	job *jobRecord
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithBatchSize overrides the bulk-write batch size.
func WithBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithBackoffPolicy overrides the write-path retry policy.
func WithBackoffPolicy(p helperrors.BackoffPolicy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewOrchestrator creates an orchestrator over the given store and
// entry source.
func NewOrchestrator(st store.Store, src Source, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     st,
		source:    src,
		policy:    helperrors.DefaultBackoffPolicy(),
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
		job:       newJobRecord(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Status returns the current job record without blocking on a running
// rebuild.
func (o *Orchestrator) Status() Snapshot {
	return o.job.snapshot()
}

// Trigger starts a rebuild in the background and returns immediately.
// While a rebuild is running further triggers are rejected.
func (o *Orchestrator) Trigger(ctx context.Context) error {
	if err := o.acquire(); err != nil {
		return err
	}

	// The caller's context ends with the HTTP response; the job keeps
	// the caller's values but must outlive its cancellation.
	ctx = context.WithoutCancel(ctx)

	o.job.start(o.source.Path())
	done := o.done
	go func() {
		defer close(done)
		defer o.release()
		_ = o.execute(ctx)
	}()
	return nil
}

// Run executes a rebuild synchronously. Used by the one-shot index
// command.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.acquire(); err != nil {
		return err
	}
	defer o.release()

	o.job.start(o.source.Path())
	done := o.done
	defer close(done)
	return o.execute(ctx)
}

// TriggerIfNeeded applies the startup policy: rebuild when the store
// has no active generation, or when the archive changed since the last
// successful rebuild in this process. Returns whether a rebuild was
// started.
func (o *Orchestrator) TriggerIfNeeded(ctx context.Context) (bool, error) {
	if o.store.ActiveGeneration() == "" {
		return true, o.Trigger(ctx)
	}

	last := o.job.lastSourceHash()
	if last == "" {
		// A generation already serves and nothing was indexed in this
		// process: trust the existing index.
		return false, nil
	}
	hash, err := o.source.Fingerprint(ctx)
	if err != nil || hash == last {
		return false, nil
	}
	return true, o.Trigger(ctx)
}

// Wait blocks until the in-flight rebuild finishes. Returns
// immediately when none is running.
func (o *Orchestrator) Wait() {
	o.mu.Lock()
	done := o.done
	running := o.running
	o.mu.Unlock()

	if running && done != nil {
		<-done
	}
}

func (o *Orchestrator) acquire() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return helperrors.New(helperrors.ErrCodeRebuildBusy, "rebuild already in progress", nil)
	}
	o.running = true
	o.done = make(chan struct{})
	return nil
}

func (o *Orchestrator) release() {
	o.mu.Lock()
	o.running = false
	o.mu.Unlock()
}

// execute runs one rebuild pass. The alias is swapped strictly before
// the job record flips to Succeeded, so a status reader that observes
// Succeeded is guaranteed to search the new generation.
func (o *Orchestrator) execute(ctx context.Context) error {
	hash, err := o.source.Fingerprint(ctx)
	if err != nil {
		return o.fail("", err)
	}

	stream, err := o.source.Open(ctx)
	if err != nil {
		return o.fail("", err)
	}

	var generation string
	err = helperrors.Retry(ctx, o.policy, func() error {
		g, err := o.store.BeginGeneration(ctx)
		if err == nil {
			generation = g
		}
		return err
	}, o.notifyRetry)
	if err != nil {
		return o.fail("", err)
	}

	o.logger.Info("rebuild started",
		slog.String("source", o.source.Path()),
		slog.String("generation", generation))

	indexed := 0
	skipped := 0
	batch := make([]*store.IndexDocument, 0, o.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		docs := batch
		batch = make([]*store.IndexDocument, 0, o.batchSize)

		err := helperrors.Retry(ctx, o.policy, func() error {
			return o.store.BulkIndex(ctx, generation, docs)
		}, o.notifyRetry)
		if err != nil {
			return err
		}
		indexed += len(docs)
		o.job.progress(indexed, skipped)
		return nil
	}

	for {
		entry, ok := stream.Next()
		if !ok {
			break
		}
		doc, err := docindex.Map(entry)
		if err != nil {
			skipped++
			o.logger.Warn("skipping unmappable entry",
				slog.String("name", entry.Name),
				slog.String("error", err.Error()))
			continue
		}
		batch = append(batch, doc)
		if len(batch) >= o.batchSize {
			if err := flush(); err != nil {
				return o.fail(generation, err)
			}
		}
	}
	skipped += stream.Skipped()

	if err := flush(); err != nil {
		return o.fail(generation, err)
	}

	err = helperrors.Retry(ctx, o.policy, func() error {
		return o.store.SwapAlias(ctx, generation)
	}, o.notifyRetry)
	if err != nil {
		return o.fail(generation, err)
	}

	o.job.succeed(generation, hash, indexed, skipped)
	o.logger.Info("rebuild succeeded",
		slog.String("generation", generation),
		slog.Int("documents", indexed),
		slog.Int("skipped", skipped))
	return nil
}

// fail records the failure and discards the partial generation. The
// previously serving generation stays behind the alias.
func (o *Orchestrator) fail(generation string, cause error) error {
	if generation != "" {
		if err := o.store.AbortGeneration(context.Background(), generation); err != nil {
			o.logger.Warn("aborting generation failed",
				slog.String("generation", generation),
				slog.String("error", err.Error()))
		}
	}
	o.job.fail(cause.Error())
	o.logger.Error("rebuild failed",
		slog.String("source", o.source.Path()),
		slog.String("error", cause.Error()))
	return cause
}

func (o *Orchestrator) notifyRetry(attempt int, err error) {
	o.logger.Warn("retrying store operation",
		slog.Int("attempt", attempt),
		slog.String("error", err.Error()))
}
