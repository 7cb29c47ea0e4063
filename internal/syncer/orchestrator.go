// Package syncer handles the page⇄worker message protocol: compound
// multi-partition synchronization operations with exactly one outcome per
// request.
package syncer

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/urbanpack/offsync/internal/fetcher"
	"github.com/urbanpack/offsync/internal/logger"
	"github.com/urbanpack/offsync/internal/metrics"
	"github.com/urbanpack/offsync/internal/shell"
)

// Orchestrator executes sync messages. Concurrent messages for different
// entities are safe: each writes only its own entity partition, and writes
// into the shared shell partition are idempotent overwrites.
type Orchestrator struct {
	shell    *shell.Manager
	entities *fetcher.EntityFetcher
	log      logger.Logger
	metrics  *metrics.Metrics
}

// New creates an Orchestrator.
func New(sh *shell.Manager, entities *fetcher.EntityFetcher, log logger.Logger, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{shell: sh, entities: entities, log: log, metrics: m}
}

// Handle runs one message to completion and returns its single Outcome.
// Failures of any kind, bad payloads, fetch errors, even panics in an
// operation, are converted into a negative Outcome rather than escaping,
// so a request can never end with zero replies.
func (o *Orchestrator) Handle(ctx context.Context, msg Message) (out Outcome) {
	out.RequestID = msg.RequestID
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{OK: false, Error: fmt.Sprintf("internal error: %v", r), RequestID: msg.RequestID}
		}
		result := "ok"
		if !out.OK {
			result = "error"
			o.log.Warn("sync message failed",
				logger.String("type", msg.Type),
				logger.String("entity_id", msg.EntityID),
				logger.String("error", out.Error))
		}
		o.metrics.SyncOutcomes.WithLabelValues(msg.Type, result).Inc()
	}()

	op, err := decode(msg)
	if err != nil {
		out.OK = false
		out.Error = err.Error()
		return out
	}
	if err := op.run(ctx, o); err != nil {
		out.OK = false
		out.Error = err.Error()
		return out
	}
	out.OK = true
	return out
}

// run refreshes the shell and caches the entity's resources concurrently.
// Both legs must succeed. On failure the entity partition is left in
// whatever partial state it reached, no rollback; a retry re-runs the same
// idempotent fetch-and-store steps.
func (op *atomicEntitySync) run(ctx context.Context, o *Orchestrator) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return o.shell.EnsureCurrent(gctx)
	})
	g.Go(func() error {
		return o.entities.CacheEntity(gctx, op.entityID)
	})
	return g.Wait()
}

// run is the strict all-or-nothing gate: shell, then the explicit asset
// list (any asset failure fails the whole operation), then the image list
// (each image settles independently), then optionally the entity. Already
// stored assets are not rolled back on failure; a retry converges toward
// completeness.
func (op *gatedRelease) run(ctx context.Context, o *Orchestrator) error {
	if err := o.shell.EnsureCurrent(ctx); err != nil {
		return err
	}
	if err := o.shell.CacheAssets(ctx, op.assets); err != nil {
		return err
	}
	if failed := o.shell.PrecacheImages(ctx, op.images); failed > 0 {
		o.log.Info("gated release completed with missing images",
			logger.Int("failed", failed))
	}
	if op.entityID != "" {
		return o.entities.CacheEntity(ctx, op.entityID)
	}
	return nil
}

func (op *cacheEntity) run(ctx context.Context, o *Orchestrator) error {
	return o.entities.CacheEntity(ctx, op.entityID)
}

func (op *precacheImages) run(ctx context.Context, o *Orchestrator) error {
	o.shell.PrecacheImages(ctx, op.images)
	return nil
}

func (op *forgetEntity) run(ctx context.Context, o *Orchestrator) error {
	_, err := o.entities.ForgetEntity(ctx, op.entityID)
	return err
}
