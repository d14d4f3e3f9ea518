package pool

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/newswatch/browserpool/internal/engine"
)

// WithBrowser acquires an instance from the calling worker's pool, invokes
// body with the live engine, and releases on every exit path: normal return,
// body error, panic, and context cancellation. Any failure during body
// retires the instance rather than requeuing it — an engine that errored
// mid-operation may be in a corrupt state.
func (r *Registry) WithBrowser(ctx context.Context, body func(engine.Engine) error) error {
	worker, ok := WorkerFromContext(ctx)
	if !ok {
		return ErrNoWorker
	}
	p := r.PoolFor(worker)

	inst, err := p.Acquire(ctx)
	if err != nil {
		return err
	}

	succeeded := false
	defer func() {
		if rec := recover(); rec != nil {
			r.release(p, inst, false)
			panic(rec)
		}
		r.release(p, inst, succeeded)
	}()

	if err := body(inst.Engine()); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		// Cancelled while holding the instance: retire it, surface the
		// cancellation.
		return err
	}

	succeeded = true
	return nil
}

// WithPage opens one browsing context and one page per invocation on top of
// WithBrowser, so callers never manage page lifetimes directly.
func (r *Registry) WithPage(ctx context.Context, body func(engine.Page) error) error {
	return r.WithBrowser(ctx, func(eng engine.Engine) error {
		bc, err := eng.NewContext(ctx, engine.DefaultContextOptions())
		if err != nil {
			return err
		}
		defer func() {
			if cerr := bc.Close(); cerr != nil {
				r.log.Warn("error closing browsing context", zap.Error(cerr))
			}
		}()

		page, err := bc.NewPage()
		if err != nil {
			return err
		}
		defer func() {
			if cerr := page.Close(); cerr != nil {
				r.log.Warn("error closing page", zap.Error(cerr))
			}
		}()

		return body(page)
	})
}

// release hands the instance back. An invalid release here is a programming
// error; it is logged and tolerated so a bookkeeping bug cannot cascade into
// the caller's error path.
func (r *Registry) release(p *WorkerPool, inst *Instance, ok bool) {
	if err := p.Release(inst, ok); err != nil {
		if errors.Is(err, ErrInvalidRelease) {
			r.log.Error("invalid browser release",
				zap.String("worker", string(p.worker)),
				zap.String("instance", inst.ID().String()))
			return
		}
		r.log.Warn("browser release failed", zap.Error(err))
	}
}
