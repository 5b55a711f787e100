package bot

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/genrelay/tgbot/internal/logger"
	"github.com/genrelay/tgbot/internal/ratelimit"
	"github.com/genrelay/tgbot/internal/state"
)

// Handler processes one event. Calls for the same user never overlap.
type Handler interface {
	Handle(ctx context.Context, ev Event)
}

// Dispatcher admits events through the rate limiter and runs each admitted
// event on its own goroutine. A user's events are handled one at a time in
// the order they were submitted; events of different users proceed
// concurrently.
type Dispatcher struct {
	handler           Handler
	limiter           *ratelimit.Limiter
	locks             *state.Locks
	throttleCallbacks bool
	now               func() time.Time

	wg sync.WaitGroup
}

func NewDispatcher(handler Handler, limiter *ratelimit.Limiter, throttleCallbacks bool) *Dispatcher {
	return &Dispatcher{
		handler:           handler,
		limiter:           limiter,
		locks:             state.NewLocks(),
		throttleCallbacks: throttleCallbacks,
		now:               time.Now,
	}
}

// Dispatch decodes update and submits it. It reports whether an event was
// started; ignored and throttled updates return false.
func (d *Dispatcher) Dispatch(ctx context.Context, update tgbotapi.Update) bool {
	ev, ok := EventFromUpdate(update)
	if !ok {
		logger.Log.WithField("update_id", update.UpdateID).Debug("Ignoring update without a supported event")
		return false
	}
	return d.Submit(ctx, ev)
}

// Submit rate-limits ev and processes it in the background. The event
// outlives ctx's cancellation so a finished webhook request does not abort it.
func (d *Dispatcher) Submit(ctx context.Context, ev Event) bool {
	if d.throttled(ev) && !d.limiter.Admit(ev.UserID(), d.now()) {
		logger.Log.WithField("user_id", ev.UserID()).Debug("Dropping throttled event")
		return false
	}

	ctx = context.WithoutCancel(ctx)
	turn := d.locks.Enqueue(ev.UserID())
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.process(ctx, ev, turn)
	}()
	return true
}

// Inline buttons are exempt by default so double taps on a keyboard are not lost.
func (d *Dispatcher) throttled(ev Event) bool {
	if d.limiter == nil {
		return false
	}
	_, isCallback := ev.(CallbackEvent)
	return !isCallback || d.throttleCallbacks
}

func (d *Dispatcher) process(ctx context.Context, ev Event, turn *state.Ticket) {
	turn.Wait()
	defer turn.Release()

	defer func() {
		if rec := recover(); rec != nil {
			logger.Log.WithFields(logrus.Fields{
				"user_id": ev.UserID(),
				"panic":   rec,
				"stack":   string(debug.Stack()),
			}).Error("Recovered from panic while handling event")
		}
	}()

	start := time.Now()
	d.handler.Handle(ctx, ev)
	logger.Log.WithFields(logrus.Fields{
		"user_id":  ev.UserID(),
		"event":    eventName(ev),
		"duration": time.Since(start),
	}).Debug("Event handled")
}

// Wait blocks until every submitted event finished or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunSweeper evicts idle rate limiter entries every interval until ctx ends.
func (d *Dispatcher) RunSweeper(ctx context.Context, interval time.Duration) {
	if d.limiter == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := d.limiter.Sweep(d.now()); n > 0 {
				logger.Log.WithField("evicted", n).Debug("Swept idle rate limiter entries")
			}
		}
	}
}

func eventName(ev Event) string {
	switch ev.(type) {
	case TextEvent:
		return "text"
	case CallbackEvent:
		return "callback"
	case MediaEvent:
		return "media"
	default:
		return "unknown"
	}
}
