package services

import (
	"context"
	"errors"
	"sort"

	"github.com/kendall-kelly/printhouse-api/logger"
	"gorm.io/gorm"
)

// Runtime is the shared plumbing every aggregate service runs commands through
type Runtime struct {
	DB         *gorm.DB
	Clock      Clock
	Locks      *KeyedLocker
	Dispatcher *Dispatcher
	Log        *logger.Logger
}

// NewRuntime wires a runtime; a nil clock means SystemClock and a nil sink means logging only
func NewRuntime(db *gorm.DB, clock Clock, sink NotificationSink, log *logger.Logger) *Runtime {
	if clock == nil {
		clock = SystemClock{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	if sink == nil {
		sink = NewLogNotificationSink(log)
	}
	return &Runtime{
		DB:         db,
		Clock:      clock,
		Locks:      NewKeyedLocker(),
		Dispatcher: NewDispatcher(db, sink, log),
		Log:        log,
	}
}

// command runs fn inside one transaction while holding the aggregate locks named
// by keys. Events emitted by fn are stored in the same transaction and dispatched
// only after commit and after the locks are released.
func (r *Runtime) command(ctx context.Context, op string, actor Actor, keys []string, fn func(tx *gorm.DB, buf *eventBuffer) error) error {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	var unlocks []func()
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for _, key := range sorted {
		unlock, err := r.Locks.Lock(ctx, key)
		if err != nil {
			release()
			return err
		}
		unlocks = append(unlocks, unlock)
	}

	// Once the locks are held the command runs to completion.
	runCtx := context.WithoutCancel(ctx)
	buf := &eventBuffer{actor: actor, now: r.Clock.Now()}
	err := r.DB.WithContext(runCtx).Transaction(func(tx *gorm.DB) error {
		if err := fn(tx, buf); err != nil {
			return err
		}
		return recordEvents(tx, buf.events)
	})
	release()

	if err != nil {
		var se *ServiceError
		if !errors.As(err, &se) {
			err = &ServiceError{Code: CodeInternal, Message: op + " failed", Err: err}
		}
		if CodeOf(err) == CodeInternal {
			r.Log.Error("command failed", "op", op, "actor", actor.String(), "error", err)
		}
		return err
	}

	r.Dispatcher.Dispatch(runCtx, buf.events...)
	return nil
}
