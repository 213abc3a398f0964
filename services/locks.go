package services

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// KeyedLocker serializes commands per aggregate instance. Acquisition honours
// ctx so a caller can give up before it holds the lock; once held, the
// command runs to completion.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sem  *semaphore.Weighted
	refs int
}

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*keyedLock)}
}

// Lock blocks until key is free or ctx is done. The returned func releases it.
func (l *KeyedLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyedLock{sem: semaphore.NewWeighted(1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	if err := kl.sem.Acquire(ctx, 1); err != nil {
		l.drop(key, kl)
		return nil, &ServiceError{Code: CodeConflict, Message: "command cancelled before acquiring " + key, Err: err}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			kl.sem.Release(1)
			l.drop(key, kl)
		})
	}, nil
}

func (l *KeyedLocker) drop(key string, kl *keyedLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// Len is the number of keys currently held or awaited
func (l *KeyedLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func orderKey(id uuid.UUID) string    { return "order:" + id.String() }
func setItemKey(id uuid.UUID) string  { return "set_item:" + id.String() }
func taskKey(id uuid.UUID) string     { return "task:" + id.String() }
func workshopKey(id uuid.UUID) string { return "workshop:" + id.String() }
func tenderKey(id uuid.UUID) string   { return "tender:" + id.String() }
