package locks

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	pkgerrors "github.com/angelmondragon/tradepost/pkg/errors"
)

const (
	defaultAttempts = 8
	defaultBackoff  = time.Millisecond
	maxBackoff      = 50 * time.Millisecond
)

var errContended = errors.New("lock contended")

// Options tunes how TryAcquire retries contended keys.
type Options struct {
	Attempts int
	Backoff  time.Duration
}

// Keyed hands out per-key mutual exclusion. Multi-key acquisitions always
// lock in ascending key order so two callers can never deadlock.
type Keyed struct {
	mu       sync.Mutex
	slots    map[uuid.UUID]chan struct{}
	attempts int
	backoff  time.Duration
}

func New(opts Options) *Keyed {
	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	return &Keyed{
		slots:    make(map[uuid.UUID]chan struct{}),
		attempts: attempts,
		backoff:  backoff,
	}
}

func (k *Keyed) slot(key uuid.UUID) chan struct{} {
	k.mu.Lock()
	defer k.mu.Unlock()
	ch, ok := k.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		k.slots[key] = ch
	}
	return ch
}

// Acquire blocks until every key is held or ctx is done.
func (k *Keyed) Acquire(ctx context.Context, keys ...uuid.UUID) (func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ordered := canonical(keys)
	held := make([]chan struct{}, 0, len(ordered))
	for _, key := range ordered {
		ch := k.slot(key)
		select {
		case ch <- struct{}{}:
			held = append(held, ch)
		case <-ctx.Done():
			unlockAll(held)
			return nil, ctx.Err()
		}
	}
	return releaser(held), nil
}

// TryAcquire grabs every key without blocking, backing off and retrying a
// bounded number of times. Exhausted retries surface RESERVATION_CONFLICT.
func (k *Keyed) TryAcquire(ctx context.Context, keys ...uuid.UUID) (func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ordered := canonical(keys)

	var unlock func()
	backoff := retry.NewExponential(k.backoff)
	backoff = retry.WithCappedDuration(maxBackoff, backoff)
	backoff = retry.WithMaxRetries(uint64(k.attempts-1), backoff)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		held, ok := k.tryAll(ordered)
		if !ok {
			return retry.RetryableError(errContended)
		}
		unlock = releaser(held)
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeReservationConflict, err, "could not acquire item locks").
			WithDetails(map[string]any{"attempts": k.attempts, "keys": len(ordered)})
	}
	return unlock, nil
}

func (k *Keyed) tryAll(ordered []uuid.UUID) ([]chan struct{}, bool) {
	held := make([]chan struct{}, 0, len(ordered))
	for _, key := range ordered {
		ch := k.slot(key)
		select {
		case ch <- struct{}{}:
			held = append(held, ch)
		default:
			unlockAll(held)
			return nil, false
		}
	}
	return held, true
}

func releaser(held []chan struct{}) func() {
	var once sync.Once
	return func() {
		once.Do(func() { unlockAll(held) })
	}
}

func unlockAll(held []chan struct{}) {
	for i := len(held) - 1; i >= 0; i-- {
		<-held[i]
	}
}

// canonical dedupes and sorts keys into lock order.
func canonical(keys []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(keys))
	out := make([]uuid.UUID, 0, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
