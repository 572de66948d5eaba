// Package numbering guarantees that quotation numbers are unique system wide.
//
// CheckAvailability is advisory and may race. Reserve is authoritative: it
// relies on the store's uniqueness constraint, never on a prior check.
package numbering

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

var (
	// ErrConflict reports that the number is already reserved. Callers pick
	// another number or generate one.
	ErrConflict = errors.New("quotation number already in use")
	// ErrExhausted is returned when Generate keeps colliding.
	ErrExhausted = errors.New("could not generate a free quotation number")
)

const (
	// MaxLength bounds a quotation number.
	MaxLength = 64

	defaultPrefix      = "QT"
	defaultCacheTTL    = 30 * time.Second
	defaultMaxAttempts = 5
	cacheKeyPrefix     = "quotes:number:taken:"
)

var numberPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9/_.-]*$`)

// Reservation is a claimed quotation number.
type Reservation struct {
	Number     string
	ReservedBy string
	ReservedAt time.Time
}

// Store persists reservations. Insert must fail with ErrConflict when the
// number exists, atomically with respect to concurrent inserts.
type Store interface {
	Exists(ctx context.Context, number string) (bool, error)
	Insert(ctx context.Context, r Reservation) error
	CountWithPrefix(ctx context.Context, prefix string) (int, error)
}

// ConflictObserver is notified on every rejected reservation.
type ConflictObserver interface {
	NumberConflict()
}

// Registry checks and reserves quotation numbers.
type Registry struct {
	store       Store
	cache       *redis.Client
	cacheTTL    time.Duration
	prefix      string
	maxAttempts int
	observer    ConflictObserver
	logger      *slog.Logger
	now         func() time.Time
	group       singleflight.Group
}

// Option configures a Registry.
type Option func(*Registry)

// WithCache remembers taken numbers in Redis for ttl so repeated availability
// checks skip the store.
func WithCache(client *redis.Client, ttl time.Duration) Option {
	return func(r *Registry) {
		r.cache = client
		if ttl > 0 {
			r.cacheTTL = ttl
		}
	}
}

// WithPrefix sets the prefix of generated numbers.
func WithPrefix(prefix string) Option {
	return func(r *Registry) {
		if p := strings.ToUpper(strings.TrimSpace(prefix)); p != "" {
			r.prefix = p
		}
	}
}

// WithObserver registers a conflict observer (metrics).
func WithObserver(o ConflictObserver) Option {
	return func(r *Registry) { r.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry builds a Registry over store.
func NewRegistry(store Store, opts ...Option) *Registry {
	r := &Registry{
		store:       store,
		cacheTTL:    defaultCacheTTL,
		prefix:      defaultPrefix,
		maxAttempts: defaultMaxAttempts,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Normalize trims and upper-cases candidate and checks its shape.
func Normalize(candidate string) (string, error) {
	n := strings.ToUpper(strings.TrimSpace(candidate))
	fe := shared.FieldErrors{}
	switch {
	case n == "":
		fe.Add("quotation_number", "is required")
	case len(n) > MaxLength:
		fe.Add("quotation_number", fmt.Sprintf("must be at most %d characters", MaxLength))
	case !numberPattern.MatchString(n):
		fe.Add("quotation_number", "may contain only letters, digits and / _ . -")
	}
	if err := fe.Err(); err != nil {
		return "", err
	}
	return n, nil
}

// CheckAvailability reports whether candidate looks free. The answer is
// advisory: a later Reserve may still conflict.
func (r *Registry) CheckAvailability(ctx context.Context, candidate string) (bool, error) {
	number, err := Normalize(candidate)
	if err != nil {
		return false, err
	}
	if r.cachedTaken(ctx, number) {
		return false, nil
	}

	ch := r.group.DoChan(number, func() (interface{}, error) {
		return r.store.Exists(context.WithoutCancel(ctx), number)
	})
	var exists bool
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return false, fmt.Errorf("numbering: check %s: %w", number, res.Err)
		}
		exists = res.Val.(bool)
	}
	if exists {
		r.markTaken(ctx, number)
	}
	return !exists, nil
}

// Reserve claims candidate for actor. Exactly one of any number of concurrent
// callers for the same candidate succeeds; the others get ErrConflict.
func (r *Registry) Reserve(ctx context.Context, candidate, actor string) (string, error) {
	return r.ReserveWith(ctx, r.store, candidate, actor)
}

// ReserveWith is Reserve against an explicit store, typically one bound to
// the caller's transaction so the reservation commits with the quotation.
func (r *Registry) ReserveWith(ctx context.Context, store Store, candidate, actor string) (string, error) {
	number, err := Normalize(candidate)
	if err != nil {
		return "", err
	}
	err = store.Insert(ctx, Reservation{Number: number, ReservedBy: actor, ReservedAt: r.now().UTC()})
	if errors.Is(err, ErrConflict) {
		r.markTaken(ctx, number)
		if r.observer != nil {
			r.observer.NumberConflict()
		}
		return "", fmt.Errorf("%w: %s", ErrConflict, number)
	}
	if err != nil {
		return "", fmt.Errorf("numbering: reserve %s: %w", number, err)
	}
	r.markTaken(ctx, number)
	return number, nil
}

// Generate reserves the next machine-generated number for date, in the form
// PREFIX/FY/SEQ (e.g. QT/25-26/0042). Collisions move to the next sequence.
func (r *Registry) Generate(ctx context.Context, date time.Time, actor string) (string, error) {
	return r.GenerateWith(ctx, r.store, date, actor)
}

// GenerateWith is Generate against an explicit store.
func (r *Registry) GenerateWith(ctx context.Context, store Store, date time.Time, actor string) (string, error) {
	base := fmt.Sprintf("%s/%s/", r.prefix, FiscalYear(date))
	count, err := store.CountWithPrefix(ctx, base)
	if err != nil {
		return "", fmt.Errorf("numbering: count %s: %w", base, err)
	}
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		candidate := fmt.Sprintf("%s%04d", base, count+attempt)
		number, err := r.ReserveWith(ctx, store, candidate, actor)
		if err == nil {
			return number, nil
		}
		if !errors.Is(err, ErrConflict) {
			return "", err
		}
		r.logger.Debug("generated number collided", slog.String("number", candidate), slog.Int("attempt", attempt))
	}
	return "", fmt.Errorf("%w: prefix %s", ErrExhausted, base)
}

// Suggest proposes the next generated number for date without reserving it.
// Like CheckAvailability the answer is advisory.
func (r *Registry) Suggest(ctx context.Context, date time.Time) (string, error) {
	base := fmt.Sprintf("%s/%s/", r.prefix, FiscalYear(date))
	count, err := r.store.CountWithPrefix(ctx, base)
	if err != nil {
		return "", fmt.Errorf("numbering: count %s: %w", base, err)
	}
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		candidate := fmt.Sprintf("%s%04d", base, count+attempt)
		free, err := r.CheckAvailability(ctx, candidate)
		if err != nil {
			return "", err
		}
		if free {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: prefix %s", ErrExhausted, base)
}

func (r *Registry) cachedTaken(ctx context.Context, number string) bool {
	if r.cache == nil {
		return false
	}
	n, err := r.cache.Exists(ctx, cacheKeyPrefix+number).Result()
	if err != nil {
		r.logger.Warn("number cache lookup", slog.Any("error", err))
		return false
	}
	return n > 0
}

func (r *Registry) markTaken(ctx context.Context, number string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Set(ctx, cacheKeyPrefix+number, 1, r.cacheTTL).Err(); err != nil {
		r.logger.Warn("number cache store", slog.Any("error", err))
	}
}

// FiscalYear returns the April to March fiscal year of t, e.g. "25-26".
func FiscalYear(t time.Time) string {
	start := t.Year()
	if t.Month() < time.April {
		start--
	}
	return fmt.Sprintf("%02d-%02d", start%100, (start+1)%100)
}
