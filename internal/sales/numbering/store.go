package numbering

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// PostgresStore keeps reservations in quotation_numbers, whose primary key
// enforces uniqueness.
type PostgresStore struct {
	db dbtx
}

// NewPostgresStore accepts a pool or a transaction.
func NewPostgresStore(db dbtx) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Exists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM quotation_numbers WHERE number = $1)`, number).Scan(&exists)
	return exists, err
}

// Insert uses ON CONFLICT DO NOTHING so a collision inside a caller's
// transaction does not abort it. Serialization failures are left to the
// transaction owner, which retries the whole transaction.
func (s *PostgresStore) Insert(ctx context.Context, r Reservation) error {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO quotation_numbers (number, reserved_by, reserved_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (number) DO NOTHING`, r.Number, r.ReservedBy, r.ReservedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrConflict
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (s *PostgresStore) CountWithPrefix(ctx context.Context, prefix string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM quotation_numbers WHERE starts_with(number, $1)`, prefix).Scan(&n)
	return n, err
}

// MemoryStore is an in-process Store for tests and local tooling.
type MemoryStore struct {
	mu      sync.Mutex
	numbers map[string]Reservation
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{numbers: make(map[string]Reservation)}
}

func (s *MemoryStore) Exists(_ context.Context, number string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.numbers[number]
	return ok, nil
}

func (s *MemoryStore) Insert(_ context.Context, r Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.numbers[r.Number]; ok {
		return ErrConflict
	}
	s.numbers[r.Number] = r
	return nil
}

func (s *MemoryStore) CountWithPrefix(_ context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for number := range s.numbers {
		if strings.HasPrefix(number, prefix) {
			n++
		}
	}
	return n, nil
}

// Delete removes a reservation.
func (s *MemoryStore) Delete(number string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.numbers, number)
}
