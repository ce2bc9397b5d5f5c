// Package pgfleet stores truck locations, open truck requests and the
// trip/location history in Postgres. Nested documents (asset class, trip
// detail, contacts) live in JSONB columns; coordinates are flattened into
// plain lat/lng columns so the haversine queries stay indexable.
package pgfleet

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// ErrNotFound is returned by single-row lookups when no row matches.
var ErrNotFound = errors.New("pgfleet: not found")

// UpdateResult reports the outcome of a guarded write.
type UpdateResult struct {
	Applied bool   `json:"applied"`
	Reason  string `json:"reason,omitempty"` // "" when applied, otherwise ReasonNotFound or ReasonNoChange
}

const (
	ReasonNotFound = "notFound"
	ReasonNoChange = "noChange"
)

type Storage struct {
	db *pgxpool.Pool
}

func New(connString string) (*Storage, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, errors.Wrap(err, "parse pg config")
	}

	db, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, errors.Wrap(err, "connect pg")
	}

	s := &Storage{db: db}
	if err := s.initSchema(context.Background()); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Storage) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
