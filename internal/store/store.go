package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides Postgres persistence for all castwatch tables.
type Store struct {
	pool *pgxpool.Pool
}

// querier is the query surface shared by the pool and a transaction, so
// user and counter updates can run standalone or inside the attestation tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewStore connects a pgx pool and verifies the connection.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Tables lists every castwatch table, in backup order.
var Tables = []string{
	"watcher_state",
	"auctions",
	"presale_nfts",
	"users",
	"together_attestations",
	"pending_connections",
}

// DomainTables lists the tables holding ingested or user data, excluding
// watcher progress. This is the default wipe set.
var DomainTables = []string{
	"auctions",
	"presale_nfts",
	"users",
	"together_attestations",
	"pending_connections",
}

func validTable(name string) error {
	for _, t := range Tables {
		if t == name {
			return nil
		}
	}
	return fmt.Errorf("unknown table: %s", name)
}
