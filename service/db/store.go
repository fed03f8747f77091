package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the tables the Store needs. It is safe to apply repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS published_notes (
    network      TEXT        NOT NULL,
    address      TEXT        NOT NULL,
    note_id      TEXT        NOT NULL,
    txid         TEXT        NOT NULL,
    amount       REAL        NOT NULL,
    memo         TEXT        NOT NULL DEFAULT '',
    published_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (network, address, note_id)
);

CREATE INDEX IF NOT EXISTS published_notes_txid_idx ON published_notes (txid);
`

// Store records which shielded notes have been published.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store with the given database connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate applies Schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// NoteKey identifies a note received by a wallet address.
type NoteKey struct {
	Address string
	NoteID  string
}

// PublishedNote is a note that has been delivered to NATS.
type PublishedNote struct {
	Network     string
	Address     string
	NoteID      string
	TxID        string
	Amount      float32
	Memo        string
	PublishedAt time.Time
}

// ExistingNotes returns the subset of keys already recorded for network.
func (s *Store) ExistingNotes(ctx context.Context, network string, keys []NoteKey) ([]NoteKey, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	addresses := make([]string, len(keys))
	noteIDs := make([]string, len(keys))
	for i, k := range keys {
		addresses[i] = k.Address
		noteIDs[i] = k.NoteID
	}

	rows, err := s.pool.Query(ctx, `
		SELECT p.address, p.note_id
		FROM published_notes p
		JOIN unnest($2::text[], $3::text[]) AS k(address, note_id)
		  ON p.address = k.address AND p.note_id = k.note_id
		WHERE p.network = $1`,
		network, addresses, noteIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query published notes: %w", err)
	}

	existing, err := pgx.CollectRows(rows, pgx.RowToStructByPos[NoteKey])
	if err != nil {
		return nil, fmt.Errorf("failed to scan published notes: %w", err)
	}
	return existing, nil
}

// RecordPublishedNotes stores notes in one batch. Notes that are already
// recorded are left untouched. It returns how many rows were inserted.
func (s *Store) RecordPublishedNotes(ctx context.Context, notes []PublishedNote) (int64, error) {
	if len(notes) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, n := range notes {
		publishedAt := n.PublishedAt
		if publishedAt.IsZero() {
			publishedAt = time.Now()
		}
		batch.Queue(`
			INSERT INTO published_notes (network, address, note_id, txid, amount, memo, published_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (network, address, note_id) DO NOTHING`,
			n.Network, n.Address, n.NoteID, n.TxID, n.Amount, n.Memo, publishedAt.UTC(),
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	var inserted int64
	for _, n := range notes {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("failed to record note %s for %s: %w", n.NoteID, n.Address, err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// CountPublishedNotes returns how many notes are recorded for an address.
func (s *Store) CountPublishedNotes(ctx context.Context, network, address string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM published_notes WHERE network = $1 AND address = $2`,
		network, address,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count published notes: %w", err)
	}
	return count, nil
}
