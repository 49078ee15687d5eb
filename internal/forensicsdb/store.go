// Package forensicsdb mirrors collision events and final per-UTXO taint
// summaries into Postgres for downstream investigation tooling, alongside
// the mandatory CSV export. It is adapted from internal/db/postgres.go's
// pgxpool connection and batch-insert pattern, retargeted from CoinJoin
// heuristics storage to taint-replay forensics storage.
package forensicsdb

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rawblock/taintfifo/internal/taintfifo"
)

const schema = `
CREATE TABLE IF NOT EXISTS taint_collision (
	id            TEXT PRIMARY KEY,
	txid          TEXT NOT NULL,
	left_color    INTEGER NOT NULL,
	right_color   INTEGER NOT NULL,
	overlap       BIGINT NOT NULL,
	queue_offset  BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS taint_utxo_summary (
	outpoint       TEXT PRIMARY KEY,
	address        TEXT NOT NULL,
	current_balance BIGINT NOT NULL,
	non_clean_taint BIGINT NOT NULL,
	updated_at     TEXT NOT NULL
);
`

// Store is an optional sink. Once connected and its schema is ready, its
// writes are best-effort from the caller's point of view — a failed insert
// is logged by the caller and never aborts the replay (see internal/scanner/block_scanner.go's SaveAnalysisResult
// error handling for the pattern this follows).
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool against connStr and verifies it with a ping,
// matching internal/db/postgres.go's Connect.
func Connect(ctx context.Context, connStr string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("forensicsdb: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("forensicsdb: ping: %w", err)
	}
	log.Println("[forensicsdb] connected to PostgreSQL")
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema creates the two forensics tables if they do not already exist.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("forensicsdb: init schema: %w", err)
	}
	log.Println("[forensicsdb] schema ready")
	return nil
}

// RecordCollision mirrors one collision row. Each row gets a random UUID
// primary key the same way llr_engine.go mints an edge ID for every
// evidence edge it persists.
func (s *Store) RecordCollision(ctx context.Context, r taintfifo.CollisionRecord) error {
	const q = `
		INSERT INTO taint_collision (id, txid, left_color, right_color, overlap, queue_offset)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.pool.Exec(ctx, q, uuid.New().String(), r.Tag, r.Left, r.Right, r.Overlap, r.Offset)
	if err != nil {
		return fmt.Errorf("forensicsdb: insert collision: %w", err)
	}
	return nil
}

// SyncLedger upserts the final per-UTXO taint summary for every live
// output, in one transaction. Called once, after DumpLedger, mirroring the
// same final-state snapshot the CSV exporter writes.
func (s *Store) SyncLedger(ctx context.Context, ledger *taintfifo.Ledger) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("forensicsdb: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const q = `
		INSERT INTO taint_utxo_summary (outpoint, address, current_balance, non_clean_taint, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (outpoint) DO UPDATE
		SET address = EXCLUDED.address,
		    current_balance = EXCLUDED.current_balance,
		    non_clean_taint = EXCLUDED.non_clean_taint,
		    updated_at = EXCLUDED.updated_at
	`

	var execErr error
	ledger.EachInfo(func(op taintfifo.Outpoint, info *taintfifo.AddressInfo) {
		if execErr != nil {
			return
		}
		address := ledger.Address(op)
		nonClean := taintfifo.NonCleanSum(info.Tainted)
		_, execErr = tx.Exec(ctx, q, opDisplay(op), address, info.CurrentBalance, nonClean, info.Timestamp)
	})
	if execErr != nil {
		return fmt.Errorf("forensicsdb: sync utxo: %w", execErr)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("forensicsdb: commit: %w", err)
	}
	return nil
}

func opDisplay(op taintfifo.Outpoint) string {
	return fmt.Sprintf("%x:%d", reverseTxid(op.Txid), op.Index)
}

func reverseTxid(h [32]byte) []byte {
	rev := make([]byte, 32)
	for i := 0; i < 32; i++ {
		rev[i] = h[31-i]
	}
	return rev
}
