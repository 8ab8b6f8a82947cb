package registry

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Open opens a SQLite database at the given path and runs all pending
// migrations. Use ":memory:" for an in-memory database.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if dsn == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

// Record is the persisted outcome of one contract deployment on one network.
type Record struct {
	Network      string
	Name         string
	Address      common.Address
	TxHash       common.Hash
	InitCodeHash common.Hash
	RunID        uuid.UUID
	DeployedAt   time.Time
}

// Store persists deployment records keyed by (network, name).
type Store struct {
	DB *sql.DB
}

func (s *Store) Get(ctx context.Context, network, name string) (Record, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT network, name, address, tx_hash, init_code_hash, run_id, deployed_at
		 FROM deployments WHERE network = ? AND name = ?`,
		network, name,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("deployment %s/%s: %w", network, name, ErrNotFound)
	}
	return rec, err
}

// Put inserts the record, replacing any previous record for the same
// network and name.
func (s *Store) Put(ctx context.Context, rec Record) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO deployments (network, name, address, tx_hash, init_code_hash, run_id, deployed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (network, name) DO UPDATE SET
		   address = excluded.address,
		   tx_hash = excluded.tx_hash,
		   init_code_hash = excluded.init_code_hash,
		   run_id = excluded.run_id,
		   deployed_at = excluded.deployed_at`,
		rec.Network, rec.Name, rec.Address.Hex(), rec.TxHash.Hex(), rec.InitCodeHash.Hex(),
		rec.RunID.String(), rec.DeployedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert deployment %s/%s: %w", rec.Network, rec.Name, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, network string) ([]Record, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT network, name, address, tx_hash, init_code_hash, run_id, deployed_at
		 FROM deployments WHERE network = ? ORDER BY deployed_at, name`,
		network,
	)
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var (
		rec                                     Record
		address, txHash, codeHash, runID, stamp string
	)
	if err := s.Scan(&rec.Network, &rec.Name, &address, &txHash, &codeHash, &runID, &stamp); err != nil {
		return Record{}, err
	}
	rec.Address = common.HexToAddress(address)
	rec.TxHash = common.HexToHash(txHash)
	rec.InitCodeHash = common.HexToHash(codeHash)

	id, err := uuid.Parse(runID)
	if err != nil {
		return Record{}, fmt.Errorf("parse run id %q: %w", runID, err)
	}
	rec.RunID = id

	at, err := time.Parse(time.RFC3339Nano, stamp)
	if err != nil {
		return Record{}, fmt.Errorf("parse deployed_at %q: %w", stamp, err)
	}
	rec.DeployedAt = at
	return rec, nil
}
