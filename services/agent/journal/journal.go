// Copyright (C) 2026 Pantheon Ops (dev@pantheon-ops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package journal provides a durable, append-only audit trail of run
// outcomes.
//
// The state file keeps a bounded history that the retention limit
// truncates; the journal keeps every record. It survives state resets
// and lets operators answer "what did run 412 report" long after the
// state history rolled over. Records are stored in BadgerDB with CRC32
// checksums so a half-written entry is detected on replay instead of
// silently decoding garbage.
package journal

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"sync/atomic"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel/attribute"

	"github.com/pantheon-ops/sentinel/pkg/logging"
	"github.com/pantheon-ops/sentinel/services/agent/state"
	"github.com/pantheon-ops/sentinel/services/agent/storage/badger"
	"github.com/pantheon-ops/sentinel/services/agent/telemetry"
)

var (
	// ErrNilContext is returned when a nil context is passed.
	ErrNilContext = errors.New("nil context provided")

	// ErrJournalClosed is returned when operations are called on a closed journal.
	ErrJournalClosed = errors.New("journal is closed")

	// ErrCorruptRecord is returned when a journal record fails its integrity check.
	ErrCorruptRecord = errors.New("journal record corrupted (CRC mismatch)")

	// ErrNilRecord is returned when attempting to append a nil record.
	ErrNilRecord = errors.New("record must not be nil")
)

// Config configures journal behavior.
type Config struct {
	// Dir is the directory for BadgerDB files.
	// Required for persistent mode.
	Dir string

	// AgentID scopes records to one agent. Used as key prefix so a
	// shared journal directory keeps agents isolated.
	AgentID string

	// SyncWrites enables synchronous writes for durability.
	// Default: true. Disable only in tests.
	SyncWrites bool

	// InMemory uses in-memory BadgerDB (for testing).
	InMemory bool

	// SkipCorruptRecords continues replay past corrupted entries.
	// Corrupted entries are logged and counted.
	// Default: false (fail fast).
	SkipCorruptRecords bool

	// Logger for journal operations. Default: logging.Default().
	Logger *logging.Logger
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		AgentID:    "sentinel",
		SyncWrites: true,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.AgentID == "" {
		return errors.New("agent_id must not be empty")
	}
	if !c.InMemory && c.Dir == "" {
		return errors.New("dir is required for persistent journal")
	}
	return nil
}

// Stats contains journal metrics.
type Stats struct {
	// TotalRecords is the count of records in the journal.
	TotalRecords int64 `json:"total_records"`

	// TotalBytes is the approximate size of journal data.
	TotalBytes int64 `json:"total_bytes"`

	// LastRunID is the highest run ID present.
	LastRunID int64 `json:"last_run_id"`

	// CorruptedCount is the number of corrupted records encountered.
	CorruptedCount int64 `json:"corrupted_count"`
}

// Journal is an append-only record store backed by BadgerDB.
//
// Key format: "run:{agent_id}:{run_id:016d}"
// Value format: [4-byte CRC32][JSON-encoded run record]
//
// Thread Safety: Safe for concurrent use.
type Journal struct {
	db     *badger.DB
	config Config
	logger *logging.Logger

	lastRunID      atomic.Int64
	totalRecords   atomic.Int64
	totalBytes     atomic.Int64
	corruptedCount atomic.Int64
	closed         atomic.Bool
}

// Open creates a journal at the configured directory.
//
// Description:
//
//	Opens the backing BadgerDB and scans existing keys to restore the
//	record count and highest run ID, so stats are correct across
//	restarts.
//
// Inputs:
//
//	cfg - Journal configuration. Must pass Validate().
//
// Outputs:
//
//	*Journal - Ready-to-use journal. Caller must call Close() when done.
//	error - Non-nil if the configuration is invalid or BadgerDB fails to open.
func Open(cfg Config) (*Journal, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}

	j := &Journal{
		config: cfg,
		logger: cfg.Logger.With("component", "journal", "agent_id", cfg.AgentID),
	}

	dbConfig := badger.Config{
		Path:           cfg.Dir,
		InMemory:       cfg.InMemory,
		SyncWrites:     cfg.SyncWrites,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
		Logger:         cfg.Logger,
	}

	db, err := badger.OpenDB(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	j.db = db

	if err := j.initStats(); err != nil {
		db.Close()
		return nil, fmt.Errorf("scan journal: %w", err)
	}

	j.logger.Debug("journal opened",
		"dir", cfg.Dir,
		"sync_writes", cfg.SyncWrites,
		"records", j.totalRecords.Load(),
		"last_run_id", j.lastRunID.Load())

	return j, nil
}

// initStats scans existing keys to restore counters.
func (j *Journal) initStats() error {
	prefix := []byte(j.keyPrefix())
	var count, size, lastID int64

	err := j.db.WithReadTxn(context.Background(), func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			id, ok := j.parseRunID(item.Key())
			if !ok {
				continue
			}
			count++
			size += item.ValueSize()
			// Keys iterate in lexicographic order; zero-padded IDs make
			// that numeric order, so the last parsed ID is the highest.
			lastID = id
		}
		return nil
	})
	if err != nil {
		return err
	}

	j.totalRecords.Store(count)
	j.totalBytes.Store(size)
	j.lastRunID.Store(lastID)
	return nil
}

// keyPrefix returns the key prefix for this agent's records.
func (j *Journal) keyPrefix() string {
	return fmt.Sprintf("run:%s:", j.config.AgentID)
}

// recordKey generates a key for a specific run ID.
func (j *Journal) recordKey(runID int) []byte {
	return []byte(fmt.Sprintf("%s%016d", j.keyPrefix(), runID))
}

// parseRunID extracts the run ID from a record key.
func (j *Journal) parseRunID(key []byte) (int64, bool) {
	prefix := j.keyPrefix()
	if len(key) <= len(prefix) {
		return 0, false
	}
	var id int64
	if _, err := fmt.Sscanf(string(key[len(prefix):]), "%016d", &id); err != nil {
		return 0, false
	}
	return id, true
}

// encodeRecord encodes a run record with a CRC32 checksum prefix.
func encodeRecord(rec *state.RunRecord) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}

	crc := crc32.ChecksumIEEE(data)
	out := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(out[:4], crc)
	copy(out[4:], data)
	return out, nil
}

// decodeRecord validates the CRC32 checksum and decodes the record.
func decodeRecord(data []byte) (*state.RunRecord, error) {
	if len(data) < 5 { // 4-byte CRC + at least 1 byte payload
		return nil, fmt.Errorf("%w: record too short", ErrCorruptRecord)
	}

	storedCRC := binary.BigEndian.Uint32(data[:4])
	payload := data[4:]
	if computed := crc32.ChecksumIEEE(payload); computed != storedCRC {
		return nil, fmt.Errorf("%w: stored=%08x computed=%08x", ErrCorruptRecord, storedCRC, computed)
	}

	var rec state.RunRecord
	if err := json.NewDecoder(bytes.NewReader(payload)).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &rec, nil
}

// Append writes one run record keyed by its run ID.
//
// Description:
//
//	Synchronously persists the record with a CRC32 checksum. Appending
//	the same run ID twice overwrites the earlier entry, which keeps a
//	retried run from double-counting.
//
// Inputs:
//
//	ctx - Context for cancellation. Must not be nil.
//	rec - The run record to persist. Must not be nil.
//
// Outputs:
//
//	error - Non-nil if encoding or the write fails.
//
// Thread Safety: Safe for concurrent use.
func (j *Journal) Append(ctx context.Context, rec *state.RunRecord) error {
	if ctx == nil {
		return ErrNilContext
	}
	if rec == nil {
		return ErrNilRecord
	}
	if j.closed.Load() {
		return ErrJournalClosed
	}

	ctx, span := telemetry.StartSpan(ctx, "agent.journal", "Journal.Append")
	defer span.End()

	data, err := encodeRecord(rec)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	key := j.recordKey(rec.RunID)
	if err := j.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		return txn.Set(key, data)
	}); err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("write record: %w", err)
	}

	j.totalRecords.Add(1)
	j.totalBytes.Add(int64(len(data)))
	if id := int64(rec.RunID); id > j.lastRunID.Load() {
		j.lastRunID.Store(id)
	}

	span.SetAttributes(
		attribute.Int("run_id", rec.RunID),
		attribute.Int("record_bytes", len(data)),
	)

	j.logger.Debug("run record appended", "run_id", rec.RunID, "bytes", len(data))
	return nil
}

// Replay returns all records in run ID order.
//
// Description:
//
//	Iterates every record for this agent, validating checksums. A
//	corrupted record fails the replay unless SkipCorruptRecords is set,
//	in which case it is logged and skipped.
//
// Inputs:
//
//	ctx - Context for cancellation. Must not be nil.
//
// Outputs:
//
//	[]state.RunRecord - Records in ascending run ID order. Empty if none.
//	error - Non-nil if the read fails or a record is corrupt.
//
// Thread Safety: Safe for concurrent use.
func (j *Journal) Replay(ctx context.Context) ([]state.RunRecord, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if j.closed.Load() {
		return nil, ErrJournalClosed
	}

	ctx, span := telemetry.StartSpan(ctx, "agent.journal", "Journal.Replay")
	defer span.End()

	var records []state.RunRecord
	corrupted := 0

	prefix := []byte(j.keyPrefix())
	err := j.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			item := it.Item()
			id, ok := j.parseRunID(item.Key())
			if !ok {
				continue
			}

			err := item.Value(func(val []byte) error {
				rec, err := decodeRecord(val)
				if err != nil {
					if errors.Is(err, ErrCorruptRecord) {
						corrupted++
						j.corruptedCount.Add(1)
						if j.config.SkipCorruptRecords {
							j.logger.Warn("skipping corrupted journal record",
								"run_id", id, "error", err.Error())
							return nil
						}
					}
					return err
				}
				records = append(records, *rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("replay: %w", err)
	}

	span.SetAttributes(
		attribute.Int("record_count", len(records)),
		attribute.Int("corrupted_count", corrupted),
	)

	j.logger.Debug("replay completed", "records", len(records), "corrupted", corrupted)
	return records, nil
}

// Recent returns the newest records, at most limit, in ascending run ID
// order. A limit <= 0 returns all records.
func (j *Journal) Recent(ctx context.Context, limit int) ([]state.RunRecord, error) {
	records, err := j.Replay(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records, nil
}

// Stats returns journal metrics.
func (j *Journal) Stats() Stats {
	return Stats{
		TotalRecords:   j.totalRecords.Load(),
		TotalBytes:     j.totalBytes.Load(),
		LastRunID:      j.lastRunID.Load(),
		CorruptedCount: j.corruptedCount.Load(),
	}
}

// Sync flushes pending writes to disk.
func (j *Journal) Sync() error {
	if j.closed.Load() {
		return ErrJournalClosed
	}
	return j.db.Sync()
}

// Close syncs and releases the backing database. Safe to call twice.
func (j *Journal) Close() error {
	if j.closed.Swap(true) {
		return nil
	}

	if err := j.db.Sync(); err != nil {
		j.logger.Warn("sync before close failed", "error", err.Error())
	}
	return j.db.Close()
}
