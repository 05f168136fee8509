package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/localsync/tasksync/internal/model"
)

// The mutation helpers below implement the local-mutation contract: every
// local create/update/delete writes the record AND enqueues the matching
// sync operation in a single transaction. A crash can therefore never
// separate a record change from its staged push.

// CreateLocal inserts rec and enqueues a create operation carrying the
// payload snapshot. Returns the enqueued operation.
func (db *DB) CreateLocal(ctx context.Context, rec model.Record) (*Operation, error) {
	return db.mutate(ctx, OpCreate, rec, rec.EntityType(), rec.RecordMeta().ID)
}

// UpdateLocal replaces rec in full and enqueues an update operation.
func (db *DB) UpdateLocal(ctx context.Context, rec model.Record) (*Operation, error) {
	return db.mutate(ctx, OpUpdate, rec, rec.EntityType(), rec.RecordMeta().ID)
}

// DeleteLocal removes the record and enqueues a delete operation with a
// nil payload.
func (db *DB) DeleteLocal(ctx context.Context, entityType model.EntityType, id string) (*Operation, error) {
	return db.mutate(ctx, OpDelete, nil, entityType, id)
}

func (db *DB) mutate(ctx context.Context, opType OpType, rec model.Record, entityType model.EntityType, id string) (*Operation, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin mutation transaction: %w", err)
	}
	defer tx.Rollback()

	var snapshot json.RawMessage
	switch opType {
	case OpCreate:
		if err := db.insertRecord(ctx, tx, rec); err != nil {
			return nil, err
		}
	case OpUpdate:
		if err := db.replaceRecord(ctx, tx, rec); err != nil {
			return nil, err
		}
	case OpDelete:
		if err := db.deleteRecord(ctx, tx, entityType, id); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown operation type %q", opType)
	}

	if rec != nil {
		snapshot, err = json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("failed to snapshot %s %s: %w", entityType, id, err)
		}
	}

	op, err := db.enqueue(ctx, tx, &Operation{
		Type:       opType,
		EntityType: entityType,
		EntityID:   id,
		Data:       snapshot,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit mutation: %w", err)
	}

	return op, nil
}

// StoreRemote upserts a record that arrived from the remote authority
// during a pull. Remote writes never enqueue sync operations.
func (db *DB) StoreRemote(ctx context.Context, rec model.Record) error {
	err := db.replaceRecord(ctx, db.conn, rec)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	return db.insertRecord(ctx, db.conn, rec)
}
