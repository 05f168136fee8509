// Package export moves records in and out of the local store as JSONL,
// one record envelope per line. Exports are full snapshots; imports go
// through the sync controller so imported records are staged for push
// like any other local mutation.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/localsync/tasksync/internal/model"
	"github.com/localsync/tasksync/internal/store"
	"github.com/localsync/tasksync/internal/syncer"
)

// Line is one JSONL record envelope.
type Line struct {
	EntityType model.EntityType `json:"entity_type"`
	Data       json.RawMessage  `json:"data"`
}

// ExportResult contains statistics about an export.
type ExportResult struct {
	Tasks      int
	Categories int
}

// Export writes every record to a JSONL snapshot at path. Categories come
// first so an import can satisfy task category references in one pass.
// The file is written atomically via a temp file.
func Export(ctx context.Context, db *store.DB, path string) (*ExportResult, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	tmpPath := path + ".tmp"
	// #nosec G304 - controlled path from CLI
	file, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create export file: %w", err)
	}
	defer func() {
		file.Close()
		os.Remove(tmpPath)
	}()

	result := &ExportResult{}
	encoder := json.NewEncoder(file)

	for _, entityType := range []model.EntityType{model.EntityCategory, model.EntityTask} {
		records, err := db.AllRecordsContext(ctx, entityType)
		if err != nil {
			return nil, err
		}

		for _, rec := range records {
			data, err := json.Marshal(rec)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal %s %s: %w",
					entityType, rec.RecordMeta().ID, err)
			}
			if err := encoder.Encode(Line{EntityType: entityType, Data: data}); err != nil {
				return nil, fmt.Errorf("failed to write export line: %w", err)
			}

			switch entityType {
			case model.EntityTask:
				result.Tasks++
			case model.EntityCategory:
				result.Categories++
			}
		}
	}

	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to flush export file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return nil, fmt.Errorf("failed to finalize export file: %w", err)
	}

	return result, nil
}

// ImportOptions contains configuration for an import.
type ImportOptions struct {
	// DryRun parses and validates without applying anything.
	DryRun bool
}

// ImportResult contains statistics about an import.
type ImportResult struct {
	Created int
	Updated int

	// Errors holds per-line failures; the import continues past them.
	Errors []string
}

// Import reads a JSONL snapshot and applies it through the controller.
// Records already present locally are updated, new ones created; either
// way the mutation is staged for push.
func Import(ctx context.Context, controller *syncer.Controller, path string, opts ImportOptions) (*ImportResult, error) {
	// #nosec G304 - controlled path from CLI
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open import file: %w", err)
	}
	defer file.Close()

	result := &ImportResult{}
	decoder := json.NewDecoder(file)
	lineNum := 0

	for {
		var line Line
		if err := decoder.Decode(&line); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("invalid JSON at line %d: %w", lineNum+1, err)
		}
		lineNum++

		rec, err := model.Decode(line.EntityType, line.Data)
		if err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("line %d: %v", lineNum, err))
			continue
		}

		exists, err := recordExists(ctx, controller.Store(), rec)
		if err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("line %d: %v", lineNum, err))
			continue
		}

		if !opts.DryRun {
			if err := applyRecord(ctx, controller, rec, exists); err != nil {
				result.Errors = append(result.Errors,
					fmt.Sprintf("line %d: failed to import %s %s: %v",
						lineNum, line.EntityType, rec.RecordMeta().ID, err))
				continue
			}
		}

		if exists {
			result.Updated++
		} else {
			result.Created++
		}
	}

	return result, nil
}

func recordExists(ctx context.Context, db *store.DB, rec model.Record) (bool, error) {
	_, err := db.GetRecordContext(ctx, rec.EntityType(), rec.RecordMeta().ID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func applyRecord(ctx context.Context, controller *syncer.Controller, rec model.Record, exists bool) error {
	switch r := rec.(type) {
	case *model.Task:
		if exists {
			return controller.UpdateTask(ctx, r)
		}
		return controller.CreateTask(ctx, r)
	case *model.Category:
		if exists {
			return controller.UpdateCategory(ctx, r)
		}
		return controller.CreateCategory(ctx, r)
	default:
		return fmt.Errorf("unknown record type %T", rec)
	}
}
