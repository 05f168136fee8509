package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/localsync/tasksync/internal/model"
)

// execer covers both *sql.DB and *sql.Tx so record writes can participate
// in the mutation transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// AddRecord inserts a record. Returns ErrDuplicate if a record with the
// same id (or, for categories, the same name) already exists.
func (db *DB) AddRecord(rec model.Record) error {
	return db.AddRecordContext(context.Background(), rec)
}

// AddRecordContext inserts a record with context support.
func (db *DB) AddRecordContext(ctx context.Context, rec model.Record) error {
	return db.insertRecord(ctx, db.conn, rec)
}

func (db *DB) insertRecord(ctx context.Context, ex execer, rec model.Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid %s: %w", rec.EntityType(), err)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", rec.EntityType(), err)
	}

	meta := rec.RecordMeta()
	cols := queryColumns(rec)

	query := `
	INSERT INTO records (
		id, entity_type, category, status, priority, deadline,
		sort_order, version, created_at, updated_at, data
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = ex.ExecContext(ctx, query,
		meta.ID,
		string(rec.EntityType()),
		cols.category,
		cols.status,
		cols.priority,
		cols.deadline,
		cols.order,
		meta.Version,
		formatTime(meta.CreatedAt),
		formatTime(meta.UpdatedAt),
		string(data),
	)
	if err != nil {
		if isConstraintErr(err) {
			return fmt.Errorf("%s %s: %w", rec.EntityType(), meta.ID, ErrDuplicate)
		}
		return fmt.Errorf("failed to insert %s %s: %w", rec.EntityType(), meta.ID, err)
	}

	return nil
}

// GetRecord retrieves a record by entity type and id.
// Returns ErrNotFound if no such record exists.
func (db *DB) GetRecord(entityType model.EntityType, id string) (model.Record, error) {
	return db.GetRecordContext(context.Background(), entityType, id)
}

// GetRecordContext retrieves a record with context support.
func (db *DB) GetRecordContext(ctx context.Context, entityType model.EntityType, id string) (model.Record, error) {
	var data string
	err := db.conn.QueryRowContext(ctx,
		`SELECT data FROM records WHERE entity_type = ? AND id = ?`,
		string(entityType), id,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s %s: %w", entityType, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s %s: %w", entityType, id, err)
	}

	return model.Decode(entityType, []byte(data))
}

// UpdateRecord replaces a stored record in full. No partial patches.
// Returns ErrNotFound if the record doesn't exist.
func (db *DB) UpdateRecord(rec model.Record) error {
	return db.UpdateRecordContext(context.Background(), rec)
}

// UpdateRecordContext replaces a record with context support.
func (db *DB) UpdateRecordContext(ctx context.Context, rec model.Record) error {
	return db.replaceRecord(ctx, db.conn, rec)
}

func (db *DB) replaceRecord(ctx context.Context, ex execer, rec model.Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid %s: %w", rec.EntityType(), err)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", rec.EntityType(), err)
	}

	meta := rec.RecordMeta()
	cols := queryColumns(rec)

	query := `
	UPDATE records SET
		category = ?, status = ?, priority = ?, deadline = ?,
		sort_order = ?, version = ?, updated_at = ?, data = ?
	WHERE entity_type = ? AND id = ?
	`

	res, err := ex.ExecContext(ctx, query,
		cols.category,
		cols.status,
		cols.priority,
		cols.deadline,
		cols.order,
		meta.Version,
		formatTime(meta.UpdatedAt),
		string(data),
		string(rec.EntityType()),
		meta.ID,
	)
	if err != nil {
		if isConstraintErr(err) {
			return fmt.Errorf("%s %s: %w", rec.EntityType(), meta.ID, ErrDuplicate)
		}
		return fmt.Errorf("failed to update %s %s: %w", rec.EntityType(), meta.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %s: %w", rec.EntityType(), meta.ID, ErrNotFound)
	}

	return nil
}

// DeleteRecord removes a record. Returns ErrNotFound if it doesn't exist.
func (db *DB) DeleteRecord(entityType model.EntityType, id string) error {
	return db.DeleteRecordContext(context.Background(), entityType, id)
}

// DeleteRecordContext removes a record with context support.
func (db *DB) DeleteRecordContext(ctx context.Context, entityType model.EntityType, id string) error {
	return db.deleteRecord(ctx, db.conn, entityType, id)
}

func (db *DB) deleteRecord(ctx context.Context, ex execer, entityType model.EntityType, id string) error {
	res, err := ex.ExecContext(ctx,
		`DELETE FROM records WHERE entity_type = ? AND id = ?`,
		string(entityType), id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", entityType, id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %s: %w", entityType, id, ErrNotFound)
	}

	return nil
}

// SeedDefaultCategories inserts the stock categories into a store that has
// none yet. Seeded rows are not staged for push; every replica starts from
// the same baseline.
func (db *DB) SeedDefaultCategories(ctx context.Context) error {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE entity_type = ?`,
		string(model.EntityCategory),
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to count categories: %w", err)
	}
	if count > 0 {
		return nil
	}

	for _, category := range model.DefaultCategories() {
		if err := db.insertRecord(ctx, db.conn, category); err != nil && !errors.Is(err, ErrDuplicate) {
			return err
		}
	}
	return nil
}

// AllRecords returns every record of the given type, oldest first.
func (db *DB) AllRecords(entityType model.EntityType) ([]model.Record, error) {
	return db.AllRecordsContext(context.Background(), entityType)
}

// AllRecordsContext returns all records with context support.
func (db *DB) AllRecordsContext(ctx context.Context, entityType model.EntityType) ([]model.Record, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT data FROM records WHERE entity_type = ? ORDER BY created_at ASC`,
		string(entityType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s records: %w", entityType, err)
	}
	defer rows.Close()

	var records []model.Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec, err := model.Decode(entityType, []byte(data))
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return records, nil
}

// TaskFilter configures the ListTasks query.
type TaskFilter struct {
	// Category filters by task category (empty = all)
	Category string
	// Status filters by task status (empty = all)
	Status string
	// Priority filters by task priority (empty = all)
	Priority string
	// DueBefore filters to tasks with a deadline before the given time
	DueBefore *time.Time
	// Tag filters by tag (empty = all)
	Tag string
	// Limit restricts the number of results (0 = no limit)
	Limit int
	// Offset skips the first N results (for pagination)
	Offset int
}

// ListTasks retrieves tasks matching the filter, ordered by the manual
// sort order then creation time.
func (db *DB) ListTasks(filter TaskFilter) ([]*model.Task, error) {
	return db.ListTasksContext(context.Background(), filter)
}

// ListTasksContext retrieves tasks with context support.
func (db *DB) ListTasksContext(ctx context.Context, filter TaskFilter) ([]*model.Task, error) {
	conditions := []string{"r.entity_type = ?"}
	args := []interface{}{string(model.EntityTask)}

	if filter.Category != "" {
		conditions = append(conditions, "r.category = ?")
		args = append(args, filter.Category)
	}
	if filter.Status != "" {
		conditions = append(conditions, "r.status = ?")
		args = append(args, filter.Status)
	}
	if filter.Priority != "" {
		conditions = append(conditions, "r.priority = ?")
		args = append(args, filter.Priority)
	}
	if filter.DueBefore != nil {
		conditions = append(conditions, "r.deadline IS NOT NULL AND r.deadline < ?")
		args = append(args, formatTime(*filter.DueBefore))
	}

	selectClause := "SELECT"
	if filter.Tag != "" {
		selectClause += " DISTINCT"
	}

	query := selectClause + ` r.data FROM records r`

	if filter.Tag != "" {
		query += `, json_each(r.data, '$.tags')`
		conditions = append(conditions, "json_each.value = ?")
		args = append(args, filter.Tag)
	}

	query += " WHERE " + strings.Join(conditions, " AND ")
	query += " ORDER BY r.sort_order ASC, r.created_at ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		var task model.Task
		if err := json.Unmarshal([]byte(data), &task); err != nil {
			return nil, fmt.Errorf("failed to parse task: %w", err)
		}
		tasks = append(tasks, &task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

// ListCategories retrieves all categories ordered by name.
func (db *DB) ListCategories(ctx context.Context) ([]*model.Category, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT data FROM records
		WHERE entity_type = ?
		ORDER BY json_extract(data, '$.name') ASC`,
		string(model.EntityCategory),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []*model.Category
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		var category model.Category
		if err := json.Unmarshal([]byte(data), &category); err != nil {
			return nil, fmt.Errorf("failed to parse category: %w", err)
		}
		categories = append(categories, &category)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}

	return categories, nil
}

// recordColumns holds the values extracted from a record for query columns.
type recordColumns struct {
	category sql.NullString
	status   sql.NullString
	priority sql.NullString
	deadline sql.NullString
	order    int
}

// queryColumns extracts the indexed query columns for a record.
// Categories carry none of the task-specific columns.
func queryColumns(rec model.Record) recordColumns {
	task, ok := rec.(*model.Task)
	if !ok {
		return recordColumns{}
	}
	return recordColumns{
		category: sql.NullString{String: task.Category, Valid: true},
		status:   sql.NullString{String: task.Status, Valid: true},
		priority: sql.NullString{String: task.Priority, Valid: true},
		deadline: timeToNullString(task.Deadline),
		order:    task.Order,
	}
}
