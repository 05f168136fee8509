// Package syncer provides the sync controller that reconciles the local
// store with the remote authority.
//
// The controller:
// 1. Applies local mutations through the store, staging them for push
// 2. Runs pull-then-push sync cycles, at most one in flight
// 3. Resolves pull conflicts with last-write-wins
// 4. Tracks online/offline state and drives periodic auto-sync
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/localsync/tasksync/internal/events"
	"github.com/localsync/tasksync/internal/model"
	"github.com/localsync/tasksync/internal/remote"
	"github.com/localsync/tasksync/internal/store"
)

var (
	// ErrSyncInProgress is returned when a sync cycle is requested while
	// another is still running.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrOffline is returned when a sync cycle is requested while offline.
	ErrOffline = errors.New("cannot sync while offline")
)

// Options holds controller tuning.
type Options struct {
	// Interval is how often the auto-sync worker runs a cycle.
	Interval time.Duration

	// RetentionDays is how long synced queue entries are kept before Prune
	// removes them.
	RetentionDays int

	// MaxRetries is the attempt ceiling per queued operation. Operations at
	// or past the ceiling are skipped during push but stay queued.
	MaxRetries int

	// AutoSync enables the periodic worker when online.
	AutoSync bool

	// Logger for controller activity.
	Logger *log.Logger
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() *Options {
	return &Options{
		Interval:      30 * time.Second,
		RetentionDays: 7,
		MaxRetries:    5,
		AutoSync:      true,
		Logger:        log.New(os.Stderr, "[syncer] ", log.LstdFlags),
	}
}

// Controller owns the sync lifecycle for one local database.
type Controller struct {
	db     *store.DB
	client remote.Client
	bus    *events.Bus
	opts   *Options
	logger *log.Logger

	mu           sync.Mutex
	syncing      bool
	online       bool
	autoSync     bool
	workerCancel context.CancelFunc

	wg sync.WaitGroup
}

// New creates a sync controller. The controller starts offline; call
// SetOnline(true) once connectivity is established.
//
// The database must be open with schema initialized. A nil bus gets a
// private one; a nil opts gets DefaultOptions.
func New(database *store.DB, client remote.Client, bus *events.Bus, opts *Options) *Controller {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[syncer] ", log.LstdFlags)
	}
	if bus == nil {
		bus = events.NewBus(opts.Logger)
	}
	return &Controller{
		db:       database,
		client:   client,
		bus:      bus,
		opts:     opts,
		logger:   opts.Logger,
		autoSync: opts.AutoSync,
	}
}

// Bus returns the event bus the controller publishes to.
func (c *Controller) Bus() *events.Bus { return c.bus }

// Store returns the underlying database, for read paths.
func (c *Controller) Store() *store.DB { return c.db }

// CreateTask validates and persists a new task, staging it for push.
func (c *Controller) CreateTask(ctx context.Context, task *model.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}
	op, err := c.db.CreateLocal(ctx, task)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	c.publishMutation(events.TypeTaskCreated, op)
	return nil
}

// UpdateTask bumps the task's version and persists it in full, staging the
// update for push.
func (c *Controller) UpdateTask(ctx context.Context, task *model.Task) error {
	task.Touch()
	if err := task.Validate(); err != nil {
		return err
	}
	op, err := c.db.UpdateLocal(ctx, task)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	c.publishMutation(events.TypeTaskUpdated, op)
	return nil
}

// DeleteTask removes the task and stages the delete for push.
func (c *Controller) DeleteTask(ctx context.Context, id string) error {
	op, err := c.db.DeleteLocal(ctx, model.EntityTask, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	c.publishMutation(events.TypeTaskDeleted, op)
	return nil
}

// CreateCategory validates and persists a new category, staging it for push.
func (c *Controller) CreateCategory(ctx context.Context, category *model.Category) error {
	if err := category.Validate(); err != nil {
		return err
	}
	op, err := c.db.CreateLocal(ctx, category)
	if err != nil {
		return fmt.Errorf("failed to create category: %w", err)
	}
	c.publishMutation(events.TypeCategoryCreated, op)
	return nil
}

// UpdateCategory bumps the category's version and persists it in full.
func (c *Controller) UpdateCategory(ctx context.Context, category *model.Category) error {
	category.Touch()
	if err := category.Validate(); err != nil {
		return err
	}
	op, err := c.db.UpdateLocal(ctx, category)
	if err != nil {
		return fmt.Errorf("failed to update category: %w", err)
	}
	c.publishMutation(events.TypeCategoryUpdated, op)
	return nil
}

// DeleteCategory removes the category and stages the delete for push.
func (c *Controller) DeleteCategory(ctx context.Context, id string) error {
	op, err := c.db.DeleteLocal(ctx, model.EntityCategory, id)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	c.publishMutation(events.TypeCategoryDeleted, op)
	return nil
}

func (c *Controller) publishMutation(typ events.Type, op *store.Operation) {
	c.bus.Publish(events.Event{
		Type:       typ,
		EntityType: string(op.EntityType),
		EntityID:   op.EntityID,
	})
	c.bus.Publish(events.Event{
		Type:       events.TypeOperationEnqueued,
		EntityType: string(op.EntityType),
		EntityID:   op.EntityID,
	})
}

// IsOnline reports the current connectivity state.
func (c *Controller) IsOnline() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

// SetOnline records a connectivity transition.
//
// Going online triggers an immediate sync cycle and starts the auto-sync
// worker when enabled. Going offline stops the worker; a cycle already in
// flight finishes, but no new cycle starts.
func (c *Controller) SetOnline(online bool) {
	c.mu.Lock()
	if c.online == online {
		c.mu.Unlock()
		return
	}
	c.online = online

	if online {
		c.logger.Printf("Connection established, going online")
		if c.autoSync && c.workerCancel == nil {
			workerCtx, cancel := context.WithCancel(context.Background())
			c.workerCancel = cancel
			c.wg.Add(1)
			go c.runWorker(workerCtx)
		}
	} else {
		c.logger.Printf("Connection lost, going offline")
		if c.workerCancel != nil {
			c.workerCancel()
			c.workerCancel = nil
		}
	}
	c.mu.Unlock()

	if online {
		c.bus.Publish(events.Event{Type: events.TypeOnline})
		// Catch up immediately rather than waiting for the worker tick.
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if err := c.Sync(context.Background()); err != nil && !errors.Is(err, ErrSyncInProgress) {
				c.logger.Printf("Initial sync after going online failed: %v", err)
			}
		}()
	} else {
		c.bus.Publish(events.Event{Type: events.TypeOffline})
	}
}

// SetAutoSync persists the auto-sync preference and starts or stops the
// worker to match.
func (c *Controller) SetAutoSync(ctx context.Context, enabled bool) error {
	if err := c.db.SetAutoSyncEnabled(ctx, enabled); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.autoSync = enabled

	if enabled && c.online && c.workerCancel == nil {
		workerCtx, cancel := context.WithCancel(context.Background())
		c.workerCancel = cancel
		c.wg.Add(1)
		go c.runWorker(workerCtx)
	}
	if !enabled && c.workerCancel != nil {
		c.workerCancel()
		c.workerCancel = nil
	}
	return nil
}

// runWorker runs periodic sync cycles until its context is cancelled.
func (c *Controller) runWorker(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			err := c.Sync(ctx)
			if err != nil && !errors.Is(err, ErrSyncInProgress) && !errors.Is(err, ErrOffline) {
				c.logger.Printf("Auto-sync cycle failed: %v", err)
			}
		}
	}
}

// Sync runs one pull-then-push cycle. At most one cycle runs at a time;
// concurrent callers get ErrSyncInProgress. Returns ErrOffline when the
// controller is offline.
func (c *Controller) Sync(ctx context.Context) error {
	c.mu.Lock()
	if !c.online {
		c.mu.Unlock()
		return ErrOffline
	}
	if c.syncing {
		c.mu.Unlock()
		return ErrSyncInProgress
	}
	c.syncing = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.syncing = false
		c.mu.Unlock()
	}()

	started := time.Now()
	c.bus.Publish(events.Event{Type: events.TypeSyncStarted})
	c.logger.Printf("Starting sync cycle")

	if err := c.runCycle(ctx); err != nil {
		c.bus.Publish(events.Event{Type: events.TypeSyncFailed, Error: err.Error()})
		return err
	}

	c.bus.Publish(events.Event{Type: events.TypeSyncCompleted})
	c.logger.Printf("Sync cycle complete in %v", time.Since(started).Round(time.Millisecond))
	return nil
}

func (c *Controller) runCycle(ctx context.Context) error {
	if err := c.pull(ctx); err != nil {
		return fmt.Errorf("pull failed: %w", err)
	}
	if err := c.push(ctx); err != nil {
		return fmt.Errorf("push failed: %w", err)
	}

	if err := c.db.SetLastSyncTime(ctx, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to record sync time: %w", err)
	}

	pruned, err := c.db.PruneContext(ctx, c.opts.RetentionDays)
	if err != nil {
		return err
	}
	if pruned > 0 {
		c.logger.Printf("Pruned %d synced queue entries", pruned)
	}
	return nil
}

// pull fetches remote changes since the last sync and reconciles them into
// the local store. Individual record failures are logged but don't stop
// the pull.
func (c *Controller) pull(ctx context.Context) error {
	since, err := c.db.LastSyncTime(ctx)
	if err != nil {
		return err
	}

	for _, entityType := range []model.EntityType{model.EntityTask, model.EntityCategory} {
		raws, err := c.client.FetchChanged(ctx, entityType, since)
		if err != nil {
			return err
		}

		applied := 0
		for _, raw := range raws {
			incoming, err := model.Decode(entityType, raw)
			if err != nil {
				c.logger.Printf("WARNING: Skipping undecodable remote %s: %v", entityType, err)
				continue
			}
			if err := c.reconcile(ctx, incoming); err != nil {
				c.logger.Printf("WARNING: Failed to reconcile %s %s: %v",
					entityType, incoming.RecordMeta().ID, err)
				continue
			}
			applied++
		}

		if len(raws) > 0 {
			c.logger.Printf("Pulled %d/%d changed %s records", applied, len(raws), entityType)
		}
	}
	return nil
}

// reconcile merges one remote record against the local copy.
func (c *Controller) reconcile(ctx context.Context, incoming model.Record) error {
	meta := incoming.RecordMeta()

	local, err := c.db.GetRecordContext(ctx, incoming.EntityType(), meta.ID)
	if errors.Is(err, store.ErrNotFound) {
		return c.db.StoreRemote(ctx, incoming)
	}
	if err != nil {
		return err
	}

	localMeta := local.RecordMeta()
	if localMeta.Version == meta.Version && localMeta.UpdatedAt.Equal(meta.UpdatedAt) {
		// Same copy on both sides, nothing to merge.
		return nil
	}

	winner := Resolve(localMeta, meta)
	if winner == WinnerRemote {
		if err := c.db.StoreRemote(ctx, incoming); err != nil {
			return err
		}
	}

	c.bus.Publish(events.Event{
		Type:       events.TypeConflictResolved,
		EntityType: string(incoming.EntityType()),
		EntityID:   meta.ID,
		Resolution: winner.String(),
	})
	c.logger.Printf("Conflict on %s %s resolved: %s wins (local v%d vs remote v%d)",
		incoming.EntityType(), meta.ID, winner, localMeta.Version, meta.Version)
	return nil
}

// push sends pending queue entries to the remote in FIFO order. A failed
// operation is marked and skipped; later operations still get their turn.
func (c *Controller) push(ctx context.Context) error {
	pending, err := c.db.ListPendingContext(ctx)
	if err != nil {
		return err
	}

	for _, op := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}

		if op.RetryCount >= c.opts.MaxRetries {
			c.logger.Printf("Skipping operation %d (%s %s): retry ceiling reached (%d)",
				op.ID, op.Type, op.EntityID, op.RetryCount)
			continue
		}

		if err := c.apply(ctx, op); err != nil {
			c.logger.Printf("WARNING: Failed to push operation %d (%s %s): %v",
				op.ID, op.Type, op.EntityID, err)
			if merr := c.db.MarkFailedContext(ctx, op.ID, err); merr != nil {
				return merr
			}
			c.bus.Publish(events.Event{
				Type:       events.TypeOperationFailed,
				EntityType: string(op.EntityType),
				EntityID:   op.EntityID,
				Error:      err.Error(),
			})
			continue
		}

		if err := c.db.MarkSyncedContext(ctx, op.ID); err != nil {
			return err
		}
		c.bus.Publish(events.Event{
			Type:       events.TypeOperationSynced,
			EntityType: string(op.EntityType),
			EntityID:   op.EntityID,
		})
	}
	return nil
}

// apply sends one queued operation to the remote.
func (c *Controller) apply(ctx context.Context, op *store.Operation) error {
	switch op.Type {
	case store.OpCreate:
		return c.client.Create(ctx, op.EntityType, op.Data)
	case store.OpUpdate:
		return c.client.Update(ctx, op.EntityType, op.EntityID, op.Data)
	case store.OpDelete:
		return c.client.Delete(ctx, op.EntityType, op.EntityID)
	default:
		return fmt.Errorf("unknown operation type %q", op.Type)
	}
}

// Status summarizes the controller for status reporting.
type Status struct {
	IsOnline          bool      `json:"is_online"`
	IsSyncing         bool      `json:"is_syncing"`
	AutoSyncEnabled   bool      `json:"auto_sync_enabled"`
	LastSyncTime      time.Time `json:"last_sync_time"`
	PendingOperations int       `json:"pending_operations"`
	FailedOperations  int       `json:"failed_operations"`
}

// Status returns a snapshot of the controller state and queue counters.
func (c *Controller) Status(ctx context.Context) (*Status, error) {
	c.mu.Lock()
	status := &Status{
		IsOnline:        c.online,
		IsSyncing:       c.syncing,
		AutoSyncEnabled: c.autoSync,
	}
	c.mu.Unlock()

	last, err := c.db.LastSyncTime(ctx)
	if err != nil {
		return nil, err
	}
	status.LastSyncTime = last

	stats, err := c.db.Stats(ctx)
	if err != nil {
		return nil, err
	}
	status.PendingOperations = stats.Pending
	status.FailedOperations = stats.Failed

	return status, nil
}

// Close stops the auto-sync worker and waits for in-flight work.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.workerCancel != nil {
		c.workerCancel()
		c.workerCancel = nil
	}
	c.online = false
	c.mu.Unlock()

	c.wg.Wait()
}
