package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/localsync/tasksync/internal/model"
	"github.com/localsync/tasksync/internal/store"
)

var (
	addPriority    string
	addCategory    string
	addDescription string
	addDue         string
	addTags        []string

	listCategory string
	listStatus   string
	listPriority string
	listAll      bool
)

var addCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a task",
	Long: `Add a task to the local database.

The task is staged for push and synced on the next cycle. Deadlines accept
natural language, e.g. --due "tomorrow at 5pm" or --due "next friday".`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		db := openDatabase(cfg)
		defer db.Close()
		c := newController(cfg, db)
		defer c.Close()

		task := model.NewTask(strings.Join(args, " "))
		task.Description = addDescription
		if addCategory != "" {
			task.Category = addCategory
		}
		if addPriority != "" {
			task.Priority = addPriority
		}
		for _, tag := range addTags {
			task.AddTag(tag)
		}

		if addDue != "" {
			deadline, err := parseDeadline(addDue)
			if err != nil {
				fatal("%v", err)
			}
			task.Deadline = &deadline
		}

		if err := c.CreateTask(context.Background(), task); err != nil {
			fatal("%v", err)
		}

		fmt.Printf("Added %s: %s\n", shortID(task.ID), task.Title)
		if task.Deadline != nil {
			fmt.Printf("   Due: %s\n", task.Deadline.Format("2006-01-02 15:04"))
		}
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Long: `List tasks from the local database.

Completed and archived tasks are hidden unless --all is given.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		db := openDatabase(cfg)
		defer db.Close()

		filter := store.TaskFilter{
			Category: listCategory,
			Status:   listStatus,
			Priority: listPriority,
		}
		tasks, err := db.ListTasks(filter)
		if err != nil {
			fatal("%v", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tCATEGORY\tPRIORITY\tSTATUS\tDUE")
		shown := 0
		for _, task := range tasks {
			if !listAll && listStatus == "" &&
				(task.Status == model.StatusCompleted || task.Status == model.StatusArchived) {
				continue
			}
			due := ""
			if task.Deadline != nil {
				due = task.Deadline.Format("2006-01-02 15:04")
				if task.IsOverdue() {
					due += " (overdue)"
				}
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				shortID(task.ID), task.Title, task.Category, task.Priority, task.Status, due)
			shown++
		}
		w.Flush()

		if shown == 0 {
			fmt.Println("No tasks. Add one with 'tasksync add <title>'.")
		}
	},
}

var doneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark a task completed",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		db := openDatabase(cfg)
		defer db.Close()
		c := newController(cfg, db)
		defer c.Close()

		task := resolveTask(db, args[0])
		if err := task.Complete(); err != nil {
			fatal("%v", err)
		}
		if err := c.UpdateTask(context.Background(), task); err != nil {
			fatal("%v", err)
		}

		fmt.Printf("Completed %s: %s\n", shortID(task.ID), task.Title)
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		db := openDatabase(cfg)
		defer db.Close()
		c := newController(cfg, db)
		defer c.Close()

		task := resolveTask(db, args[0])
		if err := c.DeleteTask(context.Background(), task.ID); err != nil {
			fatal("%v", err)
		}

		fmt.Printf("Deleted %s: %s\n", shortID(task.ID), task.Title)
	},
}

// resolveTask finds a task by full id or unique prefix, or exits.
func resolveTask(db *store.DB, ref string) *model.Task {
	tasks, err := db.ListTasks(store.TaskFilter{})
	if err != nil {
		fatal("%v", err)
	}

	var matches []*model.Task
	for _, task := range tasks {
		if task.ID == ref {
			return task
		}
		if strings.HasPrefix(task.ID, ref) {
			matches = append(matches, task)
		}
	}

	switch len(matches) {
	case 1:
		return matches[0]
	case 0:
		fatal("no task matches %q", ref)
	default:
		fatal("%q is ambiguous (%d matches)", ref, len(matches))
	}
	return nil
}

// parseDeadline turns natural language like "tomorrow at 5pm" into a time.
func parseDeadline(text string) (time.Time, error) {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	result, err := w.Parse(text, time.Now())
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse deadline %q: %w", text, err)
	}
	if result == nil {
		return time.Time{}, fmt.Errorf("could not understand deadline %q", text)
	}
	return result.Time, nil
}

// shortID abbreviates a record id for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	addCmd.Flags().StringVarP(&addPriority, "priority", "p", "", "priority: low, medium, high, urgent")
	addCmd.Flags().StringVarP(&addCategory, "category", "c", "", "category name")
	addCmd.Flags().StringVarP(&addDescription, "description", "d", "", "longer description")
	addCmd.Flags().StringVar(&addDue, "due", "", "deadline in natural language")
	addCmd.Flags().StringSliceVarP(&addTags, "tag", "t", nil, "tag (repeatable)")

	listCmd.Flags().StringVarP(&listCategory, "category", "c", "", "filter by category")
	listCmd.Flags().StringVarP(&listStatus, "status", "s", "", "filter by status")
	listCmd.Flags().StringVarP(&listPriority, "priority", "p", "", "filter by priority")
	listCmd.Flags().BoolVarP(&listAll, "all", "a", false, "include completed and archived tasks")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(doneCmd)
	rootCmd.AddCommand(rmCmd)
}
