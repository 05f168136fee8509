package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/localsync/tasksync/internal/model"
)

var (
	categoryColor string
	categoryIcon  string
)

var categoryCmd = &cobra.Command{
	Use:   "category",
	Short: "Manage task categories",
}

var categoryAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a category",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		db := openDatabase(cfg)
		defer db.Close()
		c := newController(cfg, db)
		defer c.Close()

		category := model.NewCategory(args[0])
		if categoryColor != "" {
			category.Color = categoryColor
		}
		if categoryIcon != "" {
			category.Icon = categoryIcon
		}

		if err := c.CreateCategory(context.Background(), category); err != nil {
			fatal("%v", err)
		}

		fmt.Printf("Added category %s (%s)\n", category.Name, category.Color)
	},
}

var categoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List categories",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		db := openDatabase(cfg)
		defer db.Close()

		categories, err := db.ListCategories(context.Background())
		if err != nil {
			fatal("%v", err)
		}
		if len(categories) == 0 {
			fmt.Println("No categories.")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tCOLOR\tICON\tID")
		for _, category := range categories {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				category.Name, category.Color, category.Icon, shortID(category.ID))
		}
		w.Flush()
	},
}

var categoryRmCmd = &cobra.Command{
	Use:   "rm <name>",
	Short: "Delete a category",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		db := openDatabase(cfg)
		defer db.Close()
		c := newController(cfg, db)
		defer c.Close()

		categories, err := db.ListCategories(context.Background())
		if err != nil {
			fatal("%v", err)
		}
		for _, category := range categories {
			if category.Name == args[0] {
				if err := c.DeleteCategory(context.Background(), category.ID); err != nil {
					fatal("%v", err)
				}
				fmt.Printf("Deleted category %s\n", category.Name)
				return
			}
		}
		fatal("no category named %q", args[0])
	},
}

func init() {
	categoryAddCmd.Flags().StringVar(&categoryColor, "color", "", "hex color, e.g. #FF5733")
	categoryAddCmd.Flags().StringVar(&categoryIcon, "icon", "", "display icon")

	categoryCmd.AddCommand(categoryAddCmd)
	categoryCmd.AddCommand(categoryListCmd)
	categoryCmd.AddCommand(categoryRmCmd)
	rootCmd.AddCommand(categoryCmd)
}
