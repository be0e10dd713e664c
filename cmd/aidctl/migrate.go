package main

import (
	"fmt"

	"aidflow-backend/repository"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database tables and indexes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		err = repository.Migrate(ctx, db, func(step string) {
			fmt.Printf("✓ %s\n", step)
		})
		if err != nil {
			return err
		}
		fmt.Println("Schema is up to date")
		return nil
	},
}
