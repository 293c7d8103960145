package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/magnusmanske/mixnmatch-go/internal/storage/mysql"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect catalogs",
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active catalogs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		store, err := mysql.Open(ctx, appConfig.Database.DSN, appConfig.Database.MaxOpenConns)
		if err != nil {
			return fmt.Errorf("catalog list: open storage: %w", err)
		}
		defer store.Close()

		catalogs, err := store.ListActiveCatalogs(ctx)
		if err != nil {
			return fmt.Errorf("catalog list: %w", err)
		}
		for _, c := range catalogs {
			name := ""
			if c.Name != nil {
				name = *c.Name
			}
			fmt.Printf("%d\t%s\n", c.ID, name)
		}
		return nil
	},
}

func init() {
	catalogCmd.AddCommand(catalogListCmd)
	rootCmd.AddCommand(catalogCmd)
}
