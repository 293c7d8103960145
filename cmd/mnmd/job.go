package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/magnusmanske/mixnmatch-go/internal/jobqueue"
	"github.com/magnusmanske/mixnmatch-go/internal/storage/mysql"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Inspect and enqueue jobs",
}

var jobQueueCmd = &cobra.Command{
	Use:   "queue <catalog-id> <action>",
	Short: "Upsert a follow-up job by (catalog, action), the same operation matchers use to chain work",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		var catalogID int64
		if _, err := fmt.Sscanf(args[0], "%d", &catalogID); err != nil {
			return fmt.Errorf("job queue: invalid catalog id %q: %w", args[0], err)
		}
		action := args[1]

		store, err := mysql.Open(ctx, appConfig.Database.DSN, appConfig.Database.MaxOpenConns)
		if err != nil {
			return fmt.Errorf("job queue: open storage: %w", err)
		}
		defer store.Close()

		queue := jobqueue.New(store, appConfig.ResolvedTaskSizes())
		jobID, err := queue.QueueSimpleJob(ctx, catalogID, action, nil)
		if err != nil {
			return fmt.Errorf("job queue: %w", err)
		}
		fmt.Printf("queued job %d (catalog %d, action %s)\n", jobID, catalogID, action)
		return nil
	},
}

func init() {
	jobCmd.AddCommand(jobQueueCmd)
	rootCmd.AddCommand(jobCmd)
}
