package main

import (
	"context"
	"fmt"
	"os"

	"github.com/AngeKano/repfi/config"
	"github.com/AngeKano/repfi/ledger"
	"github.com/AngeKano/repfi/models"
	"github.com/AngeKano/repfi/utils"
	"github.com/AngeKano/repfi/workflow"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// connectDB is replaced in tests.
var connectDB = func() *gorm.DB {
	config.ConnectDatabaseWithRetry()
	return config.GetDB()
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "comptable-cli",
		Short: "Operator tools for comptable batches",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newExtractPeriodCommand(),
		newDetectCategoryCommand(),
		newStoragePrefixCommand(),
		newReplayOutboxCommand(),
		newSeedClientCommand(),
	)
	return rootCmd
}

func newExtractPeriodCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "extract-period <file.xlsx>...",
		Short: "Print the period of each ledger export and whether they agree",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			var first *ledger.Period
			agree := true
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("reading %s: %w", path, err)
				}
				p, err := ledger.ExtractPeriodFromBytes(data)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				fmt.Fprintf(out, "%s\t%s\n", path, p)
				if first == nil {
					first = &p
				} else if !ledger.Reconcile(*first, p) {
					agree = false
				}
			}
			if len(args) > 1 {
				if agree {
					fmt.Fprintln(out, "periods match")
				} else {
					fmt.Fprintln(out, "periods differ")
					return fmt.Errorf("ledger periods differ")
				}
			}
			return nil
		},
	}
}

func newDetectCategoryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "detect-category <file name>...",
		Short: "Guess the comptable category from a file name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range args {
				code, ok := ledger.DetectCategory(name)
				if !ok {
					code = "unknown"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", name, code)
			}
			return nil
		},
	}
}

func newStoragePrefixCommand() *cobra.Command {
	var clientId, start, end string

	cmd := &cobra.Command{
		Use:   "storage-prefix",
		Short: "Print the object store prefix of a client period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ledger.ParseFrenchDate(start)
			if err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			e, err := ledger.ParseFrenchDate(end)
			if err != nil {
				return fmt.Errorf("--end: %w", err)
			}
			p := ledger.Period{Start: s, End: e}
			if !p.Valid() {
				return fmt.Errorf("end %s is before start %s", end, start)
			}
			fmt.Fprintln(cmd.OutOrStdout(), workflow.StoragePrefix(clientId, p))
			return nil
		},
	}

	cmd.Flags().StringVar(&clientId, "client", "", "client id (required)")
	cmd.Flags().StringVar(&start, "start", "", "period start, DD/MM/YYYY (required)")
	cmd.Flags().StringVar(&end, "end", "", "period end, DD/MM/YYYY (required)")
	_ = cmd.MarkFlagRequired("client")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func newReplayOutboxCommand() *cobra.Command {
	var batchId string

	cmd := &cobra.Command{
		Use:   "replay-outbox",
		Short: "Requeue DEAD and FAILED lifecycle events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db := connectDB()
			if db == nil {
				return fmt.Errorf("database not initialized; set DB_* env vars")
			}
			ctx := utils.SetSkipTenantScopeInContext(context.Background(), true)
			n, err := models.ReplayOutbox(ctx, db, batchId)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requeued %d event(s)\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&batchId, "batch", "", "only this batch (default: all)")
	return cmd
}

func newSeedClientCommand() *cobra.Command {
	var companyId, name string

	cmd := &cobra.Command{
		Use:   "seed-client",
		Short: "Create a client for a company (development databases)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db := connectDB()
			if db == nil {
				return fmt.Errorf("database not initialized; set DB_* env vars")
			}
			if err := models.AutoMigrate(db); err != nil {
				return err
			}
			client := models.Client{CompanyId: companyId, Name: name}
			if err := db.WithContext(context.Background()).Create(&client).Error; err != nil {
				return fmt.Errorf("creating client: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), client.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&companyId, "company", "", "company id (required)")
	cmd.Flags().StringVar(&name, "name", "", "client name (required)")
	_ = cmd.MarkFlagRequired("company")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
