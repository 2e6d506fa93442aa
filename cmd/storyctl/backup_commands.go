package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"storysage/internal/service"
)

func newBackupCommand(ctx *commandContext) *cobra.Command {
	backupCmd := &cobra.Command{
		Use:   "backup",
		Short: "Export and restore listening data",
	}

	backupCmd.AddCommand(newBackupExportCommand(ctx))
	backupCmd.AddCommand(newBackupImportCommand(ctx))

	return backupCmd
}

func newBackupExportCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a JSON backup of progress, settings, achievements and devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := ctx.database(cmd.Context())
			if err != nil {
				return err
			}
			if output == "" {
				output = fmt.Sprintf("storysage_backup_%s.json", time.Now().Format("20060102_150405"))
			}
			if dir := filepath.Dir(output); dir != "." && dir != "" {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("failed to create output directory: %w", err)
				}
			}

			backup, err := service.NewBackupService(db, ctx.ensureLogger()).ExportFile(cmd.Context(), output)
			if err != nil {
				return err
			}
			printBackupSummary(cmd.OutOrStdout(), "Exported", backup)
			fmt.Fprintf(cmd.OutOrStdout(), "File: %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file path (default: storysage_backup_YYYYMMDD_HHMMSS.json)")
	return cmd
}

func newBackupImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Restore a JSON backup into the configured database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := ctx.database(cmd.Context())
			if err != nil {
				return err
			}
			backup, err := service.NewBackupService(db, ctx.ensureLogger()).ImportFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printBackupSummary(cmd.OutOrStdout(), "Imported", backup)
			return nil
		},
	}
}

func printBackupSummary(out io.Writer, verb string, b *service.BackupData) {
	fmt.Fprintf(out, "%s backup version %s (%s, %s)\n", verb, b.Version, b.DatabaseType, b.ExportedAt.Local().Format(time.RFC3339))
	fmt.Fprintln(out, renderTable(
		[]string{"Table", "Rows"},
		[][]string{
			{"progress", fmt.Sprint(len(b.Progress))},
			{"settings", fmt.Sprint(len(b.Settings))},
			{"achievements", fmt.Sprint(len(b.Achievements))},
			{"devices", fmt.Sprint(len(b.Devices))},
		},
		[]columnAlignment{alignLeft, alignRight}))
}
