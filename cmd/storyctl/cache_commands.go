package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the downloaded audio cache",
	}

	cacheCmd.AddCommand(newCacheListCommand(ctx))
	cacheCmd.AddCommand(newCacheSizeCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))
	cacheCmd.AddCommand(newCacheCleanupCommand(ctx))

	return cacheCmd
}

func newCacheListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached audio files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := ctx.cache()
			if err != nil {
				return err
			}
			files, err := cache.List()
			if err != nil {
				return err
			}
			if len(files) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Cache is empty")
				return nil
			}

			rows := make([][]string, 0, len(files))
			for _, f := range files {
				rows = append(rows, []string{f.Name, humanBytes(f.Size), f.ModTime.Local().Format("2006-01-02 15:04")})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"File", "Size", "Modified"}, rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft}))
			return nil
		},
	}
}

func newCacheSizeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "size",
		Short: "Show the total size of the audio cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := ctx.cache()
			if err != nil {
				return err
			}
			size, err := cache.Size()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", humanBytes(size), cache.Dir())
			return nil
		},
	}
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every cached audio file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := ctx.cache()
			if err != nil {
				return err
			}
			if err := cache.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared")
			return nil
		},
	}
}

func newCacheCleanupCommand(ctx *commandContext) *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete cached audio older than the maximum age",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("max-age") {
				maxAge = cfg.AudioCacheMaxAge
			}
			if maxAge <= 0 {
				return fmt.Errorf("max age must be positive")
			}
			cache, err := ctx.cache()
			if err != nil {
				return err
			}
			removed, err := cache.CleanupOlderThan(maxAge, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d file(s) older than %s\n", removed, maxAge)
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Maximum age (defaults to audio_cache_max_age)")
	return cmd
}
