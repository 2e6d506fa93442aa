package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"storysage/internal/models"
	"storysage/internal/repository"
	"storysage/internal/service"
)

func newProgressCommand(ctx *commandContext) *cobra.Command {
	progressCmd := &cobra.Command{
		Use:   "progress",
		Short: "Inspect a listener's progress",
	}

	progressCmd.AddCommand(newProgressStatsCommand(ctx))
	progressCmd.AddCommand(newProgressRecentCommand(ctx))

	return progressCmd
}

func (c *commandContext) progressService(cmd *cobra.Command) (*service.ProgressService, error) {
	db, err := c.database(cmd.Context())
	if err != nil {
		return nil, err
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return service.NewProgressService(db, repository.NewProgressRepository(db), loc, c.ensureLogger()), nil
}

func newProgressStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats [user-id]",
		Short: "Show listening statistics",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := ctx.userID(args)
			if err != nil {
				return err
			}
			svc, err := ctx.progressService(cmd)
			if err != nil {
				return err
			}
			stats, err := svc.ComputeStatistics(cmd.Context(), userID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "User:            %s\n", userID)
			fmt.Fprintf(out, "Stories started: %d\n", stats.TotalStoriesListened)
			fmt.Fprintf(out, "Completed:       %d\n", stats.CompletedStories)
			fmt.Fprintf(out, "Favorites:       %d\n", stats.FavoriteStories)
			fmt.Fprintf(out, "Listening time:  %s\n", stats.FormattedListeningTime())
			fmt.Fprintf(out, "Streak:          %d (longest %d)\n", stats.CurrentStreak, stats.LongestStreak)
			return nil
		},
	}
}

func newProgressRecentCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "recent [user-id]",
		Short: "List recently played stories",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := ctx.userID(args)
			if err != nil {
				return err
			}
			svc, err := ctx.progressService(cmd)
			if err != nil {
				return err
			}
			records, err := svc.ListRecentlyPlayed(cmd.Context(), userID, limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No stories played yet")
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, r := range records {
				played := ""
				if r.LastPlayedAt != nil {
					played = r.LastPlayedAt.Local().Format("2006-01-02 15:04")
				}
				rows = append(rows, []string{
					r.StoryID,
					models.FormatClock(r.PlaybackPosition),
					strconv.Itoa(r.PlayCount),
					yesNo(r.IsCompleted),
					yesNo(r.IsFavorite),
					played,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Story", "Position", "Plays", "Done", "Fav", "Last Played"}, rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft, alignLeft, alignLeft}))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of stories")
	return cmd
}

// userID returns the positional user id or the configured default user.
func (c *commandContext) userID(args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	return cfg.DefaultUserID, nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
