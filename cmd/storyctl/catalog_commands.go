package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"storysage/internal/models"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Browse the packaged story catalog",
	}

	catalogCmd.AddCommand(newCatalogCategoriesCommand(ctx))
	catalogCmd.AddCommand(newCatalogStoriesCommand(ctx))
	catalogCmd.AddCommand(newCatalogStoryCommand(ctx))

	return catalogCmd
}

func newCatalogCategoriesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List categories with per-grade story counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := ctx.catalog()
			if err != nil {
				return err
			}
			cat, err := repo.Load(cmd.Context())
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			}
			if cat == nil {
				return err
			}

			rows := make([][]string, 0, len(cat.Categories))
			for _, c := range cat.Categories {
				rows = append(rows, []string{c.ID, c.Name, c.GradeLevel.DisplayName(), strconv.Itoa(c.StoryCount)})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Source: %s\n", cat.Source)
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Name", "Grade", "Stories"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight}))
			return nil
		},
	}
}

func newCatalogStoriesCommand(ctx *commandContext) *cobra.Command {
	var category, grade string

	cmd := &cobra.Command{
		Use:   "stories",
		Short: "List stories, optionally filtered by category and grade",
		RunE: func(cmd *cobra.Command, args []string) error {
			g := models.GradeLevel(strings.TrimSpace(grade))
			if g != "" && !g.Valid() {
				return fmt.Errorf("unknown grade level %q", grade)
			}
			repo, err := ctx.catalog()
			if err != nil {
				return err
			}
			stories, err := repo.Stories(cmd.Context(), strings.TrimSpace(category), g)
			if err != nil {
				return err
			}
			if len(stories) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No stories found")
				return nil
			}

			rows := make([][]string, 0, len(stories))
			for _, s := range stories {
				rows = append(rows, []string{s.ID, s.Title, s.Category, string(s.GradeLevel), s.FormattedDuration()})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Title", "Category", "Grade", "Duration"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight}))
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "Category id")
	cmd.Flags().StringVar(&grade, "grade", "", "Grade level (e.g. grade_k)")
	return cmd
}

func newCatalogStoryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "story <id>",
		Short: "Show one story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := ctx.catalog()
			if err != nil {
				return err
			}
			story, err := repo.Story(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n", story.Title)
			fmt.Fprintf(out, "  ID:        %s\n", story.ID)
			fmt.Fprintf(out, "  Category:  %s\n", story.Category)
			fmt.Fprintf(out, "  Grade:     %s (%s)\n", story.GradeLevel.DisplayName(), story.GradeLevel.AgeRange())
			fmt.Fprintf(out, "  Duration:  %s\n", story.FormattedDuration())
			if story.AudioRef != "" {
				fmt.Fprintf(out, "  Audio:     %s\n", story.AudioRef)
			}
			if len(story.KeyLessons) > 0 {
				fmt.Fprintf(out, "  Lessons:   %s\n", strings.Join(story.KeyLessons, ", "))
			}
			if story.Description != "" {
				fmt.Fprintf(out, "\n%s\n", story.Description)
			}
			return nil
		},
	}
}
