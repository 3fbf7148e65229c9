package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"tottales/internal/api"
	"tottales/internal/store"
)

func newStoriesCommand(ctx *commandContext) *cobra.Command {
	storiesCmd := &cobra.Command{
		Use:   "stories",
		Short: "Create and inspect generated storybooks",
	}

	storiesCmd.AddCommand(newStoriesListCommand(ctx))
	storiesCmd.AddCommand(newStoriesShowCommand(ctx))
	storiesCmd.AddCommand(newStoriesCreateCommand(ctx))
	storiesCmd.AddCommand(newStoriesRegenerateCommand(ctx))
	storiesCmd.AddCommand(newStoriesDeleteCommand(ctx))

	return storiesCmd
}

func newStoriesListCommand(ctx *commandContext) *cobra.Command {
	var childID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stories",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			stories, err := client.ListStories(cmd.Context(), childID)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, api.StoryListResponse{Stories: stories})
			}

			stdout := cmd.OutOrStdout()
			if len(stories) == 0 {
				fmt.Fprintln(stdout, "No stories yet")
				return nil
			}

			rows := make([][]string, 0, len(stories))
			for _, story := range stories {
				rows = append(rows, []string{
					story.ID,
					story.Title,
					story.Status,
					strconv.Itoa(story.PageCount),
					story.CreatedAt.Local().Format("2006-01-02 15:04"),
				})
			}
			fmt.Fprintln(stdout, renderTable(
				[]string{"ID", "Title", "Status", "Pages", "Created"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&childID, "child", "", "Only show stories for this child ID")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit machine-readable JSON")
	return cmd
}

func newStoriesShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <story-id>",
		Short: "Show a story with its pages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			story, err := client.GetStory(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, story)
			}

			stdout := cmd.OutOrStdout()
			fmt.Fprintf(stdout, "%s (%s)\n", story.Title, story.ID)
			fmt.Fprintf(stdout, "Status: %s\n", story.Status)
			if story.Status == string(store.StoryStatusGenerating) {
				fmt.Fprintf(stdout, "Progress: %s (%d/%d pages)\n",
					story.Progress.Stage, story.Progress.PagesDone, story.Progress.PagesTotal)
			}
			if story.ErrorMessage != "" {
				fmt.Fprintf(stdout, "Error: %s\n", story.ErrorMessage)
			}
			if story.CoverImageURL != "" {
				fmt.Fprintf(stdout, "Cover: %s\n", story.CoverImageURL)
			}
			if story.CompletedAt != nil {
				fmt.Fprintf(stdout, "Completed: %s\n", story.CompletedAt.Local().Format("2006-01-02 15:04"))
			}

			if len(story.Pages) == 0 {
				return nil
			}
			rows := make([][]string, 0, len(story.Pages))
			for _, page := range story.Pages {
				rows = append(rows, []string{
					strconv.Itoa(page.PageNumber),
					page.Status,
					truncateText(page.Text, 60),
					page.ImageURL,
				})
			}
			fmt.Fprintln(stdout, renderTable(
				[]string{"Page", "Status", "Text", "Image"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit machine-readable JSON")
	return cmd
}

func newStoriesCreateCommand(ctx *commandContext) *cobra.Command {
	var (
		childID string
		themeID string
		styleID string
		pages   int
		title   string
		wait    bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Request a new story",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.CreateStory(cmd.Context(), api.CreateStoryRequest{
				ChildID:    childID,
				ThemeID:    themeID,
				ArtStyleID: styleID,
				PageCount:  pages,
				Title:      title,
			})
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			fmt.Fprintf(stdout, "Story %s accepted (%s)\n", resp.StoryID, resp.Status)
			if !wait {
				return nil
			}
			return waitForStory(cmd, client, resp.StoryID)
		},
	}

	cmd.Flags().StringVar(&childID, "child", "", "Child profile ID")
	cmd.Flags().StringVar(&themeID, "theme", "", "Theme ID")
	cmd.Flags().StringVar(&styleID, "style", "", "Art style ID")
	cmd.Flags().IntVar(&pages, "pages", 0, "Page count (daemon default when omitted)")
	cmd.Flags().StringVar(&title, "title", "", "Optional story title")
	cmd.Flags().BoolVar(&wait, "wait", false, "Block until generation finishes")
	_ = cmd.MarkFlagRequired("child")
	_ = cmd.MarkFlagRequired("theme")
	_ = cmd.MarkFlagRequired("style")
	return cmd
}

// waitForStory polls the daemon until the story reaches a terminal status,
// printing stage transitions along the way.
func waitForStory(cmd *cobra.Command, client *api.Client, storyID string) error {
	stdout := cmd.OutOrStdout()
	lastStage := ""
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		case <-ticker.C:
		}

		story, err := client.GetStory(cmd.Context(), storyID)
		if err != nil {
			return err
		}
		if story.Progress.Stage != "" && story.Progress.Stage != lastStage {
			lastStage = story.Progress.Stage
			fmt.Fprintf(stdout, "  %s (%d/%d pages)\n",
				lastStage, story.Progress.PagesDone, story.Progress.PagesTotal)
		}
		switch story.Status {
		case string(store.StoryStatusCompleted):
			fmt.Fprintf(stdout, "Story %q completed\n", story.Title)
			return nil
		case string(store.StoryStatusFailed):
			return fmt.Errorf("story generation failed: %s", story.ErrorMessage)
		}
	}
}

func newStoriesRegenerateCommand(ctx *commandContext) *cobra.Command {
	var content bool

	cmd := &cobra.Command{
		Use:   "regenerate <story-id> <page>",
		Short: "Regenerate one page's illustration or content",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pageNumber, err := strconv.Atoi(args[1])
			if err != nil || pageNumber < 1 {
				return fmt.Errorf("invalid page number %q", args[1])
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}

			mode := "illustration"
			if content {
				mode = "content"
			}
			if err := client.RegeneratePage(cmd.Context(), args[0], pageNumber, mode); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Regenerated page %d of story %s\n", pageNumber, args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&content, "content", false, "Rewrite the page text before re-illustrating")
	return cmd
}

func newStoriesDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <story-id>",
		Short: "Delete a story and its stored images",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.DeleteStory(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted story %s\n", args[0])
			return nil
		},
	}
}

func truncateText(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
