package main

import (
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"tottales/internal/api"
)

func newChildrenCommand(ctx *commandContext) *cobra.Command {
	childrenCmd := &cobra.Command{
		Use:   "children",
		Short: "Manage child profiles",
	}

	childrenCmd.AddCommand(newChildrenListCommand(ctx))
	childrenCmd.AddCommand(newChildrenAddCommand(ctx))
	childrenCmd.AddCommand(newChildrenAddPhotoCommand(ctx))

	return childrenCmd
}

func newChildrenListCommand(ctx *commandContext) *cobra.Command {
	var userID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List child profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			children, err := client.ListChildren(cmd.Context(), userID)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, api.ChildListResponse{Children: children})
			}

			stdout := cmd.OutOrStdout()
			if len(children) == 0 {
				fmt.Fprintln(stdout, "No child profiles yet")
				return nil
			}

			rows := make([][]string, 0, len(children))
			for _, child := range children {
				rows = append(rows, []string{
					child.ID,
					child.Name,
					strconv.Itoa(child.Age),
					strconv.Itoa(len(child.PhotoURLs)),
					yesNo(child.CharacterDescription != ""),
				})
			}
			fmt.Fprintln(stdout, renderTable(
				[]string{"ID", "Name", "Age", "Photos", "Analyzed"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "Only show profiles for this user ID")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit machine-readable JSON")
	return cmd
}

func newChildrenAddCommand(ctx *commandContext) *cobra.Command {
	var (
		userID string
		name   string
		age    int
		gender string
		photos []string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a child profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			child, err := client.AddChild(cmd.Context(), api.AddChildRequest{
				UserID:    userID,
				Name:      name,
				Age:       age,
				Gender:    gender,
				PhotoURLs: photos,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added child %s (%s)\n", child.Name, child.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "Owning user ID")
	cmd.Flags().StringVar(&name, "name", "", "Child's name")
	cmd.Flags().IntVar(&age, "age", 0, "Child's age in years")
	cmd.Flags().StringVar(&gender, "gender", "", "Child's gender, used in story prompts")
	cmd.Flags().StringArrayVar(&photos, "photo", nil, "Reference photo URL (repeatable)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newChildrenAddPhotoCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add-photo <child-id> <file>",
		Short: "Upload a reference photo for a child",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read photo %q: %w", args[1], err)
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			child, err := client.AddChildPhoto(cmd.Context(), args[0], data, http.DetectContentType(data))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded photo %d for %s\n", len(child.PhotoURLs), child.Name)
			return nil
		},
	}
}
