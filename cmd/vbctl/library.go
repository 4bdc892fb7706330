package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"text/tabwriter"

	"github.com/PortNumber53/tubeshelf/backend/internal/client"
	"github.com/PortNumber53/tubeshelf/backend/internal/models"
	"github.com/spf13/cobra"
)

func (a *app) categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "categories", Short: "Manage categories"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List categories",
			RunE: func(cmd *cobra.Command, args []string) error {
				names, err := a.api.ListCategories(cmd.Context())
				if err != nil {
					return err
				}
				for _, n := range names {
					a.printf("%s\n", n)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "add <name>",
			Short: "Add a category",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.api.AddCategory(cmd.Context(), args[0]); err != nil {
					return err
				}
				a.printf("Added %s\n", strings.TrimSpace(args[0]))
				return nil
			},
		},
		&cobra.Command{
			Use:   "rm <name>",
			Short: "Delete a category; its videos move to Uncategorized",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := a.api.DeleteCategory(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				a.printf("Deleted %s, %d videos moved to %s\n", args[0], n, models.Uncategorized)
				return nil
			},
		},
	)
	return cmd
}

func (a *app) planCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "plan", Short: "Show and pick plans"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List plans and current usage",
			RunE: func(cmd *cobra.Command, args []string) error {
				tiers, err := a.api.Plans(cmd.Context())
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "PLAN\tUPLOADS/MONTH\tPRICE")
				for _, t := range tiers {
					limit := fmt.Sprint(t.MonthlyUploadLimit)
					if t.MonthlyUploadLimit >= models.UnlimitedUploads {
						limit = "unlimited"
					}
					fmt.Fprintf(tw, "%s\t%s\t%d.%02d %s\n", t.ID, limit, t.PriceCents/100, t.PriceCents%100, strings.ToUpper(t.Currency))
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				p, err := a.api.Profile(cmd.Context())
				var ae *client.APIError
				if errors.As(err, &ae) && ae.Status == http.StatusUnauthorized {
					return nil
				}
				if err != nil {
					return err
				}
				if p.Profile != nil {
					remaining := fmt.Sprint(p.RemainingUploads)
					if p.Unlimited {
						remaining = "unlimited"
					}
					a.printf("\nCurrent plan: %s, %s uploads left this month\n", p.Profile.PlanType, remaining)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "select <free|basic|premium>",
			Short: "Pick a plan; paid plans open checkout",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				sel, err := a.api.SelectPlan(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				switch sel.Kind {
				case "auth_required":
					a.printf("Sign in first: vbctl signin --plan %s\n", sel.Plan)
					return a.store.SetLastPath(sel.RedirectURL)
				case "checkout_redirect":
					a.printf("Complete checkout at %s\n", sel.RedirectURL)
				default:
					a.printf("Plan set to %s\n", sel.Plan)
				}
				return nil
			},
		},
	)
	return cmd
}

func (a *app) commentsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "comments", Short: "Comments kept on this device"}
	var author string
	add := &cobra.Command{
		Use:   "add <video-id> <text>",
		Short: "Comment on a video",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.store.AddComment(args[0], author, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			a.printf("Added comment %s\n", c.ID)
			return nil
		},
	}
	add.Flags().StringVar(&author, "author", "", "name shown with the comment")

	cmd.AddCommand(add, &cobra.Command{
		Use:   "list <video-id>",
		Short: "List a video's comments, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cs, err := a.store.Comments(args[0])
			if err != nil {
				return err
			}
			for _, c := range cs {
				a.printf("%s  %s: %s\n", c.Timestamp.Local().Format("2006-01-02 15:04"), c.Author, c.Text)
			}
			return nil
		},
	})
	return cmd
}

func (a *app) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow library changes live until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			list, err := a.api.ListVideos(ctx, client.ListFilter{})
			if err != nil {
				return err
			}
			if err := printVideos(a.out, list); err != nil {
				return err
			}
			err = a.api.Watch(ctx, list, client.WatchHandler{
				OnVideos: func(l []models.Video) {
					a.printf("\n")
					_ = printVideos(a.out, l)
				},
				OnCategory: func(ch models.ChangeType, c models.Category) {
					a.printf("category %s: %s\n", strings.ToLower(string(ch)), c.Name)
				},
				OnNavigate: func(path string) {
					a.printf("navigated to %s\n", path)
					if err := a.store.SetLastPath(path); err != nil {
						a.log.Warn().Err(err).Msg("could not store last path")
					}
				},
			})
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}
