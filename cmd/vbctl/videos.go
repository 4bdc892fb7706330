package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/PortNumber53/tubeshelf/backend/internal/client"
	"github.com/PortNumber53/tubeshelf/backend/internal/localstore"
	"github.com/PortNumber53/tubeshelf/backend/internal/models"
	"github.com/spf13/cobra"
)

func printVideos(w io.Writer, list []models.Video) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tCATEGORY\tFAV\tADDED")
	for _, v := range list {
		fav := ""
		if v.IsFavorite {
			fav = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", v.ID, v.Title, v.Category, fav, v.UploadDate.Format("2006-01-02"))
	}
	return tw.Flush()
}

func (a *app) videosCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "videos", Short: "Manage the video library"}

	var filter client.ListFilter
	list := &cobra.Command{
		Use:   "list",
		Short: "List videos, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			vs, err := a.api.ListVideos(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return printVideos(a.out, vs)
		},
	}
	list.Flags().StringVar(&filter.Category, "category", "", "only this category")
	list.Flags().BoolVar(&filter.Favorites, "favorites", false, "only favorites")

	search := &cobra.Command{
		Use:   "search <query>",
		Short: "Search titles, descriptions and categories",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vs, err := a.api.ListVideos(cmd.Context(), client.ListFilter{Query: args[0]})
			if err != nil {
				return err
			}
			return printVideos(a.out, vs)
		},
	}

	cmd.AddCommand(list, search, a.addVideoCmd(), a.editVideoCmd(),
		&cobra.Command{
			Use:   "rm <id>",
			Short: "Delete a video",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.api.DeleteVideo(cmd.Context(), args[0]); err != nil {
					return err
				}
				a.printf("Deleted %s\n", args[0])
				return a.store.Delete(localstore.EditDraftKey(args[0]))
			},
		},
		&cobra.Command{
			Use:   "fav <id>",
			Short: "Toggle a video's favorite flag",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := a.api.ToggleFavorite(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				a.printf("%s favorite=%t\n", v.ID, v.IsFavorite)
				return nil
			},
		},
	)
	return cmd
}

// draftFlags overlays command-line values on a stored draft.
type draftFlags struct {
	title, url, description, category, newCategory string
}

func (f *draftFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "video title")
	cmd.Flags().StringVar(&f.url, "url", "", "YouTube URL")
	cmd.Flags().StringVar(&f.description, "description", "", "description")
	cmd.Flags().StringVar(&f.category, "category", "", "existing category")
	cmd.Flags().StringVar(&f.newCategory, "new-category", "", "create and use this category")
}

func (f *draftFlags) apply(d *localstore.Draft) {
	if f.title != "" {
		d.Title = f.title
	}
	if f.url != "" {
		d.VideoURL = f.url
	}
	if f.description != "" {
		d.Description = f.description
	}
	if f.category != "" {
		d.Category = f.category
	}
	if f.newCategory != "" {
		d.NewCategory = f.newCategory
	}
}

// loadDraft returns the stored draft at key, or an empty one.
func (a *app) loadDraft(key string) (localstore.Draft, error) {
	var d localstore.Draft
	err := a.store.GetJSON(key, &d)
	if err != nil && !errors.Is(err, localstore.ErrNotFound) {
		return d, err
	}
	return d, nil
}

// submitDraft runs submit and keeps the draft when it fails so the next
// attempt starts from it.
func (a *app) submitDraft(key string, d localstore.Draft, submit func() error) error {
	if err := submit(); err != nil {
		if serr := a.store.SetJSON(key, d); serr != nil {
			a.log.Warn().Err(serr).Str("key", key).Msg("could not keep draft")
		}
		if client.IsCode(err, "upload_limit_reached") {
			return fmt.Errorf("%w (see vbctl plan list)", err)
		}
		return err
	}
	return a.store.Delete(key)
}

func (a *app) addVideoCmd() *cobra.Command {
	var f draftFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a YouTube video, resuming any saved upload draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.loadDraft(localstore.KeyUploadDraft)
			if err != nil {
				return err
			}
			f.apply(&d)
			nv := client.NewVideo{Title: d.Title, VideoURL: d.VideoURL, Category: d.Category, NewCategory: d.NewCategory}
			if d.Description != "" {
				desc := d.Description
				nv.Description = &desc
			}
			return a.submitDraft(localstore.KeyUploadDraft, d, func() error {
				v, err := a.api.CreateVideo(cmd.Context(), nv)
				if err != nil {
					return err
				}
				a.printf("Added %s\n", v.ID)
				return nil
			})
		},
	}
	f.bind(cmd)
	return cmd
}

func (a *app) editVideoCmd() *cobra.Command {
	var f draftFlags
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit a video, resuming any saved edit draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := localstore.EditDraftKey(args[0])
			v, err := a.api.GetVideo(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			d, err := a.loadDraft(key)
			if err != nil {
				return err
			}
			if d == (localstore.Draft{}) {
				d = localstore.Draft{Title: v.Title, VideoURL: v.VideoURL, Category: v.Category}
				if v.Description != nil {
					d.Description = *v.Description
				}
			}
			f.apply(&d)
			v.Title, v.VideoURL, v.Category = d.Title, d.VideoURL, d.Category
			if d.Description != "" {
				desc := d.Description
				v.Description = &desc
			}
			return a.submitDraft(key, d, func() error {
				saved, err := a.api.UpdateVideo(cmd.Context(), v)
				if err != nil {
					return err
				}
				a.printf("Saved %s\n", saved.ID)
				return nil
			})
		},
	}
	f.bind(cmd)
	return cmd
}
