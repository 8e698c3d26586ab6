package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/stevemurr/story-sync/feed"
	"github.com/stevemurr/story-sync/i18n"
	"github.com/stevemurr/story-sync/report"
)

// NewFeedCommand creates the feed command.
func NewFeedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "feed",
		Short: "Show the story feed, from the server or the local cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(rootOpts, cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			out := a.feed.Load(cmd.Context())
			return a.showOutcome(cmd, rootOpts, out)
		},
	}
}

// showOutcome prints a load outcome. Degraded outcomes exit with ExitDegraded.
func (a *app) showOutcome(cmd *cobra.Command, rootOpts *RootOptions, out feed.Outcome) error {
	if out.Status == feed.Degraded {
		a.logger.Debug("feed degraded", "remote_error", out.RemoteErr, "cache_error", out.CacheErr)
		return &ExitError{Code: ExitDegraded, Message: i18n.T(a.cfg.Locale, i18n.MsgDegraded), Err: out.RemoteErr}
	}
	if out.Source == feed.SourceCache {
		a.logger.Warn("showing cached stories", "reason", i18n.Error(a.cfg.Locale, out.RemoteErr))
	}
	isSaved := func(id string) bool { return a.feed.IsSaved(cmd.Context(), id) }
	return newOutput(rootOpts, cmd.OutOrStdout()).reports(i18n.T(a.cfg.Locale, i18n.MsgFeedTitle), out.Reports, isSaved)
}

// PostOptions holds flags for the post command.
type PostOptions struct {
	*RootOptions
	Description string
	Photo       string
	Lat         float64
	Lon         float64
}

// NewPostCommand creates the post command.
func NewPostCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PostOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "post",
		Short: "Upload a new story and refresh the feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts.RootOptions, cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			draft := report.Draft{Description: opts.Description}
			if opts.Photo != "" {
				f, err := os.Open(opts.Photo)
				if err != nil {
					return a.userMessage(i18n.MsgPhotoUnreadable, fmt.Errorf("open photo: %w", err))
				}
				defer f.Close()
				draft.Photo = f
				draft.PhotoName = filepath.Base(opts.Photo)
			}
			if cmd.Flags().Changed("lat") {
				draft.Lat = report.Float(opts.Lat)
			}
			if cmd.Flags().Changed("lon") {
				draft.Lon = report.Float(opts.Lon)
			}

			out, err := a.feed.Post(cmd.Context(), draft)
			if err != nil {
				return a.userError(err)
			}
			a.logger.Info(i18n.T(a.cfg.Locale, i18n.MsgPosted))
			return a.showOutcome(cmd, opts.RootOptions, out)
		},
	}

	cmd.Flags().StringVarP(&opts.Description, "description", "d", "", "story text")
	cmd.Flags().StringVarP(&opts.Photo, "photo", "p", "", "path to the photo")
	cmd.Flags().Float64Var(&opts.Lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&opts.Lon, "lon", 0, "longitude")

	return cmd
}

// NewSaveCommand creates the save command.
func NewSaveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "save <id>",
		Short: "Save a story for offline reading",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(rootOpts, cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.feed.Save(cmd.Context(), args[0]); err != nil {
				return a.userError(err)
			}
			return newOutput(rootOpts, cmd.OutOrStdout()).status(true, i18n.T(a.cfg.Locale, i18n.MsgSaved))
		},
	}
}

// NewUnsaveCommand creates the unsave command.
func NewUnsaveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unsave <id>",
		Short: "Remove a story from the saved list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(rootOpts, cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.feed.Unsave(cmd.Context(), args[0]); err != nil {
				return a.userError(err)
			}
			return newOutput(rootOpts, cmd.OutOrStdout()).status(true, i18n.T(a.cfg.Locale, i18n.MsgUnsaved))
		},
	}
}

// NewSavedCommand creates the saved command.
func NewSavedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "saved",
		Short: "List saved stories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(rootOpts, cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			saved, err := a.feed.ListSaved(cmd.Context())
			if err != nil {
				return a.userError(err)
			}
			o := newOutput(rootOpts, cmd.OutOrStdout())
			if len(saved) == 0 && o.format == "text" {
				fmt.Fprintln(cmd.OutOrStdout(), i18n.T(a.cfg.Locale, i18n.MsgNoSaved))
				return nil
			}
			return o.reports(i18n.T(a.cfg.Locale, i18n.MsgFeedTitle), saved, nil)
		},
	}
}
