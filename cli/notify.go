package cli

import (
	"github.com/spf13/cobra"

	"github.com/stevemurr/story-sync/gateway"
	"github.com/stevemurr/story-sync/i18n"
)

// SubscribeOptions holds flags for the subscribe command.
type SubscribeOptions struct {
	*RootOptions
	P256dh string
	Auth   string
}

// NewSubscribeCommand creates the subscribe command.
func NewSubscribeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubscribeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "subscribe <endpoint>",
		Short: "Register a web push endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts.RootOptions, cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			res := a.client.Subscribe(cmd.Context(), args[0], gateway.Keys{P256dh: opts.P256dh, Auth: opts.Auth})
			if !res.OK {
				return a.userError(res.Err)
			}
			return newOutput(opts.RootOptions, cmd.OutOrStdout()).status(true, i18n.T(a.cfg.Locale, i18n.MsgSubscribed))
		},
	}

	cmd.Flags().StringVar(&opts.P256dh, "p256dh", "", "subscription p256dh key")
	cmd.Flags().StringVar(&opts.Auth, "auth", "", "subscription auth secret")

	return cmd
}

// NewUnsubscribeCommand creates the unsubscribe command.
func NewUnsubscribeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unsubscribe <endpoint>",
		Short: "Remove a web push endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(rootOpts, cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			res := a.client.Unsubscribe(cmd.Context(), args[0])
			if !res.OK {
				return a.userError(res.Err)
			}
			return newOutput(rootOpts, cmd.OutOrStdout()).status(true, i18n.T(a.cfg.Locale, i18n.MsgUnsubscribed))
		},
	}
}
