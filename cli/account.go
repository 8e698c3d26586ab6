package cli

import (
	"github.com/spf13/cobra"

	"github.com/stevemurr/story-sync/i18n"
)

// AccountOptions holds flags for register and login.
type AccountOptions struct {
	*RootOptions
	Name     string
	Email    string
	Password string
}

// NewRegisterCommand creates the register command.
func NewRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AccountOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts.RootOptions, cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			res := a.client.Register(cmd.Context(), opts.Name, opts.Email, opts.Password)
			if !res.OK {
				return a.userError(res.Err)
			}
			return newOutput(opts.RootOptions, cmd.OutOrStdout()).status(true, i18n.T(a.cfg.Locale, i18n.MsgRegistered))
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Email, "email", "", "account email")
	cmd.Flags().StringVar(&opts.Password, "password", "", "account password")

	return cmd
}

// NewLoginCommand creates the login command. The token is stored in the data
// directory and sent with every later request.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AccountOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts.RootOptions, cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			res := a.client.Login(cmd.Context(), opts.Email, opts.Password)
			if !res.OK {
				return a.userError(res.Err)
			}
			if err := a.tokens.SetToken(res.Data); err != nil {
				return a.userError(err)
			}
			return newOutput(opts.RootOptions, cmd.OutOrStdout()).status(true, i18n.T(a.cfg.Locale, i18n.MsgLoggedIn))
		},
	}

	cmd.Flags().StringVar(&opts.Email, "email", "", "account email")
	cmd.Flags().StringVar(&opts.Password, "password", "", "account password")

	return cmd
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(rootOpts, cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.tokens.Clear(); err != nil {
				return a.userError(err)
			}
			return newOutput(rootOpts, cmd.OutOrStdout()).status(true, i18n.T(a.cfg.Locale, i18n.MsgLoggedOut))
		},
	}
}
