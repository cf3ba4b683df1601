package main

import (
	"context"
	"errors"

	"github.com/brizzai/drinklog/internal/auth"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newLoginCmd() *cobra.Command {
	var (
		password    string
		signup      bool
		name        string
		provider    string
		token       string
		noAutoLogin bool
	)

	cmd := &cobra.Command{
		Use:   "login [identifier]",
		Short: "Sign in and store the credentials",
		Example: `  drinklog login ada@example.com
  drinklog login ada@example.com --signup --name Ada
  drinklog login --social google --token <id-token>`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			autoLogin := !noAutoLogin

			if provider != "" {
				if token == "" {
					return errors.New("--token is required with --social")
				}
				return withClient(cmd, func(ctx context.Context, c client) error {
					if err := c.Session.SocialLogin(ctx, provider, token, autoLogin); err != nil {
						return err
					}
					pterm.Success.Printfln("Signed in with %s", provider)
					return nil
				})
			}

			if len(args) == 0 {
				return errors.New("identifier is required")
			}
			identifier := args[0]
			if password == "" {
				var err error
				password, err = pterm.DefaultInteractiveTextInput.WithMask("*").Show("Password")
				if err != nil {
					return err
				}
			}

			return withClient(cmd, func(ctx context.Context, c client) error {
				var err error
				if signup {
					err = c.Session.Signup(ctx, identifier, password, name, autoLogin)
				} else {
					err = c.Session.Login(ctx, identifier, password, autoLogin)
				}
				if err != nil {
					return err
				}
				pterm.Success.Printfln("Signed in as %s", identifier)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted when omitted)")
	cmd.Flags().BoolVar(&signup, "signup", false, "Create the account first")
	cmd.Flags().StringVar(&name, "name", "", "Display name used with --signup")
	cmd.Flags().StringVar(&provider, "social", "", "Sign in with a social provider instead of a password")
	cmd.Flags().StringVar(&token, "token", "", "Provider token used with --social")
	cmd.Flags().BoolVar(&noAutoLogin, "no-auto-login", false, "Do not restore this session on the next run")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and remove the stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c client) error {
				if err := c.Session.Logout(ctx); err != nil {
					return err
				}
				pterm.Success.Println("Signed out")
				return nil
			})
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Restore the stored session and show its state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c client) error {
				state, err := hydrate(ctx, c.Session)
				if err != nil && state != auth.StateStale {
					return err
				}
				id, lerr := c.Session.LoginID(ctx)
				if lerr != nil {
					return lerr
				}

				data := pterm.TableData{
					{"Backend", c.Config.Backend.BaseURL},
					{"Store", string(c.Config.Store.Type)},
					{"Session", state.String()},
					{"Login", id},
				}
				if rerr := pterm.DefaultTable.WithData(data).Render(); rerr != nil {
					return rerr
				}
				if err != nil {
					pterm.Warning.Println(err)
				}
				return nil
			})
		},
	}
}
