// Package cli implements dashctl, a terminal client for the dashboard API.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	apiclient "github.com/blenvi/blenvi/pkg/api/client"
)

// Version is set at build time.
var Version = "dev"

const requestTimeout = 15 * time.Second

// App holds what every command needs. Tests build one directly.
type App struct {
	Dir      string
	Tokens   TokenStore
	Out      io.Writer
	In       io.Reader
	Password func() (string, error)

	apiBase string
}

// Execute runs dashctl with the process arguments.
func Execute() error {
	dir, err := configDir()
	if err != nil {
		return err
	}
	app := &App{
		Dir:      dir,
		Tokens:   NewTokenStore(dir),
		Out:      os.Stdout,
		In:       os.Stdin,
		Password: promptPassword,
	}
	return NewRootCmd(app).Execute()
}

// NewRootCmd assembles the command tree.
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "dashctl",
		Short:         "Terminal client for the integrations dashboard",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(app.Out)
	root.PersistentFlags().StringVar(&app.apiBase, "api", "", "API base URL (default "+defaultAPIBase+")")

	root.AddCommand(
		newLoginCmd(app),
		newLogoutCmd(app),
		newTeamsCmd(app),
		newSelectCmd(app),
		newProfileCmd(app),
		newIntegrationsCmd(app),
	)
	return root
}

func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Password: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(raw), nil
}

func (a *App) client() (*apiclient.Client, error) {
	cfg, err := loadConfig(a.Dir)
	if err != nil {
		return nil, err
	}
	base := cfg.APIBaseURL
	if strings.TrimSpace(a.apiBase) != "" {
		base = a.apiBase
	}
	return apiclient.New(base)
}

func (a *App) token() (string, error) {
	token, err := a.Tokens.Get(keyAccessToken)
	if errors.Is(err, ErrNoCredential) {
		return "", errors.New("not logged in; run `dashctl login` first")
	}
	return token, err
}

// authed runs fn with a client and access token. An expired access token is
// refreshed once.
func (a *App) authed(cmd *cobra.Command, fn func(ctx context.Context, c *apiclient.Client, token string) error) error {
	c, err := a.client()
	if err != nil {
		return err
	}
	token, err := a.token()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()

	err = fn(ctx, c, token)
	var apiErr apiclient.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 401 {
		return err
	}
	refresh, rerr := a.Tokens.Get(keyRefreshToken)
	if rerr != nil {
		return err
	}
	pair, rerr := c.Refresh(ctx, refresh)
	if rerr != nil {
		return err
	}
	if err := a.storeTokens(pair); err != nil {
		return err
	}
	return fn(ctx, c, pair.AccessToken)
}

func (a *App) storeTokens(pair apiclient.TokenPair) error {
	if err := a.Tokens.Set(keyAccessToken, pair.AccessToken); err != nil {
		return fmt.Errorf("store access token: %w", err)
	}
	if err := a.Tokens.Set(keyRefreshToken, pair.RefreshToken); err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

func newLoginCmd(app *App) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(email) == "" {
				fmt.Fprint(app.Out, "Email: ")
				line, err := bufio.NewReader(app.In).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return fmt.Errorf("read email: %w", err)
				}
				email = strings.TrimSpace(line)
			}
			if email == "" {
				return errors.New("--email is required")
			}
			if password == "" {
				secret, err := app.Password()
				if err != nil {
					return err
				}
				password = secret
			}
			c, err := app.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			resp, err := c.Login(ctx, email, password)
			if err != nil {
				return err
			}
			if err := app.storeTokens(resp.Tokens); err != nil {
				return err
			}
			if strings.TrimSpace(app.apiBase) != "" {
				if err := saveConfig(app.Dir, cliConfig{APIBaseURL: app.apiBase}); err != nil {
					return err
				}
			}
			fmt.Fprintln(app.Out, successStyle.Render("Logged in as "+resp.User.Email))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password (supply to avoid prompt)")
	return cmd
}

func newLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke and forget the stored tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := app.token()
			if err != nil {
				return err
			}
			refresh, _ := app.Tokens.Get(keyRefreshToken)
			if c, err := app.client(); err == nil {
				ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
				defer cancel()
				if err := c.Logout(ctx, token, refresh); err != nil {
					fmt.Fprintln(app.Out, mutedStyle.Render("server logout failed: "+err.Error()))
				}
			}
			if err := app.Tokens.Delete(keyAccessToken); err != nil {
				return err
			}
			if err := app.Tokens.Delete(keyRefreshToken); err != nil {
				return err
			}
			fmt.Fprintln(app.Out, successStyle.Render("Logged out"))
			return nil
		},
	}
}

func newTeamsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "teams",
		Short: "List teams and their projects",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.authed(cmd, func(ctx context.Context, c *apiclient.Client, token string) error {
				teams, err := c.ListTeams(ctx, token)
				if err != nil {
					return err
				}
				sel, err := c.Selection(ctx, token)
				if err != nil {
					return err
				}
				fmt.Fprint(app.Out, renderTeams(teams, sel))
				return nil
			})
		},
	}
}

func newSelectCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "select <team-id> [project-id]",
		Short: "Select a team and optionally one of its projects",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.authed(cmd, func(ctx context.Context, c *apiclient.Client, token string) error {
				sel, err := c.SelectTeam(ctx, token, args[0])
				if err != nil {
					return err
				}
				if len(args) == 2 {
					if sel, err = c.SelectProject(ctx, token, args[1]); err != nil {
						return err
					}
				}
				fmt.Fprint(app.Out, renderSelection(sel))
				return nil
			})
		},
	}
}

func newProfileCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or edit the account profile",
	}
	var reload bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Show the profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.authed(cmd, func(ctx context.Context, c *apiclient.Client, token string) error {
				acct, err := c.Profile(ctx, token, reload)
				if err != nil {
					return err
				}
				fmt.Fprint(app.Out, renderAccount(acct))
				return nil
			})
		},
	}
	show.Flags().BoolVar(&reload, "reload", false, "Reload from storage")

	set := &cobra.Command{
		Use:   "set <field=value>...",
		Short: "Edit profile fields (firstname, lastname, username, bio, avatar_url)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := parseAssignments(args)
			if err != nil {
				return err
			}
			return app.authed(cmd, func(ctx context.Context, c *apiclient.Client, token string) error {
				if _, err := c.Profile(ctx, token, false); err != nil {
					return err
				}
				if _, err := c.EditProfile(ctx, token); err != nil {
					return err
				}
				acct, err := c.UpdateProfile(ctx, token, fields)
				if err != nil {
					return err
				}
				fmt.Fprint(app.Out, renderAccount(acct))
				fmt.Fprintln(app.Out, mutedStyle.Render("Run `dashctl profile save` to persist."))
				return nil
			})
		},
	}
	save := &cobra.Command{
		Use:   "save",
		Short: "Persist pending edits",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.authed(cmd, func(ctx context.Context, c *apiclient.Client, token string) error {
				acct, err := c.SaveProfile(ctx, token)
				if err != nil {
					return err
				}
				fmt.Fprintln(app.Out, successStyle.Render("Profile updated successfully!"))
				fmt.Fprint(app.Out, renderAccount(acct))
				return nil
			})
		},
	}
	cancel := &cobra.Command{
		Use:   "cancel",
		Short: "Discard pending edits",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.authed(cmd, func(ctx context.Context, c *apiclient.Client, token string) error {
				acct, err := c.CancelProfile(ctx, token)
				if err != nil {
					return err
				}
				fmt.Fprint(app.Out, renderAccount(acct))
				return nil
			})
		},
	}
	cmd.AddCommand(show, set, save, cancel)
	return cmd
}

func newIntegrationsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "integrations",
		Short: "Inspect integrations of the selected project",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show <slug>",
		Short: "Show an integration definition and its configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.authed(cmd, func(ctx context.Context, c *apiclient.Client, token string) error {
				sel, err := c.Selection(ctx, token)
				if err != nil {
					return err
				}
				if sel.TeamID == "" || sel.ProjectID == "" {
					return errors.New("no project selected; run `dashctl select <team> <project>`")
				}
				def, err := c.Definition(ctx, token, args[0])
				if err != nil {
					return err
				}
				cfg, err := c.IntegrationConfig(ctx, token, sel.TeamID, sel.ProjectID, args[0])
				if err != nil {
					return err
				}
				fmt.Fprint(app.Out, renderIntegration(def, cfg))
				return nil
			})
		},
	})
	return cmd
}

func parseAssignments(args []string) (map[string]string, error) {
	fields := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("expected field=value, got %q", arg)
		}
		fields[key] = value
	}
	return fields, nil
}
