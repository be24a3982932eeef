package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/meowchat/meowchat/webclient/internal/apiclient"
	"github.com/meowchat/meowchat/webclient/internal/session"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newLoginCmd(o *options) *cobra.Command {
	var username, password string
	c := &cobra.Command{
		Use:   "login",
		Short: "Log in and persist the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			username, password, err := o.credentials(username, password)
			if err != nil {
				return err
			}
			rt, err := o.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			if _, err := rt.Sessions.Login(cmd.Context(), username, password); err != nil {
				return fmt.Errorf("login failed: %s", apiclient.Message(err))
			}
			s := rt.Sessions.Session()
			name := username
			if s.User != nil && s.User.DisplayName != "" {
				name = s.User.DisplayName
			}
			pterm.Success.Printf("Logged in as %s\n", name)
			return nil
		},
	}
	c.Flags().StringVarP(&username, "username", "u", "", "username")
	c.Flags().StringVarP(&password, "password", "p", "", "password (prompted when omitted)")
	return c
}

func newRegisterCmd(o *options) *cobra.Command {
	var req session.RegisterRequest
	c := &cobra.Command{
		Use:   "register",
		Short: "Create an account (does not log in)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			req.Username, req.Password, err = o.credentials(req.Username, req.Password)
			if err != nil {
				return err
			}
			rt, err := o.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			if _, err := rt.Sessions.Register(cmd.Context(), req); err != nil {
				return fmt.Errorf("registration failed: %s", apiclient.Message(err))
			}
			pterm.Success.Printf("Account %s created. Run `meowctl login` to sign in.\n", req.Username)
			return nil
		},
	}
	c.Flags().StringVarP(&req.Username, "username", "u", "", "username")
	c.Flags().StringVarP(&req.Password, "password", "p", "", "password (prompted when omitted)")
	c.Flags().StringVar(&req.FirstName, "first-name", "", "first name")
	c.Flags().StringVar(&req.LastName, "last-name", "", "last name")
	return c
}

func newLogoutCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session here and on the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := o.runtime(cmd.Context())
			if err != nil {
				return err
			}
			// Close waits for the server notification.
			defer rt.Close()
			rt.Sessions.Logout()
			pterm.Success.Println("Logged out")
			return nil
		},
	}
}

func newStatusCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Verify the persisted session with the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := o.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			s := rt.Sessions.VerifySession(cmd.Context())
			pterm.DefaultSection.Println("Session")
			data := pterm.TableData{{"STATUS", "USER", "BACKEND", "MODE"}}
			user := "-"
			if s.User != nil {
				user = s.User.Username
			}
			data = append(data, []string{s.Status().String(), user, rt.Client.BaseURL(), rt.Config.Auth.Mode})
			if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
				return err
			}
			if s.Status() != session.StatusAuthenticated {
				return errors.New("not logged in")
			}
			if exp, ok := rt.Sessions.Credential().ExpiresAt(); ok {
				pterm.Info.Printf("Access token expires at %s\n", exp.Format("2006-01-02 15:04:05 MST"))
			}
			return nil
		},
	}
}

// credentials fills in missing values by prompting, unless prompts are off.
func (o *options) credentials(username, password string) (string, string, error) {
	var err error
	if strings.TrimSpace(username) == "" {
		if o.nonInteractive {
			return "", "", errors.New("--username is required in non-interactive mode")
		}
		if username, err = pterm.DefaultInteractiveTextInput.Show("Username"); err != nil {
			return "", "", err
		}
	}
	if password == "" {
		if o.nonInteractive {
			return "", "", errors.New("--password is required in non-interactive mode")
		}
		if password, err = pterm.DefaultInteractiveTextInput.WithMask("*").Show("Password"); err != nil {
			return "", "", err
		}
	}
	return strings.TrimSpace(username), password, nil
}
