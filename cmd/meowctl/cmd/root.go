package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/meowchat/meowchat/webclient/internal/app"
	"github.com/meowchat/meowchat/webclient/internal/apiclient"
	"github.com/meowchat/meowchat/webclient/internal/config"
	"github.com/meowchat/meowchat/webclient/pkg/logger"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

type options struct {
	backendURL     string
	mode           string
	storePath      string
	nonInteractive bool
}

// NewRootCmd builds a fresh command tree; each invocation gets its own flags.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "meowctl",
		Short: "MeowChat command-line client",
		Long: `meowctl talks to a MeowChat backend with the same session handling as the
web client: logins are persisted locally, expired access tokens are refreshed
transparently and a revoked session ends in a single logout.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if os.Getenv("MEOWCTL_NON_INTERACTIVE") == "1" {
				opts.nonInteractive = true
			}
		},
	}
	root.PersistentFlags().StringVar(&opts.backendURL, "backend", "", "chat backend URL (overrides BACKEND_URL)")
	root.PersistentFlags().StringVar(&opts.mode, "mode", "", "credential mode: token, bearer or cookie (overrides AUTH_MODE)")
	root.PersistentFlags().StringVar(&opts.storePath, "store", "", "credentials file (overrides STORE_PATH)")
	root.PersistentFlags().BoolVar(&opts.nonInteractive, "non-interactive", false, "disable prompts (also MEOWCTL_NON_INTERACTIVE=1)")

	root.AddCommand(
		newLoginCmd(opts),
		newRegisterCmd(opts),
		newLogoutCmd(opts),
		newStatusCmd(opts),
		newMemberCmd(opts),
		newJoinCmd(opts),
		newLeaveCmd(opts),
	)
	return root
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runtime loads configuration, applies flag overrides and builds the session
// components. The caller must Close it so pending logout notifications finish.
func (o *options) runtime(ctx context.Context) (*app.Runtime, error) {
	logger.Init(os.Getenv("LOG_LEVEL"))
	if o.backendURL != "" {
		os.Setenv("BACKEND_URL", o.backendURL)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if o.mode != "" {
		cfg.Auth.Mode = o.mode
	}
	if o.storePath != "" {
		cfg.Store.Driver = "file"
		cfg.Store.Path = o.storePath
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	nav := apiclient.NavigatorFunc(func(string) {
		pterm.Warning.Println("Your session has ended. Run `meowctl login` to sign in again.")
	})
	return app.New(ctx, cfg, nav)
}
