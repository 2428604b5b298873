package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lvyanru/hitl-chat/internal/cli/client"
	"github.com/lvyanru/hitl-chat/internal/cli/config"
	"github.com/lvyanru/hitl-chat/internal/cli/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "manage the CLI configuration",
}

var setServerCmd = &cobra.Command{
	Use:     "set-server <url>",
	Short:   "save the chat server address",
	Example: `  $ hitlctl config set-server http://localhost:3001`,
	Args:    cobra.ExactArgs(1),
	RunE:    runSetServer,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "print the CLI configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

func init() {
	setServerCmd.SilenceUsage = true
	configCmd.AddCommand(setServerCmd)
	configCmd.AddCommand(configShowCmd)
}

func runSetServer(cmd *cobra.Command, args []string) error {
	server, err := client.NormalizeServerURL(args[0])
	if err != nil {
		ui.PrintError("invalid server address %q", args[0])
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		ui.PrintError("failed to load config: %v", err)
		return fmt.Errorf("config load failed")
	}

	apiClient, err := client.NewAPIClient(server)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiClient.Health(ctx); err != nil {
		ui.PrintWarning("server %s is not reachable: %v", server, err)
	}

	if cfg.Server != server {
		// threads live on the old server
		cfg.ThreadID = ""
	}
	cfg.Server = server
	if err := cfg.Save(); err != nil {
		ui.PrintError("failed to save config: %v", err)
		return fmt.Errorf("config save failed")
	}

	path, _ := config.GetConfigPath()
	ui.PrintSuccess("server set to %s (%s)", server, path)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	path, _ := config.GetConfigPath()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "config:  %s\n", path)
	fmt.Fprintf(out, "server:  %s\n", cfg.Server)
	thread := cfg.ThreadID
	if thread == "" {
		thread = "(none)"
	}
	fmt.Fprintf(out, "thread:  %s\n", thread)
	return nil
}
