package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lvyanru/hitl-chat/internal/cli/ui"
)

const version = "0.1.0"

var serverFlag string

// rootCmd is the root command
var rootCmd = &cobra.Command{
	Use:     "hitlctl",
	Short:   "Human-in-the-loop chat CLI",
	Version: version,
	Long: `A command-line client for the HITL chat server. Streams agent replies
and lets you approve or reject tool calls the agent is waiting on.`,
	Example: `  # Point the CLI at a server
  $ hitlctl config set-server http://localhost:3001

  # Start interactive chat
  $ hitlctl chat

  # One-shot message on a new thread
  $ hitlctl send --new "/set theme=dark"

  # Approve the pending tool call of the last thread
  $ hitlctl approve`,
}

// Execute executes the root command
func Execute() error {
	rootCmd.SetVersionTemplate(formatVersion())
	return rootCmd.Execute()
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVarP(&serverFlag, "server", "s", "", "chat server address (overrides the saved one)")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(rejectCmd)
	rootCmd.AddCommand(threadCmd)
	rootCmd.AddCommand(configCmd)

	rootCmd.SetUsageTemplate(usageTemplate())
	rootCmd.SetHelpTemplate(usageTemplate())
}

func usageTemplate() string {
	return `{{if .Long}}{{.Long}}

{{end}}` + ui.Styles.Bold.Render("USAGE") + `
  {{.UseLine}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command]{{end}}

{{if .HasExample}}` + ui.Styles.Bold.Render("EXAMPLES") + `
{{.Example}}

{{end}}{{if .HasAvailableSubCommands}}` + ui.Styles.Bold.Render("COMMANDS") + `{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

{{end}}{{if .HasAvailableLocalFlags}}` + ui.Styles.Bold.Render("OPTIONS") + `
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}{{if .HasAvailableSubCommands}}Use "{{.CommandPath}} [command] --help" for more information about a command.{{end}}
`
}

func formatVersion() string {
	return fmt.Sprintf("hitlctl version %s\n", version)
}
