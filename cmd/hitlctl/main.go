package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/lvyanru/hitl-chat/internal/cli/commands"
	"github.com/lvyanru/hitl-chat/internal/cli/ui"
)

func main() {
	if err := commands.Execute(); err != nil {
		if strings.Contains(err.Error(), "unknown command") {
			ui.PrintError("%s", err.Error())
			fmt.Println("\nRun 'hitlctl --help' for usage.")
		}
		os.Exit(1)
	}
}
