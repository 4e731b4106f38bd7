package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/cmd/wabot/internal"
	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/cmd/wabot/internal/serve"
	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/cmd/wabot/internal/version"
)

func NewWabotCommand() *cobra.Command {
	short := fmt.Sprintf("wabot - WhatsApp session manager for businesses v%s", internal.GetVersion())

	cmd := &cobra.Command{
		Use:     "wabot",
		Short:   short,
		Example: "wabot serve",
	}

	cmd.AddCommand(
		serve.NewServeCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewWabotCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
