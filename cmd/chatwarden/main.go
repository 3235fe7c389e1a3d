package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chatwarden/chatwarden/cmd/chatwarden/internal"
	"github.com/chatwarden/chatwarden/cmd/chatwarden/internal/gateway"
	"github.com/chatwarden/chatwarden/cmd/chatwarden/internal/importer"
	"github.com/chatwarden/chatwarden/cmd/chatwarden/internal/version"
)

func NewChatwardenCommand() *cobra.Command {
	short := fmt.Sprintf("%s chatwarden - Group moderation engine v%s\n\n", internal.Logo, internal.GetVersion())

	cmd := &cobra.Command{
		Use:     "chatwarden",
		Short:   short,
		Example: "chatwarden gateway",
	}

	cmd.AddCommand(
		gateway.NewGatewayCommand(),
		importer.NewImportCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewChatwardenCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
