package gateway

import (
	"github.com/spf13/cobra"
)

// NewGatewayCommand runs the moderation engine against Telegram.
func NewGatewayCommand() *cobra.Command {
	var debug bool
	var configPath string

	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Start the moderation gateway",
		Example: `  chatwarden gateway
  chatwarden gateway --debug
  chatwarden gateway --config /path/to/config.json`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return gatewayCmd(configPath, debug)
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&configPath, "config", "", "Config file path (default: ~/.chatwarden/config.json)")

	return cmd
}
