package version

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/chatwarden/chatwarden/cmd/chatwarden/internal"
)

// NewVersionCommand prints build information.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("chatwarden %s (%s)\n", internal.GetVersion(), runtime.Version())
		},
	}
}
