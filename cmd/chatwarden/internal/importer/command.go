package importer

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/chatwarden/chatwarden/cmd/chatwarden/internal"
	"github.com/chatwarden/chatwarden/pkg/legacy"
	"github.com/chatwarden/chatwarden/pkg/store"
)

// NewImportCommand migrates a legacy data.json state file into the
// SQLite store.
func NewImportCommand() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "import <data.json>",
		Short: "Import legacy bot state into the database",
		Args:  cobra.ExactArgs(1),
		Example: `  chatwarden import data.json
  chatwarden import data.json --db /path/to/chatwarden.db`,
		RunE: func(_ *cobra.Command, args []string) error {
			snap, err := legacy.ParseFile(args[0])
			if err != nil {
				return err
			}

			if dbPath == "" {
				dbPath = filepath.Join(internal.GetDataDir(), "chatwarden.db")
			}
			st, err := store.Open(dbPath)
			if err != nil {
				return err
			}

			sum, err := legacy.Import(st, snap)
			if err != nil {
				return err
			}

			fmt.Printf("Imported %d chats, %d verified users, %d scheduled posts (%d skipped)\n",
				sum.Chats, sum.Verified, sum.Scheduled, sum.Skipped)
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "Database path (default: ~/.chatwarden/chatwarden.db)")

	return cmd
}
