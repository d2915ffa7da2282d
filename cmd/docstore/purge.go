package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andreyvit/docstore/storage"
)

var purgeYes bool

var purgeCmd = &cobra.Command{
	Use:   "purge [entity]",
	Short: "Delete every record of an entity",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		entity := args[0]
		if !purgeYes {
			fatal("Refusing to purge "+entity, errors.New("pass --yes to confirm"))
		}
		backend := openBackend(cmd.Context(), entity)
		defer backend.Close()

		var n int
		err := inSession(backend, true, func(s storage.Session) error {
			ids, err := s.Delete(storage.All(entity, storage.ResultIDs))
			n = len(ids)
			return err
		})
		if err != nil {
			fatal("Error purging records", err)
		}
		fmt.Printf("Deleted %d records from %s\n", n, entity)
	},
}

func init() {
	rootCmd.AddCommand(purgeCmd)
	purgeCmd.Flags().BoolVar(&purgeYes, "yes", false, "Confirm deleting every record")
}
