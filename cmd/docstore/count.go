package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andreyvit/docstore/storage"
)

var countCmd = &cobra.Command{
	Use:   "count [entity]",
	Short: "Count the records of an entity",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		entity := args[0]
		backend := openBackend(cmd.Context(), entity)
		defer backend.Close()

		var n int
		err := inSession(backend, false, func(s storage.Session) error {
			var err error
			n, err = s.Count(storage.All(entity, storage.ResultCount))
			return err
		})
		if err != nil {
			fatal("Error counting records", err)
		}
		fmt.Println(n)
	},
}

func init() {
	rootCmd.AddCommand(countCmd)
}
