package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andreyvit/docstore/storage"
)

var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "List the entities stored in the backend",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		backend := openBackend(cmd.Context())
		defer backend.Close()

		lister, ok := backend.(storage.Lister)
		if !ok {
			fatal("Error listing entities", errors.New("backend can't list entities"))
		}
		names, err := lister.Entities()
		if err != nil {
			fatal("Error listing entities", err)
		}
		for _, name := range names {
			fmt.Println(name)
		}
	},
}

func init() {
	rootCmd.AddCommand(entitiesCmd)
}
