package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andreyvit/docstore/storage/boltstore"
)

type entityStatser interface {
	EntityStats(entity string) (boltstore.EntityStats, error)
}

var statsCmd = &cobra.Command{
	Use:   "stats [entity]...",
	Short: "Show space usage of entities (bolt only)",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		backend := openBackend(cmd.Context())
		defer backend.Close()

		statser, ok := backend.(entityStatser)
		if !ok {
			fatal("Error reading stats", errors.New("backend doesn't report entity stats"))
		}
		for _, entity := range args {
			st, err := statser.EntityStats(entity)
			if err != nil {
				fatal("Error reading stats", err)
			}
			fmt.Printf("%s: %v\n", entity, st)
		}
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
