package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/andreyvit/docstore"
	"github.com/andreyvit/docstore/storage"
)

var (
	configPath string
	envPath    string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "docstore",
	Short: "Inspect and maintain docstore backends",
	Long: `docstore works on the raw records of a bolt, SQLite or DynamoDB backend:
list entities, count and dump records, purge an entity.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = docstore.LevelTrace
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))
		slog.SetDefault(logger)

		if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			fatal("Error loading "+envPath, err)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Config file")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", ".env", "Environment file to load before reading the config")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable trace logging")
}

// openBackend loads the config and opens the backend it selects. With an
// entity name, it also makes the backend serve that entity, which must
// already exist.
func openBackend(ctx context.Context, entity ...string) storage.Backend {
	cfg, err := loadConfig(configPath, configPath == defaultConfigPath, os.Getenv)
	if err != nil {
		fatal("Error loading config", err)
	}
	backend, err := cfg.Open(ctx, slog.Default(), verbose)
	if err != nil {
		fatal("Error opening backend", err)
	}
	for _, name := range entity {
		if err := useEntity(backend, name); err != nil {
			backend.Close()
			fatal("Error opening "+name, err)
		}
	}
	return backend
}

var errNoSuchEntity = errors.New("no such entity")

// useEntity checks that the backend holds name, then prepares it without
// attributes. For an existing entity that adds nothing to the stored schema,
// it only lets sessions address the entity.
func useEntity(backend storage.Backend, name string) error {
	lister, ok := backend.(storage.Lister)
	if !ok {
		return errors.New("backend can't list entities")
	}
	names, err := lister.Entities()
	if err != nil {
		return err
	}
	if !slices.Contains(names, name) {
		return fmt.Errorf("%w %q", errNoSuchEntity, name)
	}
	return backend.Prepare([]storage.Entity{{Name: name}})
}

// inSession runs f in a session that is saved when f succeeds and writable is
// set, and discarded otherwise.
func inSession(backend storage.Backend, writable bool, f func(s storage.Session) error) error {
	s, err := backend.Begin(writable)
	if err != nil {
		return err
	}
	defer s.Discard()
	if err := f(s); err != nil {
		return err
	}
	if writable && s.HasChanges() {
		return s.Save()
	}
	return nil
}
