package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/andreyvit/docstore/storage"
	"github.com/andreyvit/docstore/storage/boltstore"
	"github.com/andreyvit/docstore/storage/dynamostore"
	"github.com/andreyvit/docstore/storage/sqlitestore"
)

const defaultConfigPath = "docstore.yaml"

const (
	BackendBolt     = "bolt"
	BackendSQLite   = "sqlite"
	BackendDynamoDB = "dynamodb"
)

type Config struct {
	Backend  string         `yaml:"backend"`
	Bolt     BoltConfig     `yaml:"bolt"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	DynamoDB DynamoDBConfig `yaml:"dynamodb"`
}

type BoltConfig struct {
	Path     string        `yaml:"path"`
	MmapSize int           `yaml:"mmap_size"`
	Timeout  time.Duration `yaml:"timeout"`
}

type SQLiteConfig struct {
	Path        string        `yaml:"path"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

type DynamoDBConfig struct {
	Table       string `yaml:"table"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	AccessKey   string `yaml:"access_key"`
	SecretKey   string `yaml:"secret_key"`
	CreateTable bool   `yaml:"create_table"`
}

// loadConfig reads the YAML config at path, then applies environment
// overrides. A missing file is fine when optional is set.
func loadConfig(path string, optional bool, getenv func(string) string) (*Config, error) {
	cfg := new(Config)
	data, err := os.ReadFile(path)
	if err != nil {
		if !optional || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && err != io.EOF {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (cfg *Config) applyEnv(getenv func(string) string) error {
	set := func(dst *string, name string) {
		if v := getenv(name); v != "" {
			*dst = v
		}
	}
	set(&cfg.Backend, "DOCSTORE_BACKEND")
	if v := getenv("DOCSTORE_PATH"); v != "" {
		cfg.Bolt.Path = v
		cfg.SQLite.Path = v
	}
	set(&cfg.DynamoDB.Region, "AWS_REGION")
	set(&cfg.DynamoDB.AccessKey, "AWS_ACCESS_KEY")
	set(&cfg.DynamoDB.SecretKey, "AWS_SECRET_KEY")
	set(&cfg.DynamoDB.Table, "DOCSTORE_DYNAMODB_TABLE")
	set(&cfg.DynamoDB.Endpoint, "DOCSTORE_DYNAMODB_ENDPOINT")
	if v := getenv("DOCSTORE_DYNAMODB_CREATE_TABLE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DOCSTORE_DYNAMODB_CREATE_TABLE: %w", err)
		}
		cfg.DynamoDB.CreateTable = b
	}
	return nil
}

func (cfg *Config) Validate() error {
	switch cfg.Backend {
	case BackendBolt:
		if cfg.Bolt.Path == "" {
			return errors.New("bolt.path is required")
		}
	case BackendSQLite:
		if cfg.SQLite.Path == "" {
			return errors.New("sqlite.path is required")
		}
	case BackendDynamoDB:
		if cfg.DynamoDB.Table == "" {
			return errors.New("dynamodb.table is required")
		}
	case "":
		return errors.New("backend is required")
	default:
		return fmt.Errorf("unknown backend %q, expected %s, %s or %s", cfg.Backend, BackendBolt, BackendSQLite, BackendDynamoDB)
	}
	return nil
}

func (cfg *Config) Open(ctx context.Context, logger *slog.Logger, verbose bool) (storage.Backend, error) {
	switch cfg.Backend {
	case BackendBolt:
		return boltstore.Open(cfg.Bolt.Path, boltstore.Options{
			Logger:   logger,
			Verbose:  verbose,
			MmapSize: cfg.Bolt.MmapSize,
			Timeout:  cfg.Bolt.Timeout,
		})
	case BackendSQLite:
		return sqlitestore.Open(cfg.SQLite.Path, sqlitestore.Options{
			Logger:      logger,
			Verbose:     verbose,
			BusyTimeout: cfg.SQLite.BusyTimeout,
		})
	case BackendDynamoDB:
		return dynamostore.Open(ctx, dynamostore.Options{
			Table:       cfg.DynamoDB.Table,
			Region:      cfg.DynamoDB.Region,
			Endpoint:    cfg.DynamoDB.Endpoint,
			AccessKey:   cfg.DynamoDB.AccessKey,
			SecretKey:   cfg.DynamoDB.SecretKey,
			CreateTable: cfg.DynamoDB.CreateTable,
			Logger:      logger,
			Verbose:     verbose,
		})
	default:
		return nil, cfg.Validate()
	}
}
