package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"github.com/andreyvit/docstore/storage"
)

var (
	dumpSkip  int64
	dumpLimit int64
	dumpRaw   bool
)

var dumpCmd = &cobra.Command{
	Use:   "dump [entity]",
	Short: "Print the records of an entity as YAML",
	Long: `Dump prints every record of the entity with its attributes. The document
payload is decoded as generic MsgPack unless --raw is given.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		entity := args[0]
		backend := openBackend(cmd.Context(), entity)
		defer backend.Close()

		req := storage.All(entity, storage.ResultRecords)
		req.Offset = dumpSkip
		req.Limit = dumpLimit

		var records []*storage.Record
		err := inSession(backend, false, func(s storage.Session) error {
			var err error
			records, err = s.Fetch(req)
			return err
		})
		if err != nil {
			fatal("Error fetching records", err)
		}

		out := make([]map[string]any, len(records))
		for i, rec := range records {
			out[i] = dumpRecord(rec, !dumpRaw)
		}
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			fatal("Error encoding YAML", err)
		}
		enc.Close()
	},
}

func init() {
	rootCmd.AddCommand(dumpCmd)
	dumpCmd.Flags().Int64Var(&dumpSkip, "skip", 0, "Skip this many records")
	dumpCmd.Flags().Int64Var(&dumpLimit, "limit", storage.NoLimit, "Print at most this many records")
	dumpCmd.Flags().BoolVar(&dumpRaw, "raw", false, "Print the payload as hex instead of decoding it")
}

// dumpRecord converts a record into YAML-friendly values.
func dumpRecord(rec *storage.Record, decodePayload bool) map[string]any {
	m := make(map[string]any, len(rec.Attrs)+1)
	m["_id"] = string(rec.ID)
	for name, v := range rec.Attrs {
		if name == storage.PayloadAttribute && decodePayload {
			if raw, ok := v.([]byte); ok {
				var doc any
				if err := msgpack.Unmarshal(raw, &doc); err == nil {
					m[name] = doc
					continue
				}
				m["_payload_error"] = "undecodable"
			}
		}
		m[name] = yamlValue(v)
	}
	return m
}

func yamlValue(v any) any {
	switch v := v.(type) {
	case []byte:
		return storage.FormatValue(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	default:
		return v
	}
}
