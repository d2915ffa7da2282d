package boltstore

import (
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/andreyvit/docstore/storage"
)

type EntityStats struct {
	Records   int
	DataSize  int
	DataAlloc int
}

func (es EntityStats) String() string {
	return fmt.Sprintf("%d records, %d bytes used, %d bytes allocated", es.Records, es.DataSize, es.DataAlloc)
}

func (b *Backend) EntityStats(entity string) (EntityStats, error) {
	var result EntityStats
	err := b.bdb.View(func(btx *bbolt.Tx) error {
		buck := btx.Bucket([]byte(entity))
		if buck == nil {
			return fmt.Errorf("boltstore: %w %q", storage.ErrUnknownEntity, entity)
		}
		bs := buck.Stats()
		result = EntityStats{
			Records:   bs.KeyN,
			DataSize:  bs.LeafInuse,
			DataAlloc: bs.BranchAlloc + bs.LeafAlloc,
		}
		return nil
	})
	return result, err
}
