package boltstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/andreyvit/docstore/storage"
)

const (
	valueVersion    = 1
	valueHeaderSize = 1 + 8
)

// errDamagedValue is wrapped by every value decoding error.
var errDamagedValue = errors.New("damaged value")

func encodeValue(attrs storage.Attributes) ([]byte, error) {
	var buf bytes.Buffer
	var header [valueHeaderSize]byte
	header[0] = valueVersion
	if payload, ok := attrs[storage.PayloadAttribute].([]byte); ok {
		binary.BigEndian.PutUint64(header[1:], xxhash.Sum64(payload))
	}
	buf.Write(header[:])

	enc := msgpack.GetEncoder()
	enc.Reset(&buf)
	enc.SetSortMapKeys(true)
	err := enc.Encode(map[string]any(attrs))
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode attributes using MsgPack: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeValue returns whatever attributes it could recover. On a checksum
// mismatch it returns every attribute except the payload, plus an error.
func decodeValue(data []byte) (storage.Attributes, error) {
	if len(data) < valueHeaderSize {
		return nil, fmt.Errorf("%w: too short (%d bytes)", errDamagedValue, len(data))
	}
	if data[0] != valueVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", errDamagedValue, data[0])
	}
	sum := binary.BigEndian.Uint64(data[1:valueHeaderSize])

	var raw map[string]any
	dec := msgpack.GetDecoder()
	dec.Reset(bytes.NewReader(data[valueHeaderSize:]))
	err := dec.Decode(&raw)
	msgpack.PutDecoder(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode msgpack attributes: %w", errDamagedValue, err)
	}

	attrs := make(storage.Attributes, len(raw))
	for name, v := range raw {
		cv, ok := storage.Canonical(v)
		if !ok {
			return nil, fmt.Errorf("%w: attribute %s has unsupported type %T", errDamagedValue, name, v)
		}
		if b, ok := cv.([]byte); ok {
			cv = bytes.Clone(b)
		}
		attrs[name] = cv
	}

	if payload, ok := attrs[storage.PayloadAttribute].([]byte); ok && xxhash.Sum64(payload) != sum {
		delete(attrs, storage.PayloadAttribute)
		return attrs, fmt.Errorf("%w: payload checksum mismatch", errDamagedValue)
	}
	return attrs, nil
}

// decodeRecord never fails: a damaged value yields a record without a
// payload, which docstore resolves as corruption.
func (b *Backend) decodeRecord(entity string, key, value []byte) *storage.Record {
	rec := &storage.Record{
		ID:     formatID(binary.BigEndian.Uint64(key)),
		Entity: entity,
	}
	attrs, err := decodeValue(value)
	if err != nil {
		b.logger.LogAttrs(context.Background(), slog.LevelWarn, "boltstore: damaged record",
			slog.String("entity", entity),
			slog.String("id", string(rec.ID)),
			slog.Int("size", len(value)),
			slog.Any("err", err))
	}
	if attrs == nil {
		attrs = make(storage.Attributes)
	}
	rec.Attrs = attrs
	return rec
}
