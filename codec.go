package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec encodes documents into record payloads and back. Decode may return a
// *CorruptionError to choose how Fetch resolves the record.
type Codec[T any] interface {
	Encode(doc T) ([]byte, error)
	Decode(data []byte) (T, error)
}

// MsgPack is the default codec. Map keys are sorted, so equal documents
// encode to equal bytes.
func MsgPack[T any]() Codec[T] {
	return msgpackCodec[T]{}
}

func JSON[T any]() Codec[T] {
	return jsonCodec[T]{}
}

type msgpackCodec[T any] struct{}

func (msgpackCodec[T]) Encode(doc T) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	enc.Reset(&buf)
	enc.SetSortMapKeys(true)
	err := enc.Encode(doc)
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %T using MsgPack: %w", doc, err)
	}
	return buf.Bytes(), nil
}

func (msgpackCodec[T]) Decode(data []byte) (T, error) {
	var doc T
	var r bytes.Reader
	r.Reset(data)
	dec := msgpack.GetDecoder()
	dec.Reset(&r)
	err := dec.Decode(&doc)
	msgpack.PutDecoder(dec)
	if err != nil {
		return doc, dataErrf(data, err, "failed to decode msgpack into %T", doc)
	}
	return doc, nil
}

type jsonCodec[T any] struct{}

func (jsonCodec[T]) Encode(doc T) ([]byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %T to JSON: %w", doc, err)
	}
	return raw, nil
}

func (jsonCodec[T]) Decode(data []byte) (T, error) {
	var doc T
	err := json.Unmarshal(data, &doc)
	if err != nil {
		return doc, dataErrf(data, err, "failed to decode JSON into %T", doc)
	}
	return doc, nil
}
