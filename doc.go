/*
Package docstore implements typed documents on top of an attribute-oriented
persistent store (see package storage and its backends).

We implement:

1. Document descriptors, a per-type schema: a stable identifier plus indices.

2. Indices, named and typed values computed from a document, stored next to
it so that the store can filter and sort without decoding documents.

3. Queries, immutable values combining a predicate over indices, sort order,
skip and limit.

4. Transactions, which run queries and mutations against one storage session,
encode and decode documents, and recover from corrupted records.

# Technical Details

**Records.**
Every document is one storage record in the entity named by the descriptor
identifier. The record holds the encoded document in the reserved `_payload`
attribute plus one attribute per index, named by the index identifier. The
`_` prefix is reserved for the storage layer, so descriptors and indices may
not use it.

**Identity.**
An index marked with Identity supplies the document identity: Add replaces
any record with the same identity value. Documents without an identity index
are identified by the record ID the backend assigns.

**Encoding.**
Documents are encoded with msgpack by default (sorted map keys, so encoding
is deterministic). A descriptor can pick another Codec, e.g. JSON.

**Corruption.**
A record whose payload is missing or fails to decode is never returned by
Fetch. Depending on the resolution the record is either left alone (skip) or
removed within the same transaction (delete). Every such event is logged at
warn level.
*/
package docstore
