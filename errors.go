package docstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/andreyvit/docstore/storage"
)

var (
	ErrConfiguration       = errors.New("configuration error")
	ErrRequestFailed       = errors.New("request failed")
	ErrSerializationFailed = errors.New("serialization failed")
	ErrDataCorruption      = errors.New("data corruption")
	ErrCommitFailed        = errors.New("commit failed")
	ErrTransactionClosed   = errors.New("transaction closed")

	errMissingPayload = errors.New("payload attribute missing")
)

// Error is returned by Store and transaction operations. Kind is one of the
// Err* sentinels above, and errors.Is matches it.
type Error struct {
	Kind     error
	Document string
	Msg      string
	Err      error
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Error() string {
	var buf strings.Builder
	if e.Document != "" {
		buf.WriteString(e.Document)
		buf.WriteString(": ")
	}
	if e.Msg != "" {
		buf.WriteString(e.Msg)
	} else {
		buf.WriteString(e.Kind.Error())
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

// Resolution is what Fetch does with a record it can't decode.
type Resolution int

const (
	// ResolutionSkip leaves the record in the store and omits it from results.
	ResolutionSkip Resolution = iota
	// ResolutionDelete removes the record as part of the transaction.
	ResolutionDelete
)

func (r Resolution) String() string {
	switch r {
	case ResolutionSkip:
		return "skip"
	case ResolutionDelete:
		return "delete"
	default:
		return fmt.Sprintf("Resolution(%d)", int(r))
	}
}

// CorruptionError describes a record that failed to decode. Fetch resolves
// these and logs them, it never returns one.
type CorruptionError struct {
	Document   string
	RecordID   storage.RecordID
	Resolution Resolution
	Err        error
}

func (e *CorruptionError) Unwrap() error {
	return e.Err
}

func (e *CorruptionError) Is(target error) bool {
	return target == ErrDataCorruption
}

func (e *CorruptionError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Document)
	if e.RecordID != "" {
		buf.WriteByte('/')
		buf.WriteString(string(e.RecordID))
	}
	buf.WriteString(": corrupted record (")
	buf.WriteString(e.Resolution.String())
	buf.WriteByte(')')
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

type ValidationError struct {
	Descriptor *AnyDocumentDescriptor
	Issues     []string
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrConfiguration
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid DocumentDescriptor %q: %s", e.Descriptor.Identifier, strings.Join(e.Issues, " "))
}

type DataError struct {
	Data []byte
	Err  error
	Msg  string
}

func dataErrf(data []byte, err error, format string, args ...any) error {
	return &DataError{data, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x", e.Msg, e.Err, n, e.Data)
		} else {
			return fmt.Sprintf("%s: (%d) %x", e.Msg, n, e.Data)
		}
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x...%x", e.Msg, e.Err, n, p, s)
		} else {
			return fmt.Sprintf("%s: (%d) %x...%x", e.Msg, n, p, s)
		}
	}
}
