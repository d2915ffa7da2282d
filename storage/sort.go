package storage

import (
	"math"
	"slices"
)

// SortKey orders records by one attribute. A request's sort keys apply in
// list order; records equal under every key keep the backend's natural order.
type SortKey struct {
	Attr       string
	Descending bool
}

func (k SortKey) String() string {
	if k.Descending {
		return k.Attr + " desc"
	}
	return k.Attr + " asc"
}

// SortRecords stably sorts records by keys. nil attribute values sort first
// in ascending order.
func SortRecords(records []*Record, keys []SortKey) {
	if len(keys) == 0 {
		return
	}
	slices.SortStableFunc(records, func(a, b *Record) int {
		for _, k := range keys {
			r := CompareValues(a.Attrs[k.Attr], b.Attrs[k.Attr])
			if k.Descending {
				r = -r
			}
			if r != 0 {
				return r
			}
		}
		return 0
	})
}

// Window applies offset and limit to an already sorted slice.
func Window[E any](items []E, offset, limit int64) []E {
	n := int64(len(items))
	if offset < 0 {
		offset = 0
	}
	if offset >= n {
		return items[:0]
	}
	items = items[offset:]
	if limit != NoLimit && limit >= 0 && limit < int64(len(items)) {
		items = items[:limit]
	}
	return items
}

// WindowCount returns how many of n matching records a request with the given
// offset and limit selects.
func WindowCount(n int, offset, limit int64) int {
	rem := int64(n) - max(offset, 0)
	if rem <= 0 {
		return 0
	}
	if limit != NoLimit && limit >= 0 && limit < rem {
		rem = limit
	}
	if rem > math.MaxInt {
		return math.MaxInt
	}
	return int(rem)
}

// Evaluate applies the request's filter, sort and window to records given in
// the backend's natural order. The input slice is not modified.
func Evaluate(req *Request, records []*Record) []*Record {
	matched := make([]*Record, 0, len(records))
	for _, rec := range records {
		if Match(req.Filter, rec.Attrs) {
			matched = append(matched, rec)
		}
	}
	SortRecords(matched, req.Sort)
	return Window(matched, req.Offset, req.Limit)
}

// Project trims records down to what the request's result type needs: IDs-only
// requests drop every attribute.
func Project(req *Request, records []*Record) []*Record {
	if req.Result != ResultIDs {
		return records
	}
	out := make([]*Record, len(records))
	for i, rec := range records {
		out[i] = &Record{ID: rec.ID, Entity: rec.Entity}
	}
	return out
}

func IDs(records []*Record) []RecordID {
	ids := make([]RecordID, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}
	return ids
}
