package sqlitestore

import (
	"fmt"
	"strings"

	"github.com/andreyvit/docstore/storage"
)

// buildSelect lowers a request to a SELECT over the given column expressions.
// Every condition it emits evaluates to 0 or 1, never NULL, so NOT behaves
// like storage.Match does for missing values.
func buildSelect(tab *table, req *storage.Request, cols []string) (string, []any, error) {
	var buf strings.Builder
	var args []any
	fmt.Fprintf(&buf, "SELECT %s FROM %s", strings.Join(cols, ", "), quote(tab.name))

	if req.Filter != nil {
		cond, condArgs, err := lowerFilter(tab, req.Filter)
		if err != nil {
			return "", nil, err
		}
		buf.WriteString(" WHERE ")
		buf.WriteString(cond)
		args = append(args, condArgs...)
	}

	buf.WriteString(" ORDER BY ")
	for _, k := range req.Sort {
		if _, ok := tab.kinds[k.Attr]; !ok {
			return "", nil, fmt.Errorf("sqlitestore: %s has no column %s", tab.name, k.Attr)
		}
		buf.WriteString(quote(k.Attr))
		if k.Descending {
			buf.WriteString(" DESC, ")
		} else {
			buf.WriteString(" ASC, ")
		}
	}
	buf.WriteString(quote(idColumn))

	limit := req.Limit
	if limit < 0 {
		limit = -1
	}
	buf.WriteString(" LIMIT ? OFFSET ?")
	args = append(args, limit, max(req.Offset, 0))
	return buf.String(), args, nil
}

func lowerFilter(tab *table, f storage.Filter) (string, []any, error) {
	switch f := f.(type) {
	case storage.Compare:
		return lowerCompare(tab, f)
	case storage.And:
		return lowerJunction(tab, f, " AND ", "1")
	case storage.Or:
		return lowerJunction(tab, f, " OR ", "0")
	case storage.Not:
		cond, args, err := lowerFilter(tab, f.Filter)
		if err != nil {
			return "", nil, err
		}
		return "NOT (" + cond + ")", args, nil
	default:
		return "", nil, fmt.Errorf("sqlitestore: unsupported filter %T", f)
	}
}

func lowerJunction(tab *table, fs []storage.Filter, sep, empty string) (string, []any, error) {
	if len(fs) == 0 {
		return empty, nil, nil
	}
	conds := make([]string, len(fs))
	var args []any
	for i, sub := range fs {
		cond, subArgs, err := lowerFilter(tab, sub)
		if err != nil {
			return "", nil, err
		}
		conds[i] = "(" + cond + ")"
		args = append(args, subArgs...)
	}
	return strings.Join(conds, sep), args, nil
}

func lowerCompare(tab *table, c storage.Compare) (string, []any, error) {
	if _, ok := tab.kinds[c.Attr]; !ok {
		return "", nil, fmt.Errorf("sqlitestore: %s has no column %s", tab.name, c.Attr)
	}
	col := quote(c.Attr)

	switch c.Op {
	case storage.OpEqual:
		if c.Value == nil {
			return col + " IS NULL", nil, nil
		}
		arg, err := bindValue(c.Value)
		return col + " IS ?", []any{arg}, err
	case storage.OpNotEqual:
		if c.Value == nil {
			return col + " IS NOT NULL", nil, nil
		}
		arg, err := bindValue(c.Value)
		return col + " IS NOT ?", []any{arg}, err
	case storage.OpIn:
		values, _ := c.Value.([]any)
		var marks []string
		var args []any
		var withNull bool
		for _, v := range values {
			if v == nil {
				withNull = true
				continue
			}
			arg, err := bindValue(v)
			if err != nil {
				return "", nil, err
			}
			marks = append(marks, "?")
			args = append(args, arg)
		}
		var parts []string
		if len(marks) > 0 {
			parts = append(parts, fmt.Sprintf("(%s IS NOT NULL AND %s IN (%s))", col, col, strings.Join(marks, ", ")))
		}
		if withNull {
			parts = append(parts, col+" IS NULL")
		}
		if len(parts) == 0 {
			return "0", nil, nil
		}
		return strings.Join(parts, " OR "), args, nil
	case storage.OpHasPrefix:
		prefix, _ := c.Value.(string)
		return fmt.Sprintf("(typeof(%s) = 'text' AND substr(%s, 1, length(?)) = ?)", col, col), []any{prefix, prefix}, nil
	}

	var sym string
	switch c.Op {
	case storage.OpLess:
		sym = "<"
	case storage.OpLessOrEqual:
		sym = "<="
	case storage.OpGreater:
		sym = ">"
	case storage.OpGreaterOrEqual:
		sym = ">="
	default:
		return "", nil, fmt.Errorf("sqlitestore: unsupported filter op %v", c.Op)
	}
	if c.Value == nil {
		return "0", nil, nil
	}
	arg, err := bindValue(c.Value)
	return fmt.Sprintf("(%s IS NOT NULL AND %s %s ?)", col, col, sym), []any{arg}, err
}
