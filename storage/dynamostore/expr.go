package dynamostore

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/andreyvit/docstore/storage"
)

const (
	// DynamoDB caps the IN operator at 100 operands.
	maxInOperands = 100

	tautology     = "attribute_exists(#e)"
	contradiction = "attribute_not_exists(#e)"
)

// exprBuilder accumulates placeholder maps for a filter expression. #e is
// always bound to the entity key, which every item has.
type exprBuilder struct {
	names  map[string]string
	values map[string]types.AttributeValue
	attrs  map[string]string
}

func newExprBuilder() *exprBuilder {
	return &exprBuilder{
		names:  map[string]string{"#e": entityKey},
		values: make(map[string]types.AttributeValue),
		attrs:  make(map[string]string),
	}
}

func (eb *exprBuilder) name(attr string) string {
	if ph, ok := eb.attrs[attr]; ok {
		return ph
	}
	ph := fmt.Sprintf("#a%d", len(eb.attrs))
	eb.attrs[attr] = ph
	eb.names[ph] = attr
	return ph
}

func (eb *exprBuilder) value(v any) (string, error) {
	av, err := encodeValue(v)
	if err != nil {
		return "", err
	}
	ph := fmt.Sprintf(":v%d", len(eb.values))
	eb.values[ph] = av
	return ph, nil
}

func (eb *exprBuilder) nullType() string {
	const ph = ":null"
	eb.values[ph] = &types.AttributeValueMemberS{Value: "NULL"}
	return ph
}

// lowerFilter returns a FilterExpression matching a superset of what f
// matches. exact reports whether it matches exactly the same set.
func (eb *exprBuilder) lowerFilter(f storage.Filter) (expr string, exact bool, err error) {
	switch f := f.(type) {
	case nil:
		return tautology, true, nil
	case storage.Compare:
		return eb.lowerCompare(f)
	case storage.And:
		return eb.lowerJunction(f, " AND ", tautology)
	case storage.Or:
		return eb.lowerJunction(f, " OR ", contradiction)
	case storage.Not:
		sub, exact, err := eb.lowerFilter(f.Filter)
		if err != nil {
			return "", false, err
		}
		if !exact {
			return tautology, false, nil
		}
		return "NOT (" + sub + ")", true, nil
	default:
		return "", false, fmt.Errorf("unsupported filter %T", f)
	}
}

func (eb *exprBuilder) lowerJunction(fs []storage.Filter, sep, empty string) (string, bool, error) {
	if len(fs) == 0 {
		return empty, true, nil
	}
	exact := true
	parts := make([]string, len(fs))
	for i, sub := range fs {
		expr, subExact, err := eb.lowerFilter(sub)
		if err != nil {
			return "", false, err
		}
		parts[i] = "(" + expr + ")"
		exact = exact && subExact
	}
	return strings.Join(parts, sep), exact, nil
}

func (eb *exprBuilder) isNil(attr string) string {
	n := eb.name(attr)
	return fmt.Sprintf("(attribute_not_exists(%s) OR attribute_type(%s, %s))", n, n, eb.nullType())
}

func (eb *exprBuilder) lowerCompare(c storage.Compare) (string, bool, error) {
	n := eb.name(c.Attr)
	switch c.Op {
	case storage.OpEqual:
		if c.Value == nil {
			return eb.isNil(c.Attr), true, nil
		}
		v, err := eb.value(c.Value)
		return n + " = " + v, true, err
	case storage.OpNotEqual:
		if c.Value == nil {
			return "NOT " + eb.isNil(c.Attr), true, nil
		}
		v, err := eb.value(c.Value)
		return fmt.Sprintf("(%s OR %s <> %s)", eb.isNil(c.Attr), n, v), true, err
	case storage.OpIn:
		values, _ := c.Value.([]any)
		var parts []string
		var operands []string
		for _, cv := range values {
			if cv == nil {
				parts = append(parts, eb.isNil(c.Attr))
				continue
			}
			v, err := eb.value(cv)
			if err != nil {
				return "", false, err
			}
			operands = append(operands, v)
		}
		for chunk := range slices.Chunk(operands, maxInOperands) {
			parts = append(parts, fmt.Sprintf("%s IN (%s)", n, strings.Join(chunk, ", ")))
		}
		if len(parts) == 0 {
			return contradiction, true, nil
		}
		return strings.Join(parts, " OR "), true, nil
	case storage.OpHasPrefix:
		v, err := eb.value(c.Value)
		return fmt.Sprintf("begins_with(%s, %s)", n, v), true, err
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
		return "", false, fmt.Errorf("unsupported filter op %v", c.Op)
	}
	switch c.Value.(type) {
	case nil:
		return contradiction, true, nil
	case bool:
		// DynamoDB only orders numbers, strings and binaries.
		return tautology, false, nil
	}
	v, err := eb.value(c.Value)
	return fmt.Sprintf("%s %s %s", n, sym, v), true, err
}

var placeholderRe = regexp.MustCompile(`[#:][A-Za-z0-9_]+`)

// prune drops placeholders the final expressions don't reference, which
// happens when a subtree gets replaced by a tautology. DynamoDB rejects
// unused placeholders.
func (eb *exprBuilder) prune(exprs ...string) {
	used := make(map[string]bool)
	for _, expr := range exprs {
		for _, ph := range placeholderRe.FindAllString(expr, -1) {
			used[ph] = true
		}
	}
	for ph := range eb.names {
		if !used[ph] {
			delete(eb.names, ph)
		}
	}
	for ph := range eb.values {
		if !used[ph] {
			delete(eb.values, ph)
		}
	}
}
