package dynamostore

import (
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/andreyvit/docstore/storage"
)

// encodeValue converts a canonical value. Times are stored as
// storage.TimeLayout strings so that they compare correctly on the server.
func encodeValue(v any) (types.AttributeValue, error) {
	switch v := v.(type) {
	case nil:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case time.Time:
		s, err := storage.FormatTime(v)
		if err != nil {
			return nil, err
		}
		return &types.AttributeValueMemberS{Value: s}, nil
	case []byte:
		// attributevalue would encode an empty slice as NULL.
		return &types.AttributeValueMemberB{Value: v}, nil
	case float64:
		return &types.AttributeValueMemberN{Value: strconv.FormatFloat(v, 'g', -1, 64)}, nil
	case string:
		// Same as []byte, empty strings must not become NULL.
		return &types.AttributeValueMemberS{Value: v}, nil
	case bool, int64:
		return attributevalue.Marshal(v)
	default:
		return nil, fmt.Errorf("unsupported value %T", v)
	}
}

func decodeValue(kind storage.Kind, av types.AttributeValue) (any, error) {
	switch av := av.(type) {
	case *types.AttributeValueMemberNULL:
		return nil, nil
	case *types.AttributeValueMemberN:
		switch kind {
		case storage.Time:
			// Written by earlier versions as Unix nanoseconds.
			ns, err := strconv.ParseInt(av.Value, 10, 64)
			if err != nil {
				return nil, err
			}
			return time.Unix(0, ns).UTC(), nil
		case storage.Float:
			return strconv.ParseFloat(av.Value, 64)
		case storage.Int:
			var n int64
			err := attributevalue.Unmarshal(av, &n)
			return n, err
		default:
			if n, err := strconv.ParseInt(av.Value, 10, 64); err == nil {
				return n, nil
			}
			return strconv.ParseFloat(av.Value, 64)
		}
	case *types.AttributeValueMemberS:
		if kind == storage.Time {
			return storage.ParseTime(av.Value)
		}
		return av.Value, nil
	case *types.AttributeValueMemberB:
		return av.Value, nil
	case *types.AttributeValueMemberBOOL:
		return av.Value, nil
	default:
		return nil, fmt.Errorf("unsupported attribute value %T", av)
	}
}

func encodeItem(entity string, id storage.RecordID, attrs storage.Attributes) (map[string]types.AttributeValue, error) {
	item := make(map[string]types.AttributeValue, len(attrs)+2)
	item[entityKey] = &types.AttributeValueMemberS{Value: entity}
	item[idKey] = &types.AttributeValueMemberS{Value: string(id)}
	for name, v := range attrs {
		av, err := encodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("%s/%s: attribute %s: %w", entity, id, name, err)
		}
		item[name] = av
	}
	return item, nil
}

func decodeItem(entity string, kinds map[string]storage.Kind, item map[string]types.AttributeValue) (*storage.Record, error) {
	rec := &storage.Record{Entity: entity, Attrs: make(storage.Attributes, len(item))}
	if s, ok := item[idKey].(*types.AttributeValueMemberS); ok {
		rec.ID = storage.RecordID(s.Value)
	} else {
		return nil, fmt.Errorf("%s: item without %s", entity, idKey)
	}
	for name, av := range item {
		if name == idKey || name == entityKey {
			continue
		}
		v, err := decodeValue(kinds[name], av)
		if err != nil {
			return nil, fmt.Errorf("%s/%s: attribute %s: %w", entity, rec.ID, name, err)
		}
		rec.Attrs[name] = v
	}
	return rec, nil
}

func itemKey(entity string, id storage.RecordID) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		entityKey: &types.AttributeValueMemberS{Value: entity},
		idKey:     &types.AttributeValueMemberS{Value: string(id)},
	}
}
