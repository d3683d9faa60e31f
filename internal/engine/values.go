package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"nms-backend/internal/metadata"
)

// Criteria is the flattened per-property and per-relationship filter input.
type Criteria map[string]any

// toDB converts an incoming value into the representation stored for f.
func toDB(f *metadata.Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Type {
	case metadata.TypeString:
		return toText(v)
	case metadata.TypeEnum:
		s, err := toText(v)
		if err != nil {
			return nil, err
		}
		if s != "" && !f.Allows(s) {
			return nil, fmt.Errorf("%q is not one of %s", s, strings.Join(f.Values, ", "))
		}
		return s, nil
	case metadata.TypeInteger:
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			return nil, nil
		}
		n, ok := toInt64(v)
		if !ok {
			return nil, fmt.Errorf("expected an integer, got %v", v)
		}
		return n, nil
	case metadata.TypeFloat:
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			return nil, nil
		}
		n, ok := toFloat64(v)
		if !ok {
			return nil, fmt.Errorf("expected a number, got %v", v)
		}
		return n, nil
	case metadata.TypeBoolean:
		b, ok := toBool(v)
		if !ok {
			return nil, fmt.Errorf("expected a boolean, got %v", v)
		}
		return b, nil
	case metadata.TypeMapping:
		return toJSON(v, '{')
	case metadata.TypeList:
		return toJSON(v, '[')
	}
	return v, nil
}

func toText(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case bool:
		return strconv.FormatBool(val), nil
	case int, int64, float64, json.Number:
		return fmt.Sprint(val), nil
	default:
		return "", fmt.Errorf("expected text, got %T", v)
	}
}

// toJSON encodes structured values. Strings are accepted when they already
// hold a JSON document of the right shape.
func toJSON(v any, open byte) (any, error) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, nil
		}
		if s[0] != open || !json.Valid([]byte(s)) {
			return nil, fmt.Errorf("expected JSON starting with %q", open)
		}
		return s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 || b[0] != open {
		return nil, fmt.Errorf("expected JSON starting with %q", open)
	}
	return string(b), nil
}

func toInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case uint64:
		return int64(val), true
	case float64:
		if val != math.Trunc(val) {
			return 0, false
		}
		return int64(val), true
	case json.Number:
		n, err := val.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case float64:
		return val, true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toBool(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case int:
		return val != 0, true
	case int64:
		return val != 0, true
	case float64:
		return val != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "on", "yes", "y", "1":
			return true, true
		case "false", "off", "no", "n", "0", "":
			return false, true
		}
	}
	return false, false
}

// truthy reports whether a form flag is set.
func truthy(v any) bool {
	b, ok := toBool(v)
	return ok && b
}

// isEmpty mirrors how the table forms send "no value".
func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []any:
		return len(val) == 0
	case []string:
		return len(val) == 0
	case []int64:
		return len(val) == 0
	case bool:
		return !val
	}
	return false
}

// toIDs accepts a single id, a list of ids or a comma separated string.
func toIDs(v any) ([]int64, error) {
	var raw []any
	switch val := v.(type) {
	case nil:
		return nil, nil
	case []any:
		raw = val
	case []int64:
		return val, nil
	case []string:
		for _, s := range val {
			raw = append(raw, s)
		}
	case string:
		for _, part := range strings.Split(val, ",") {
			if part = strings.TrimSpace(part); part != "" {
				raw = append(raw, part)
			}
		}
	default:
		raw = []any{val}
	}
	ids := make([]int64, 0, len(raw))
	for _, r := range raw {
		id, ok := toInt64(r)
		if !ok {
			return nil, fmt.Errorf("invalid id %v", r)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// toNames normalizes a relationship value from a bundle to a name list.
func toNames(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case []string:
		return val
	case []any:
		names := make([]string, 0, len(val))
		for _, item := range val {
			if item != nil {
				names = append(names, fmt.Sprint(item))
			}
		}
		return names
	default:
		return []string{fmt.Sprint(val)}
	}
}

// decodeRows converts stored representations back to Go values in place.
func decodeRows(entity *metadata.Entity, rows []map[string]any) {
	for _, row := range rows {
		for _, f := range entity.Fields {
			v, ok := row[f.Name]
			if !ok || v == nil {
				continue
			}
			switch f.Type {
			case metadata.TypeBoolean:
				if b, ok := toBool(v); ok {
					row[f.Name] = b
				}
			case metadata.TypeInteger:
				if n, ok := toInt64(v); ok {
					row[f.Name] = n
				}
			case metadata.TypeFloat:
				if n, ok := toFloat64(v); ok {
					row[f.Name] = n
				}
			case metadata.TypeMapping, metadata.TypeList:
				s, ok := v.(string)
				if !ok {
					continue
				}
				var decoded any
				if err := json.Unmarshal([]byte(s), &decoded); err == nil {
					row[f.Name] = decoded
				}
			}
		}
	}
}

// serialize projects a decoded row onto the entity's public properties.
func serialize(entity *metadata.Entity, row map[string]any) map[string]any {
	out := make(map[string]any, len(entity.Fields)+1)
	for _, f := range entity.Fields {
		if f.Private {
			continue
		}
		out[f.Name] = row[f.Name]
	}
	out["type"] = entity.Name
	return out
}

// baseProperties is the short summary returned for bulk targets.
func baseProperties(entity *metadata.Entity, row map[string]any) map[string]any {
	return map[string]any{
		"id":            row[metadata.FieldID],
		"name":          row[metadata.FieldName],
		"type":          entity.Name,
		"last_modified": row[metadata.FieldLastModified],
	}
}

func stringList(v any) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05.000000")
}
