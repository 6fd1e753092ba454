package eventmodel

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// canonicalFieldOrder is the fixed key order required by spec.md §4.1 (I1).
var canonicalFieldOrder = []string{
	"id", "timestamp", "sessionId", "agentId", "eventType", "severity",
	"payload", "metadata", "prevHash",
}

// ComputeHash returns the hex SHA-256 of the canonical JSON serialization
// of e's hash-relevant fields (everything except Hash and TenantID — the
// chain is computed before a tenant is attached to the wire format and
// before the hash itself is known).
//
// Canonical JSON here means: keys in the fixed order above at the top
// level, payload/metadata sub-objects canonicalized recursively (keys
// sorted lexicographically at every depth), no HTML escaping, and
// "prevHash": null when absent. Metadata is omitted entirely when nil,
// matching "absent optional fields are omitted, not serialized as null".
func ComputeHash(e *Event) (string, error) {
	buf, err := canonicalJSON(e)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:]), nil
}

func canonicalJSON(e *Event) ([]byte, error) {
	ordered := make([]byte, 0, 256)
	ordered = append(ordered, '{')
	first := true
	writeField := func(key string, val any, present bool) error {
		if !present {
			return nil
		}
		if !first {
			ordered = append(ordered, ',')
		}
		first = false
		kb, _ := json.Marshal(key)
		ordered = append(ordered, kb...)
		ordered = append(ordered, ':')
		vb, err := canonicalValue(val)
		if err != nil {
			return err
		}
		ordered = append(ordered, vb...)
		return nil
	}

	for _, key := range canonicalFieldOrder {
		switch key {
		case "id":
			if err := writeField(key, e.ID, true); err != nil {
				return nil, err
			}
		case "timestamp":
			ts := e.Timestamp.UTC().Format("2006-01-02T15:04:05.999999999Z07:00")
			if err := writeField(key, ts, true); err != nil {
				return nil, err
			}
		case "sessionId":
			if err := writeField(key, e.SessionID, true); err != nil {
				return nil, err
			}
		case "agentId":
			if err := writeField(key, e.AgentID, true); err != nil {
				return nil, err
			}
		case "eventType":
			if err := writeField(key, string(e.EventType), true); err != nil {
				return nil, err
			}
		case "severity":
			if err := writeField(key, string(e.Severity), true); err != nil {
				return nil, err
			}
		case "payload":
			if err := writeField(key, e.Payload, true); err != nil {
				return nil, err
			}
		case "metadata":
			if err := writeField(key, e.Metadata, e.Metadata != nil); err != nil {
				return nil, err
			}
		case "prevHash":
			if e.PrevHash == nil {
				if err := writeField(key, nil, true); err != nil {
					return nil, err
				}
			} else {
				if err := writeField(key, *e.PrevHash, true); err != nil {
					return nil, err
				}
			}
		}
	}
	ordered = append(ordered, '}')
	return ordered, nil
}

// canonicalValue re-marshals v such that any object (at any depth) has its
// keys sorted lexicographically. Slices are canonicalized element-wise.
// Scalars round-trip through encoding/json, which already produces the
// shortest round-trip decimal for numbers and UTF-8 without a BOM.
func canonicalValue(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return marshalCanonical(generic)
}

func marshalCanonical(v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				out = append(out, ',')
			}
			kb, _ := json.Marshal(k)
			out = append(out, kb...)
			out = append(out, ':')
			vb, err := marshalCanonical(val[k])
			if err != nil {
				return nil, err
			}
			out = append(out, vb...)
		}
		out = append(out, '}')
		return out, nil
	case []any:
		out := []byte{'['}
		for i, item := range val {
			if i > 0 {
				out = append(out, ',')
			}
			ib, err := marshalCanonical(item)
			if err != nil {
				return nil, err
			}
			out = append(out, ib...)
		}
		out = append(out, ']')
		return out, nil
	default:
		return json.Marshal(val)
	}
}
