package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// GenerateKey computes the deterministic fingerprint for operation op with
// parameters and an optional context map. Parameters are normalized
// (keys sorted lexicographically, nested objects recursively normalized)
// before hashing, so insertion order never affects the result.
func GenerateKey(op string, parameters, ctx map[string]interface{}) string {
	payload := map[string]interface{}{
		"operation":  op,
		"parameters": normalize(parameters),
	}
	if len(ctx) > 0 {
		payload["context"] = normalize(ctx)
	}
	canonical, _ := json.Marshal(sortedPayload(payload))
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])[:16]
}

// normalize recursively collapses a value into a form with stable key
// ordering and absent/undefined values folded to nil, so that two
// logically identical inputs always serialize identically.
func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		if val == nil {
			return nil
		}
		out := make(map[string]interface{}, len(val))
		for k, vv := range val {
			out[k] = normalize(vv)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, vv := range val {
			out[i] = normalize(vv)
		}
		return out
	default:
		return val
	}
}

// sortedPayload wraps payload for json.Marshal. Go's encoding/json already
// sorts map[string]interface{} keys lexicographically when marshaling, so
// this exists mainly to document that guarantee at the call site and to
// give ordering a single place to live if that ever needs to change.
func sortedPayload(payload map[string]interface{}) map[string]interface{} {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return payload
}
