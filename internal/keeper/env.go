package keeper

import (
	"encoding/json"
	"strconv"
)

// ExtractEnv returns the "env" object of a JSON settings document as strings.
// Content that is not a JSON object, or has no env object, yields nil.
func ExtractEnv(data []byte) map[string]string {
	if len(data) == 0 {
		return nil
	}
	var doc struct {
		Env map[string]any `json:"env"`
	}
	if err := json.Unmarshal(data, &doc); err != nil || doc.Env == nil {
		return nil
	}
	out := make(map[string]string, len(doc.Env))
	for k, v := range doc.Env {
		switch val := v.(type) {
		case string:
			out[k] = val
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(val)
		case nil:
			continue
		default:
			raw, _ := json.Marshal(val)
			out[k] = string(raw)
		}
	}
	return out
}
