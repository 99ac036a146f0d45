package health

import "encoding/json"

// toJSON best-effort marshals v for inclusion in an error log context
// blob; marshal failures degrade to an empty object rather than
// propagating, since this is diagnostic-only.
func toJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
