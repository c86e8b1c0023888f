package providers

import "encoding/json"

// embeddingToJSON renders a float32 embedding vector as the JSON array
// string returned from Generate in embedding mode.
func embeddingToJSON(v []float32) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}
