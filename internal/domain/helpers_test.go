package domain

import (
	"encoding/json"
	"testing"
)

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshaling test payload: %v", err)
	}
	return raw
}
