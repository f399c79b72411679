package problem

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeExceededNamesSlot(t *testing.T) {
	err := NewSizeExceeded("merged", 6.2, 4.5)
	assert.Equal(t, 413, err.Status)
	assert.Equal(t, "merged", err.Slot)
	assert.Contains(t, err.Error(), "merged is 6.2 MB")
	assert.Contains(t, err.Error(), "4.5 MB upload limit")
	assert.Contains(t, err.Error(), "re-encode")
}

func TestAPIErrorJSONCarriesErrorField(t *testing.T) {
	data, err := json.Marshal(NewBadRequest("invalid input", InvalidParam{Name: "id", Reason: "must be 6-10 digits"}))
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, "invalid input", body["error"])
	assert.Equal(t, float64(400), body["status"])
	assert.NotContains(t, body, "slot")
}
