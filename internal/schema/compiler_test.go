package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateConsultRequest(t *testing.T) {
	v := NewValidator(64)

	err := v.ValidateConsultRequest(map[string]interface{}{
		"category":     "billing",
		"query":        "invoice question",
		"customerName": "Alex Customer",
		"preferredTimes": []interface{}{
			map[string]interface{}{
				"startDateTime": "2026-03-02T10:00:00Z",
				"endDateTime":   "2026-03-02T10:30:00Z",
			},
		},
	})
	assert.NoError(t, err)
}

func TestValidateConsultRequestMissingCategory(t *testing.T) {
	v := NewValidator(64)

	err := v.ValidateConsultRequest(map[string]interface{}{
		"query": "no category given",
	})
	assert.Error(t, err)
}

func TestValidateConsultRequestRejectsUnknownFields(t *testing.T) {
	v := NewValidator(64)

	err := v.ValidateConsultRequest(map[string]interface{}{
		"category": "billing",
		"admin":    true,
	})
	assert.Error(t, err)
}

func TestValidateAgainstCachesCompiles(t *testing.T) {
	v := NewValidator(64)

	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{"type": "string"},
		},
		"required": []string{"name"},
	}

	require.NoError(t, v.ValidateAgainst(schema, map[string]interface{}{"name": "test"}))
	// second pass hits the cache
	require.NoError(t, v.ValidateAgainst(schema, map[string]interface{}{"name": "again"}))
	assert.Error(t, v.ValidateAgainst(schema, map[string]interface{}{}))
}
