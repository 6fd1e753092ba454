package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewService_CompilesBuiltinPatternsAndCodeMaskers(t *testing.T) {
	svc := NewService(true)
	assert.NotEmpty(t, svc.patterns)
	assert.NotEmpty(t, svc.codeMaskers)
}

func TestService_Mask_RedactsAPIKeyInPayloadString(t *testing.T) {
	svc := NewService(true)
	payload := map[string]any{"output": "the key is sk-abcdefghijklmnopqrstuvwxyz0123456789"}
	svc.Mask(payload)
	assert.Contains(t, payload["output"], "[MASKED_API_KEY]")
	assert.NotContains(t, payload["output"], "sk-abcdefghijklmnopqrstuvwxyz0123456789")
}

func TestService_Mask_Disabled_LeavesPayloadUntouched(t *testing.T) {
	svc := NewService(false)
	payload := map[string]any{"output": "sk-abcdefghijklmnopqrstuvwxyz0123456789"}
	svc.Mask(payload)
	assert.Equal(t, "sk-abcdefghijklmnopqrstuvwxyz0123456789", payload["output"])
}

func TestService_Mask_RecursesIntoNestedStructures(t *testing.T) {
	svc := NewService(true)
	payload := map[string]any{
		"nested": map[string]any{
			"list": []any{"Bearer abcdefghij1234567890"},
		},
	}
	svc.Mask(payload)
	nested := payload["nested"].(map[string]any)
	list := nested["list"].([]any)
	assert.Contains(t, list[0], "[MASKED_TOKEN]")
}

func TestService_Mask_LeavesNonSecretStringsAlone(t *testing.T) {
	svc := NewService(true)
	payload := map[string]any{"tool": "get_weather", "city": "Boston"}
	svc.Mask(payload)
	assert.Equal(t, "get_weather", payload["tool"])
	assert.Equal(t, "Boston", payload["city"])
}
