package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret("  "))
	assert.Equal(t, "****", MaskSecret("abc"))
	assert.Equal(t, "****6789", MaskSecret("123456789"))
}

func TestMaskSensitiveOnlyTouchesSensitiveKeys(t *testing.T) {
	out := MaskSensitive(map[string]any{
		"role_key": "branch_admin",
		"token_id": "1790000000000000001",
		"email":    "ana@example.com",
		"attempts": 3,
		"  ":       "dropped",
	})

	assert.Equal(t, "branch_admin", out["role_key"])
	assert.Equal(t, "****0001", out["token_id"])
	assert.Equal(t, "****.com", out["email"])
	assert.Equal(t, 3, out["attempts"])
	assert.NotContains(t, out, "  ")
}

func TestMaskSensitiveEmpty(t *testing.T) {
	assert.Nil(t, MaskSensitive(nil))
}
