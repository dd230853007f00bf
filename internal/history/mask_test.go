package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMask(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"short", "*****"},
		{"1234567890", "**********"},
		{"sk-ant-api03-abcdefgh", "sk-a...efgh"},
		{"ключ-секрет-значение", "ключ...ение"},
	}
	for _, tt := range tests {
		got := Mask(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, got, Mask(got), "masking must be idempotent for %q", tt.in)
	}
}

func TestMaskIfSensitive(t *testing.T) {
	secret := "sk-ant-api03-abcdefgh"
	for _, name := range []string{"ANTHROPIC_AUTH_TOKEN", "openai_api_key", "CLIENT_SECRET", "DbPassword"} {
		assert.Equal(t, "sk-a...efgh", MaskIfSensitive(name, secret), name)
	}
	for _, name := range []string{"ANTHROPIC_BASE_URL", "MODEL", "HOME"} {
		assert.Equal(t, secret, MaskIfSensitive(name, secret), name)
	}
}
