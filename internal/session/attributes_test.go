package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAttributesMode(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  RoutingMode
	}{
		{"single selects point-to-point", "single", ModePointToPoint},
		{"multi selects broadcast", "multi", ModeBroadcast},
		{"unknown value falls back to broadcast", "whatever", ModeBroadcast},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := parseAttributes(map[string]string{"mode": tt.value})
			require.NotNil(t, u.mode)
			assert.Equal(t, tt.want, *u.mode)
		})
	}
}

func TestParseAttributesAbsentModeLeavesUnchanged(t *testing.T) {
	u := parseAttributes(map[string]string{"captions_language": "vi"})
	assert.Nil(t, u.mode)
	assert.Equal(t, "vi", u.captionsLanguage)
}

func TestParseAttributesLanguageKeys(t *testing.T) {
	u := parseAttributes(map[string]string{
		"mode":            "single",
		"input_language":  "es",
		"output_language": "vi",
	})
	require.NotNil(t, u.mode)
	assert.Equal(t, ModePointToPoint, *u.mode)
	assert.Equal(t, "es", u.inputLanguage)
	assert.Equal(t, "vi", u.outputLanguage)
	assert.Empty(t, u.captionsLanguage)
}
