package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeLaunch, false},
		{"launch", ModeLaunch, false},
		{" Connect ", ModeConnect, false},
		{"DOCKER", ModeDocker, false},
		{"remote", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewPlaywrightProvider_Validation(t *testing.T) {
	_, err := NewPlaywrightProvider(PlaywrightOptions{Mode: ModeDocker})
	assert.ErrorContains(t, err, "container pool")

	_, err = NewPlaywrightProvider(PlaywrightOptions{Mode: ModeConnect})
	assert.ErrorContains(t, err, "CDP endpoint")

	p, err := NewPlaywrightProvider(PlaywrightOptions{})
	require.NoError(t, err)
	assert.Equal(t, ModeLaunch, p.opts.Mode)
	assert.Equal(t, defaultNavigationTimeout, p.opts.NavigationTimeout)
	assert.Empty(t, p.DebugEndpoint())
	assert.NoError(t, p.Close())
}

func TestRelease_RejectsForeignHandle(t *testing.T) {
	p, err := NewPlaywrightProvider(PlaywrightOptions{})
	require.NoError(t, err)

	var h Handle
	assert.Error(t, p.Release(h, true))
}

func TestTargetIDOf(t *testing.T) {
	id, err := targetIDOf(map[string]any{
		"targetInfo": map[string]any{"targetId": "9A1F", "type": "page"},
	})
	require.NoError(t, err)
	assert.Equal(t, "9A1F", id)

	for _, res := range []any{
		nil,
		"nope",
		map[string]any{},
		map[string]any{"targetInfo": map[string]any{"type": "page"}},
	} {
		_, err := targetIDOf(res)
		assert.Error(t, err, "%v", res)
	}
}
