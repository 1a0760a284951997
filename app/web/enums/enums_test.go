package enums

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTheme(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Theme
		wantErr bool
	}{
		{name: "light", input: "light", want: ThemeLight},
		{name: "dark", input: "dark", want: ThemeDark},
		{name: "unknown", input: "solarized", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "wrong case", input: "Dark", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTheme(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.input, got.String())
		})
	}
}

func TestParseSortMode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    SortMode
		wantErr bool
	}{
		{name: "default", input: "default", want: SortModeDefault},
		{name: "name", input: "name", want: SortModeName},
		{name: "nextrun", input: "nextrun", want: SortModeNextrun},
		{name: "unknown", input: "lastrun", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSortMode(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFilterMode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    FilterMode
		wantErr bool
	}{
		{name: "all", input: "all", want: FilterModeAll},
		{name: "running", input: "running", want: FilterModeRunning},
		{name: "idle", input: "idle", want: FilterModeIdle},
		{name: "unknown", input: "failed", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFilterMode(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTheme_JSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(ThemeDark)
	require.NoError(t, err)
	assert.Equal(t, `"dark"`, string(data))

	var parsed Theme
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, ThemeDark, parsed)

	err = json.Unmarshal([]byte(`"nope"`), &parsed)
	require.Error(t, err)
}

func TestZeroValues(t *testing.T) {
	// zero values render as empty, callers always go through the getters
	assert.Equal(t, "", Theme{}.String())
	assert.Equal(t, "", SortMode{}.String())
	assert.Equal(t, "", FilterMode{}.String())
}
