package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDuration_UnmarshalYAML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{name: "seconds", input: "d: \"30s\"", want: 30 * time.Second},
		{name: "compound", input: "d: \"1h30m\"", want: 90 * time.Minute},
		{name: "millis", input: "d: \"250ms\"", want: 250 * time.Millisecond},
		{name: "empty", input: "d: \"\"", want: 0},
		{name: "garbage", input: "d: \"soon\"", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var out struct {
				D Duration `yaml:"d"`
			}
			err := yaml.Unmarshal([]byte(tt.input), &out)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.D.Duration())
		})
	}
}

func TestDuration_MarshalYAML(t *testing.T) {
	t.Parallel()

	out, err := yaml.Marshal(struct {
		D Duration `yaml:"d"`
	}{D: Duration(90 * time.Second)})
	require.NoError(t, err)
	assert.Equal(t, "d: 1m30s\n", string(out))
}

func TestDuration_JSONRoundTrip(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(Duration(5 * time.Minute))
	require.NoError(t, err)
	assert.Equal(t, `"5m0s"`, string(data))

	var d Duration
	require.NoError(t, json.Unmarshal(data, &d))
	assert.Equal(t, 5*time.Minute, d.Duration())

	require.NoError(t, json.Unmarshal([]byte("null"), &d))
	assert.Equal(t, time.Duration(0), d.Duration())
}
