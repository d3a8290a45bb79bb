package config

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags() (*flag.FlagSet, *string, *int, *bool) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	addr := fs.String("addr", ":8000", "")
	tokens := fs.Int("max-new-tokens", 50, "")
	sample := fs.Bool("do-sample", false, "")
	return fs, addr, tokens, sample
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "TINYCHAT_MAX_NEW_TOKENS", EnvName("max-new-tokens"))
	assert.Equal(t, "TINYCHAT_ADDR", EnvName("addr"))
}

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		env        map[string]string
		args       []string
		wantAddr   string
		wantTokens int
		wantSample bool
	}{
		{"defaults", nil, nil, ":8000", 50, false},
		{"env", map[string]string{"TINYCHAT_ADDR": ":9000", "TINYCHAT_DO_SAMPLE": "true"}, nil, ":9000", 50, true},
		{"flag wins", map[string]string{"TINYCHAT_MAX_NEW_TOKENS": "10"}, []string{"--max-new-tokens=20"}, ":8000", 20, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			fs, addr, tokens, sample := newFlags()
			require.NoError(t, Parse(fs, tt.args))
			assert.Equal(t, tt.wantAddr, *addr)
			assert.Equal(t, tt.wantTokens, *tokens)
			assert.Equal(t, tt.wantSample, *sample)
		})
	}
}

func TestParse_InvalidEnv(t *testing.T) {
	t.Setenv("TINYCHAT_MAX_NEW_TOKENS", "many")
	fs, _, _, _ := newFlags()
	err := Parse(fs, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TINYCHAT_MAX_NEW_TOKENS")
}

func TestApplyEnv_SkipsKlogFlags(t *testing.T) {
	t.Setenv("TINYCHAT_V", "5")
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	v := fs.Int("v", 0, "")
	require.NoError(t, ApplyEnv(fs))
	assert.Equal(t, 0, *v)
}
