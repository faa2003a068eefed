package flagx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		allowed []string
		want    []string
	}{
		{
			name:    "separate value",
			args:    []string{"-c", "conf.json", "-s", "https://api.example"},
			allowed: []string{"-c"},
			want:    []string{"-c", "conf.json"},
		},
		{
			name:    "equals form",
			args:    []string{"--config=alt.json", "-s", "x"},
			allowed: []string{"--config"},
			want:    []string{"--config=alt.json"},
		},
		{
			name:    "unknown flags dropped",
			args:    []string{"-x", "1", "--y=2", "positional"},
			allowed: []string{"-c"},
			want:    []string{},
		},
		{
			name:    "trailing flag without value",
			args:    []string{"-debounce"},
			allowed: []string{"-debounce"},
			want:    []string{"-debounce"},
		},
		{
			name:    "next dash token is not a value",
			args:    []string{"-c", "-db", "store.db"},
			allowed: []string{"-c", "-db"},
			want:    []string{"-c", "-db", "store.db"},
		},
		{
			name:    "order preserved",
			args:    []string{"-db", "a.db", "-s", "https://x", "-c", "c.json"},
			allowed: []string{"-s", "-db"},
			want:    []string{"-db", "a.db", "-s", "https://x"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FilterArgs(tc.args, tc.allowed))
		})
	}
}

func TestConfigFile(t *testing.T) {
	assert.Equal(t, "a.json", ConfigFile([]string{"-s", "x", "-c", "a.json"}))
	assert.Equal(t, "b.json", ConfigFile([]string{"-config=b.json"}))
	assert.Equal(t, "", ConfigFile([]string{"-s", "x"}))
}
