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
			args:    []string{"-u", "alice", "-a", "localhost:1"},
			allowed: []string{"-u"},
			want:    []string{"-u", "alice"},
		},
		{
			name:    "equals form",
			args:    []string{"-s=sqlite", "-a", "x"},
			allowed: []string{"-s"},
			want:    []string{"-s=sqlite"},
		},
		{
			name:    "order preserved",
			args:    []string{"-c=a.json", "-x", "1", "-c", "b.json"},
			allowed: []string{"-c"},
			want:    []string{"-c=a.json", "-c", "b.json"},
		},
		{
			name:    "nothing allowed",
			args:    []string{"-x", "1", "positional"},
			allowed: []string{"-c"},
			want:    []string{},
		},
		{
			name:    "trailing flag without value",
			args:    []string{"-c"},
			allowed: []string{"-c"},
			want:    []string{"-c"},
		},
		{
			name:    "next flag is not a value",
			args:    []string{"-c", "-u", "bob"},
			allowed: []string{"-c"},
			want:    []string{"-c"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterArgs(tt.args, tt.allowed))
		})
	}
}

func TestJSONConfigPath(t *testing.T) {
	assert.Equal(t, "", JSONConfigPath(nil))
	assert.Equal(t, "a.json", JSONConfigPath([]string{"-u", "x", "-c", "a.json"}))
	assert.Equal(t, "b.json", JSONConfigPath([]string{"-config=b.json"}))
	// last one wins
	assert.Equal(t, "b.json", JSONConfigPath([]string{"-c", "a.json", "-config", "b.json"}))
}
