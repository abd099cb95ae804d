package site

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const clusterYAML = `
systems:
  - name: cluster
    partitions:
      - name: login
        max_jobs: 1
        environs: [gnu]
      - name: compute
        max_jobs: 8
        environs: [gnu, clang]
  - name: laptop
    partitions:
      - name: default
        environs: [gnu]
environments:
  - name: gnu
    variables:
      CC: gcc
  - name: clang
    variables:
      CC: clang
`

func TestParse(t *testing.T) {
	s, err := Parse([]byte(clusterYAML))
	require.NoError(t, err)
	require.Len(t, s.Systems(), 2)

	sys, err := s.System("")
	require.NoError(t, err)
	assert.Equal(t, "cluster", sys.Name)

	compute, ok := sys.Partition("compute")
	require.True(t, ok)
	assert.Equal(t, "cluster:compute", compute.FullName())
	assert.Equal(t, 8, compute.MaxJobs)
	assert.Equal(t, []string{"gnu", "clang"}, compute.Environs)

	clang, ok := sys.Environ("clang")
	require.True(t, ok)
	assert.Equal(t, "clang", clang.Variables["CC"])

	laptop, err := s.System("laptop")
	require.NoError(t, err)
	assert.Equal(t, "laptop", laptop.Partitions[0].System)

	_, err = s.System("mainframe")
	assert.ErrorContains(t, err, "unknown system")
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no systems", "environments: []", "no systems"},
		{"unknown key", "systems: []\nclusters: []", "field clusters not found"},
		{"unknown environment", "systems:\n  - name: s\n    partitions:\n      - name: p\n        environs: [gnu]", `unknown environment "gnu"`},
		{"no partitions", "systems:\n  - name: s", "has no partitions"},
		{"negative max_jobs", "systems:\n  - name: s\n    partitions:\n      - name: p\n        max_jobs: -1", "must not be negative"},
		{"duplicate system", "systems:\n  - name: s\n    partitions: [{name: p}]\n  - name: s\n    partitions: [{name: p}]", "defined twice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.yaml")
	require.NoError(t, os.WriteFile(path, []byte(clusterYAML), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, s.Systems(), 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read site file")
}

func TestDefault(t *testing.T) {
	sys, err := Default().System("")
	require.NoError(t, err)
	require.Len(t, sys.Partitions, 1)
	assert.Equal(t, "generic:default", sys.Partitions[0].FullName())
	env, ok := sys.Environ("builtin")
	require.True(t, ok)
	assert.Equal(t, "builtin", env.Name)
}
