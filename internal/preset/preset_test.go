package preset

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveCaseInsensitive(t *testing.T) {
	tests := []struct {
		name     string
		variants []string
	}{
		{name: "x86", variants: []string{"x86", "X86"}},
		{name: "x86-64", variants: []string{"x86-64", "X86-64"}},
		{name: "mips32le", variants: []string{"mips32le", "MIPS32LE", "Mips32Le"}},
		{name: "aarch64", variants: []string{"aarch64", "AARCH64"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want, err := Resolve(tt.name)
			require.NoError(t, err)
			require.NotEmpty(t, want)
			for _, v := range tt.variants {
				got, err := Resolve(v)
				require.NoError(t, err, v)
				assert.Equal(t, want, got, v)
			}
		})
	}
}

func TestResolveUnknown(t *testing.T) {
	_, err := Resolve("does-not-exist")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrArchNotFound))

	var notFound *ArchNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "does-not-exist", notFound.Name)
	assert.Contains(t, err.Error(), "does-not-exist")
}

func TestCatalogContents(t *testing.T) {
	names := Default().Names()
	assert.Greater(t, len(names), 100)
	assert.Equal(t, len(names), Default().Len())
	for _, want := range []string{"x86", "x86-64", "mips32le", "aarch64", "z80", "6502"} {
		assert.Contains(t, names, want)
	}
	for _, n := range names {
		assert.Equal(t, strings.ToLower(n), n)
	}
}

func TestRegistryCustomCatalog(t *testing.T) {
	src := fstest.MapFS{
		"specs/Toy.sla":    {Data: []byte("<sleigh processor=\"Toy\"/>")},
		"specs/readme.txt": {Data: []byte("ignored")},
	}
	r := NewRegistry(src, "specs")

	spec, err := r.Resolve("TOY")
	require.NoError(t, err)
	assert.Equal(t, "<sleigh processor=\"Toy\"/>", spec)
	assert.Equal(t, []string{"toy"}, r.Names())
}

func TestRegistryMissingDirectory(t *testing.T) {
	r := NewRegistry(fstest.MapFS{}, "nowhere")
	_, err := r.Resolve("x86")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrArchNotFound))
	assert.Zero(t, r.Len())
}

func TestRegistryConcurrentFirstUse(t *testing.T) {
	r := NewRegistry(catalog, "sla")
	var wg sync.WaitGroup
	results := make([]string, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = r.Resolve("x86")
		}(i)
	}
	wg.Wait()
	for _, got := range results {
		assert.Equal(t, results[0], got)
		assert.NotEmpty(t, got)
	}
}
