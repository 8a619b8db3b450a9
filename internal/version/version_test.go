package version

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alvarorichard/gocatalog/internal/storage"
)

func TestString(t *testing.T) {
	s := String("gocatalog")
	assert.True(t, strings.HasPrefix(s, "gocatalog v"+Version+" ("))
	assert.Equal(t, storage.Available(), strings.Contains(s, "with SQLite"))
}

func TestHasVersionArg(t *testing.T) {
	orig := os.Args
	t.Cleanup(func() { os.Args = orig })

	for arg, want := range map[string]bool{"-version": true, "--v": true, "version": true, "sources": false} {
		os.Args = []string{"gocatalog", arg}
		assert.Equal(t, want, HasVersionArg(), arg)
	}
	os.Args = []string{"gocatalog"}
	assert.False(t, HasVersionArg())
}
