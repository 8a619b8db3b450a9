package titlematch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"scene release", "Inception.2010.1080p.BluRay.x264-SPARKS", "inception"},
		{"underscores and brackets", "The_Dark_Knight_(2008)_[720p]", "the dark knight"},
		{"accents", "Amélie.2001.DVDRip", "amelie"},
		{"apostrophe", "Ocean's.Eleven.2001.WEB-DL", "oceans eleven"},
		{"extra spaces", "  Blade   Runner  ", "blade runner"},
		{"only a year", "2012", "2012"},
		{"only noise", "1080p.x264", "1080p x264"},
		{"every year-like token", "Blade.Runner.2049.2017.HDR", "blade runner"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, NormalizeTitle(tt.in))
		})
	}
}

func TestNormalizeTitle_Idempotent(t *testing.T) {
	t.Parallel()
	inputs := []string{
		"Inception.2010.1080p.BluRay.x264-SPARKS",
		"The.Matrix.1999.720p.BluRay",
		"Amélie (2001)",
		"2012",
		"1080p",
		"Spider-Man: No Way Home 2021 2160p WEB-DL DDP5.1 Atmos",
		"",
	}
	for _, in := range inputs {
		once := NormalizeTitle(in)
		assert.Equal(t, once, NormalizeTitle(once), "input %q", in)
	}
}

func TestSimilarity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1.0, Similarity("Inception.2010.1080p.BluRay.x264-SPARKS", "Inception"))
	assert.Equal(t, 1.0, Similarity("the_dark-knight 2008 HEVC", "The Dark Knight"))
	assert.Equal(t, 0.95, Similarity("Inception Directors Cut", "Inception"))
	assert.Equal(t, 0.0, Similarity("Inception", ""))

	jw := Similarity("Interstellar", "Inception")
	assert.Greater(t, jw, 0.0)
	assert.Less(t, jw, 0.9)
}

func TestIsMatch(t *testing.T) {
	t.Parallel()

	assert.True(t, IsMatch("Inception.2010.1080p.BluRay.x264-SPARKS", "Inception", DefaultThreshold))
	assert.False(t, IsMatch("The.Matrix.1999.720p.BluRay", "Inception", DefaultThreshold))
	assert.True(t, IsMatch("Amelie", "Amélie", DefaultThreshold))
}

func TestBestMatch(t *testing.T) {
	t.Parallel()

	candidates := []string{
		"The Matrix Reloaded",
		"Inception: The Cobol Job",
		"Inception",
	}
	idx, score := BestMatch(candidates, "Inception", DefaultThreshold)
	assert.Equal(t, 2, idx)
	assert.Equal(t, 1.0, score)

	idx, _ = BestMatch([]string{"Frozen"}, "Inception", DefaultThreshold)
	assert.Equal(t, -1, idx)
}

func TestContainsWordRun(t *testing.T) {
	t.Parallel()

	assert.True(t, containsWordRun([]string{"a", "b", "c"}, []string{"b", "c"}))
	assert.False(t, containsWordRun([]string{"a", "b", "c"}, []string{"a", "c"}))
	assert.False(t, containsWordRun([]string{"a"}, []string{"a", "b"}))
	assert.False(t, containsWordRun([]string{"a"}, nil))
}
