package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alvarorichard/gocatalog/internal/models"
)

func TestQualityRank(t *testing.T) {
	t.Parallel()

	tests := []struct {
		label string
		want  int
	}{
		{"2160p", QualityUltraHD},
		{"4K", QualityUltraHD},
		{"UHD", QualityUltraHD},
		{"1080p", QualityFullHD},
		{"auto", QualityFullHD},
		{"Auto", QualityFullHD},
		{"FHD", QualityFullHD},
		{"720p", QualityHD},
		{"HD", QualityHD},
		{"480p", QualitySD},
		{"SD", QualitySD},
		{"360p", QualityLow},
		{"240", QualityLow},
		{"low", QualityLow},
		{"", QualitySD},
		{"unknown", QualitySD},
		{"CAM", QualitySD},
		{"x265 1080p", QualityFullHD},
		{"HEVC x264", QualitySD},
		{"720p x265 10bit", QualityHD},
		{"1080i", QualityFullHD},
		{"1080p60", QualityFullHD},
		{"1080", QualityFullHD},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, QualityRank(tt.label), tt.label)
	}
}

func TestLangMatches(t *testing.T) {
	t.Parallel()

	assert.True(t, LangMatches("en", "en"))
	assert.True(t, LangMatches("EN-us", "en"))
	assert.True(t, LangMatches("pt_BR", "pt-PT"))
	assert.False(t, LangMatches("", "en"))
	assert.False(t, LangMatches("en", ""))
	assert.False(t, LangMatches("es", "en"))
}

func rankingFixture() []models.ExtractedStream {
	return []models.ExtractedStream{
		{Provider: "low-prio", URL: "u1", Quality: "2160p", AudioLang: "es"},
		{Provider: "high-prio", URL: "u2", Quality: "480p", AudioLang: "en"},
		{Provider: "unlisted", URL: "u3", Quality: "1080p", AudioLang: "en"},
		{Provider: "high-prio", URL: "u4", Quality: "auto", AudioLang: "en"},
		{Provider: "low-prio", URL: "u5", Quality: "720p", AudioLang: "en"},
		{Provider: "high-prio", URL: "u6", Quality: "1080p", AudioLang: "en"},
		{Provider: "unlisted", URL: "u7", Quality: "mystery"},
	}
}

func urls(streams []models.ExtractedStream) []string {
	out := make([]string, len(streams))
	for i, s := range streams {
		out[i] = s.URL
	}
	return out
}

func TestSortStreams(t *testing.T) {
	t.Parallel()

	priorities := map[string]int{"high-prio": 10, "low-prio": 1}
	input := rankingFixture()

	sorted := SortStreams(input, "en", priorities)

	// u4 (auto) and u6 (1080p) tie on every key so input order holds
	assert.Equal(t, []string{"u4", "u6", "u2", "u5", "u3", "u1", "u7"}, urls(sorted))
	assert.Equal(t, rankingFixture(), input, "input is not modified")
}

func TestSortStreams_Idempotent(t *testing.T) {
	t.Parallel()

	priorities := map[string]int{"high-prio": 10, "low-prio": 1}
	once := SortStreams(rankingFixture(), "en", priorities)
	assert.Equal(t, once, SortStreams(once, "en", priorities))
}

func TestSortStreams_LanguageBeatsQuality(t *testing.T) {
	t.Parallel()

	streams := []models.ExtractedStream{
		{Provider: "p", URL: "foreign-4k", Quality: "4k", AudioLang: "fr"},
		{Provider: "p", URL: "native-low", Quality: "360p", AudioLang: "en"},
	}
	sorted := SortStreams(streams, "en", nil)
	assert.Equal(t, "native-low", sorted[0].URL)
}

func TestRegistrySortStreams(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register(&MockExtractor{name: "high-prio", priority: 10}, &MockExtractor{name: "low-prio", priority: 1})

	assert.Equal(t, SortStreams(rankingFixture(), "en", map[string]int{"high-prio": 10, "low-prio": 1}),
		reg.SortStreams(rankingFixture(), "en"))
}

func TestFlattenAndSubtitles(t *testing.T) {
	t.Parallel()

	results := []models.ExtractionResult{
		{Provider: "a", Streams: []models.ExtractedStream{{URL: "a1"}, {URL: "a2"}},
			Subtitles: []models.SubtitleTrack{{URL: "s1", Lang: "en"}}},
		{Provider: "b", Streams: []models.ExtractedStream{}, Error: "Timeout"},
		{Provider: "c", Streams: []models.ExtractedStream{{URL: "c1"}},
			Subtitles: []models.SubtitleTrack{{URL: "s1", Lang: "en"}, {URL: "s2", Lang: "es"}}},
	}

	assert.Equal(t, []string{"a1", "a2", "c1"}, urls(Flatten(results)))

	subs := Subtitles(results)
	assert.Len(t, subs, 2)
	assert.Equal(t, "s2", subs[1].URL)
}
