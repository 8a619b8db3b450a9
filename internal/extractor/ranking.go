package extractor

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/alvarorichard/gocatalog/internal/models"
)

// Quality ordinals, higher is better
const (
	QualityLow = iota + 1
	QualitySD
	QualityHD
	QualityFullHD
	QualityUltraHD
)

// resolutionPattern needs the p/i suffix so codec tags such as x264 are not
// read as resolutions. A bare number label ("720") is also accepted.
var (
	resolutionPattern = regexp.MustCompile(`\b(\d{3,4})[pi]`)
	bareNumberPattern = regexp.MustCompile(`^(\d{3,4})$`)
)

// QualityRank maps a free-text quality label to an ordinal. "auto" ranks as
// full HD and unknown labels rank as SD.
func QualityRank(label string) int {
	q := strings.ToLower(strings.TrimSpace(label))
	switch {
	case q == "":
		return QualitySD
	case strings.Contains(q, "4k"), strings.Contains(q, "uhd"), strings.Contains(q, "2160"):
		return QualityUltraHD
	case q == "auto", strings.Contains(q, "fhd"), strings.Contains(q, "full hd"), strings.Contains(q, "fullhd"):
		return QualityFullHD
	}

	m := resolutionPattern.FindStringSubmatch(q)
	if m == nil {
		m = bareNumberPattern.FindStringSubmatch(q)
	}
	if m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			switch {
			case n >= 2160:
				return QualityUltraHD
			case n >= 1080:
				return QualityFullHD
			case n >= 720:
				return QualityHD
			case n >= 480:
				return QualitySD
			default:
				return QualityLow
			}
		}
	}

	switch q {
	case "hd":
		return QualityHD
	case "sd":
		return QualitySD
	case "low", "ld":
		return QualityLow
	}
	return QualitySD
}

// LangMatches compares language codes by primary subtag ("en-US" matches "en")
func LangMatches(lang, target string) bool {
	if lang == "" || target == "" {
		return false
	}
	return strings.EqualFold(primarySubtag(lang), primarySubtag(target))
}

func primarySubtag(lang string) string {
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		return lang[:i]
	}
	return lang
}

// SortStreams returns a ranked copy of streams: target language first, then
// provider priority (unknown providers count as 0), then quality. Ties keep
// their input order.
func SortStreams(streams []models.ExtractedStream, targetLang string, priorities map[string]int) []models.ExtractedStream {
	sorted := make([]models.ExtractedStream, len(streams))
	copy(sorted, streams)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]

		aLang, bLang := LangMatches(a.AudioLang, targetLang), LangMatches(b.AudioLang, targetLang)
		if aLang != bLang {
			return aLang
		}
		if pa, pb := priorities[a.Provider], priorities[b.Provider]; pa != pb {
			return pa > pb
		}
		return QualityRank(a.Quality) > QualityRank(b.Quality)
	})
	return sorted
}

// Flatten concatenates the streams of every result in order
func Flatten(results []models.ExtractionResult) []models.ExtractedStream {
	return lo.FlatMap(results, func(r models.ExtractionResult, _ int) []models.ExtractedStream {
		return r.Streams
	})
}

// Subtitles concatenates subtitle tracks of every result, dropping repeated URLs
func Subtitles(results []models.ExtractionResult) []models.SubtitleTrack {
	all := lo.FlatMap(results, func(r models.ExtractionResult, _ int) []models.SubtitleTrack {
		return r.Subtitles
	})
	return lo.UniqBy(all, func(t models.SubtitleTrack) string { return t.URL })
}
