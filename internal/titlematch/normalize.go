// Package titlematch decides whether a noisy release name refers to a known title.
package titlematch

import (
	"strings"
	"unicode"

	"github.com/mozillazg/go-unidecode"
)

// releaseNoise is stripped from release names before comparing
var releaseNoise = map[string]struct{}{}

func init() {
	for _, group := range [][]string{
		// resolution
		{"2160p", "1440p", "1080p", "1080i", "720p", "576p", "480p", "360p", "4k", "uhd", "fhd", "hd", "sd"},
		// source
		{"bluray", "bdrip", "brrip", "bdremux", "remux", "webrip", "webdl", "web", "dl", "hdtv", "hdrip", "dvdrip", "dvdscr", "dvd", "cam", "hdcam", "ts", "amzn", "nf", "dsnp", "hmax", "atvp"},
		// video codec and dynamic range
		{"x264", "x265", "h264", "h265", "hevc", "avc", "xvid", "divx", "av1", "vp9", "hdr", "hdr10", "dv", "dovi", "sdr"},
		// audio
		{"aac", "aac2", "ac3", "eac3", "dd", "dd5", "ddp", "ddp5", "dts", "dtshd", "truehd", "atmos", "flac", "mp3", "opus"},
		// bit depth and edition
		{"8bit", "10bit", "12bit", "proper", "repack", "extended", "unrated", "remastered", "internal", "limited", "multi", "dual", "subbed", "dubbed"},
		// scene groups
		{"yify", "yts", "rarbg", "sparks", "fgt", "evo", "ettv", "eztv", "psa", "tigole", "qxr", "ntb", "geckos", "ion10", "galaxyrg", "tgx", "playweb", "flux", "cmrg"},
	} {
		for _, tok := range group {
			releaseNoise[tok] = struct{}{}
		}
	}
}

// splitWords transliterates to ASCII, lowercases and turns every separator into a space
func splitWords(s string) []string {
	s = strings.ToLower(unidecode.Unidecode(s))
	s = strings.NewReplacer("'", "", "`", "").Replace(s)
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func isYear(tok string) bool {
	if len(tok) != 4 {
		return false
	}
	for _, r := range tok {
		if r < '0' || r > '9' {
			return false
		}
	}
	return tok >= "1900" && tok <= "2099"
}

// NormalizeTitle strips release noise (resolutions, codecs, audio tags, scene
// groups, years) from a title. When nothing would survive, the separator
// normalized form is kept instead so "2012" or "1080p" still compare.
// The result is idempotent: NormalizeTitle(NormalizeTitle(s)) == NormalizeTitle(s).
func NormalizeTitle(s string) string {
	words := splitWords(s)

	kept := make([]string, 0, len(words))
	for _, w := range words {
		if _, noise := releaseNoise[w]; noise {
			continue
		}
		if isYear(w) {
			continue
		}
		kept = append(kept, w)
	}
	if len(kept) == 0 {
		return strings.Join(words, " ")
	}
	return strings.Join(kept, " ")
}
