package models

import (
	"net/url"
	"strings"
)

// StreamKind is the container kind of a playable stream
type StreamKind string

const (
	// StreamKindHLS is a segmented playlist (m3u8)
	StreamKindHLS StreamKind = "hls"
	// StreamKindFile is a progressive file download (mp4, mkv, ...)
	StreamKindFile StreamKind = "file"
)

// ExtractedStream is one candidate playable stream produced by an extractor
type ExtractedStream struct {
	Provider  string            `json:"provider"`
	URL       string            `json:"url"`
	Quality   string            `json:"quality"`
	AudioLang string            `json:"audio_lang,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Kind      StreamKind        `json:"kind"`
	Category  string            `json:"category,omitempty"`
	Language  string            `json:"language,omitempty"`
}

// SubtitleTrack represents a subtitle track for video playback
type SubtitleTrack struct {
	Lang    string `json:"lang"`
	Label   string `json:"label"`
	URL     string `json:"url"`
	Default bool   `json:"default"`
}

// ExtractionResult is the outcome of running one extractor for one request
type ExtractionResult struct {
	Provider  string            `json:"provider"`
	Streams   []ExtractedStream `json:"streams"`
	Subtitles []SubtitleTrack   `json:"subtitles,omitempty"`
	Error     string            `json:"error,omitempty"`
	// Skipped marks a provider that was not attempted (no browser session available).
	Skipped bool `json:"skipped,omitempty"`
}

// OK reports whether the provider produced at least one stream without error
func (r ExtractionResult) OK() bool {
	return r.Error == "" && len(r.Streams) > 0
}

// DetectStreamKind guesses the container kind from the stream URL
func DetectStreamKind(rawURL string) StreamKind {
	path := strings.ToLower(rawURL)
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		path = strings.ToLower(u.Path)
	}
	if strings.HasSuffix(path, ".m3u8") || strings.Contains(path, ".m3u8") || strings.Contains(path, "/hls/") {
		return StreamKindHLS
	}
	return StreamKindFile
}
