// Package models contains data structures for catalog content
package models

import (
	"strconv"
	"strings"
)

// MediaKind represents the kind of catalog title a request refers to
type MediaKind string

const (
	MediaKindMovie MediaKind = "movie"
	MediaKindTV    MediaKind = "tv"
)

// ParseMediaKind maps free-form input ("series", "show", "film") to a MediaKind.
// Anything that is not recognisably a series is treated as a movie.
func ParseMediaKind(s string) MediaKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tv", "series", "show", "tvshow", "tv-show", "episode":
		return MediaKindTV
	default:
		return MediaKindMovie
	}
}

// Title is the resolved identity of a catalog entry
type Title struct {
	TMDBID int       `json:"tmdb_id,omitempty"`
	IMDBID string    `json:"imdb_id,omitempty"`
	Kind   MediaKind `json:"kind"`
	Name   string    `json:"name"`
	Year   int       `json:"year,omitempty"`
}

// DisplayName returns the name with the release year appended when known
func (t Title) DisplayName() string {
	if t.Year > 0 {
		return t.Name + " (" + strconv.Itoa(t.Year) + ")"
	}
	return t.Name
}
