// Package models contains TMDB (The Movie Database) data structures
package models

import "strconv"

// TMDBDetails contains movie/TV show information from TMDB
type TMDBDetails struct {
	ID           int    `json:"id"`
	IMDBID       string `json:"imdb_id"`
	Title        string `json:"title"` // For movies
	Name         string `json:"name"`  // For TV shows
	OriginalName string `json:"original_name"`
	ReleaseDate  string `json:"release_date"`   // For movies
	FirstAirDate string `json:"first_air_date"` // For TV shows
	ExternalIDs  struct {
		IMDBID string `json:"imdb_id"`
	} `json:"external_ids"`
}

// DisplayTitle returns the movie title or the show name
func (d *TMDBDetails) DisplayTitle() string {
	if d.Title != "" {
		return d.Title
	}
	return d.Name
}

// ReleaseYear returns the year part of the release or first air date, or 0
func (d *TMDBDetails) ReleaseYear() int {
	return yearOf(d.ReleaseDate, d.FirstAirDate)
}

// TMDBMedia represents a movie or TV show in search and find results
type TMDBMedia struct {
	ID           int    `json:"id"`
	MediaType    string `json:"media_type"` // "movie" or "tv"
	Title        string `json:"title"`      // For movies
	Name         string `json:"name"`       // For TV shows
	ReleaseDate  string `json:"release_date"`
	FirstAirDate string `json:"first_air_date"`
}

// GetDisplayTitle returns the appropriate title for the media
func (m *TMDBMedia) GetDisplayTitle() string {
	if m.Title != "" {
		return m.Title
	}
	return m.Name
}

// GetReleaseYear returns the release year
func (m *TMDBMedia) GetReleaseYear() int {
	return yearOf(m.ReleaseDate, m.FirstAirDate)
}

func yearOf(dates ...string) int {
	for _, date := range dates {
		if len(date) >= 4 {
			if y, err := strconv.Atoi(date[:4]); err == nil {
				return y
			}
		}
	}
	return 0
}
