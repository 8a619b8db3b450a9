package extractor

import (
	"strings"

	"github.com/pkg/errors"
)

// Provider types accepted in configuration
const (
	TypeAPI     = "api"
	TypeEmbed   = "embed"
	TypeBrowser = "browser"
	TypeFlixHQ  = "flixhq"
)

// Build turns configured provider specs into extractors, skipping disabled ones.
// Unknown types, missing names and duplicate names are errors.
func Build(specs []Spec) ([]Extractor, error) {
	seen := make(map[string]struct{}, len(specs))
	out := make([]Extractor, 0, len(specs))

	for i, spec := range specs {
		spec.Name = strings.TrimSpace(spec.Name)
		if spec.Name == "" {
			return nil, errors.Errorf("provider %d: name is required", i)
		}
		if _, dup := seen[spec.Name]; dup {
			return nil, errors.Errorf("provider %q: duplicate name", spec.Name)
		}
		seen[spec.Name] = struct{}{}

		if !spec.IsEnabled() {
			continue
		}

		switch strings.ToLower(spec.Type) {
		case TypeAPI:
			if spec.MovieURL == "" && spec.TVURL == "" {
				return nil, errors.Errorf("provider %q: movie_url or tv_url is required", spec.Name)
			}
			out = append(out, NewAPISource(spec))
		case TypeEmbed:
			if spec.MovieURL == "" && spec.TVURL == "" {
				return nil, errors.Errorf("provider %q: movie_url or tv_url is required", spec.Name)
			}
			out = append(out, NewEmbedPage(spec))
		case TypeBrowser:
			if spec.MovieURL == "" && spec.TVURL == "" {
				return nil, errors.Errorf("provider %q: movie_url or tv_url is required", spec.Name)
			}
			out = append(out, NewBrowserSource(spec))
		case TypeFlixHQ:
			out = append(out, NewFlixHQ(spec))
		default:
			return nil, errors.Errorf("provider %q: unknown type %q", spec.Name, spec.Type)
		}
	}
	return out, nil
}
