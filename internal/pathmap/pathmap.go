package pathmap

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"librarian/internal/services"
)

// ErrNoMappingConfigured indicates that no configured prefix covers a path.
var ErrNoMappingConfigured = errors.New("no path mapping configured")

// ErrInvalidMapping indicates a mapping table that cannot round-trip.
var ErrInvalidMapping = errors.New("invalid path mapping")

// Direction selects which side of each pair is matched.
type Direction int

const (
	// ToOrganizer rewrites torrent-host paths into organizer-host paths.
	ToOrganizer Direction = iota
	// ToTorrent rewrites organizer-host paths into torrent-host paths.
	ToTorrent
)

func (d Direction) String() string {
	if d == ToTorrent {
		return "to_torrent"
	}
	return "to_organizer"
}

// Mapping pairs a torrent-host prefix with the organizer-host prefix that
// refers to the same directory.
type Mapping struct {
	Torrent   string
	Organizer string
}

// Translator performs longest-prefix translation. The zero value and nil
// translate nothing.
type Translator struct {
	mappings []Mapping
}

// New validates the table and returns a Translator. An empty table yields a
// disabled translator.
func New(mappings []Mapping) (*Translator, error) {
	cleaned := make([]Mapping, 0, len(mappings))
	for i, m := range mappings {
		torrent, err := cleanPrefix(m.Torrent)
		if err != nil {
			return nil, fmt.Errorf("%w: mapping %d torrent side: %w", ErrInvalidMapping, i, err)
		}
		organizer, err := cleanPrefix(m.Organizer)
		if err != nil {
			return nil, fmt.Errorf("%w: mapping %d organizer side: %w", ErrInvalidMapping, i, err)
		}
		cleaned = append(cleaned, Mapping{Torrent: torrent, Organizer: organizer})
	}

	for i := range cleaned {
		for j := range cleaned {
			if i == j {
				continue
			}
			a, b := cleaned[i], cleaned[j]
			if a.Torrent == b.Torrent {
				return nil, fmt.Errorf("%w: torrent prefix %q listed twice", ErrInvalidMapping, a.Torrent)
			}
			if a.Organizer == b.Organizer {
				return nil, fmt.Errorf("%w: organizer prefix %q listed twice", ErrInvalidMapping, a.Organizer)
			}
			torrentRest, torrentNested := within(b.Torrent, a.Torrent)
			organizerRest, organizerNested := within(b.Organizer, a.Organizer)
			if !torrentNested && !organizerNested {
				continue
			}
			if torrentNested != organizerNested || torrentRest != organizerRest {
				return nil, fmt.Errorf("%w: %q→%q nests differently than %q→%q",
					ErrInvalidMapping, b.Torrent, b.Organizer, a.Torrent, a.Organizer)
			}
		}
	}
	return &Translator{mappings: cleaned}, nil
}

// Enabled reports whether any mapping is configured.
func (t *Translator) Enabled() bool {
	return t != nil && len(t.mappings) > 0
}

// Mappings returns a copy of the normalized table.
func (t *Translator) Mappings() []Mapping {
	if t == nil {
		return nil
	}
	return append([]Mapping(nil), t.mappings...)
}

// Translate rewrites p in the given direction.
func (t *Translator) Translate(p string, dir Direction) (string, error) {
	cleaned := path.Clean(strings.TrimSpace(p))
	var (
		best     Mapping
		bestRest string
		bestLen  = -1
	)
	if t != nil {
		for _, m := range t.mappings {
			from := m.Torrent
			if dir == ToTorrent {
				from = m.Organizer
			}
			rest, ok := within(cleaned, from)
			if ok && len(from) > bestLen {
				best, bestRest, bestLen = m, rest, len(from)
			}
		}
	}
	if bestLen < 0 {
		return "", services.Wrap(services.ErrConfiguration, "pathmap", "translate",
			fmt.Sprintf("%s %q", dir, p), ErrNoMappingConfigured)
	}
	to := best.Organizer
	if dir == ToTorrent {
		to = best.Torrent
	}
	if bestRest == "" {
		return to, nil
	}
	return path.Join(to, bestRest), nil
}

// ParseMappings decodes the "torrent|organizer;torrent|organizer" notation used
// by the PATH_MAPPINGS environment variable.
func ParseMappings(value string) ([]Mapping, error) {
	var out []Mapping
	for _, entry := range strings.Split(value, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		torrent, organizer, ok := strings.Cut(entry, "|")
		if !ok {
			return nil, fmt.Errorf("%w: entry %q is missing '|'", ErrInvalidMapping, entry)
		}
		out = append(out, Mapping{Torrent: strings.TrimSpace(torrent), Organizer: strings.TrimSpace(organizer)})
	}
	return out, nil
}

func cleanPrefix(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", errors.New("prefix is empty")
	}
	if !strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("prefix %q is not absolute", p)
	}
	return path.Clean(p), nil
}

// within reports whether p equals prefix or lies beneath it, returning the
// remainder relative to prefix.
func within(p, prefix string) (string, bool) {
	switch {
	case prefix == "/":
		if !strings.HasPrefix(p, "/") {
			return "", false
		}
		return strings.TrimPrefix(p, "/"), true
	case p == prefix:
		return "", true
	case strings.HasPrefix(p, prefix+"/"):
		return p[len(prefix)+1:], true
	default:
		return "", false
	}
}
