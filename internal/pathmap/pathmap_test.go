package pathmap_test

import (
	"errors"
	"testing"

	"librarian/internal/pathmap"
	"librarian/internal/services"
)

func mustTranslator(t *testing.T, mappings ...pathmap.Mapping) *pathmap.Translator {
	t.Helper()
	tr, err := pathmap.New(mappings)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return tr
}

func TestTranslateLongestPrefix(t *testing.T) {
	tr := mustTranslator(t,
		pathmap.Mapping{Torrent: "/home/seed/downloads", Organizer: "/mnt/seedbox"},
		pathmap.Mapping{Torrent: "/home/seed/downloads/books", Organizer: "/mnt/seedbox/books"},
		pathmap.Mapping{Torrent: "/data", Organizer: "/srv/data"},
	)

	cases := []struct {
		in   string
		dir  pathmap.Direction
		want string
	}{
		{"/home/seed/downloads/books/Dune", pathmap.ToOrganizer, "/mnt/seedbox/books/Dune"},
		{"/home/seed/downloads/other/file.epub", pathmap.ToOrganizer, "/mnt/seedbox/other/file.epub"},
		{"/home/seed/downloads", pathmap.ToOrganizer, "/mnt/seedbox"},
		{"/data/x/../y/", pathmap.ToOrganizer, "/srv/data/y"},
		{"/srv/data/y", pathmap.ToTorrent, "/data/y"},
		{"/mnt/seedbox/books/Dune/part1.mp3", pathmap.ToTorrent, "/home/seed/downloads/books/Dune/part1.mp3"},
	}
	for _, tc := range cases {
		got, err := tr.Translate(tc.in, tc.dir)
		if err != nil {
			t.Fatalf("Translate(%q) failed: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("Translate(%q, %s) = %q, want %q", tc.in, tc.dir, got, tc.want)
		}
	}
}

func TestTranslateMatchesWholeComponents(t *testing.T) {
	tr := mustTranslator(t, pathmap.Mapping{Torrent: "/data", Organizer: "/srv/data"})
	_, err := tr.Translate("/database/file", pathmap.ToOrganizer)
	if !errors.Is(err, pathmap.ErrNoMappingConfigured) {
		t.Fatalf("expected ErrNoMappingConfigured, got %v", err)
	}
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration marker, got %v", err)
	}
}

func TestTranslateRootPrefix(t *testing.T) {
	tr := mustTranslator(t, pathmap.Mapping{Torrent: "/", Organizer: "/mnt/remote"})
	got, err := tr.Translate("/downloads/a", pathmap.ToOrganizer)
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if got != "/mnt/remote/downloads/a" {
		t.Fatalf("unexpected translation %q", got)
	}
	back, err := tr.Translate(got, pathmap.ToTorrent)
	if err != nil {
		t.Fatalf("reverse Translate failed: %v", err)
	}
	if back != "/downloads/a" {
		t.Fatalf("unexpected reverse translation %q", back)
	}
}

func TestEmptyTableTranslatesNothing(t *testing.T) {
	tr := mustTranslator(t)
	if tr.Enabled() {
		t.Fatal("expected empty translator to be disabled")
	}
	if _, err := tr.Translate("/a", pathmap.ToOrganizer); !errors.Is(err, pathmap.ErrNoMappingConfigured) {
		t.Fatalf("expected ErrNoMappingConfigured, got %v", err)
	}
	var nilTranslator *pathmap.Translator
	if _, err := nilTranslator.Translate("/a", pathmap.ToTorrent); !errors.Is(err, pathmap.ErrNoMappingConfigured) {
		t.Fatalf("expected ErrNoMappingConfigured from nil translator, got %v", err)
	}
}

func TestRoundTripForEveryPair(t *testing.T) {
	table := []pathmap.Mapping{
		{Torrent: "/home/seed/downloads", Organizer: "/mnt/seedbox"},
		{Torrent: "/home/seed/downloads/books", Organizer: "/mnt/seedbox/books"},
		{Torrent: "/var/lib/qbit", Organizer: "/volumes/qbit"},
	}
	tr := mustTranslator(t, table...)
	suffixes := []string{"", "a", "a/b/c.m4b", "books", "books/x y/z"}
	for _, m := range table {
		for _, suffix := range suffixes {
			original := m.Torrent
			if suffix != "" {
				original += "/" + suffix
			}
			forward, err := tr.Translate(original, pathmap.ToOrganizer)
			if err != nil {
				t.Fatalf("forward %q failed: %v", original, err)
			}
			back, err := tr.Translate(forward, pathmap.ToTorrent)
			if err != nil {
				t.Fatalf("reverse %q failed: %v", forward, err)
			}
			if back != original {
				t.Fatalf("round trip %q → %q → %q", original, forward, back)
			}
		}
	}
}

func TestNewRejectsTablesThatCannotRoundTrip(t *testing.T) {
	cases := map[string][]pathmap.Mapping{
		"relative":            {{Torrent: "downloads", Organizer: "/mnt"}},
		"empty":               {{Torrent: "/a", Organizer: " "}},
		"duplicate torrent":   {{Torrent: "/a", Organizer: "/x"}, {Torrent: "/a/", Organizer: "/y"}},
		"duplicate organizer": {{Torrent: "/a", Organizer: "/x"}, {Torrent: "/b", Organizer: "/x"}},
		"one sided nesting":   {{Torrent: "/a", Organizer: "/x"}, {Torrent: "/a/b", Organizer: "/y"}},
		"mismatched suffix":   {{Torrent: "/a", Organizer: "/x"}, {Torrent: "/a/b", Organizer: "/x/c"}},
	}
	for name, table := range cases {
		if _, err := pathmap.New(table); !errors.Is(err, pathmap.ErrInvalidMapping) {
			t.Fatalf("%s: expected ErrInvalidMapping, got %v", name, err)
		}
	}
}

func TestParseMappings(t *testing.T) {
	got, err := pathmap.ParseMappings(" /home/seed|/mnt/seed ; /data|/srv/data;")
	if err != nil {
		t.Fatalf("ParseMappings failed: %v", err)
	}
	if len(got) != 2 || got[0].Torrent != "/home/seed" || got[1].Organizer != "/srv/data" {
		t.Fatalf("unexpected mappings: %+v", got)
	}
	if _, err := pathmap.ParseMappings("/no-separator"); !errors.Is(err, pathmap.ErrInvalidMapping) {
		t.Fatalf("expected ErrInvalidMapping, got %v", err)
	}
}
