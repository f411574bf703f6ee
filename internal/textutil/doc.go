// Package textutil provides text processing utilities for title
// fingerprinting and filesystem-safe tokens.
//
// Fingerprints are term-frequency vectors over folded tokens: text is
// lowercased, stripped of diacritics, split on non-alphanumeric runs, and
// filtered of release noise such as format tags and bitrates. The resolver
// compares a requested title against torrent names with TitleSimilarity.
package textutil
