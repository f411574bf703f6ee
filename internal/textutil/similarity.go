package textutil

// CosineSimilarity computes the cosine similarity between two fingerprints.
// Returns 0 if either fingerprint is nil or has zero norm.
func CosineSimilarity(a, b *Fingerprint) float64 {
	if a == nil || b == nil || a.norm == 0 || b.norm == 0 {
		return 0
	}
	var dot float64
	for token, count := range a.tokens {
		if other, ok := b.tokens[token]; ok {
			dot += count * other
		}
	}
	if dot == 0 {
		return 0
	}
	return dot / (a.norm * b.norm)
}

// TitleSimilarity scores how well a torrent name matches a requested title.
// Release names usually carry extra tokens (author, year, narrator), so the
// score is the better of title coverage and cosine similarity.
func TitleSimilarity(title, name string) float64 {
	want := NewFingerprint(title)
	got := NewFingerprint(name)
	return max(want.Coverage(got), CosineSimilarity(want, got))
}
