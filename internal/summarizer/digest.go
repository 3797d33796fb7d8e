// Package summarizer condenses a transcript into the keywords and key
// sentences that ingest reports for every indexed file.
package summarizer

import (
	"sort"
	"strings"
	"unicode"

	"tutor/internal/domain"
)

// minContentTerms drops filler sentences such as "Okay." or "Let's see."
const minContentTerms = 2

// KeySentences scores a sentence by how widely its content words recur
// across the transcript. Recurring words mark the topic of a lesson, so
// they double as the transcript's keywords.
type KeySentences struct {
	maxKeywords int
	stopwords   map[string]struct{}
}

// NewKeySentences returns a digester reporting at most maxKeywords keywords.
func NewKeySentences(maxKeywords int) *KeySentences {
	if maxKeywords <= 0 {
		maxKeywords = 5
	}
	return &KeySentences{maxKeywords: maxKeywords, stopwords: stopwords()}
}

// Digest picks up to maxSentences sentences of text, in transcript order.
// Ties go to the earlier sentence.
func (k *KeySentences) Digest(text string, maxSentences int) domain.Digest {
	if maxSentences <= 0 {
		maxSentences = 3
	}
	sentences := SplitSentences(text)
	terms := make([][]string, len(sentences))
	spread := make(map[string]int)
	for i, s := range sentences {
		terms[i] = k.contentTerms(s)
		for _, t := range terms[i] {
			spread[t]++
		}
	}

	type scored struct {
		idx   int
		score float64
	}
	var ranked []scored
	for i, ts := range terms {
		if len(ts) < minContentTerms {
			continue
		}
		sum := 0
		for _, t := range ts {
			sum += spread[t]
		}
		ranked = append(ranked, scored{idx: i, score: float64(sum) / float64(len(ts))})
	}
	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].score > ranked[b].score })
	ranked = ranked[:min(maxSentences, len(ranked))]
	sort.Slice(ranked, func(a, b int) bool { return ranked[a].idx < ranked[b].idx })

	d := domain.Digest{Keywords: k.keywords(spread)}
	for _, r := range ranked {
		d.Sentences = append(d.Sentences, sentences[r.idx])
	}
	return d
}

// keywords are the terms found in at least two sentences, most widespread first.
func (k *KeySentences) keywords(spread map[string]int) []string {
	var out []string
	for t, n := range spread {
		if n >= 2 && len([]rune(t)) >= 3 {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if spread[out[i]] != spread[out[j]] {
			return spread[out[i]] > spread[out[j]]
		}
		return out[i] < out[j]
	})
	return out[:min(k.maxKeywords, len(out))]
}

// contentTerms returns the distinct non-stopword terms of a sentence.
// Underscores and digits are kept so identifiers like max_len survive.
func (k *KeySentences) contentTerms(sentence string) []string {
	words := strings.FieldsFunc(strings.ToLower(sentence), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '\''
	})
	seen := make(map[string]struct{}, len(words))
	var out []string
	for _, w := range words {
		w = strings.Trim(w, "'")
		if len(w) < 2 {
			continue
		}
		if _, stop := k.stopwords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// SplitSentences breaks text after '.', '!' or '?' when followed by
// whitespace or the end of text, so "3.12" and "main.py" stay whole.
// Line breaks inside a sentence collapse to single spaces.
func SplitSentences(text string) []string {
	var out []string
	add := func(s string) {
		if s = strings.Join(strings.Fields(s), " "); s != "" {
			out = append(out, s)
		}
	}
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			if i+1 == len(text) || unicode.IsSpace(rune(text[i+1])) {
				add(text[start : i+1])
				start = i + 1
			}
		}
	}
	add(text[start:])
	return out
}

func stopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by",
		"with", "as", "is", "are", "was", "were", "be", "been", "it", "its", "this", "that", "these", "those",
		"from", "so", "into", "about", "can", "will", "just", "should", "now", "also", "here", "there", "no",
		"not", "do", "does", "have", "has", "we", "you", "your", "our", "they", "he", "she", "me", "my", "what",
		"which", "how", "when", "all", "some", "one", "let's", "let", "going", "get", "got", "very", "really",
		// spoken filler common in video transcripts
		"okay", "ok", "um", "uh", "yeah", "gonna", "wanna", "like", "right", "well", "actually", "basically",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
