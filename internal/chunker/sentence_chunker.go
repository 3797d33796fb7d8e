package chunker

import (
	"regexp"
	"strconv"
	"strings"

	"tutor/internal/domain"
)

// wordsPerWindow sizes chunks for unpunctuated transcripts, where auto
// captions give one endless "sentence".
const wordsPerWindow = 120

// SentenceChunker splits transcripts into sentence-based chunks with overlap.
// Every chunk carries the source URL of its document.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
	splitter          *regexp.Regexp
}

func NewSentenceChunker(sentencesPerChunk, overlapSentences int) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 5
	}
	if overlapSentences < 0 || overlapSentences >= sentencesPerChunk {
		overlapSentences = 0
	}
	return &SentenceChunker{
		sentencesPerChunk: sentencesPerChunk,
		overlapSentences:  overlapSentences,
		splitter:          regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`),
	}
}

func (c *SentenceChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	sentences := c.sentences(document.Content)
	if len(sentences) == 0 {
		return nil, nil
	}
	var chunks []domain.Chunk
	i := 0
	idx := 0
	for i < len(sentences) {
		end := min(i+c.sentencesPerChunk, len(sentences))
		chunks = append(chunks, domain.Chunk{
			DocumentID: document.ID,
			ChunkID:    document.ID + ":" + strconv.Itoa(idx),
			Source:     document.Source,
			Text:       strings.Join(sentences[i:end], " "),
			Index:      idx,
		})
		if end == len(sentences) {
			break
		}
		i = end - c.overlapSentences
		idx++
	}
	return chunks, nil
}

// sentences splits on terminal punctuation. Trailing text without
// punctuation is kept, and overlong runs are cut into word windows.
func (c *SentenceChunker) sentences(content string) []string {
	locs := c.splitter.FindAllStringIndex(content, -1)
	var raw []string
	last := 0
	for _, l := range locs {
		raw = append(raw, content[l[0]:l[1]])
		last = l[1]
	}
	raw = append(raw, content[last:])

	var out []string
	for _, s := range raw {
		words := strings.Fields(s)
		for len(words) > wordsPerWindow {
			out = append(out, strings.Join(words[:wordsPerWindow], " "))
			words = words[wordsPerWindow:]
		}
		if len(words) > 0 {
			out = append(out, strings.Join(words, " "))
		}
	}
	return out
}
