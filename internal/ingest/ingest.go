// Package ingest populates a vector index namespace from transcript files.
package ingest

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"tutor/internal/domain"
	"tutor/internal/observability"
)

// ErrNoDocuments is returned when the given paths match no .txt file.
var ErrNoDocuments = errors.New("no .txt documents found")

const sourcePrefix = "source:"

// Options control one ingestion run.
type Options struct {
	Namespace       string
	Workers         int
	Clear           bool
	DigestSentences int
}

// Report describes a finished run. Transcripts is filled only when the
// ingester has a digester.
type Report struct {
	Documents   int
	Chunks      int
	Dimension   int
	Transcripts []TranscriptDigest
}

// TranscriptDigest outlines one ingested file.
type TranscriptDigest struct {
	Path   string
	Source string
	Chunks int
	domain.Digest
}

// Label names the transcript by its source, or its path when it has none.
func (t TranscriptDigest) Label() string {
	if t.Source != "" {
		return t.Source
	}
	return t.Path
}

type Ingester struct {
	chunker  domain.Chunker
	embedder domain.Embedder
	index    domain.VectorIndex
	digester domain.Digester
}

// New wires an ingester. digester may be nil.
func New(chunker domain.Chunker, embedder domain.Embedder, index domain.VectorIndex, digester domain.Digester) *Ingester {
	return &Ingester{chunker: chunker, embedder: embedder, index: index, digester: digester}
}

// Run chunks, embeds and upserts every document under paths into
// opts.Namespace. Each record carries {text, source} metadata.
func (in *Ingester) Run(ctx context.Context, paths []string, opts Options) (*Report, error) {
	log := observability.LoggerFromContext(ctx)
	documents, err := LoadDocuments(paths)
	if err != nil {
		return nil, err
	}

	var chunks []domain.Chunk
	var texts []string
	perDoc := make([]int, len(documents))
	for i, d := range documents {
		cs, err := in.chunker.Chunk(d)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", d.Path, err)
		}
		for _, ch := range cs {
			chunks = append(chunks, ch)
			texts = append(texts, ch.Text)
		}
		perDoc[i] = len(cs)
	}
	if len(chunks) == 0 {
		return nil, ErrNoDocuments
	}
	if err := in.embedder.Prepare(texts); err != nil {
		return nil, fmt.Errorf("prepare embedder: %w", err)
	}

	vectors, err := in.embedAll(ctx, chunks, opts.Workers)
	if err != nil {
		return nil, err
	}
	dim := len(vectors[0])
	if err := in.index.Init(ctx, dim); err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}
	if opts.Clear {
		if err := in.index.Clear(ctx, opts.Namespace); err != nil {
			return nil, fmt.Errorf("clear namespace %q: %w", opts.Namespace, err)
		}
	}
	records := make([]domain.Record, len(chunks))
	for i, ch := range chunks {
		meta := map[string]any{"text": ch.Text}
		if ch.Source != "" {
			meta["source"] = ch.Source
		}
		records[i] = domain.Record{ID: ch.ChunkID, Vector: vectors[i], Metadata: meta}
	}
	if err := in.index.Upsert(ctx, opts.Namespace, records); err != nil {
		return nil, fmt.Errorf("upsert: %w", err)
	}
	log.Info("ingested transcripts", "namespace", opts.Namespace, "documents", len(documents), "chunks", len(chunks), "dimension", dim)

	report := &Report{Documents: len(documents), Chunks: len(chunks), Dimension: dim}
	if in.digester != nil {
		for i, d := range documents {
			report.Transcripts = append(report.Transcripts, TranscriptDigest{
				Path:   d.Path,
				Source: d.Source,
				Chunks: perDoc[i],
				Digest: in.digester.Digest(d.Content, opts.DigestSentences),
			})
		}
	}
	return report, nil
}

func (in *Ingester) embedAll(ctx context.Context, chunks []domain.Chunk, workers int) ([][]float64, error) {
	if workers <= 0 {
		workers = 4
	}
	vectors := make([][]float64, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range chunks {
		g.Go(func() error {
			v, err := in.embedder.Embed(gctx, chunks[i].Text)
			if err != nil {
				return fmt.Errorf("embed %s: %w", chunks[i].ChunkID, err)
			}
			vectors[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, errors.New("embedder returned an empty vector")
	}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("embed %s: dimension %d, want %d", chunks[i].ChunkID, len(v), dim)
		}
	}
	return vectors, nil
}

// LoadDocuments expands globs and reads every .txt file. A first line of the
// form "source: <url>" becomes the document source and is not indexed.
func LoadDocuments(paths []string) ([]domain.Document, error) {
	var documents []domain.Document
	for _, p := range paths {
		matches, _ := filepath.Glob(p)
		if matches == nil && !strings.ContainsAny(p, "*?[") {
			matches = []string{p}
		}
		for _, m := range matches {
			if !strings.HasSuffix(strings.ToLower(m), ".txt") {
				continue
			}
			data, err := os.ReadFile(m)
			if err != nil {
				return nil, err
			}
			documents = append(documents, ParseTranscript(m, string(data)))
		}
	}
	if len(documents) == 0 {
		return nil, ErrNoDocuments
	}
	return documents, nil
}

// ParseTranscript builds a Document from file contents.
func ParseTranscript(path, content string) domain.Document {
	doc := domain.Document{ID: hashString(path), Path: path, Content: content}
	sc := bufio.NewScanner(strings.NewReader(content))
	if sc.Scan() {
		first := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(strings.ToLower(first), sourcePrefix) {
			doc.Source = strings.TrimSpace(first[len(sourcePrefix):])
			if i := strings.IndexByte(content, '\n'); i >= 0 {
				doc.Content = content[i+1:]
			} else {
				doc.Content = ""
			}
		}
	}
	return doc
}

func hashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:8])
}
