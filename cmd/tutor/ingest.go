package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"tutor/internal/ingest"
)

func newIngestCmd(root *rootOptions) *cobra.Command {
	var (
		namespace string
		workers   int
		clearNS   bool
	)
	cmd := &cobra.Command{
		Use:   "ingest [flags] file1.txt [file2.txt ...]",
		Short: "Chunk, embed and upsert transcripts into the vector index",
		Long: `Reads .txt transcripts (globs allowed). A first line "source: <url>" is
stored as the source of every chunk of that transcript.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(root.configPath)
			if err != nil {
				return err
			}
			defer initLogging(cfg).Close()
			if cfg.VectorIndex.Type == "memory" {
				return errors.New("the memory index is rebuilt at startup from vector_index.memory.corpus; ingest needs a persistent index")
			}

			b := openBackends(ctx, cfg)
			for _, name := range []string{backendEmbedder, backendVectorIndex} {
				if err := b.errs[name]; err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
			}
			ch, err := newChunker(cfg)
			if err != nil {
				return err
			}
			dig, err := newDigester(cfg)
			if err != nil {
				return err
			}
			if namespace == "" {
				namespace = cfg.VectorIndex.Namespace
			}

			report, err := ingest.New(ch, b.embedder, b.index, dig).Run(ctx, args, ingest.Options{
				Namespace:       namespace,
				Workers:         workers,
				Clear:           clearNS,
				DigestSentences: cfg.Summarizer.MaxSentences,
			})
			if err != nil {
				return fmt.Errorf("ingest failed: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Indexed %d chunks from %d documents into namespace %q (dimension %d).\n",
				report.Chunks, report.Documents, namespace, report.Dimension)
			printDigests(out, report.Transcripts)
			return nil
		},
	}
	cmd.Flags().StringVar(&namespace, "namespace", "", "Target namespace (defaults to vector_index.namespace)")
	cmd.Flags().IntVar(&workers, "workers", 4, "Concurrent embedding requests")
	cmd.Flags().BoolVar(&clearNS, "clear", false, "Delete the namespace before upserting")
	return cmd
}

func printDigests(w io.Writer, transcripts []ingest.TranscriptDigest) {
	for _, t := range transcripts {
		fmt.Fprintf(w, "\n%s (%d chunks)\n", t.Label(), t.Chunks)
		if len(t.Keywords) > 0 {
			fmt.Fprintf(w, "  keywords: %s\n", strings.Join(t.Keywords, ", "))
		}
		for _, s := range t.Sentences {
			fmt.Fprintf(w, "  - %s\n", s)
		}
	}
}
