package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"tutor/internal/domain"
)

type checkResult struct {
	name   string
	status string
	err    error
}

func newDoctorCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that every configured backend is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(root.configPath)
			if err != nil {
				return err
			}
			defer initLogging(cfg).Close()

			b := openBackends(ctx, cfg)
			results := checkBackends(ctx, b, cfg.VectorIndex.Namespace, cfg.CallTimeout())
			return printResults(cmd.OutOrStdout(), results)
		},
	}
}

// namespaceSizer is implemented by remote indexes that report per-namespace counts.
type namespaceSizer interface {
	NamespaceSize(ctx context.Context, namespace string) (int, error)
}

// checkBackends pings every backend concurrently. Results keep a fixed order.
// An index that can count its vectors also reports the size of namespace,
// since an empty namespace means ingest was never run.
func checkBackends(ctx context.Context, b *backends, namespace string, timeout time.Duration) []checkResult {
	targets := []struct {
		name    string
		backend any
	}{
		{backendCompletion, b.completer},
		{backendEmbedder, b.embedder},
		{backendVectorIndex, b.index},
		{backendObjectStore, b.store},
	}
	results := make([]checkResult, len(targets))
	var g errgroup.Group
	for i, t := range targets {
		results[i].name = t.name
		if err := b.errs[t.name]; err != nil {
			results[i].err = err
			continue
		}
		if t.backend == nil {
			results[i].status = "disabled"
			continue
		}
		p, ok := t.backend.(domain.Pinger)
		if !ok {
			results[i].status = "ok (local)"
			continue
		}
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			start := time.Now()
			if err := p.Ping(pctx); err != nil {
				results[i].err = err
				return nil
			}
			results[i].status = fmt.Sprintf("ok (%s)", time.Since(start).Round(time.Millisecond))
			if sz, ok := t.backend.(namespaceSizer); ok && namespace != "" {
				n, err := sz.NamespaceSize(pctx, namespace)
				if err != nil {
					results[i].err = fmt.Errorf("namespace %q: %w", namespace, err)
					return nil
				}
				results[i].status += fmt.Sprintf(", %d vectors in %s", n, namespace)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func printResults(w io.Writer, results []checkResult) error {
	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			fmt.Fprintf(w, "%-13s FAIL %v\n", r.name, r.err)
			continue
		}
		fmt.Fprintf(w, "%-13s %s\n", r.name, r.status)
	}
	if failed > 0 {
		return fmt.Errorf("%d backend(s) failed", failed)
	}
	return nil
}
