package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/wordsplice/internal/assemble"
	"github.com/MrWong99/wordsplice/internal/observe"
	"github.com/MrWong99/wordsplice/internal/rank"
	"github.com/MrWong99/wordsplice/internal/verify"
	"github.com/MrWong99/wordsplice/pkg/provider/media"
)

func newResolveCmd() *cobra.Command {
	var (
		sourceName string
		maxResults int
	)
	cmd := &cobra.Command{
		Use:   "resolve <query>",
		Short: "Search a source and locate the query in the results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := envFrom(cmd.Context())
			src, err := e.source(sourceName)
			if err != nil {
				return err
			}
			if maxResults <= 0 {
				maxResults = e.cfg.Resolver.MaxCandidates
			}
			query := args[0]
			candidates, err := src.Search(cmd.Context(), query, maxResults)
			if err != nil {
				return fmt.Errorf("search %s: %w", src.Name(), err)
			}
			for i := range candidates {
				if candidates[i].Source == "" {
					candidates[i].Source = src.Name()
				}
			}
			res, err := e.resolver().Resolve(cmd.Context(), query, candidates)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "method:    %s\n", res.Method)
			fmt.Fprintf(out, "candidate: %s (%s)\n", res.Candidate.Title, res.Candidate.Locator)
			if res.HasTimestamp {
				fmt.Fprintf(out, "timestamp: %.2fs\n", res.Timestamp)
			}
			fmt.Fprintf(out, "probed:    %d\n", res.CandidatesProbed)
			return nil
		},
	}
	cmd.Flags().StringVar(&sourceName, "source", "", "media source to search (default: first configured)")
	cmd.Flags().IntVar(&maxResults, "max", 0, "number of search results to probe (default: resolver.max_candidates)")
	return cmd
}

func newAcquireCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "acquire <query>...",
		Short: "Download one clip per query into acquire.out_dir",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := envFrom(cmd.Context()).acquirer()
			if err != nil {
				return err
			}
			results, err := a.AcquireMany(cmd.Context(), args)
			for _, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", r.Query, r.Resolution.Method, r.Path)
			}
			return err
		},
	}
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <word> <clip>...",
		Short: "Check that each clip contains the word",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := envFrom(cmd.Context()).verifier()
			if err != nil {
				return err
			}
			word, paths := args[0], args[1:]
			out := cmd.OutOrStdout()
			var failed int
			for _, p := range paths {
				clip, err := v.VerifyFile(cmd.Context(), p, word)
				switch {
				case err == nil:
					fmt.Fprintf(out, "%s\tfound %.2f-%.2fs\t%.1f dBFS\n", p, clip.Span.StartS, clip.Span.EndS, clip.OverallDBFS)
				case cmd.Context().Err() != nil:
					return cmd.Context().Err()
				case errors.Is(err, verify.ErrNotFound):
					fmt.Fprintf(out, "%s\trejected: %v\n", p, err)
					failed++
				default:
					fmt.Fprintf(out, "%s\terror: %v\n", p, err)
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d clips not verified", failed, len(paths))
			}
			return nil
		},
	}
}

// poolFlags are shared by rank and assemble.
type poolFlags struct {
	clipsDir string
	topK     int
	quiet    bool
}

func (f *poolFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.clipsDir, "clips", "", "directory searched for bare words (default: acquire.out_dir)")
	cmd.Flags().IntVar(&f.topK, "top", -1, "number of sequences to keep (default: render.top_k)")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "hide the progress bar")
}

const positionsHelp = `Each position is either "word=path[,path...]" naming clip files or
directories, or a bare word whose clips are looked up as
<clips>/<word>-*.wav, the names written by acquire.`

func newRankCmd() *cobra.Command {
	var flags poolFlags
	cmd := &cobra.Command{
		Use:   "rank <position>...",
		Short: "Verify candidate clips and print the best sequences",
		Long:  "Verify candidate clips and print the best sequences.\n\n" + positionsHelp,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := envFrom(cmd.Context())
			ranked, err := e.rankPositions(cmd.Context(), args, flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, seq := range ranked {
				ids := make([]string, len(seq.Clips))
				for j, c := range seq.Clips {
					ids[j] = filepath.Base(c.Path)
				}
				fmt.Fprintf(out, "#%d\t%.2f\t%s\n", i+1, seq.Score, strings.Join(ids, " | "))
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newAssembleCmd() *cobra.Command {
	var (
		flags  poolFlags
		subdir string
	)
	cmd := &cobra.Command{
		Use:     "assemble <position>...",
		Aliases: []string{"render"},
		Short:   "Rank candidate clips and render the best phrases",
		Long:    "Rank candidate clips and render the best phrases with a manifest.\n\n" + positionsHelp,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := envFrom(cmd.Context())
			ranked, err := e.rankPositions(cmd.Context(), args, flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			store, err := e.fileStore()
			if err != nil {
				return err
			}
			if subdir == "" {
				subdir = phraseDir(args)
			}
			r := assemble.NewRenderer(assemble.New(e.cfg.Assembler, assemble.LoadFile), store,
				assemble.WithDir(subdir),
				assemble.WithWorkers(e.cfg.Render.Workers),
				assemble.WithMetrics(e.metrics),
			)
			res, err := r.RenderTop(cmd.Context(), ranked, len(ranked))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s -> %s\n", res.RunID, subdir)
			for _, m := range res.Manifest {
				fmt.Fprintf(out, "%s\t%d ms\n", m.Filename, m.DurationMS)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&subdir, "out", "", "output directory inside the storage backend (default: the phrase)")
	return cmd
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Probe external binaries, the cache and the transcription backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rep := envFrom(cmd.Context()).health.Run(cmd.Context())
			for _, c := range rep.Checks {
				status := "ok"
				if !c.OK {
					status = "FAIL " + c.Error
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %5d ms  %s\n", c.Name, c.LatencyMS, status)
			}
			if failed := rep.Failed(); len(failed) > 0 {
				return fmt.Errorf("%d of %d checks failed", len(failed), len(rep.Checks))
			}
			return nil
		},
	}
}

// rankPositions builds the word pool for args and ranks it.
func (e *env) rankPositions(ctx context.Context, args []string, flags poolFlags, progress io.Writer) ([]rank.ScoredSequence, error) {
	clipsDir := flags.clipsDir
	if clipsDir == "" {
		clipsDir = e.cfg.Acquire.OutDir
	}
	specs, err := parsePositions(args, clipsDir)
	if err != nil {
		return nil, err
	}
	v, err := e.verifier()
	if err != nil {
		return nil, err
	}
	ranker, err := rank.New(e.cfg.Ranker)
	if err != nil {
		return nil, err
	}

	opts := verify.PoolOptions{Workers: e.cfg.Verifier.Workers}
	var (
		p   *mpb.Progress
		bar *mpb.Bar
	)
	if !flags.quiet {
		p = mpb.NewWithContext(ctx, mpb.WithOutput(progress), mpb.WithWidth(48))
		bar = p.AddBar(0,
			mpb.PrependDecorators(
				decor.Name("Verifying: "),
				decor.CountersNoUnit("%d / %d"),
			),
			mpb.AppendDecorators(decor.Percentage()),
		)
		opts.Progress = func(done, total int) {
			bar.SetTotal(int64(total), false)
			bar.SetCurrent(int64(done))
		}
	}
	pool, err := verify.BuildPool(ctx, v, specs, opts)
	if p != nil {
		if err != nil {
			bar.Abort(false)
		} else {
			bar.SetTotal(-1, true)
		}
		p.Wait()
	}
	if err != nil {
		return nil, err
	}
	topK := flags.topK
	if topK < 0 {
		topK = e.cfg.Render.TopK
	}
	var ranked []rank.ScoredSequence
	err = observe.Traced(ctx, "rank", func(ctx context.Context) error {
		e.metrics.RecordRank(ctx, rank.Count(pool))
		var err error
		ranked, err = ranker.Rank(pool, topK)
		return err
	}, attribute.Int("rank.positions", len(pool.Positions)))
	return ranked, err
}

// parsePositions turns command arguments into pool position specs.
func parsePositions(args []string, clipsDir string) ([]verify.PositionSpec, error) {
	specs := make([]verify.PositionSpec, 0, len(args))
	for _, arg := range args {
		word, paths, explicit := strings.Cut(arg, "=")
		word = strings.TrimSpace(word)
		if word == "" {
			return nil, fmt.Errorf("position %q: word is empty", arg)
		}
		spec := verify.PositionSpec{Word: word}
		if explicit {
			for _, p := range strings.Split(paths, ",") {
				if p = strings.TrimSpace(p); p != "" {
					spec.Paths = append(spec.Paths, p)
				}
			}
			if len(spec.Paths) == 0 {
				return nil, fmt.Errorf("position %q: no paths", arg)
			}
		} else {
			matches, err := filepath.Glob(filepath.Join(clipsDir, media.SafeName(word)+"-*.wav"))
			if err != nil {
				return nil, fmt.Errorf("position %q: %w", arg, err)
			}
			spec.Paths = matches
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// phraseDir names the render directory after the phrase words.
func phraseDir(args []string) string {
	words := make([]string, len(args))
	for i, a := range args {
		w, _, _ := strings.Cut(a, "=")
		words[i] = media.SafeName(strings.TrimSpace(w))
	}
	return strings.Join(words, "_")
}
