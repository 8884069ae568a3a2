package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path"
	"runtime"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/local/inkcost/internal/analyzer"
	"github.com/local/inkcost/internal/config"
	"github.com/local/inkcost/internal/ink"
	"github.com/local/inkcost/internal/logger"
	"github.com/local/inkcost/internal/mupdf"
	"github.com/local/inkcost/internal/report"
	"github.com/local/inkcost/internal/storage"
)

type documentAnalyzer interface {
	Analyze(ctx context.Context, path string, onProgress analyzer.ProgressFunc) (*analyzer.DocumentResult, error)
	Tiers() ink.Tiers
}

type fetcher interface {
	Fetch(ctx context.Context, ref string) (*storage.TempFile, error)
}

// NewAnalyzeCmd creates the analyze command.
func NewAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [file|url]...",
		Short: "Price every page of one or more PDF documents",
		Long: `Analyze rasterizes each page, classifies every pixel as white, black/gray
or color, and prices the page from its ink coverage.

Documents may be local paths, http(s):// URLs or s3://bucket/key references.
Several documents are processed in parallel; the pages of one document are
always processed in order.

Examples:
  inkcost analyze brochure.pdf
  inkcost analyze --format json --dpi 150 a.pdf b.pdf
  inkcost analyze --pricing legacy s3://print-jobs/2024/flyer.pdf`,
		Args: cobra.MinimumNArgs(1),
		RunE: runAnalyzeCmd,
	}

	cmd.Flags().StringP("format", "f", "markdown", "Output format: "+strings.Join(report.Formats, ", "))
	cmd.Flags().Float64("dpi", mupdf.DefaultDPI, "Rendering resolution")
	cmd.Flags().IntP("concurrency", "j", runtime.NumCPU(), "Documents analyzed in parallel")
	cmd.Flags().String("pricing", ink.StandardTiers.Name, "Price table: standard or legacy")
	cmd.Flags().StringP("output", "o", "", "Write the report to a file instead of stdout")

	return cmd
}

type analyzeOptions struct {
	format      string
	dpi         float64
	concurrency int
	pricing     string
	output      string
	verbose     bool
}

func parseAnalyzeFlags(cmd *cobra.Command) (analyzeOptions, error) {
	var (
		o    analyzeOptions
		errs []error
		err  error
	)
	o.format, err = cmd.Flags().GetString("format")
	errs = append(errs, err)
	o.dpi, err = cmd.Flags().GetFloat64("dpi")
	errs = append(errs, err)
	o.concurrency, err = cmd.Flags().GetInt("concurrency")
	errs = append(errs, err)
	o.pricing, err = cmd.Flags().GetString("pricing")
	errs = append(errs, err)
	o.output, err = cmd.Flags().GetString("output")
	errs = append(errs, err)
	o.verbose, err = cmd.Flags().GetBool("verbose")
	errs = append(errs, err)
	if err := errors.Join(errs...); err != nil {
		return o, err
	}
	if o.dpi <= 0 {
		return o, fmt.Errorf("--dpi must be positive, got %v", o.dpi)
	}
	if o.concurrency < 1 {
		o.concurrency = 1
	}
	return o, nil
}

func runAnalyzeCmd(cmd *cobra.Command, args []string) error {
	opts, err := parseAnalyzeFlags(cmd)
	if err != nil {
		return err
	}
	tiers, err := ink.TiersByName(opts.pricing)
	if err != nil {
		return err
	}

	level := "warn"
	if opts.verbose {
		level = "debug"
	}
	if err := logger.Init(logger.Options{Level: level, Pretty: true, Console: cmd.ErrOrStderr()}); err != nil {
		return err
	}
	defer logger.Close()

	var out io.Writer = cmd.OutOrStdout()
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}
	w, err := report.New(opts.format, out)
	if err != nil {
		return err
	}

	workDir, err := os.MkdirTemp("", "inkcost-")
	if err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)
	uploads, err := storage.NewUploads(workDir)
	if err != nil {
		return err
	}

	cfg := config.Load()
	f := storage.NewFetcher(uploads, storage.FetcherOptions{
		S3: storage.S3Options{
			Region:          cfg.S3.Region,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Endpoint:        cfg.S3.Endpoint,
		},
		AllowLocal: true,
	})
	an := analyzer.New(analyzer.Options{Opener: mupdf.NewOpener(opts.dpi), Tiers: tiers})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := report.NewReport(analyzeAll(ctx, an, f, args, opts.concurrency)...)
	if _, err := w.Write(r); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if r.Failed > 0 {
		return fmt.Errorf("%d of %d documents could not be analyzed", r.Failed, len(r.Documents))
	}
	return nil
}

// analyzeAll runs up to limit documents at once and returns their outcomes in
// argument order. A failing document does not stop the others.
func analyzeAll(ctx context.Context, an documentAnalyzer, f fetcher, refs []string, limit int) []report.Document {
	docs := make([]report.Document, len(refs))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, ref := range refs {
		g.Go(func() error {
			docs[i] = analyzeOne(ctx, an, f, ref)
			return nil
		})
	}
	_ = g.Wait()
	return docs
}

func analyzeOne(ctx context.Context, an documentAnalyzer, f fetcher, ref string) report.Document {
	name := displayName(ref)
	l := zerolog.Ctx(ctx).With().Str("file", name).Logger()
	ctx = l.WithContext(ctx)

	if err := ctx.Err(); err != nil {
		return report.NewDocument(name, an.Tiers().Name, nil, err)
	}
	tf, err := f.Fetch(ctx, ref)
	if err != nil {
		return report.NewDocument(name, an.Tiers().Name, nil, err)
	}
	defer tf.Remove()

	res, err := an.Analyze(ctx, tf.Path, func(p int) {
		l.Debug().Int("progress", p).Msg("progress")
	})
	return report.NewDocument(name, an.Tiers().Name, res, err)
}

func displayName(ref string) string {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	if b := path.Base(strings.ReplaceAll(ref, "\\", "/")); b != "." && b != "/" {
		return b
	}
	return ref
}
