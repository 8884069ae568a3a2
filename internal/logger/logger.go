// Package logger configures the process-wide zerolog logger. Every sink
// (console, rotated file, Axiom) has its own threshold.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const serviceName = "inkcost"

// Options defines logger initialization parameters.
type Options struct {
	// Level is the console threshold. Unknown values mean info.
	Level  string
	Pretty bool
	// Console is where non-file output goes. Defaults to stdout.
	Console io.Writer

	File       string
	FileLevel  string // empty follows Level
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	SendToAxiom  bool
	AxiomAPIKey  string
	AxiomOrgID   string
	AxiomDataset string
	AxiomFlush   time.Duration
	AxiomLevel   string // empty means info
}

var (
	global  zerolog.Logger
	shipper *axiomShipper
)

// Init builds the sinks and installs the result as the global logger.
// Contexts without a logger resolve to it through zerolog.Ctx.
func Init(opts Options) error {
	sinks, err := buildSinks(opts)
	if err != nil {
		return err
	}

	writers := make([]io.Writer, 0, len(sinks))
	lowest := zerolog.Disabled
	for _, s := range sinks {
		writers = append(writers, atLevel(s.w, s.level))
		lowest = min(lowest, s.level)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	global = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(lowest).
		With().Timestamp().Str("service", serviceName).
		Logger()
	log.Logger = global
	zerolog.DefaultContextLogger = &global
	return nil
}

type sink struct {
	w     io.Writer
	level zerolog.Level
}

func buildSinks(opts Options) ([]sink, error) {
	consoleLevel := parseLevel(opts.Level, zerolog.InfoLevel)
	var sinks []sink

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("create logs dir: %w", err)
		}
		sinks = append(sinks, sink{
			w: &lumberjack.Logger{
				Filename:   opts.File,
				MaxSize:    opts.MaxSizeMB,
				MaxBackups: opts.MaxBackups,
				MaxAge:     opts.MaxAgeDays,
				Compress:   opts.Compress,
			},
			level: parseLevel(opts.FileLevel, consoleLevel),
		})
	}

	console := opts.Console
	if console == nil {
		console = os.Stdout
	}
	if opts.Pretty {
		console = zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339}
	}
	sinks = append(sinks, sink{w: console, level: consoleLevel})

	if opts.SendToAxiom && opts.AxiomAPIKey != "" {
		s, err := dialAxiom(opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Axiom disabled: %v\n", err)
		} else {
			Close()
			shipper = s
			sinks = append(sinks, sink{w: s, level: parseLevel(opts.AxiomLevel, zerolog.InfoLevel)})
		}
	}
	return sinks, nil
}

// atLevel drops events below lvl before they reach w.
func atLevel(w io.Writer, lvl zerolog.Level) io.Writer {
	return &zerolog.FilteredLevelWriter{Writer: zerolog.LevelWriterAdapter{Writer: w}, Level: lvl}
}

func parseLevel(s string, fallback zerolog.Level) zerolog.Level {
	if s == "" {
		return fallback
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return fallback
	}
	return lvl
}

// Close flushes any buffered external loggers.
func Close() {
	if shipper != nil {
		_ = shipper.Close()
		shipper = nil
	}
}

// Get returns the global logger.
func Get() *zerolog.Logger { return &global }

// WithJob returns a context carrying a logger tagged with the job id.
func WithJob(ctx context.Context, jobID string) context.Context {
	l := zerolog.Ctx(ctx).With().Str("job_id", jobID).Logger()
	return l.WithContext(ctx)
}
