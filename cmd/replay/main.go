// Command replay converts a raw flight telemetry CSV into a fixed-rate .fdr
// replay file, reusing the cleaned-data checkpoint when one exists.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/flight-replay/backend/internal/config"
	"github.com/flight-replay/backend/internal/logging"
	"github.com/flight-replay/backend/internal/models"
	"github.com/flight-replay/backend/internal/pipeline"
)

// Version info (set during build)
var Version = "dev"

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.SetOutput(stderr)

	defaults := pipeline.DefaultOptions()
	input := fs.String("input", "", "Raw telemetry CSV (required; .gz and .zst are decompressed)")
	clean := fs.String("clean", "", "Cleaned-data checkpoint path (default "+defaults.CleanPath+")")
	fdr := fs.String("fdr", "", "Replay file output path (default "+defaults.FDRPath+")")
	rate := fs.Float64("rate", 0, fmt.Sprintf("Resample rate in Hz (default %g)", defaults.RateHz))
	altUnit := fs.String("alt-unit", "", "Source altitude unit, m or ft (default "+defaults.AltitudeUnit+")")
	format := fs.String("format", "", "Source format name (csv, tsv); detected by extension when empty")
	force := fs.Bool("force-reprocess", false, "Ignore an existing checkpoint and rebuild it from the source")
	skipViz := fs.Bool("skip-viz", false, "Skip the trajectory extents in the summary")
	configPath := fs.String("config", "", "Optional YAML config supplying processing and logging defaults")
	showVersion := fs.Bool("version", false, "Show version information")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if *showVersion {
		fmt.Fprintf(stdout, "replay %s\n", Version)
		return exitOK
	}

	opts := pipeline.Options{
		InputPath:      *input,
		CleanPath:      *clean,
		FDRPath:        *fdr,
		RateHz:         *rate,
		AltitudeUnit:   *altUnit,
		SourceFormat:   *format,
		ForceReprocess: *force,
	}
	logCfg := logging.Config{Level: os.Getenv("LOG_LEVEL"), Format: os.Getenv("LOG_FORMAT"), Output: stderr}

	if *configPath != "" {
		cfg, err := config.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
			return exitError
		}
		opts = applyConfig(opts, cfg)
		logCfg.Level, logCfg.Format, logCfg.AddSource = cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.AddSource
	}
	opts = opts.WithDefaults()

	if err := opts.Validate(); err != nil {
		fmt.Fprintf(stderr, "%s\n\n", errorStyle.Render("Error: "+err.Error()))
		fs.Usage()
		return exitUsage
	}

	logger := logging.New(logCfg)
	runner := pipeline.NewRunner(logger, nil)

	res, err := runner.Run(ctx, opts)
	if err != nil {
		fmt.Fprintln(stderr, errorStyle.Render(fmt.Sprintf("%s: %v", models.ErrorKind(err), err)))
		return exitError
	}

	fmt.Fprintln(stdout, renderSummary(res, opts, !*skipViz))
	return exitOK
}

// applyConfig fills options the flags left empty from the config file.
func applyConfig(opts pipeline.Options, cfg *config.AppConfig) pipeline.Options {
	p := cfg.Processing
	if opts.CleanPath == "" {
		opts.CleanPath = p.CleanPath
	}
	if opts.FDRPath == "" {
		opts.FDRPath = p.FDRPath
	}
	if opts.RateHz == 0 {
		opts.RateHz = p.RateHz
	}
	if opts.AltitudeUnit == "" {
		opts.AltitudeUnit = p.AltitudeUnit
	}
	return opts
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")).Background(lipgloss.Color("235")).Padding(0, 1)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(14)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
)

func renderSummary(res *pipeline.Result, opts pipeline.Options, withExtents bool) string {
	var b strings.Builder
	line := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(valueStyle.Render(value))
		b.WriteByte('\n')
	}

	line("Checkpoint", res.Checkpoint.String())
	if res.Report != nil {
		line("Input rows", fmt.Sprint(res.Report.InputRows))
		line("Dropped", fmt.Sprintf("%d (invalid %d, non-finite %d, duplicate %d)",
			res.Report.Dropped(), res.Report.InvalidRows, res.Report.NonFiniteRows, res.Report.DuplicateRows))
	}
	line("Rate", fmt.Sprintf("%g Hz", opts.RateHz))
	line("Rows", fmt.Sprint(res.Rows()))
	line("Duration", fmt.Sprintf("%.3f s", res.Duration()))
	line("Checkpoint at", res.CleanPath)
	line("Replay file", res.FDRPath)
	line("Elapsed", res.Elapsed.Round(time.Millisecond).String())

	if withExtents && res.Table.HasCartesian() {
		for _, axis := range []struct {
			name   string
			values []float64
		}{{"X", res.Table.X}, {"Y", res.Table.Y}, {"Z", res.Table.Z}} {
			lo, hi := extent(axis.values)
			line(axis.name+" extent", fmt.Sprintf("%.1f .. %.1f m", lo, hi))
		}
	}

	return titleStyle.Render("Flight Data Replay") + "\n" + boxStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func extent(values []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}
