package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/san-kum/railsim/internal/analysis"
	"github.com/san-kum/railsim/internal/automation"
	"github.com/san-kum/railsim/internal/config"
	"github.com/san-kum/railsim/internal/contact"
	"github.com/san-kum/railsim/internal/experiment"
	"github.com/san-kum/railsim/internal/integrators"
	"github.com/san-kum/railsim/internal/logging"
	"github.com/san-kum/railsim/internal/storage"
	"github.com/san-kum/railsim/internal/tui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var (
	v        *viper.Viper
	settings config.Settings

	preset     string
	initPreset string
	solverSpec string
	name       string
	sample     float64
	jacobian   float64
	output     string

	conicity      float64
	rollingRadius float64
	rows          int
	interpolation string
	profileFile   string

	simIndex  int
	column    string
	fraction  float64
	threshold float64
)

// main registers the railsim commands and executes the root command. It
// exits with status 1 when the command fails.
func main() {
	rootCmd := &cobra.Command{
		Use:           "railsim",
		Short:         "railway vehicle dynamics simulation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			settings, err = config.ReadSettings(v)
			return err
		},
	}

	v = config.NewViper(os.Getenv("RAILSIM_CONFIG_DIR"))
	flags := rootCmd.PersistentFlags()
	flags.String("data", "data", "data directory")
	flags.String("log-level", "info", "log level (trace, debug, info, warn, error, off)")
	flags.Bool("log-json", false, "write logs as JSON")
	flags.Int("parallel-depth", 0, "evaluate vehicle subtrees concurrently up to this depth")
	flags.Bool("progress", true, "show a progress view while running")
	for key, flag := range map[string]string{
		"data_dir":       "data",
		"log_level":      "log-level",
		"log_json":       "log-json",
		"parallel_depth": "parallel-depth",
		"progress":       "progress",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	runCmd := &cobra.Command{
		Use:   "run [file.yaml]",
		Short: "run a scenario from a run file or preset",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runScenario,
	}
	runCmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	runCmd.Flags().StringVar(&solverSpec, "solver", "", "solver, e.g. sdirk:4, bdf, rk45")
	runCmd.Flags().StringVar(&name, "name", "", "run name")
	runCmd.Flags().Float64Var(&sample, "sample", 0, "sample interval in seconds (0 reports every step)")
	runCmd.Flags().Float64Var(&jacobian, "jacobian", 0, "jacobian export interval in seconds (0 disables)")

	initCmd := &cobra.Command{
		Use:   "init [file.yaml]",
		Short: "write a run file",
		Args:  cobra.ExactArgs(1),
		RunE:  initRunFile,
	}
	initCmd.Flags().StringVar(&initPreset, "preset", "curving", "preset to start from")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "show a run summary",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}

	seriesCmd := &cobra.Command{
		Use:   "series [run_id] [column]...",
		Short: "print sample columns of a run",
		Args:  cobra.MinimumNArgs(2),
		RunE:  printSeries,
	}
	seriesCmd.Flags().IntVar(&simIndex, "sim", -1, "simulation index (-1 for all)")

	batchCmd := &cobra.Command{
		Use:   "batch [batch.yaml]",
		Short: "run a batch of scenarios and Monte Carlo trials",
		Args:  cobra.ExactArgs(1),
		RunE:  runBatch,
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "bifurcation analysis of a speed sweep",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}
	analyzeCmd.Flags().StringVar(&column, "column", tui.DefaultProbe, "sample column to analyze")
	analyzeCmd.Flags().Float64Var(&fraction, "tail", 0.5, "trailing fraction of each point to analyze")
	analyzeCmd.Flags().Float64Var(&threshold, "threshold", 1e-3, "amplitude above which a point hunts")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list presets, vehicles and solvers",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "presets:  %s\n", strings.Join(config.ListPresets(), ", "))
			fmt.Fprintf(w, "vehicles: %s\n", strings.Join(config.VehiclePresets(), ", "))
			fmt.Fprintf(w, "solvers:  %s\n", strings.Join(integrators.NewRegistry().List(), ", "))
			return nil
		},
	}

	tableCmd := &cobra.Command{
		Use:   "table",
		Short: "generate a contact table from a conical profile",
		Args:  cobra.NoArgs,
		RunE:  generateTable,
	}
	defaults := contact.DefaultConicalProfile()
	tableCmd.Flags().StringVarP(&output, "output", "o", "", "output CSV file (stdout when empty)")
	tableCmd.Flags().Float64Var(&conicity, "conicity", defaults.Conicity, "tread conicity")
	tableCmd.Flags().Float64Var(&rollingRadius, "radius", defaults.RollingRadius, "nominal rolling radius in m")
	tableCmd.Flags().IntVar(&rows, "rows", defaults.Rows, "number of displacement rows")
	tableCmd.Flags().StringVar(&interpolation, "interpolation", "linear", "check the table with this method (linear, cubic, akima)")
	tableCmd.Flags().StringVar(&profileFile, "profile", "", "read the profile from a YAML file")

	rootCmd.AddCommand(runCmd, batchCmd, initCmd, listCmd, showCmd, seriesCmd, analyzeCmd, presetsCmd, tableCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig(args []string) (*config.Config, error) {
	var cfg *config.Config
	switch {
	case len(args) == 1:
		var err error
		if cfg, err = config.Load(args[0]); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	case preset != "":
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	default:
		cfg = config.DefaultConfig()
	}

	if solverSpec != "" {
		spec := integrators.ParseSpec(solverSpec)
		cfg.Solver.Name, cfg.Solver.Variant = spec.Name, spec.Variant
	}
	if name != "" {
		cfg.Name = name
	}
	if sample > 0 {
		cfg.Output.SampleInterval = sample
	}
	if jacobian > 0 {
		cfg.Output.JacobianInterval = jacobian
	}
	return cfg, nil
}

// newLogger writes to stderr, or to railsim.log in the data directory while
// the progress view owns the terminal.
func newLogger(progress bool) (zerolog.Logger, io.Closer, error) {
	if !progress {
		return logging.New(settings.LogLevel, settings.LogJSON), io.NopCloser(nil), nil
	}
	if err := os.MkdirAll(settings.DataDir, 0755); err != nil {
		return zerolog.Nop(), nil, err
	}
	f, err := os.OpenFile(filepath.Join(settings.DataDir, "railsim.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	return logging.NewWriter(f, settings.LogLevel, true), f, nil
}

func runScenario(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	progress := settings.Progress && isatty.IsTerminal(os.Stdout.Fd())
	log, closer, err := newLogger(progress)
	if err != nil {
		return err
	}
	defer closer.Close()

	exp := experiment.New(cfg, experiment.Options{
		DataDir:       settings.DataDir,
		ParallelDepth: settings.ParallelDepth,
		Logger:        log,
	})
	if err := exp.Setup(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var meta *storage.RunMetadata
	if progress {
		opts := tui.Options{Title: cfg.Name, Probe: tui.ProbeFor(exp.Model())}
		err = tui.Run(ctx, opts, func(ctx context.Context, tr *tui.Tracker) error {
			exp.Runner().AddObserver(tr)
			var runErr error
			meta, runErr = exp.Run(ctx, tr)
			return runErr
		})
	} else {
		meta, err = exp.Run(ctx)
	}

	if meta != nil {
		fmt.Fprintln(cmd.OutOrStdout(), tui.RenderRun(*meta))
	}
	return err
}

func runBatch(cmd *cobra.Command, args []string) error {
	batch, err := automation.LoadBatch(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := automation.RunBatch(ctx, batch, experiment.Options{
		DataDir:       settings.DataDir,
		ParallelDepth: settings.ParallelDepth,
		Logger:        logging.New(settings.LogLevel, settings.LogJSON),
	})

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tTRIAL\tRUN\tSTATUS\tINITIAL")
	for _, r := range results {
		id, status := "-", "setup-failed"
		if r.Run != nil {
			id, status = r.Run.ID, r.Run.Status
		}
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%v\n", r.Step+1, r.Trial, id, status, r.Initial)
	}
	if ferr := w.Flush(); ferr != nil {
		return ferr
	}

	stable, unstable := automation.MonteCarloStats(results)
	fmt.Fprintf(cmd.OutOrStdout(), "\n%s: %d stable, %d unstable\n", batch.Name, stable, unstable)
	return err
}

func initRunFile(cmd *cobra.Command, args []string) error {
	cfg := config.GetPreset(initPreset)
	if cfg == nil {
		return fmt.Errorf("unknown preset: %s (available: %v)", initPreset, config.ListPresets())
	}
	if _, err := os.Stat(args[0]); err == nil {
		return fmt.Errorf("%s already exists", args[0])
	}
	if err := config.Save(args[0], cfg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s from preset %s\n", args[0], initPreset)
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(settings.DataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no runs found")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCENARIO\tVEHICLE\tSOLVER\tTIME\tPOINTS\tELAPSED\tSTATUS")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%.2fs\t%s\n",
			run.ID,
			run.Scenario,
			run.Vehicle,
			run.Solver,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			len(run.Points),
			run.Elapsed,
			run.Status,
		)
	}

	return w.Flush()
}

func showRun(cmd *cobra.Command, args []string) error {
	meta, err := storage.New(settings.DataDir).Load(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), tui.RenderRun(*meta))
	return nil
}

// printSeries prints t and the requested sample columns of a run. The
// metadata and samples.csv are read concurrently.
func printSeries(cmd *cobra.Command, args []string) error {
	st := storage.New(settings.DataDir)
	runID, columns := args[0], args[1:]

	var meta *storage.RunMetadata
	var samples *storage.Samples
	var g errgroup.Group
	g.Go(func() error {
		var err error
		meta, err = st.Load(runID)
		return err
	})
	g.Go(func() error {
		var err error
		samples, err = st.LoadSamples(runID)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	series := make([][]float64, len(columns))
	for i, c := range columns {
		if samples.Column(c) < 0 {
			return fmt.Errorf("run %s has no column %q (have %d columns)", meta.ID, c, len(meta.Columns))
		}
		series[i] = samples.Series(c, simIndex)
	}
	ts := samples.Series("t", simIndex)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "t\t"+strings.Join(columns, "\t"))
	for k, t := range ts {
		fmt.Fprintf(w, "%.6g", t)
		for i := range columns {
			fmt.Fprintf(w, "\t%.6g", series[i][k])
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	st := storage.New(settings.DataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	samples, err := st.LoadSamples(args[0])
	if err != nil {
		return err
	}

	branches, err := analysis.Bifurcation(meta, samples, column, fraction)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SIM\tSPEED\tRADIUS\tCANT\tAMPLITUDE\tFREQ\tEXTREMA\tSTATUS")
	for _, b := range branches {
		fmt.Fprintf(w, "%d\t%.2f\t%.0f\t%.3f\t%.3g\t%.2f\t%d\t%s\n",
			b.Sim, b.Speed, b.Radius, b.Cant, b.Amplitude, b.Frequency, len(b.Extrema), b.Code)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	fmt.Fprint(out, analysis.DiagramToASCII(branches, 60, 15))
	if v, ok := analysis.CriticalSpeed(branches, threshold); ok {
		fmt.Fprintf(out, "\ncritical speed: %.2f m/s (%.0f km/h)\n", v, v*3.6)
	} else {
		fmt.Fprintf(out, "\nno hunting above %g\n", threshold)
	}
	return nil
}

func generateTable(cmd *cobra.Command, args []string) error {
	profile := contact.DefaultConicalProfile()
	if profileFile != "" {
		p, err := contact.LoadProfile(profileFile)
		if err != nil {
			return err
		}
		profile = *p
	}
	if cmd.Flags().Changed("conicity") {
		profile.Conicity = conicity
	}
	if cmd.Flags().Changed("radius") {
		profile.RollingRadius = rollingRadius
	}
	if cmd.Flags().Changed("rows") {
		profile.Rows = rows
	}

	method, err := contact.ParseInterpolation(interpolation)
	if err != nil {
		return err
	}
	tab, err := profile.Generate(method)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if err := tab.WriteCSV(w); err != nil {
		return err
	}
	if output != "" {
		lo, hi := tab.Range()
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: %d rows over [%g, %g] m\n", output, tab.Rows(), lo, hi)
	}
	return nil
}
