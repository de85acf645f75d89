package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/log"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/balancer/internal/analysis"
	"github.com/san-kum/balancer/internal/calib"
	"github.com/san-kum/balancer/internal/command"
	"github.com/san-kum/balancer/internal/config"
	"github.com/san-kum/balancer/internal/export"
	"github.com/san-kum/balancer/internal/optim"
	"github.com/san-kum/balancer/internal/sim"
	"github.com/san-kum/balancer/internal/storage"
	"github.com/san-kum/balancer/internal/viz"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	configFile string
	preset     string
	logLevel   string
	dataDir    string
	calibFile  string

	duration  time.Duration
	tilt      float64
	seed      int64
	calibrate bool
	runs      int
	runName   string
	noSave    bool

	field  string
	format string

	device    string
	baud      int
	listPorts bool

	band      float64
	showPhase bool

	tuneParams []string
	metric     string
	maximize   bool
)

var logger = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	TimeFormat:      time.TimeOnly,
	Prefix:          "balancer",
})

func main() {
	rootCmd := &cobra.Command{
		Use:           "balancer",
		Short:         "two-wheeled balancing robot: controller, simulator and tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVar(&preset, "preset", "", "start from a named scenario")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", config.DefaultLogLevel, "debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", config.DefaultDataDir, "run directory")
	rootCmd.PersistentFlags().StringVar(&calibFile, "calib", config.DefaultCalibFile, "calibration file")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "simulate the robot and save the run",
		Args:  cobra.NoArgs,
		RunE:  runSimulation,
	}
	addSimFlags(runCmd)
	runCmd.Flags().IntVar(&runs, "runs", 1, "number of seeds to run in parallel")
	runCmd.Flags().StringVar(&runName, "name", "run", "run name prefix")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not save the run")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "simulate with a live terminal view",
		Args:  cobra.NoArgs,
		RunE:  runLive,
	}
	addSimFlags(liveCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list saved runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a trace column of a saved run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&field, "field", "tilt", "tilt, true_tilt, omega_ref, speed, x or yaw")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "write a saved run to stdout",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVar(&format, "format", "json", "json, csv or svg")
	exportCmd.Flags().StringVar(&field, "field", "tilt", "trace column for svg")

	calibrateCmd := &cobra.Command{
		Use:   "calibrate",
		Short: "run the calibration sequence on the simulated robot and save it",
		Args:  cobra.NoArgs,
		RunE:  runCalibrate,
	}
	addSimFlags(calibrateCmd)

	driveCmd := &cobra.Command{
		Use:   "drive [turn] [speed]",
		Short: "send move commands to the robot over serial",
		Long: "With two arguments, sends one move command. With none, forwards\n" +
			"command lines from stdin until EOF.",
		Args: cobra.RangeArgs(0, 2),
		RunE: runDrive,
	}
	driveCmd.Flags().StringVar(&device, "device", "", "serial device")
	driveCmd.Flags().IntVar(&baud, "baud", command.DefaultBaud, "baud rate")
	driveCmd.Flags().BoolVar(&listPorts, "ports", false, "list serial ports and exit")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			for _, name := range config.ListPresets() {
				fmt.Fprintf(w, "%s\t%s\n", name, config.Presets[name].Description)
			}
			return w.Flush()
		},
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "summarize oscillation and settling of a saved run",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}
	analyzeCmd.Flags().Float64Var(&band, "band", 1, "settling band, deg")
	analyzeCmd.Flags().BoolVar(&showPhase, "phase", false, "draw the tilt/tilt-rate phase portrait")

	tuneCmd := &cobra.Command{
		Use:   "tune",
		Short: "grid search loop gains against a metric",
		Example: "  balancer tune --param angle.kp=6,8,10 --param rate.kd=0,0.01 --metric peak_tilt\n" +
			"  balancer tune --param velocity.kp=0.1,0.2 --metric stability --maximize",
		Args: cobra.NoArgs,
		RunE: runTune,
	}
	addSimFlags(tuneCmd)
	tuneCmd.Flags().StringArrayVar(&tuneParams, "param", nil, "loop.param=v1,v2,... (repeatable)")
	tuneCmd.Flags().StringVar(&metric, "metric", "peak_tilt", "metric to optimize")
	tuneCmd.Flags().BoolVar(&maximize, "maximize", false, "prefer larger metric values")

	configCmd := &cobra.Command{
		Use:   "config [path]",
		Short: "print the effective configuration, or write it to path",
		Args:  cobra.MaximumNArgs(1),
		RunE:  writeConfig,
	}

	rootCmd.AddCommand(runCmd, liveCmd, listCmd, plotCmd, exportCmd, calibrateCmd, driveCmd,
		analyzeCmd, tuneCmd, presetsCmd, configCmd)

	if err := rootCmd.Execute(); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}

func addSimFlags(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&duration, "time", 10*time.Second, "simulated time")
	cmd.Flags().Float64Var(&tilt, "tilt", 5, "initial tilt, degrees")
	cmd.Flags().Int64Var(&seed, "seed", 1, "sensor noise seed")
	cmd.Flags().BoolVar(&calibrate, "calibrate", false, "calibrate before balancing")
}

// loadConfig layers defaults, preset, config file and changed flags, in
// that order.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") || configFile == "" {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("data") || configFile == "" {
		cfg.DataDir = dataDir
	}
	if flags.Changed("calib") || configFile == "" {
		cfg.CalibFile = calibFile
	}
	if flags.Lookup("time") != nil {
		if flags.Changed("time") {
			cfg.Sim.Duration = duration
		}
		if flags.Changed("tilt") {
			cfg.Sim.InitialTilt = tilt
		}
		if flags.Changed("seed") {
			cfg.Sim.Seed = seed
		}
		if flags.Changed("calibrate") {
			cfg.Sim.Calibrate = calibrate
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.SetLevel(cfg.Level())
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	store := calib.NewFileStore(cfg.CalibFile)
	start := time.Now()

	var results []*sim.Result
	if runs > 1 {
		rec, err := store.Load()
		if err != nil {
			logger.Warn("calibration unreadable, using defaults", "file", cfg.CalibFile, "err", err)
			rec = calib.Default()
		}
		ens := sim.NewEnsemble(cfg.Sim, runs, cfg.Sim.Seed)
		ens.SetCalibration(rec)
		logger.Info("running ensemble", "runs", runs, "seed", cfg.Sim.Seed)
		results, err = ens.Run(ctx)
		if err != nil {
			return err
		}
	} else {
		s := sim.New(cfg.Sim)
		s.SetLogger(logger.WithPrefix("sim"))
		s.SetStore(store)
		res, err := s.Run(ctx)
		if err != nil {
			return err
		}
		results = []*sim.Result{res}
	}

	logger.Info("completed", "in", time.Since(start).Round(time.Millisecond))

	if !noSave {
		st := storage.New(cfg.DataDir)
		if err := st.Init(); err != nil {
			return err
		}
		for _, res := range results {
			id, err := st.Save(runName, res)
			if err != nil {
				return err
			}
			fmt.Printf("run id: %s (seed %d, %s)\n", id, res.Config.Seed, res.Stage)
		}
	}

	printMetrics(sim.MeanMetrics(results))
	return nil
}

func printMetrics(m map[string]float64) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("\nmetrics:")
	for _, name := range names {
		fmt.Printf("  %s: %.6f\n", name, m[name])
	}
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	rig, err := sim.NewRig(cfg.Sim, calib.NewFileStore(cfg.CalibFile))
	if err != nil {
		return err
	}
	if cfg.Sim.Calibrate {
		ctx, cancel := signalContext()
		defer cancel()
		if _, err := rig.Calibrate(ctx); err != nil {
			return err
		}
	}
	return viz.Run(viz.NewModel(rig, cfg.Sim.InitialTilt))
}

func listRuns(cmd *cobra.Command, args []string) error {
	runs, err := storage.New(dataDir).List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tDURATION\tTILT\tSEED\tSTAGE\tSTABILITY")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%.2fs\t%.1f°\t%d\t%s\t%.3f\n",
			run.ID,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Duration,
			run.InitialTilt,
			run.Seed,
			run.Stage,
			run.Metrics["stability"],
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	trace, err := st.LoadTrace(args[0])
	if err != nil {
		return err
	}
	if len(trace) == 0 {
		return fmt.Errorf("no data to plot")
	}

	pick, err := fieldFunc(field)
	if err != nil {
		return err
	}
	data := make([]float64, len(trace))
	for i, s := range trace {
		data[i] = pick(s)
	}
	if len(data) > 200 {
		data = downsample(data, 200)
	}

	fmt.Printf("run: %s  seed %d  final stage %s\n\n", meta.ID, meta.Seed, meta.Stage)
	fmt.Println(asciigraph.Plot(data,
		asciigraph.Height(15),
		asciigraph.Width(80),
		asciigraph.Caption(fmt.Sprintf("%s over %.1fs", field, meta.Duration))))
	return nil
}

func fieldFunc(name string) (func(sim.Sample) float64, error) {
	switch name {
	case "tilt":
		return func(s sim.Sample) float64 { return s.Tilt }, nil
	case "true_tilt":
		return func(s sim.Sample) float64 { return s.TrueTilt }, nil
	case "omega_ref":
		return func(s sim.Sample) float64 { return s.OmegaRef }, nil
	case "speed":
		return func(s sim.Sample) float64 { return (s.SpeedL + s.SpeedR) / 2 }, nil
	case "x":
		return func(s sim.Sample) float64 { return s.X }, nil
	case "yaw":
		return func(s sim.Sample) float64 { return s.Yaw }, nil
	}
	return nil, fmt.Errorf("unknown field: %s", name)
}

func downsample(data []float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = data[i*len(data)/n]
	}
	return out
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	trace, err := st.LoadTrace(args[0])
	if err != nil {
		return err
	}
	if len(trace) == 0 {
		return fmt.Errorf("no data to analyze")
	}

	r := analysis.Analyze(trace, band)
	fmt.Printf("run: %s  seed %d  final stage %s\n\n", meta.ID, meta.Seed, meta.Stage)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "samples\t%d @ %.0f Hz\n", r.Samples, r.Rate)
	fmt.Fprintf(w, "rms tilt\t%.3f°\n", r.RMSTilt)
	fmt.Fprintf(w, "dominant\t%.2f Hz\n", r.DominantHz)
	fmt.Fprintf(w, "zero crossings\t%d\n", r.ZeroCrossings)
	if r.Settling < 0 {
		fmt.Fprintf(w, "settling (±%.1f°)\tnever\n", band)
	} else {
		fmt.Fprintf(w, "settling (±%.1f°)\t%.3fs\n", band, r.Settling)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if showPhase {
		fmt.Println("\ntilt (x) vs tilt rate (y):")
		fmt.Print(analysis.Portrait(trace).ASCII(72, 24))
	}
	return nil
}

func parseTuneParams(params []string) ([]string, [][]float64, error) {
	names := make([]string, 0, len(params))
	ranges := make([][]float64, 0, len(params))
	for _, param := range params {
		name, list, ok := strings.Cut(param, "=")
		if !ok || name == "" || list == "" {
			return nil, nil, fmt.Errorf("bad --param %q, want loop.param=v1,v2", param)
		}
		var vals []float64
		for _, f := range strings.Split(list, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return nil, nil, fmt.Errorf("bad --param %q: %w", param, err)
			}
			vals = append(vals, v)
		}
		names = append(names, name)
		ranges = append(ranges, vals)
	}
	return names, ranges, nil
}

func runTune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(tuneParams) == 0 {
		return fmt.Errorf("at least one --param is required")
	}
	names, ranges, err := parseTuneParams(tuneParams)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	g := optim.NewGridSearch(names, ranges).Maximize(maximize)
	g.SetLogger(logger.WithPrefix("tune"))
	logger.Info("searching", "trials", g.Trials(), "metric", metric)

	start := time.Now()
	best, val, err := g.Search(ctx, cfg.Sim, metric)
	if err != nil {
		return err
	}
	logger.Info("completed", "in", time.Since(start).Round(time.Millisecond))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%g\n", name, best[name])
	}
	fmt.Fprintf(w, "%s\t%.6f\n", metric, val)
	return w.Flush()
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	trace, err := st.LoadTrace(args[0])
	if err != nil {
		return err
	}

	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			*storage.RunMetadata
			Trace []sim.Sample `json:"trace"`
		}{meta, trace})
	case "csv":
		return storage.WriteTrace(os.Stdout, trace)
	case "svg":
		pick, err := fieldFunc(field)
		if err != nil {
			return err
		}
		times := make([]float64, len(trace))
		values := make([]float64, len(trace))
		for i, s := range trace {
			times[i] = s.Time
			values[i] = pick(s)
		}
		_, err = fmt.Print(export.SeriesSVG(times, values, 800, 300, "#00ff00"))
		return err
	}
	return fmt.Errorf("unknown format: %s", format)
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	s := sim.New(cfg.Sim)
	s.SetLogger(logger.WithPrefix("calib"))
	s.SetStore(calib.NewFileStore(cfg.CalibFile))

	rec, err := s.Calibrate(ctx)
	if err != nil {
		var perr *calib.Error
		if errors.As(err, &perr) {
			return fmt.Errorf("calibration failed in %s phase: %w", perr.Phase, perr.Err)
		}
		return err
	}

	fmt.Printf("saved %s\n", cfg.CalibFile)
	fmt.Printf("  encoder duty  L %.4f  R %.4f\n", rec.EncoderDutyL, rec.EncoderDutyR)
	fmt.Printf("  gyro bias     %.3f %.3f %.3f deg/s\n", rec.GyroBiasX, rec.GyroBiasY, rec.GyroBiasZ)
	fmt.Printf("  pitch bias    %.3f deg\n", rec.PitchBias)
	return nil
}

func runDrive(cmd *cobra.Command, args []string) error {
	if listPorts {
		ports, err := command.Ports()
		if err != nil {
			return err
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return nil
	}
	if len(args) == 1 {
		return fmt.Errorf("need both turn and speed")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dev := cfg.Serial.Device
	if cmd.Flags().Changed("device") || dev == "" {
		dev = device
	}
	rate := cfg.Serial.Baud
	if cmd.Flags().Changed("baud") {
		rate = baud
	}
	if dev == "" {
		return fmt.Errorf("no serial device; pass --device or set serial.device")
	}

	port, err := command.OpenSerial(dev, rate)
	if err != nil {
		return err
	}
	defer port.Close()

	if len(args) == 2 {
		c, err := command.Parse("move " + args[0] + " " + args[1])
		if err != nil {
			return err
		}
		logger.Info("sending", "cmd", c, "device", dev)
		return command.Send(port, c)
	}

	ctx, cancel := signalContext()
	defer cancel()

	logger.Info("forwarding stdin", "device", dev, "baud", strconv.Itoa(rate))
	var sendErr error
	err = command.Listen(ctx, os.Stdin,
		func(c command.Command) {
			if sendErr == nil {
				sendErr = command.Send(port, c)
			}
		},
		func(line string, err error) {
			logger.Warn("skipped", "line", line, "err", err)
		})
	if sendErr != nil {
		return sendErr
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func writeConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(args) == 1 {
		if err := config.Save(args[0], cfg); err != nil {
			return err
		}
		logger.Info("wrote config", "path", args[0])
		return nil
	}
	enc := yaml.NewEncoder(os.Stdout)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}
