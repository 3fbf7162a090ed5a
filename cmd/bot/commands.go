package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/eddiefleurent/schrute_spreads/internal/broker"
	"github.com/eddiefleurent/schrute_spreads/internal/config"
	"github.com/eddiefleurent/schrute_spreads/internal/exec"
	"github.com/eddiefleurent/schrute_spreads/internal/logging"
	"github.com/eddiefleurent/schrute_spreads/internal/manager"
	"github.com/eddiefleurent/schrute_spreads/internal/mock"
	"github.com/eddiefleurent/schrute_spreads/internal/report"
	"github.com/eddiefleurent/schrute_spreads/internal/risk"
	"github.com/eddiefleurent/schrute_spreads/internal/scheduler"
	"github.com/eddiefleurent/schrute_spreads/internal/storage"
	"github.com/eddiefleurent/schrute_spreads/internal/strategy"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	broker   broker.Broker
	store    storage.Interface
	gen      *strategy.Generator
	gate     *risk.Gate
	exec     *exec.Controller
	mgr      *manager.Manager
	sched    *scheduler.Scheduler
	reporter *report.Reporter
}

func buildApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := logging.New(logging.Config{
		Level:      cfg.Environment.LogLevel,
		Console:    true,
		Dir:        cfg.Environment.LogDir,
		MaxSizeMB:  cfg.Environment.LogMaxSizeMB,
		MaxBackups: cfg.Environment.LogMaxBackups,
	})

	var b broker.Broker
	switch cfg.Broker.Provider {
	case "tradier":
		b = broker.NewCircuitBreakerBroker(
			broker.NewTradierClient(cfg.Broker.APIKey, cfg.Broker.AccountID, cfg.Broker.Sandbox))
	case "mock":
		b = mock.NewProvider()
	default:
		return nil, fmt.Errorf("unknown broker provider %q", cfg.Broker.Provider)
	}

	dbPath := cfg.Storage.Path
	if dbPath == "" {
		dbPath = "bot.db"
	}
	store, err := storage.NewStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	loc := cfg.Location()
	gen := strategy.NewGenerator(b, strategy.Config{
		DTEMin:        cfg.Strategy.DTEMin,
		DTEMax:        cfg.Strategy.DTEMax,
		DeltaMin:      cfg.Strategy.DeltaMin,
		DeltaMax:      cfg.Strategy.DeltaMax,
		SpreadWidth:   cfg.Strategy.SpreadWidth,
		LegMaxBidAsk:  cfg.Strategy.LegMaxBidAsk,
		RequireGreeks: cfg.Strategy.RequireGreeks,
		OTMTargetPct:  cfg.Strategy.OTMTargetPct,
	}, loc, logger)
	gate := risk.NewGate(risk.Config{
		AccountSize:     cfg.Risk.AccountSize,
		RiskPerTradePct: cfg.Risk.RiskPerTradePct,
		MaxDailyLossPct: cfg.Risk.MaxDailyLossPct,
		MaxTradesPerDay: cfg.Risk.MaxTradesPerDay,
		TradingDisabled: cfg.Risk.TradingDisabled,
	}, store, loc, logger)
	ctl := exec.NewController(b, store, exec.Config{
		TradingDisabled:  cfg.Risk.TradingDisabled,
		EntryMaxSlippage: cfg.Execution.EntryMaxSlippage,
		AttemptPause:     cfg.AttemptPause(),
	}, logger)
	mgr := manager.New(store, gen, ctl, gate, manager.Config{
		TPCapturePct: cfg.Exit.TPCapturePct,
		SLMultiple:   cfg.Exit.SLMultiple,
		TimeExitDTE:  cfg.Exit.TimeExitDTE,
	}, loc, logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		broker:   b,
		store:    store,
		gen:      gen,
		gate:     gate,
		exec:     ctl,
		mgr:      mgr,
		sched:    scheduler.New(cfg, b, store, gate, gen, ctl, mgr, logger),
		reporter: report.NewReporter(store, loc),
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error().Err(err).Msg("failed to close storage")
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "bot",
		Short:         "Automated put credit spread engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file")

	rootCmd.AddCommand(newRunCmd(&configPath))
	rootCmd.AddCommand(newManageCmd(&configPath))
	rootCmd.AddCommand(newScanCmd(&configPath))
	rootCmd.AddCommand(newReportCmd(&configPath))
	rootCmd.AddCommand(newExportCmd(&configPath))
	rootCmd.AddCommand(newDoctorCmd(&configPath))
	return rootCmd
}

func newRunCmd(configPath *string) *cobra.Command {
	var sessionMinutes int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a trading session (entries and management)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			duration := a.cfg.SessionDuration()
			if sessionMinutes > 0 {
				duration = time.Duration(sessionMinutes) * time.Minute
			}
			if a.cfg.IsPaperTrading() {
				a.logger.Info().Msg("paper trading mode")
			}
			return a.sched.Run(cmd.Context(), duration)
		},
	}
	cmd.Flags().IntVar(&sessionMinutes, "session", 0, "session length in minutes (0 = config default)")
	return cmd
}

func newManageCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "manage",
		Short: "Manage open positions only, no new entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			return a.sched.RunManageOnly(cmd.Context())
		},
	}
}

func newScanCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Scan configured symbols for spread candidates",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			results := a.gen.ScanAll(cmd.Context(), a.cfg.Strategy.Underlyings)

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SYMBOL\tEXPIRATION\tDTE\tSHORT\tLONG\tDELTA\tCREDIT\tMAX LOSS\tMETHOD")
			total := 0
			for _, symbol := range a.cfg.Strategy.Underlyings {
				for _, c := range results[symbol] {
					fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%s\n",
						c.Symbol, c.Expiration, c.DTE, c.ShortStrike, c.LongStrike,
						c.ShortDelta, c.Credit, c.MaxLoss, c.Method)
					total++
				}
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Printf("\n%d candidates across %d symbols\n", total, len(a.cfg.Strategy.Underlyings))
			return nil
		},
	}
}

func newReportCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Print today's trading report",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			out, err := a.reporter.Daily()
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}
}

func newExportCmd(configPath *string) *cobra.Command {
	var csvPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export trades, orders, and fills to CSV files",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			if err := report.ExportCSV(a.store, csvPath); err != nil {
				return err
			}
			fmt.Printf("exported to %s_{trades,orders,fills}.csv\n", trimCSVSuffix(csvPath))
			return nil
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "base path for the CSV files")
	_ = cmd.MarkFlagRequired("csv")
	return cmd
}

func trimCSVSuffix(path string) string {
	if len(path) > 4 && path[len(path)-4:] == ".csv" {
		return path[:len(path)-4]
	}
	return path
}
