package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tradelabs/decision-engine/internal/adapters"
	"github.com/tradelabs/decision-engine/internal/bracket"
	"github.com/tradelabs/decision-engine/internal/config"
	"github.com/tradelabs/decision-engine/internal/engine"
	"github.com/tradelabs/decision-engine/internal/gateway"
	"github.com/tradelabs/decision-engine/internal/observ"
	"github.com/tradelabs/decision-engine/internal/portfolio"
	"github.com/tradelabs/decision-engine/internal/risk"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "engine",
		Short:         "Catalyst-driven paper trading decision engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config YAML")

	root.AddCommand(newRunCmd(&configPath), newScanCmd(&configPath))
	return root
}

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the control loop until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			observ.InitLogging(cfg.Logging.Level, cfg.Logging.Pretty)

			eng, book, err := build(cfg)
			if err != nil {
				return err
			}
			if err := book.Load(); err != nil {
				return fmt.Errorf("restore portfolio: %w", err)
			}
			if cfg.MetricsAddr != "" {
				go func() {
					if err := observ.Serve(cfg.MetricsAddr); err != nil {
						log.Error().Err(err).Msg("metrics listener failed")
					}
				}()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return eng.Run(ctx)
		},
	}
}

func newScanCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Score and rank the current universe once, without trading",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			observ.InitLogging(cfg.Logging.Level, cfg.Logging.Pretty)

			eng, _, err := build(cfg)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			ranked := eng.Scan(ctx)
			if len(ranked) == 0 {
				cmd.Println("no candidates")
				return nil
			}
			cmd.Printf("%-8s %8s %8s %8s %6s %6s %10s %8s\n",
				"SYMBOL", "COMBINED", "CATALYST", "TECH", "CONF", "URG", "ENTRY", "ATR")
			for _, c := range ranked {
				cmd.Printf("%-8s %8.1f %8.1f %8.1f %6.2f %6.2f %10.2f %8.2f\n",
					c.Instrument, c.Combined, c.CatalystScore, c.TechnicalScore,
					c.Confidence, c.Urgency, c.EntryPrice, c.Volatility)
			}
			return nil
		},
	}
}

// build wires the full dependency graph from config. The paper gateway is the
// only execution venue; live connectivity is a separate deployment concern.
func build(cfg config.Root) (*engine.Engine, *portfolio.Manager, error) {
	book := portfolio.NewManager(cfg.Capital, cfg.StatePath, nil)
	gate := risk.NewSafetyGate(cfg.Risk.LossThreshold, cfg.Risk.Cooldown())
	validator := risk.NewInstrumentValidator(cfg.Universe)
	alloc := risk.NewAllocator(risk.Params{
		RiskPerTradeFraction: cfg.Risk.RiskPerTradeFraction,
		MaxTotalRiskFraction: cfg.Risk.MaxTotalRiskFraction,
		MaxNotionalFraction:  cfg.Risk.MaxNotionalFraction,
		MaxPositions:         cfg.Risk.MaxPositions,
		MinScore:             cfg.Scoring.MinScore,
		MinConfidence:        cfg.Scoring.MinConfidence,
		StopATRMultiple:      cfg.Risk.StopATRMultiple,
		TrailATRMultiple:     cfg.Risk.TrailATRMultiple,
	}, gate, validator, log.Logger)

	outbox, err := gateway.NewOutbox(cfg.Gateway.OutboxPath, cfg.Gateway.DedupeWindow(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("open outbox: %w", err)
	}
	pg := gateway.NewPaperGateway(gateway.PaperConfig{
		Outbox:      outbox,
		SlippageBps: cfg.Gateway.SlippageBps,
	}, log.Logger)
	orch := bracket.NewOrchestrator(pg, book, gate, bracket.Options{
		Outbox:           outbox,
		CallTimeout:      cfg.Engine.CallTimeout(),
		ResubmitCooldown: cfg.Engine.ResubmitCooldown(),
	}, log.Logger)

	sources := make([]adapters.SignalSource, 0, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		sources = append(sources, adapters.NewHTTPSignalSource(adapters.HTTPSourceConfig{
			Name:              sc.Name,
			URL:               sc.URL,
			APIKey:            sc.APIKey,
			Timeout:           cfg.Engine.CallTimeout(),
			RequestsPerSecond: sc.RequestsPerSecond,
		}, log.Logger))
	}

	eng := engine.New(cfg, engine.Deps{
		Book:    book,
		Alloc:   alloc,
		Orch:    orch,
		Signals: adapters.NewMultiSource(log.Logger, sources...),
		Bars:    adapters.NewSimBarSource(time.Now().UTC()),
		Marks:   pg,
	}, log.Logger)
	return eng, book, nil
}
