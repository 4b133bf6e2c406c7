// internal/app/app.go

// Package app assembles the donation platform from configuration and runs
// it until shutdown.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/givecurve/givecurve/internal/community"
	"github.com/givecurve/givecurve/internal/config"
	"github.com/givecurve/givecurve/internal/convert"
	"github.com/givecurve/givecurve/internal/curve"
	"github.com/givecurve/givecurve/internal/events"
	"github.com/givecurve/givecurve/internal/ledger"
	"github.com/givecurve/givecurve/internal/metrics"
	"github.com/givecurve/givecurve/internal/registry"
	"github.com/givecurve/givecurve/internal/server"
	"github.com/givecurve/givecurve/internal/types"
)

type App struct {
	logger     *zap.Logger
	cfg        *config.Config
	bus        *events.Bus
	registry   *registry.Registry
	ledger     *ledger.Store
	server     *server.Server
	shutdownCh chan os.Signal
}

// New wires the platform: event bus, audit ledger, metrics, converter,
// every configured community, and the HTTP server.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	bus := events.NewBus(logger)
	reg := registry.New(logger)

	led, err := ledger.Open(cfg.LedgerPath, logger)
	if err != nil {
		return nil, err
	}
	led.Attach(bus)
	metrics.Attach(bus)

	conv, err := buildConverter(cfg.Converter)
	if err != nil {
		led.Close()
		return nil, err
	}
	if err := reg.RegisterCurrencyConverter(conv); err != nil {
		led.Close()
		return nil, err
	}

	for _, cc := range cfg.Communities {
		c, err := buildCommunity(logger, bus, reg, cc)
		if err != nil {
			led.Close()
			return nil, fmt.Errorf("deploy community %q: %w", cc.Name, err)
		}
		if err := reg.RegisterCommunity(c); err != nil {
			led.Close()
			return nil, err
		}
	}

	return &App{
		logger:     logger.Named("app"),
		cfg:        cfg,
		bus:        bus,
		registry:   reg,
		ledger:     led,
		server:     server.New(cfg.ListenAddr, reg, led, logger),
		shutdownCh: make(chan os.Signal, 1),
	}, nil
}

func buildConverter(cc config.ConverterConfig) (convert.Converter, error) {
	switch cc.Kind {
	case "fixed":
		return convert.NewFixedRate(cc.RateNum, cc.RateDen)
	default:
		return nil, fmt.Errorf("converter kind %q needs a rate source wired at startup", cc.Kind)
	}
}

func buildCommunity(logger *zap.Logger, bus *events.Bus, reg *registry.Registry, cc config.CommunityConfig) (*community.Community, error) {
	mint, err := uint256.FromDecimal(cc.InitialMint)
	if err != nil {
		return nil, fmt.Errorf("initial_mint: %w", err)
	}
	reserve, err := uint256.FromDecimal(cc.InitialReserve)
	if err != nil {
		return nil, fmt.Errorf("initial_reserve: %w", err)
	}

	buy, err := curve.New(cc.BuyFormula, cc.WeightPPM, cc.SpreadPPM, mint)
	if err != nil {
		return nil, fmt.Errorf("buy formula: %w", err)
	}
	sell, err := curve.New(cc.SellFormula, cc.WeightPPM, cc.SpreadPPM, mint)
	if err != nil {
		return nil, fmt.Errorf("sell formula: %w", err)
	}

	return community.New(logger, bus, reg, community.Config{
		Name:           cc.Name,
		TokenName:      cc.TokenName,
		TokenSymbol:    cc.TokenSymbol,
		Creator:        types.Address(cc.Creator),
		CharityBPS:     cc.CharityBPS,
		BuyFormula:     buy,
		SellFormula:    sell,
		InitialMint:    mint,
		InitialReserve: reserve,
		AssetKind:      types.AssetKind(cc.AssetKind),
	})
}

// Registry exposes the platform directory.
func (a *App) Registry() *registry.Registry { return a.registry }

// Run serves until the context is canceled or a termination signal lands.
func (a *App) Run(ctx context.Context) error {
	signal.Notify(a.shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case sig := <-a.shutdownCh:
			a.logger.Info("Signal received", zap.String("signal", sig.String()))
			cancel()
		case <-runCtx.Done():
		}
	}()

	g, gCtx := errgroup.WithContext(runCtx)
	g.Go(a.server.Start)
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return a.server.Shutdown(shutdownCtx)
	})

	a.logger.Info("Platform running",
		zap.Int("communities", a.registry.CommunityIndex()),
		zap.String("listen_addr", a.cfg.ListenAddr))
	return g.Wait()
}

// Shutdown releases held resources after Run returns.
func (a *App) Shutdown() {
	if err := a.ledger.Close(); err != nil {
		a.logger.Error("Ledger close failed", zap.Error(err))
	}
	if err := a.logger.Sync(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "failed to sync logger during shutdown: %v\n", err)
	}
}
