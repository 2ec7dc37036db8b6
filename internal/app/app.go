// Package app wires the engine together and owns its lifetime: two
// scheduled loops sharing one gateway, one position store and one ledger.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marlin/internal/config"
	"marlin/internal/decision"
	"marlin/internal/executor"
	"marlin/internal/gateway/binance"
	"marlin/internal/gateway/exchange"
	"marlin/internal/ledger"
	"marlin/internal/logger"
	"marlin/internal/monitor"
	"marlin/internal/position"
	"marlin/internal/risk"
	"marlin/internal/scheduler"

	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg     *config.Config
	gateway exchange.Gateway
	prepare func(context.Context) error
	source  *decision.FileSource
	store   *position.Store
	riskMgr *risk.Manager
	ledger  *ledger.Ledger
	exec    *executor.Executor
	mon     *monitor.Monitor
}

func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)

	gw, err := binance.New(binance.Config{
		APIKey:      cfg.Exchange.APIKey,
		APISecret:   cfg.Exchange.APISecret,
		RESTBaseURL: cfg.Exchange.RESTBaseURL,
		HTTPTimeout: time.Duration(cfg.Exchange.TimeoutSeconds) * time.Second,
		ProxyURL:    cfg.Exchange.ProxyURL,
		Leverage:    cfg.Exchange.Leverage,
		Symbols:     cfg.Exchange.Symbols,
	})
	if err != nil {
		return nil, fmt.Errorf("building exchange gateway failed: %w", err)
	}

	source, err := decision.NewFileSource(cfg.Decision.Path)
	if err != nil {
		return nil, fmt.Errorf("building decision source failed: %w", err)
	}

	led, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger failed: %w", err)
	}

	store := position.NewStore()
	riskMgr := risk.NewManager(risk.Limits{
		MaxRiskPerTrade:      cfg.Risk.MaxRiskPerTrade,
		MaxMarginUtilization: cfg.Risk.MaxMarginUtilization,
		MaxPositions:         cfg.Risk.MaxPositions,
		Leverage:             cfg.Exchange.Leverage,
	})

	exec := executor.New(executor.Config{
		MinFreeMargin:         cfg.Executor.MinFreeMargin,
		OpenConfidence:        cfg.Risk.OpenConfidence,
		MaintenanceConfidence: cfg.Risk.MaintenanceConfidence,
		MaxMarginUtilization:  cfg.Risk.MaxMarginUtilization,
		Leverage:              cfg.Exchange.Leverage,
	}, gw, store, riskMgr, led)

	return &App{
		cfg:     cfg,
		gateway: gw,
		prepare: gw.Prepare,
		source:  source,
		store:   store,
		riskMgr: riskMgr,
		ledger:  led,
		exec:    exec,
		mon:     monitor.New(gw, store, led),
	}, nil
}

// Run starts both loops and blocks until the context is cancelled or a
// fatal error occurs. In-flight iterations run to completion on shutdown;
// the ledger is flushed and closed before return.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}

	if err := a.prepare(ctx); err != nil {
		return fmt.Errorf("exchange preparation failed: %w", err)
	}
	if snapshot, err := a.gateway.GetAccountSnapshot(ctx); err == nil {
		if err := a.ledger.SetInitialEquity(snapshot.Total); err != nil {
			return err
		}
		a.riskMgr.RecordEquity(snapshot.Total)
		logger.Infof("account equity at startup: %.2f (free %.2f)", snapshot.Total, snapshot.Free)
	} else {
		logger.Warnf("startup account snapshot unavailable: %v", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.source.Watch(runCtx); err != nil {
		return err
	}

	group, gctx := errgroup.WithContext(runCtx)

	group.Go(func() error {
		var fatal error
		sched := scheduler.NewIntervalScheduler(gctx, "executor",
			time.Duration(a.cfg.Executor.IntervalMinutes)*time.Minute)
		sched.RunImmediately = a.cfg.Executor.RunImmediately
		sched.Start(func() {
			if fatal != nil {
				return
			}
			// The iteration finishes even when shutdown is signalled
			// mid-flight; only the next tick observes the cancellation.
			if err := a.runExecutorCycle(context.WithoutCancel(gctx)); err != nil {
				fatal = err
				cancel()
			}
		})
		return fatal
	})

	group.Go(func() error {
		var fatal error
		sched := scheduler.NewIntervalScheduler(gctx, "monitor",
			time.Duration(a.cfg.Monitor.IntervalSeconds)*time.Second)
		sched.Start(func() {
			if fatal != nil {
				return
			}
			if err := a.mon.RunOnce(context.WithoutCancel(gctx)); err != nil {
				fatal = err
				cancel()
			}
		})
		return fatal
	})

	err := group.Wait()

	a.logSummary()
	if cerr := a.ledger.Close(); cerr != nil {
		logger.Errorf("closing ledger failed: %v", cerr)
		if err == nil {
			err = cerr
		}
	}
	return err
}

func (a *App) runExecutorCycle(ctx context.Context) error {
	batch, err := a.source.Fetch(ctx)
	if err != nil {
		logger.Errorf("fetching decision batch failed: %v", err)
		return nil
	}
	if len(batch) == 0 {
		logger.Debugf("no fresh decision batch, cycle idle")
		return nil
	}
	records, err := a.exec.ExecuteCycle(ctx, batch)
	if err != nil {
		// Only a ledger failure stops the engine. A snapshot failure
		// aborts this cycle alone and is retried on the next tick.
		if errors.Is(err, executor.ErrLedger) {
			logger.Errorf("executor cycle failed fatally: %v", err)
			return err
		}
		logger.Errorf("executor cycle aborted, retrying next tick: %v", err)
		return nil
	}
	current, max := a.riskMgr.Drawdown()
	if err := a.ledger.RecordMaxDrawdown(max); err != nil {
		return err
	}
	logger.Infof("cycle complete: %d records, drawdown %.2f%% (max %.2f%%)",
		len(records), current*100, max*100)
	if len(records) > 0 {
		a.logSummary()
	}
	return nil
}

func (a *App) logSummary() {
	summary, err := a.ledger.Summary()
	if err != nil {
		logger.Errorf("reading ledger summary failed: %v", err)
		return
	}
	logger.InfoBlock(fmt.Sprintf(
		"session %d summary\n"+
			"  invocations:  %d\n"+
			"  trades:       %d (%d ok, %d failed)\n"+
			"  closed:       %d, win rate %.1f%%\n"+
			"  realized pnl: %.2f (best %.2f, worst %.2f)\n"+
			"  max drawdown: %.2f%%\n"+
			"  sharpe:       %.3f",
		summary.SessionCount,
		summary.InvocationCount,
		summary.TotalTrades, summary.SuccessfulTrades, summary.FailedTrades,
		summary.ClosedTrades, summary.WinRate*100,
		summary.TotalPnL, summary.BestTrade, summary.WorstTrade,
		summary.MaxDrawdown*100,
		a.riskMgr.Sharpe(),
	))
}
