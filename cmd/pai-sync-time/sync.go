package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/danmuck/paisync/internal/config"
	"github.com/danmuck/paisync/internal/interfaces"
	"github.com/danmuck/paisync/internal/logging"
	"github.com/danmuck/paisync/internal/observability"
	"github.com/danmuck/paisync/internal/protocol/session"
	"github.com/danmuck/paisync/internal/timesync"
)

// wireDeps carries test seams. Zero values select the real clock.
type wireDeps struct {
	now func() time.Time
}

func runSync(ctx context.Context, configPath string, deps wireDeps) error {
	path, err := filepath.Abs(configPath)
	if err != nil {
		return startupErr("config", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return startupErr("config", err)
	}

	panel, err := session.NewPanelSession(cfg.Session())
	if err != nil {
		return startupErr("session", err)
	}

	metrics := observability.NewMetrics()
	tsCfg := cfg.TimeSync()
	tsCfg.Now = deps.now
	tsCfg.Recorder = metrics
	cmd, err := timesync.New(tsCfg)
	if err != nil {
		return startupErr("timezone", err)
	}

	manager, err := interfaces.NewManager(panel, cfg)
	if err != nil {
		return startupErr("interfaces", err)
	}
	manager.Start(ctx)
	defer manager.Stop()

	logging.Infof("main sync start addr=%q zone=%s", cfg.Address(), cmd.Location())
	ok, err := cmd.Run(ctx, panel)

	if cfg.MetricsTextfile != "" {
		if werr := metrics.WriteTextfile(cfg.MetricsTextfile); werr != nil {
			logging.Warnf("main metrics textfile=%q err=%v", cfg.MetricsTextfile, werr)
		}
	}

	if err != nil {
		return fmt.Errorf("sync time: %w", err)
	}
	if !ok {
		return ErrSyncFailed
	}
	logging.Infof("main sync done")
	return nil
}
