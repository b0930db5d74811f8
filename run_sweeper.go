package main

import (
	"context"
	"sync"
	"time"

	"github.com/RedHatInsights/document_source_sync/config"
	"github.com/RedHatInsights/document_source_sync/internal/logger"
	"github.com/RedHatInsights/document_source_sync/internal/models/run"
	"github.com/sirupsen/logrus"
)

// startRunSweeper periodically closes runs that died without reaching a
// terminal status, typically after a process crash mid sync.
func startRunSweeper(cfg *config.SourceSyncConfig, log *logrus.Logger, runs run.Repository, shutdown chan struct{}, wg *sync.WaitGroup) {
	defer log.Info("Run sweeper exiting")
	defer wg.Done()

	olderThan := time.Duration(cfg.StuckRunMinutes) * time.Minute
	if olderThan <= 0 {
		olderThan = 30 * time.Minute
	}
	ticker := time.NewTicker(olderThan / 2)
	defer ticker.Stop()
	entry := logger.StartLogger(log, "run-sweeper")

	for {
		select {
		case <-shutdown:
			return
		case <-ticker.C:
			swept, err := runs.SweepStuck(context.Background(), entry, olderThan)
			if err != nil {
				entry.Errorf("Error sweeping stuck runs %v", err)
				continue
			}
			if swept > 0 {
				entry.Infof("Closed %d stuck runs", swept)
			}
		}
	}
}
