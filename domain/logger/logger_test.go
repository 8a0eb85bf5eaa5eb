package logger_test

import (
	"context"
	"testing"
	"time"

	"github.com/XXueTu/site_orchestrator/domain/logger"
	"github.com/XXueTu/site_orchestrator/infrastructure/persistence/memory"
)

func TestLoggerServiceScopesEntries(t *testing.T) {
	repo := memory.NewLogRepository()
	svc := logger.NewLoggerService(repo, 100, time.Hour)
	defer svc.Close()

	ctx := logger.WithWorkflow(context.Background(), "WF-SITE-EVAL-0000abcd")
	svc.Info(logger.WithStep(ctx, "location"), "agent started", map[string]interface{}{"agent": "geo"})
	svc.Warn(logger.WithStep(ctx, "market"), "agent slow", nil)
	svc.Info(context.Background(), "untagged", nil)

	all, err := svc.GetLogs(context.Background(), "WF-SITE-EVAL-0000abcd", 10, 0)
	if err != nil {
		t.Fatalf("get logs failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(all))
	}
	if all[0].Step() != "location" || all[0].Level() != logger.LogLevelInfo {
		t.Errorf("unexpected first entry %s/%s", all[0].Step(), all[0].Level())
	}

	market, _ := svc.GetStepLogs(context.Background(), "WF-SITE-EVAL-0000abcd", "market", 10, 0)
	if len(market) != 1 || market[0].Level() != logger.LogLevelWarn {
		t.Errorf("unexpected market entries %v", market)
	}

	untagged, _ := svc.GetLogs(context.Background(), "", 10, 0)
	if len(untagged) != 1 {
		t.Errorf("untagged contexts should log under an empty id, got %d", len(untagged))
	}
}

func TestLoggerServiceFlushesOnBatchSize(t *testing.T) {
	repo := memory.NewLogRepository()
	svc := logger.NewLoggerService(repo, 2, time.Hour)
	defer svc.Close()

	ctx := logger.WithWorkflow(context.Background(), "WF-1")
	svc.Debug(ctx, "one", nil)
	svc.Error(ctx, "two", nil)

	stored, _ := repo.GetLogs(context.Background(), "WF-1", 0, 0)
	if len(stored) != 2 {
		t.Fatalf("batch should have been flushed, repository holds %d", len(stored))
	}
}

func TestLoggerServiceCloseFlushes(t *testing.T) {
	repo := memory.NewLogRepository()
	svc := logger.NewLoggerService(repo, 100, time.Hour)
	svc.Info(logger.WithWorkflow(context.Background(), "WF-2"), "pending", nil)

	if err := svc.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
	stored, _ := repo.GetLogs(context.Background(), "WF-2", 0, 0)
	if len(stored) != 1 {
		t.Fatalf("close should flush pending entries, got %d", len(stored))
	}
}
