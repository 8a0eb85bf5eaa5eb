package sdk

import (
	"log"
	"sync"
	"time"

	"github.com/XXueTu/site_orchestrator/application"
)

// janitor 定期从注册表清理过期的终态工作流
type janitor struct {
	orchestrator *application.Orchestrator
	interval     time.Duration
	retention    time.Duration
	stopCh       chan struct{}
	done         sync.WaitGroup
	closeOnce    sync.Once
}

func startJanitor(orchestrator *application.Orchestrator, interval, retention time.Duration) *janitor {
	j := &janitor{
		orchestrator: orchestrator,
		interval:     interval,
		retention:    retention,
		stopCh:       make(chan struct{}),
	}

	j.done.Add(1)
	go j.backgroundCleanup()

	return j
}

func (j *janitor) backgroundCleanup() {
	defer j.done.Done()
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := j.orchestrator.CleanupWorkflows(j.retention); n > 0 {
				log.Printf("[sdk] evicted %d workflows older than %s", n, j.retention)
			}
		case <-j.stopCh:
			return
		}
	}
}

func (j *janitor) Close() error {
	j.closeOnce.Do(func() { close(j.stopCh) })
	j.done.Wait()
	return nil
}
