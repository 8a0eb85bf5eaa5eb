// Package sdk 组装配置好的编排器：存储后端、基于外部系统的智能体、
// 消息总线、日志以及可选的Web服务
package sdk

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/XXueTu/site_orchestrator/application"
	"github.com/XXueTu/site_orchestrator/config"
	"github.com/XXueTu/site_orchestrator/domain/agent"
	"github.com/XXueTu/site_orchestrator/domain/logger"
	"github.com/XXueTu/site_orchestrator/domain/messaging"
	"github.com/XXueTu/site_orchestrator/domain/plan"
	"github.com/XXueTu/site_orchestrator/domain/retry"
	"github.com/XXueTu/site_orchestrator/domain/selection"
	"github.com/XXueTu/site_orchestrator/domain/trace"
	"github.com/XXueTu/site_orchestrator/domain/workflow"
	"github.com/XXueTu/site_orchestrator/infrastructure/eventbus"
	"github.com/XXueTu/site_orchestrator/infrastructure/external"
	"github.com/XXueTu/site_orchestrator/infrastructure/persistence/memory"
	"github.com/XXueTu/site_orchestrator/infrastructure/persistence/mysql"
	"github.com/XXueTu/site_orchestrator/infrastructure/persistence/postgres"
	"github.com/XXueTu/site_orchestrator/infrastructure/persistence/sqlite"
	"github.com/XXueTu/site_orchestrator/infrastructure/scripting"
	"github.com/XXueTu/site_orchestrator/interfaces/web"
)

const connectTimeout = 10 * time.Second

// Runtime 运行中的编排器及其持有的资源
type Runtime struct {
	config       *config.Config
	orchestrator *application.Orchestrator
	recorder     *trace.Recorder
	logger       logger.LoggerService
	webServer    *web.Server

	// closers 在 Close 时逆序执行
	closers []func() error
}

// repositories 一个存储后端的仓储
type repositories struct {
	events    trace.Repository
	workflows workflow.Repository
	logs      logger.LogRepository
}

// NewRuntime 按 cfg 构建编排器，nil 时使用默认配置
func NewRuntime(cfg *config.Config) (*Runtime, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Runtime{config: cfg}

	if err := r.initialize(); err != nil {
		r.Close()
		return nil, fmt.Errorf("failed to initialize runtime: %w", err)
	}
	return r, nil
}

func (r *Runtime) initialize() error {
	repos, err := r.openStorage()
	if err != nil {
		return err
	}

	catalog := plan.DefaultCatalog()
	if r.config.PlansFile != "" {
		overrides, err := plan.LoadOverrides(r.config.PlansFile)
		if err != nil {
			return err
		}
		if catalog, err = catalog.Apply(overrides); err != nil {
			return err
		}
	}

	agents, err := newAgents(r.config.Latency)
	if err != nil {
		return err
	}

	r.recorder = trace.NewRecorder(repos.events, r.config.Trace.BatchSize, r.config.Trace.FlushInterval)
	r.closers = append(r.closers, r.recorder.Close)
	traceLog := trace.NewLog(trace.WithRecorder(r.recorder))

	r.logger = logger.NewLoggerService(repos.logs, r.config.Trace.BatchSize, r.config.Trace.FlushInterval)
	r.closers = append(r.closers, r.logger.Close)

	inner := messaging.NewBus()
	var bus messaging.Bus = inner
	if r.config.Bus.Async {
		async := eventbus.NewAsyncBus(inner, r.config.Bus.QueueSize)
		r.closers = append(r.closers, async.Close)
		bus = async
	}

	retryCfg := r.config.Orchestrator.Retry
	opts := []application.Option{
		application.WithRetryPolicy(retry.NewConfig(retryCfg.MaxAutoRetries, retryCfg.RetryDelay, retryCfg.BackoffMultiplier, retryCfg.MaxRetryDelay)),
		application.WithBatchSize(r.config.Orchestrator.BatchSize),
		application.WithMaxConcurrency(r.config.Orchestrator.MaxConcurrency),
		application.WithLogger(r.logger),
	}
	weights, err := r.config.SynthesisWeights()
	if err != nil {
		return err
	}
	if weights != nil {
		opts = append(opts, application.WithWeights(weights))
	}
	objective := r.config.Objective()
	var scorer *scripting.Scorer
	if r.config.Optimization.ScriptPath != "" {
		if scorer, err = scripting.LoadScorer(r.config.Optimization.ScriptPath); err != nil {
			return err
		}
		r.closers = append(r.closers, func() error { scorer.Close(); return nil })
		opts = append(opts, application.WithObjective(selection.ObjectiveScripted, scorer))
	}
	opts = append(opts, application.WithObjective(objective, nil))

	registry := workflow.NewRegistry(workflow.WithRepository(repos.workflows))
	r.orchestrator = application.NewOrchestrator(traceLog, bus, registry, catalog, agents, opts...)
	if oc := r.config.Orchestrator; oc.CleanupInterval > 0 && oc.WorkflowRetention > 0 {
		r.closers = append(r.closers, startJanitor(r.orchestrator, oc.CleanupInterval, oc.WorkflowRetention).Close)
	}
	log.Printf("[sdk] %s ready (storage=%s, latency=%s, objective=%s)", r.orchestrator, r.config.Storage.Driver, r.config.Latency.Mode, objective)
	return nil
}

// openStorage 连接配置的存储后端。SQLite 和 PostgreSQL
// 的工作流日志保存在内存中
func (r *Runtime) openStorage() (*repositories, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	switch r.config.Storage.Driver {
	case config.DriverMySQL:
		db, err := mysql.Open(ctx, r.config.Storage.DSN)
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, db.Close)
		return &repositories{
			events:    mysql.NewEventRepository(db),
			workflows: mysql.NewWorkflowRepository(db),
			logs:      mysql.NewLogRepository(db),
		}, nil
	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, r.config.Storage.DSN)
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, db.Close)
		return &repositories{
			events:    sqlite.NewEventRepository(db),
			workflows: sqlite.NewWorkflowRepository(db),
			logs:      memory.NewLogRepository(),
		}, nil
	case config.DriverPostgres:
		pool, err := postgres.Open(ctx, r.config.Storage.DSN)
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, func() error { pool.Close(); return nil })
		return &repositories{
			events:    postgres.NewEventStore(pool),
			workflows: postgres.NewWorkflowStore(pool),
			logs:      memory.NewLogRepository(),
		}, nil
	default:
		return &repositories{
			events:    memory.NewEventRepository(),
			workflows: memory.NewWorkflowRepository(),
			logs:      memory.NewLogRepository(),
		}, nil
	}
}

// newAgents 基于模拟外部系统的四个专家智能体
func newAgents(cfg config.LatencyConfig) (agent.Set, error) {
	var latency agent.LatencyProvider
	switch cfg.Mode {
	case config.LatencyNone:
		latency = agent.NoLatency{}
	case config.LatencyFixed:
		latency = agent.FixedLatency(time.Duration(cfg.FixedMs) * time.Millisecond)
	default:
		latency = external.NewRangeLatency(cfg.Scale)
	}
	opt := agent.WithLatency(latency)

	systems := external.NewSystems()
	return agent.NewSet(
		agent.NewGeographic(systems, systems, systems, opt),
		agent.NewMarket(systems, opt),
		agent.NewFinancial(systems, opt),
		agent.NewPermit(systems, systems, opt),
	)
}

// Orchestrator 获取编排器
func (r *Runtime) Orchestrator() *application.Orchestrator {
	return r.orchestrator
}

// Config 生效的配置
func (r *Runtime) Config() *config.Config {
	return r.config
}

// LoadEvents 工作流的持久化事件，包括之前运行产生的
func (r *Runtime) LoadEvents(ctx context.Context, correlationID string) ([]*trace.Event, error) {
	return r.recorder.Load(ctx, correlationID)
}

// Serve 运行Web服务直到 ctx 结束，然后关闭
func (r *Runtime) Serve(ctx context.Context) error {
	r.webServer = web.NewServer(r.orchestrator, r.config.Server.Port)

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.webServer.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return r.webServer.Shutdown(shutdownCtx)
	}
}

// Close 刷新并释放运行时打开的所有资源
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}
