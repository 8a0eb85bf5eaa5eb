package logger

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

type LogContextKey string

// 上下文键
const (
	CorrelationIDKey LogContextKey = "correlationId"
	StepKey          LogContextKey = "step"
)

// WithWorkflow 在ctx中标记工作流关联ID
func WithWorkflow(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, correlationID)
}

// WithStep 在ctx中标记当前计划步骤
func WithStep(ctx context.Context, step string) context.Context {
	return context.WithValue(ctx, StepKey, step)
}

// LogLevel 日志级别
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
)

// LogEntry 工作流日志条目
type LogEntry struct {
	id            string
	correlationID string
	step          string
	level         LogLevel
	message       string
	attributes    map[string]interface{}
	timestamp     time.Time
}

// NewLogEntry 创建日志条目
func NewLogEntry(correlationID, step string, level LogLevel, message string, attributes map[string]interface{}) *LogEntry {
	return &LogEntry{
		id:            "log_" + uuid.NewString(),
		correlationID: correlationID,
		step:          step,
		level:         level,
		message:       message,
		attributes:    attributes,
		timestamp:     time.Now().UTC(),
	}
}

// RestoreLogEntry 还原存储的日志条目
func RestoreLogEntry(id, correlationID, step string, level LogLevel, message string, attributes map[string]interface{}, timestamp time.Time) *LogEntry {
	return &LogEntry{
		id:            id,
		correlationID: correlationID,
		step:          step,
		level:         level,
		message:       message,
		attributes:    attributes,
		timestamp:     timestamp,
	}
}

func (l *LogEntry) ID() string                         { return l.id }
func (l *LogEntry) CorrelationID() string              { return l.correlationID }
func (l *LogEntry) Step() string                       { return l.step }
func (l *LogEntry) Level() LogLevel                    { return l.level }
func (l *LogEntry) Message() string                    { return l.message }
func (l *LogEntry) Attributes() map[string]interface{} { return l.attributes }
func (l *LogEntry) Timestamp() time.Time               { return l.timestamp }

// LoggerService 工作流日志服务
type LoggerService interface {
	Debug(ctx context.Context, message string, attributes map[string]interface{})
	Info(ctx context.Context, message string, attributes map[string]interface{})
	Warn(ctx context.Context, message string, attributes map[string]interface{})
	Error(ctx context.Context, message string, attributes map[string]interface{})

	// GetLogs 获取工作流日志，按时间顺序
	GetLogs(ctx context.Context, correlationID string, limit, offset int) ([]*LogEntry, error)

	// GetStepLogs 获取工作流某个步骤的日志
	GetStepLogs(ctx context.Context, correlationID, step string, limit, offset int) ([]*LogEntry, error)

	// FlushLogs 将待写日志写入仓储
	FlushLogs() error

	Close() error
}

// LogRepository 日志存储
type LogRepository interface {
	SaveLogs(ctx context.Context, logs []*LogEntry) error
	GetLogs(ctx context.Context, correlationID string, limit, offset int) ([]*LogEntry, error)
	GetStepLogs(ctx context.Context, correlationID, step string, limit, offset int) ([]*LogEntry, error)
	DeleteLogs(ctx context.Context, correlationID string) error
}

type loggerService struct {
	repository    LogRepository
	pendingLogs   []*LogEntry
	batchSize     int
	flushInterval time.Duration
	mutex         sync.Mutex
	stopCh        chan struct{}
	done          sync.WaitGroup
	closeOnce     sync.Once
}

// NewLoggerService 创建批量日志服务
func NewLoggerService(repository LogRepository, batchSize int, flushInterval time.Duration) LoggerService {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	service := &loggerService{
		repository:    repository,
		pendingLogs:   make([]*LogEntry, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		stopCh:        make(chan struct{}),
	}

	service.done.Add(1)
	go service.backgroundFlush()

	return service
}

func (l *loggerService) Debug(ctx context.Context, message string, attributes map[string]interface{}) {
	l.log(ctx, LogLevelDebug, message, attributes)
}

func (l *loggerService) Info(ctx context.Context, message string, attributes map[string]interface{}) {
	l.log(ctx, LogLevelInfo, message, attributes)
}

func (l *loggerService) Warn(ctx context.Context, message string, attributes map[string]interface{}) {
	l.log(ctx, LogLevelWarn, message, attributes)
}

func (l *loggerService) Error(ctx context.Context, message string, attributes map[string]interface{}) {
	l.log(ctx, LogLevelError, message, attributes)
}

// scope 读取工作流和步骤标记，未标记时返回空字符串
func scope(ctx context.Context) (string, string) {
	correlationID, _ := ctx.Value(CorrelationIDKey).(string)
	step, _ := ctx.Value(StepKey).(string)
	return correlationID, step
}

func (l *loggerService) log(ctx context.Context, level LogLevel, message string, attributes map[string]interface{}) {
	correlationID, step := scope(ctx)

	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.pendingLogs = append(l.pendingLogs, NewLogEntry(correlationID, step, level, message, attributes))
	if len(l.pendingLogs) >= l.batchSize {
		if err := l.flushPendingLogs(); err != nil {
			log.Printf("[logger] flush failed: %v", err)
		}
	}
}

func (l *loggerService) GetLogs(ctx context.Context, correlationID string, limit, offset int) ([]*LogEntry, error) {
	if err := l.FlushLogs(); err != nil {
		return nil, err
	}
	return l.repository.GetLogs(ctx, correlationID, limit, offset)
}

func (l *loggerService) GetStepLogs(ctx context.Context, correlationID, step string, limit, offset int) ([]*LogEntry, error) {
	if err := l.FlushLogs(); err != nil {
		return nil, err
	}
	return l.repository.GetStepLogs(ctx, correlationID, step, limit, offset)
}

func (l *loggerService) FlushLogs() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	return l.flushPendingLogs()
}

func (l *loggerService) flushPendingLogs() error {
	if len(l.pendingLogs) == 0 {
		return nil
	}

	batch := make([]*LogEntry, len(l.pendingLogs))
	copy(batch, l.pendingLogs)
	if err := l.repository.SaveLogs(context.Background(), batch); err != nil {
		return err
	}

	l.pendingLogs = l.pendingLogs[:0]
	return nil
}

func (l *loggerService) backgroundFlush() {
	defer l.done.Done()
	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := l.FlushLogs(); err != nil {
				log.Printf("[logger] background flush failed: %v", err)
			}
		case <-l.stopCh:
			return
		}
	}
}

// Close 停止后台刷新并写入待处理日志
func (l *loggerService) Close() error {
	l.closeOnce.Do(func() { close(l.stopCh) })
	l.done.Wait()
	return l.FlushLogs()
}
