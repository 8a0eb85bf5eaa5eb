package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/XXueTu/site_orchestrator/domain/logger"
)

// logRepository MySQL工作流日志存储
type logRepository struct {
	db *sql.DB
}

// NewLogRepository 基于已打开的连接池创建MySQL日志仓储
func NewLogRepository(db *sql.DB) logger.LogRepository {
	return &logRepository{db: db}
}

// SaveLogs 批量插入
func (r *logRepository) SaveLogs(ctx context.Context, logs []*logger.LogEntry) error {
	if len(logs) == 0 {
		return nil
	}

	var query strings.Builder
	query.WriteString(`INSERT INTO workflow_logs (id, correlation_id, step, level, message, attributes, timestamp) VALUES `)
	values := make([]interface{}, 0, len(logs)*7)

	for i, entry := range logs {
		if i > 0 {
			query.WriteString(", ")
		}
		query.WriteString("(?, ?, ?, ?, ?, ?, ?)")

		attributesJSON, err := json.Marshal(entry.Attributes())
		if err != nil {
			return NewMySQLErrorf(err, "encode attributes: %v", err)
		}
		values = append(values, entry.ID(), entry.CorrelationID(), entry.Step(),
			string(entry.Level()), entry.Message(), string(attributesJSON), entry.Timestamp())
	}

	if _, err := r.db.ExecContext(ctx, query.String(), values...); err != nil {
		return NewMySQLErrorf(err, "save logs: %v", err)
	}
	return nil
}

func (r *logRepository) GetLogs(ctx context.Context, correlationID string, limit, offset int) ([]*logger.LogEntry, error) {
	query := `SELECT id, correlation_id, step, level, message, attributes, timestamp
			  FROM workflow_logs WHERE correlation_id = ?
			  ORDER BY seq ASC LIMIT ? OFFSET ?`
	return r.query(ctx, query, correlationID, pageLimit(limit), offset)
}

func (r *logRepository) GetStepLogs(ctx context.Context, correlationID, step string, limit, offset int) ([]*logger.LogEntry, error) {
	query := `SELECT id, correlation_id, step, level, message, attributes, timestamp
			  FROM workflow_logs WHERE correlation_id = ? AND step = ?
			  ORDER BY seq ASC LIMIT ? OFFSET ?`
	return r.query(ctx, query, correlationID, step, pageLimit(limit), offset)
}

func (r *logRepository) DeleteLogs(ctx context.Context, correlationID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM workflow_logs WHERE correlation_id = ?`, correlationID); err != nil {
		return NewMySQLErrorf(err, "delete logs: %v", err)
	}
	return nil
}

func (r *logRepository) query(ctx context.Context, query string, args ...interface{}) ([]*logger.LogEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, NewMySQLErrorf(err, "query logs: %v", err)
	}
	defer rows.Close()

	var logs []*logger.LogEntry
	for rows.Next() {
		var (
			id, correlationID, step, level, message string
			attributesJSON                          []byte
			timestamp                               time.Time
		)
		if err := rows.Scan(&id, &correlationID, &step, &level, &message, &attributesJSON, &timestamp); err != nil {
			return nil, NewMySQLErrorf(err, "scan log: %v", err)
		}

		var attributes map[string]interface{}
		if len(attributesJSON) > 0 {
			if err := json.Unmarshal(attributesJSON, &attributes); err != nil {
				return nil, NewMySQLErrorf(err, "decode attributes: %v", err)
			}
		}
		logs = append(logs, logger.RestoreLogEntry(id, correlationID, step, logger.LogLevel(level), message, attributes, timestamp))
	}
	return logs, rows.Err()
}

// pageLimit MySQL 使用 OFFSET 时必须带 LIMIT
func pageLimit(limit int) int {
	if limit <= 0 {
		return 1 << 30
	}
	return limit
}
