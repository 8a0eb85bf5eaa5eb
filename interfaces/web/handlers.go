package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/XXueTu/site_orchestrator/application"
	"github.com/XXueTu/site_orchestrator/domain/agent"
	"github.com/XXueTu/site_orchestrator/domain/logger"
	"github.com/XXueTu/site_orchestrator/domain/messaging"
	"github.com/XXueTu/site_orchestrator/domain/trace"
	"github.com/XXueTu/site_orchestrator/domain/workflow"
)

// EvaluationRequest POST /api/v1/evaluations 请求体
type EvaluationRequest struct {
	Site agent.Site `json:"site"`
}

// EventListResponse 追踪事件查询结果
type EventListResponse struct {
	Events []*trace.Event `json:"events"`
	Total  int            `json:"total"`
}

// MessageListResponse 总线历史查询结果
type MessageListResponse struct {
	Messages []*messaging.Message `json:"messages"`
	Total    int                  `json:"total"`
}

// WorkflowListResponse 工作流快照查询结果
type WorkflowListResponse struct {
	Workflows []workflow.Snapshot `json:"workflows"`
	Total     int                 `json:"total"`
}

// LogEntryResponse 工作流日志条目
type LogEntryResponse struct {
	ID            string                 `json:"id"`
	CorrelationID string                 `json:"correlation_id"`
	Step          string                 `json:"step,omitempty"`
	Level         string                 `json:"level"`
	Message       string                 `json:"message"`
	Attributes    map[string]interface{} `json:"attributes,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
}

func (s *Server) handleEvaluations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req EvaluationRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	resp := s.orchestrator.EvaluateSingle(r.Context(), req.Site)
	s.writeJSON(w, statusFor(resp.Error), resp)
}

func (s *Server) handleOptimizations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req application.OptimizationRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	resp := s.orchestrator.OptimizeSelection(r.Context(), req)
	s.writeJSON(w, statusFor(resp.Error), resp)
}

func (s *Server) handlePermitCrises(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req application.CrisisRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	resp := s.orchestrator.HandlePermitCrisis(r.Context(), req)
	s.writeJSON(w, statusFor(resp.Error), resp)
}

func (s *Server) handleWorkflows(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	workflows := s.orchestrator.ListWorkflows(workflow.Status(r.URL.Query().Get("status")))
	s.writeJSON(w, http.StatusOK, WorkflowListResponse{Workflows: workflows, Total: len(workflows)})
}

// handleWorkflowByID 处理 /api/v1/workflows/{id} 及 events、trace、logs 子路径
func (s *Server) handleWorkflowByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	workflowID := s.extractIDFromPath(r.URL.Path, "/api/v1/workflows/")
	if workflowID == "" {
		s.writeError(w, http.StatusBadRequest, "Invalid workflow ID")
		return
	}

	subPath := ""
	if strings.Contains(workflowID, "/") {
		parts := strings.SplitN(workflowID, "/", 2)
		workflowID, subPath = parts[0], parts[1]
	}

	snapshot, err := s.orchestrator.GetWorkflowStatus(workflowID)
	if err != nil {
		if application.IsNotFound(err) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	switch subPath {
	case "":
		s.writeJSON(w, http.StatusOK, snapshot)
	case "events":
		events := s.orchestrator.GetRecentEvents(s.parseIntParam(r, "limit", 0), workflowID)
		s.writeJSON(w, http.StatusOK, EventListResponse{Events: events, Total: len(events)})
	case "trace":
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"workflow_id": workflowID,
			"chain":       s.orchestrator.DescribeWorkflow(workflowID),
		})
	case "logs":
		s.getWorkflowLogs(w, r, workflowID)
	default:
		s.writeError(w, http.StatusNotFound, "Not found")
	}
}

func (s *Server) getWorkflowLogs(w http.ResponseWriter, r *http.Request, workflowID string) {
	limit := s.parseIntParam(r, "limit", 100)
	offset := s.parseIntParam(r, "offset", 0)
	entries, err := s.orchestrator.GetWorkflowLogs(r.Context(), workflowID, r.URL.Query().Get("step"), limit, offset)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs":  convertLogEntries(entries),
		"total": len(entries),
	})
}

func convertLogEntries(entries []*logger.LogEntry) []LogEntryResponse {
	out := make([]LogEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, LogEntryResponse{
			ID:            e.ID(),
			CorrelationID: e.CorrelationID(),
			Step:          e.Step(),
			Level:         string(e.Level()),
			Message:       e.Message(),
			Attributes:    e.Attributes(),
			Timestamp:     e.Timestamp(),
		})
	}
	return out
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.orchestrator.GetStatistics())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	limit := s.parseIntParam(r, "limit", trace.DefaultRecentLimit)
	events := s.orchestrator.GetRecentEvents(limit, r.URL.Query().Get("correlation_id"))
	s.writeJSON(w, http.StatusOK, EventListResponse{Events: events, Total: len(events)})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	limit := s.parseIntParam(r, "limit", messaging.DefaultRecentLimit)
	messages := s.orchestrator.GetRecentMessages(r.URL.Query().Get("topic"), limit)
	s.writeJSON(w, http.StatusOK, MessageListResponse{Messages: messages, Total: len(messages)})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.orchestrator.ClearHistory()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"cleared": true})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "healthy",
		"orchestrator_id": application.OrchestratorID,
		"timestamp":       time.Now().Unix(),
		"version":         Version,
	})
}
