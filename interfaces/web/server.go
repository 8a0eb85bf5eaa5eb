package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/XXueTu/site_orchestrator/application"
)

// Version 健康检查返回的版本
const Version = "1.0.0"

// Server 编排器的HTTP API
type Server struct {
	orchestrator *application.Orchestrator
	port         int
	mux          *http.ServeMux
	httpServer   *http.Server
}

// NewServer 创建API服务器
func NewServer(orchestrator *application.Orchestrator, port int) *Server {
	server := &Server{
		orchestrator: orchestrator,
		port:         port,
		mux:          http.NewServeMux(),
	}

	server.setupRoutes()
	server.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return server
}

// Handler 带CORS的路由处理器，用于嵌入和测试
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.mux)
}

// Start 启动监听直到调用 Shutdown
func (s *Server) Start() error {
	log.Printf("[web] listening on port %d", s.port)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 停止接收请求并等待处理中的请求
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/v1/evaluations", s.handleEvaluations)
	s.mux.HandleFunc("/api/v1/optimizations", s.handleOptimizations)
	s.mux.HandleFunc("/api/v1/permit-crises", s.handlePermitCrises)
	s.mux.HandleFunc("/api/v1/workflows", s.handleWorkflows)
	s.mux.HandleFunc("/api/v1/workflows/", s.handleWorkflowByID)
	s.mux.HandleFunc("/api/v1/statistics", s.handleStatistics)
	s.mux.HandleFunc("/api/v1/events", s.handleEvents)
	s.mux.HandleFunc("/api/v1/messages", s.handleMessages)
	s.mux.HandleFunc("/api/v1/admin/clear", s.handleClear)
	s.mux.HandleFunc("/api/v1/health", s.handleHealth)
	s.mux.HandleFunc("/api/v1/stream", s.handleStream)
}

func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) extractIDFromPath(path, prefix string) string {
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	return strings.Trim(strings.TrimPrefix(path, prefix), "/")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[web] encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) parseIntParam(r *http.Request, param string, defaultValue int) int {
	value := r.URL.Query().Get(param)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intValue
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

const maxBodyBytes = 4 << 20

// statusFor 工作流响应的HTTP状态码；除被拒绝的输入外，
// 失败的工作流同样返回 200 和 success=false
func statusFor(info *application.ErrorInfo) int {
	if info != nil && info.Kind == application.KindInvalidRequest {
		return http.StatusBadRequest
	}
	return http.StatusOK
}
