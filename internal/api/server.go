package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	stdErrors "errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	xerrors "ScriptForge/internal/errors"
	"ScriptForge/internal/observability/metrics"
	"ScriptForge/internal/relay"
	"ScriptForge/internal/run"
	"ScriptForge/pkg/logger"
)

// Server 负责暴露 REST 接口，供外部提交运行并查询结果。
type Server struct {
	addr    string
	service *run.Service
	relay   http.Handler
	apiKey  string
}

// Option 定义可选配置。
type Option func(*Server)

// WithRelay 在 /api/llm/ 前缀下挂载推理转发处理器。
func WithRelay(handler http.Handler) Option {
	return func(s *Server) {
		s.relay = handler
	}
}

// WithAPIKey 为 /api/v1/ 下的接口启用静态密钥校验。
func WithAPIKey(key string) Option {
	return func(s *Server) {
		s.apiKey = strings.TrimSpace(key)
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, service *run.Service, opts ...Option) *Server {
	s := &Server{addr: addr, service: service}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler 返回完整路由，便于测试与复用。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/runs", s.authenticated("runs", s.handleRuns))
	mux.HandleFunc("/api/v1/runs/", s.authenticated("run_detail", s.handleRunDetail))
	mux.HandleFunc("/healthz", s.instrumented("healthz", s.handleHealth))
	mux.Handle("/metrics", metrics.Handler())
	if s.relay != nil {
		mux.Handle(relay.Prefix, s.relay)
	}
	return mux
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSubmitRun(w, r)
	case http.MethodGet:
		s.handleListRuns(w, r)
	default:
		http.Error(w, "仅支持 GET/POST", http.StatusMethodNotAllowed)
	}
}

// handleSubmitRun 处理创建运行的请求。
func (s *Server) handleSubmitRun(w http.ResponseWriter, r *http.Request) {
	if s.service == nil {
		http.Error(w, "运行服务未初始化", http.StatusServiceUnavailable)
		return
	}

	var req run.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	created, err := s.service.Submit(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, created)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.service == nil {
		http.Error(w, "运行服务未初始化", http.StatusServiceUnavailable)
		return
	}

	opts, err := listOptionsFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	runs, err := s.service.List(r.Context(), opts...)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleRunDetail 处理 /api/v1/runs/{id} 与 /api/v1/runs/stats。
func (s *Server) handleRunDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.service == nil {
		http.Error(w, "运行服务未初始化", http.StatusServiceUnavailable)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/runs/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "非法的运行标识", http.StatusBadRequest)
		return
	}
	if id == "stats" {
		s.handleRunStats(w, r)
		return
	}

	record, err := s.service.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleRunStats(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptionsFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	stats, err := s.service.Stats(r.Context(), opts...)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// listOptionsFromQuery 把查询参数翻译成列表过滤条件。
func listOptionsFromQuery(r *http.Request) ([]run.ListOption, error) {
	query := r.URL.Query()
	var opts []run.ListOption

	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return nil, stdErrors.New("limit 必须是正整数")
		}
		opts = append(opts, run.WithLimit(parsed))
	}
	if raw := query.Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return nil, stdErrors.New("offset 必须是非负整数")
		}
		opts = append(opts, run.WithOffset(parsed))
	}
	if raw := query.Get("status"); raw != "" {
		var statuses []run.Status
		for _, item := range strings.Split(raw, ",") {
			status := run.Status(strings.TrimSpace(item))
			if !run.IsValidStatus(status) {
				return nil, stdErrors.New("未知的运行状态: " + string(status))
			}
			statuses = append(statuses, status)
		}
		opts = append(opts, run.WithStatuses(statuses...))
	}
	if raw := query.Get("completed"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, stdErrors.New("completed 必须是布尔值")
		}
		opts = append(opts, run.WithCompleted(parsed))
	}
	if raw := query.Get("updated_since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, stdErrors.New("updated_since 必须是 RFC3339 时间")
		}
		opts = append(opts, run.WithUpdatedSince(parsed))
	}
	if raw := query.Get("order"); raw != "" {
		switch raw {
		case "asc":
			opts = append(opts, run.WithSortOrder(run.SortByUpdatedAsc))
		case "desc":
			opts = append(opts, run.WithSortOrder(run.SortByUpdatedDesc))
		default:
			return nil, stdErrors.New("order 只支持 asc/desc")
		}
	}
	if raw := query.Get("q"); raw != "" {
		opts = append(opts, run.WithQuery(raw))
	}
	return opts, nil
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case stdErrors.Is(err, run.ErrRunNotFound):
		status = http.StatusNotFound
	case stdErrors.Is(err, run.ErrRunConflict):
		status = http.StatusConflict
	case xerrors.CodeOf(err) == run.CodeRunValidation:
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		logger.L().Error("请求处理失败", slog.Any("error", err))
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  string(xerrors.CodeOf(err)),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// authenticated 在指标采集之外附加可选的静态密钥校验。
func (s *Server) authenticated(name string, next http.HandlerFunc) http.HandlerFunc {
	return s.instrumented(name, func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" {
			provided := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(provided), []byte(s.apiKey)) != 1 {
				http.Error(w, "无效的 API 密钥", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	})
}

// instrumented 为处理器记录请求量与耗时指标。
func (s *Server) instrumented(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(recorder, r)
		metrics.ObserveHTTPRequest(name, r.Method, recorder.status, time.Since(started))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
