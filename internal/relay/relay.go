// Package relay 把 /api/llm/ 前缀下的请求转发给推理后端的 /v1/ 接口。
// 转发是流式的，响应体边收边写，不做任何缓冲或改写。
package relay

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ScriptForge/internal/observability/metrics"
	"ScriptForge/pkg/logger"
)

// Prefix 是挂载转发处理器的路径前缀。
const Prefix = "/api/llm/"

// Handler 将 GET/POST 请求转发至目标推理服务。
type Handler struct {
	target *url.URL
	client *http.Client
}

// Option 定义可选配置。
type Option func(*Handler)

// WithHTTPClient 替换默认的 HTTP 客户端。
func WithHTTPClient(client *http.Client) Option {
	return func(h *Handler) {
		if client != nil {
			h.client = client
		}
	}
}

// New 构造转发处理器。target 形如 http://127.0.0.1:11434。
func New(target string, opts ...Option) (*Handler, error) {
	parsed, err := url.Parse(strings.TrimRight(target, "/"))
	if err != nil {
		return nil, err
	}
	h := &Handler{
		target: parsed,
		// 推理请求可能长时间流式输出，这里只限制建立连接的耗时。
		client: &http.Client{
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
				ResponseHeaderTimeout: 5 * time.Minute,
			},
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// ServeHTTP 实现 http.Handler。仅允许 GET 与 POST。
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	status := h.forward(w, r)
	metrics.ObserveHTTPRequest("relay", r.Method, status, time.Since(started))
}

func (h *Handler) forward(w http.ResponseWriter, r *http.Request) int {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return http.StatusMethodNotAllowed
	}

	subpath := strings.TrimPrefix(r.URL.Path, Prefix)
	upstream := *h.target
	upstream.Path = strings.TrimRight(upstream.Path, "/") + "/v1/" + subpath
	upstream.RawQuery = r.URL.RawQuery

	req, err := http.NewRequestWithContext(r.Context(), r.Method, upstream.String(), r.Body)
	if err != nil {
		http.Error(w, "bad relay request", http.StatusBadGateway)
		return http.StatusBadGateway
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		req.Header.Set("Content-Type", ct)
	}
	if accept := r.Header.Get("Accept"); accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		logger.L().Warn("推理服务转发失败",
			slog.Any("error", err),
			slog.String("path", subpath),
		)
		if isUnreachable(err) {
			http.Error(w, "inference service unreachable", http.StatusServiceUnavailable)
			return http.StatusServiceUnavailable
		}
		http.Error(w, "relay failure", http.StatusBadGateway)
		return http.StatusBadGateway
	}
	defer func() { _ = resp.Body.Close() }()

	for key, values := range resp.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		// 响应头已经写出，只能记录日志。
		logger.L().Warn("转发响应流中断", slog.Any("error", err), slog.String("path", subpath))
	}
	return resp.StatusCode
}

func isUnreachable(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
