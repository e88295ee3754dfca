package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ScriptForge/internal/llm"
)

const (
	defaultBaseURL = "http://localhost:11434"
	defaultTimeout = 120 * time.Second

	// 采样参数固定，与角色无关。
	samplingTemperature = 0.6
	samplingNumPredict  = 512
)

// Config 描述调用 Ollama generate API 所需的信息。
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client 通过 HTTP 调用本地 Ollama 暴露的大模型能力。
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient 根据配置创建 Ollama 客户端。
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Generate 调用 /api/generate 获得一次非流式生成结果。
func (c *Client) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		return nil, errors.New("未指定模型名称")
	}

	payload, err := json.Marshal(map[string]any{
		"model":  model,
		"prompt": req.Prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": samplingTemperature,
			"num_predict": samplingNumPredict,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("序列化 Ollama 请求失败: %w", err)
	}

	endpoint := c.baseURL + "/api/generate"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("构建 Ollama 请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("请求 Ollama 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("Ollama 返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("解析 Ollama 响应失败: %w", err)
	}

	return &llm.Response{Text: strings.TrimSpace(decoded.Response)}, nil
}

var _ llm.Client = (*Client)(nil)
