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

	"github.com/Himanshu-is-code/AMD-HACK/internal/llm"
)

const (
	defaultBaseURL   = "http://127.0.0.1:11434"
	defaultModelName = "llama3.2"
	defaultTimeout   = 60 * time.Second
)

// Config 描述了调用本地 Ollama 服务所需的信息。
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client 通过 HTTP 调用 Ollama 的文本生成接口。
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewClient 根据配置创建 Ollama 客户端。
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModelName
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Generate 调用 Ollama 生成回复。
func (c *Client) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.New("提示词不能为空")
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.model
	}

	payload, err := json.Marshal(map[string]any{
		"model":  model,
		"prompt": req.Prompt,
		"stream": false,
	})
	if err != nil {
		return nil, fmt.Errorf("构建 Ollama 请求失败: %w", err)
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

	text := strings.TrimSpace(decoded.Response)
	if text == "" {
		return nil, errors.New("Ollama 响应内容为空")
	}
	return &llm.Response{Text: text}, nil
}

var _ llm.Client = (*Client)(nil)
