package service

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
)

// ErrCoachAPIKeyMissing 在未配置模型 API Key 时返回
var ErrCoachAPIKeyMissing = errors.New("coach api key is not configured")

// httpDoer 抽象 HTTP 客户端，便于测试注入
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// coachChatClient 调用 OpenAI 兼容的对话接口生成教练回复
type coachChatClient struct {
	http    httpDoer
	baseURL string
	model   string
	apiKey  string
}

func newCoachChatClient(baseURL, model, apiKey string) *coachChatClient {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	if strings.TrimSpace(model) == "" {
		model = defaultCoachModel
	}

	return &coachChatClient{
		http:    &http.Client{Timeout: 120 * time.Second},
		baseURL: base,
		model:   strings.TrimSpace(model),
		apiKey:  strings.TrimSpace(apiKey),
	}
}

func (c *coachChatClient) SetHTTPClient(client httpDoer) {
	if client == nil {
		c.http = &http.Client{Timeout: 20 * time.Second}
		return
	}
	c.http = client
}

// GenerateReply 根据会话历史生成一条教练回复
func (c *coachChatClient) GenerateReply(ctx context.Context, input CoachInput) (CoachResult, error) {
	if c.apiKey == "" {
		return CoachResult{}, ErrCoachAPIKeyMissing
	}

	maxTokens := input.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultCoachMaxTokens
	}

	messages := make([]chatMessage, 0, len(input.History)+2)
	messages = append(messages, chatMessage{Role: "system", Content: coachSystemPrompt})
	for _, turn := range input.History {
		messages = append(messages, chatMessage{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, chatMessage{Role: MessageRoleUser, Content: input.UserMessage})

	payload := chatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: defaultCoachTemperature,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return CoachResult{}, fmt.Errorf("构造请求失败: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return CoachResult{}, fmt.Errorf("创建模型请求失败: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "routinelog-coach/1.0")

	client := c.http
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return CoachResult{}, fmt.Errorf("请求模型接口失败: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return CoachResult{}, fmt.Errorf("读取模型响应失败: %w", err)
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return CoachResult{}, fmt.Errorf("解析模型响应失败: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := strings.TrimSpace(completion.Error.Message)
		if message == "" {
			message = strings.TrimSpace(string(respBody))
		}
		return CoachResult{}, fmt.Errorf("模型接口返回 %d: %s", resp.StatusCode, message)
	}

	if len(completion.Choices) == 0 {
		return CoachResult{}, errors.New("模型未返回任何候选回复")
	}

	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if content == "" {
		return CoachResult{}, errors.New("模型返回了空回复")
	}

	return CoachResult{
		Content:          content,
		PromptTokens:     completion.Usage.PromptTokens,
		CompletionTokens: completion.Usage.CompletionTokens,
	}, nil
}
