package nodes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/shaiso/Flowline/internal/domain"
)

const (
	defaultSlackBaseURL  = "https://slack.com/api"
	defaultGitHubBaseURL = "https://api.github.com"
)

// SlackExecutor — узел slackPostMessage.
//
// Конфигурация:
//
//	{"token": "{{credential.SlackBotToken}}", "channel": "#ops", "text": "Deployed"}
//
// Выход: {"output": <ответ chat.postMessage>}. Ответ с ok=false — ошибка.
type SlackExecutor struct {
	client  *http.Client
	baseURL string
}

// NewSlackExecutor создаёт SlackExecutor.
func NewSlackExecutor(client *http.Client) *SlackExecutor {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &SlackExecutor{client: client, baseURL: defaultSlackBaseURL}
}

// WithBaseURL задаёт адрес Slack API (тесты, прокси).
func (e *SlackExecutor) WithBaseURL(u string) *SlackExecutor {
	e.baseURL = strings.TrimRight(u, "/")
	return e
}

// Type возвращает тип узла.
func (e *SlackExecutor) Type() domain.NodeType {
	return domain.NodeTypeSlackPostMessage
}

// Execute публикует сообщение.
func (e *SlackExecutor) Execute(ctx context.Context, req *Request) (Output, error) {
	channel := GetConfigString(req.Config, "channel")

	if req.Simulation() {
		req.Logf("Would post message to channel %s.", channel)
		return Output{"output": simulatedOr(req.Config, map[string]any{
			"ok":      true,
			"message": map[string]any{"ts": "simulated_timestamp"},
		}, "simulated_config")}, nil
	}

	token := GetConfigString(req.Config, "token")
	if token == "" || strings.Contains(token, "{{") {
		return nil, invalidConfig(domain.NodeTypeSlackPostMessage,
			"Slack bot token is not configured or resolved; set {{credential.SlackBotToken}}")
	}
	text := GetConfigString(req.Config, "text")
	if channel == "" {
		return nil, invalidConfig(domain.NodeTypeSlackPostMessage, "channel is not configured or resolved")
	}
	if text == "" {
		return nil, invalidConfig(domain.NodeTypeSlackPostMessage, "text is not configured or resolved")
	}

	req.Logf("Posting message to channel %s.", channel)
	status, data, err := postJSON(ctx, clientFor(req, e.client), e.baseURL+"/chat.postMessage",
		map[string]string{
			"Content-Type":  "application/json; charset=utf-8",
			"Authorization": "Bearer " + token,
		},
		map[string]any{"channel": channel, "text": text},
	)
	if err != nil {
		return nil, err
	}

	ok, _ := data["ok"].(bool)
	if status < 200 || status >= 300 || !ok {
		slackErr, _ := data["error"].(string)
		if slackErr == "" {
			slackErr = fmt.Sprintf("HTTP error %d", status)
		}
		return nil, fmt.Errorf("slack api error: %s", slackErr)
	}
	return Output{"output": data}, nil
}

// GitHubExecutor — узел githubCreateIssue.
//
// Конфигурация:
//
//	{
//	    "token": "{{credential.GitHubToken}}",
//	    "owner": "acme", "repo": "api",
//	    "title": "Build failed", "body": "..."
//	}
//
// Выход: {"output": <созданный issue>}.
type GitHubExecutor struct {
	client  *http.Client
	baseURL string
}

// NewGitHubExecutor создаёт GitHubExecutor.
func NewGitHubExecutor(client *http.Client) *GitHubExecutor {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &GitHubExecutor{client: client, baseURL: defaultGitHubBaseURL}
}

// WithBaseURL задаёт адрес GitHub API (тесты, GitHub Enterprise).
func (e *GitHubExecutor) WithBaseURL(u string) *GitHubExecutor {
	e.baseURL = strings.TrimRight(u, "/")
	return e
}

// Type возвращает тип узла.
func (e *GitHubExecutor) Type() domain.NodeType {
	return domain.NodeTypeGitHubCreateIssue
}

// Execute создаёт issue.
func (e *GitHubExecutor) Execute(ctx context.Context, req *Request) (Output, error) {
	owner := GetConfigString(req.Config, "owner")
	repo := GetConfigString(req.Config, "repo")

	if req.Simulation() {
		req.Logf("Would create issue in %s/%s.", owner, repo)
		return Output{"output": req.Config["simulated_config"]}, nil
	}

	token := GetConfigString(req.Config, "token")
	if token == "" || strings.Contains(token, "{{") {
		return nil, invalidConfig(domain.NodeTypeGitHubCreateIssue,
			"GitHub token is not configured or resolved; set {{credential.GitHubToken}}")
	}
	if owner == "" || repo == "" {
		return nil, invalidConfig(domain.NodeTypeGitHubCreateIssue, "owner and repo are required")
	}

	endpoint := fmt.Sprintf("%s/repos/%s/%s/issues", e.baseURL, url.PathEscape(owner), url.PathEscape(repo))
	req.Logf("Creating issue in %s/%s.", owner, repo)
	status, data, err := postJSON(ctx, clientFor(req, e.client), endpoint,
		map[string]string{
			"Accept":        "application/vnd.github.v3+json",
			"Authorization": "token " + token,
			"Content-Type":  "application/json",
		},
		map[string]any{
			"title": GetConfigString(req.Config, "title"),
			"body":  GetConfigString(req.Config, "body"),
		},
	)
	if err != nil {
		return nil, err
	}

	if status < 200 || status >= 300 {
		msg, _ := data["message"].(string)
		if msg == "" {
			msg = fmt.Sprintf("HTTP error %d", status)
		}
		return nil, fmt.Errorf("github api error: %s", msg)
	}
	return Output{"output": data}, nil
}

// postJSON отправляет JSON и разбирает JSON-ответ.
func postJSON(ctx context.Context, client *http.Client, endpoint string, headers map[string]string, body any) (int, map[string]any, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, cancelled(ctx)
		}
		return 0, nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response body: %w", err)
	}

	data := map[string]any{}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			return resp.StatusCode, nil, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
		}
	}
	return resp.StatusCode, data, nil
}
