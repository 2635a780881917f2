package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"NPSEngine/config"
	"NPSEngine/pkg/errors"
	"NPSEngine/pkg/logger"
)

// Client 后端 REST API 客户端。台账、会话、回答的权威存储都在后端，
// 引擎所有读写都经过这里。Bearer 认证，401 时重新登录一次再重试。
type Client struct {
	baseURL    string
	email      string
	password   string
	httpClient *http.Client

	tokenMu sync.RWMutex
	token   string
}

var (
	client *Client
	once   sync.Once
)

// Init 创建客户端并登录。启动时认证失败是唯一允许进程退出的错误。
func Init(ctx context.Context) error {
	var err error
	once.Do(func() {
		client = New(config.Cfg.BackendBaseURL, config.Cfg.BackendEmail, config.Cfg.BackendPassword)
		err = client.Login(ctx)
	})
	return err
}

func GetClient() *Client {
	if client == nil {
		panic("backend client not initialized, call backend.Init() first")
	}
	return client
}

func New(baseURL, email, password string) *Client {
	timeout := time.Duration(config.Cfg.BackendTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:  baseURL,
		email:    email,
		password: password,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login 换取 bearer token
func (c *Client) Login(ctx context.Context) error {
	payload, _ := json.Marshal(loginRequest{Email: c.email, Password: c.password})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/login", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("backend login: status %d: %s", resp.StatusCode, raw)
	}

	var out loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode login response: %w", err)
	}

	c.tokenMu.Lock()
	c.token = out.Token
	c.tokenMu.Unlock()

	logger.Logger.Info("Authenticated with backend", zap.String("base_url", c.baseURL))
	return nil
}

func (c *Client) bearer() string {
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	return c.token
}

// duplicatePayload 后端唯一约束冲突时返回 409 和已存在记录的 id
type duplicatePayload struct {
	ExistingID int64  `json:"existing_id"`
	Resource   string `json:"resource"`
}

// do 统一请求入口。网络错误和 5xx 包装成可重试错误；
// 409 包装成 DuplicateError，创建点把它当成功处理。
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	return c.doRetry(ctx, method, path, body, out, true)
}

func (c *Client) doRetry(ctx context.Context, method, path string, body, out interface{}, allowRelogin bool) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request %s: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.bearer())
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Transient("backend "+path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Transient("backend read "+path, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized && allowRelogin:
		// token 过期，登录一次再重放
		if err := c.Login(ctx); err != nil {
			return fmt.Errorf("relogin after 401: %w", err)
		}
		return c.doRetry(ctx, method, path, body, out, false)

	case resp.StatusCode == http.StatusNotFound:
		return &errors.NotFoundError{Resource: path}

	case resp.StatusCode == http.StatusConflict:
		var dup duplicatePayload
		if err := json.Unmarshal(raw, &dup); err != nil {
			dup.Resource = path
		}
		return &errors.DuplicateError{Resource: dup.Resource, ExistingID: dup.ExistingID}

	case resp.StatusCode >= 500:
		return errors.Transient("backend "+path, fmt.Errorf("status %d: %s", resp.StatusCode, raw))

	case resp.StatusCode >= 400:
		return fmt.Errorf("backend %s: status %d: %s", path, resp.StatusCode, raw)
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response %s: %w", path, err)
		}
	}

	return nil
}
