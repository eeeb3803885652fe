package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// DefaultBaseURL 飞书开放平台API基础地址
const DefaultBaseURL = "https://open.feishu.cn/open-apis"

// FeishuClient 飞书API基础客户端，负责 token 缓存与通用请求
type FeishuClient struct {
	appID       string
	appSecret   string
	baseURL     string
	tokenCache  string
	tokenExpire time.Time
	mu          sync.RWMutex
	httpClient  *http.Client
}

// Option 客户端选项
type Option func(*FeishuClient)

// WithBaseURL 指定API地址（私有化部署或测试）
func WithBaseURL(u string) Option {
	return func(c *FeishuClient) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient 指定HTTP客户端
func WithHTTPClient(hc *http.Client) Option {
	return func(c *FeishuClient) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient 创建飞书客户端实例
func NewClient(appID, appSecret string, opts ...Option) *FeishuClient {
	c := &FeishuClient{
		appID:      appID,
		appSecret:  appSecret,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetAppAccessToken 获取应用访问令牌，提前60秒刷新
func (c *FeishuClient) GetAppAccessToken(ctx context.Context) (string, error) {
	c.mu.RLock()
	if c.tokenCache != "" && time.Now().Before(c.tokenExpire) {
		token := c.tokenCache
		c.mu.RUnlock()
		return token, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// 双重检查：其他goroutine可能已经刷新了token
	if c.tokenCache != "" && time.Now().Before(c.tokenExpire) {
		return c.tokenCache, nil
	}

	bodyBytes, _ := json.Marshal(map[string]string{
		"app_id":     c.appID,
		"app_secret": c.appSecret,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/auth/v3/app_access_token/internal", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("创建token请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("请求飞书token失败: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		BaseResponse
		AppAccessToken string `json:"app_access_token"`
		Expire         int    `json:"expire"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("解析token响应失败: %w", err)
	}
	if result.Code != 0 {
		return "", fmt.Errorf("飞书token错误[%d]: %s", result.Code, result.Msg)
	}

	c.tokenCache = result.AppAccessToken
	c.tokenExpire = time.Now().Add(time.Duration(result.Expire-60) * time.Second)
	return result.AppAccessToken, nil
}

// doRequest 执行飞书API请求，path 相对于 baseURL（如 /im/v1/messages）
func (c *FeishuClient) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	token, err := c.GetAppAccessToken(ctx)
	if err != nil {
		return fmt.Errorf("获取访问令牌失败: %w", err)
	}

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("序列化请求体失败: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应体失败: %w", err)
	}

	var baseResp BaseResponse
	if err := json.Unmarshal(respBody, &baseResp); err != nil {
		return fmt.Errorf("解析响应失败(status=%d): %w", resp.StatusCode, err)
	}
	if baseResp.Code != 0 {
		return fmt.Errorf("飞书API错误[%d]: %s (path=%s)", baseResp.Code, baseResp.Msg, path)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("解析响应体失败: %w", err)
		}
	}
	return nil
}
