package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenSafety 提前刷新的余量，避免拿到手就过期的token
const tokenSafety = 60 * time.Second

// fallbackTokenTTL 后端token不带exp时的默认有效期
const fallbackTokenTTL = 50 * time.Minute

// TokenProvider 供应链后端的登录凭证缓存。
// 所有并发导入共享同一个实例：双重检查锁保证同一时刻至多一次登录在途，
// Invalidate 可以在任意调用方收到401后安全触发，不会破坏别处正在进行的刷新。
type TokenProvider struct {
	loginURL string
	username string
	password string

	mu       sync.RWMutex
	token    string
	expireAt time.Time

	httpClient *http.Client
}

// NewTokenProvider 创建凭证缓存
func NewTokenProvider(loginURL, username, password string) *TokenProvider {
	return &TokenProvider{
		loginURL: loginURL,
		username: username,
		password: password,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// AuthHeader 返回 "Bearer xxx"，必要时透明地重新登录
func (p *TokenProvider) AuthHeader(ctx context.Context) (string, error) {
	token, err := p.currentToken(ctx)
	if err != nil {
		return "", err
	}
	return "Bearer " + token, nil
}

// Invalidate 作废缓存的token，下一次调用会强制重新登录。收到401时调用。
func (p *TokenProvider) Invalidate() {
	p.mu.Lock()
	p.token = ""
	p.expireAt = time.Time{}
	p.mu.Unlock()
}

func (p *TokenProvider) currentToken(ctx context.Context) (string, error) {
	p.mu.RLock()
	if p.token != "" && time.Now().Before(p.expireAt.Add(-tokenSafety)) {
		token := p.token
		p.mu.RUnlock()
		return token, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	// 双重检查：等锁期间其他goroutine可能已经完成登录
	if p.token != "" && time.Now().Before(p.expireAt.Add(-tokenSafety)) {
		return p.token, nil
	}

	token, expireAt, err := p.login(ctx)
	if err != nil {
		return "", err
	}
	p.token = token
	p.expireAt = expireAt
	return token, nil
}

// login 用户名密码登录，token字段兼容 token / accessToken 两种返回
func (p *TokenProvider) login(ctx context.Context) (string, time.Time, error) {
	if p.loginURL == "" || p.username == "" {
		return "", time.Time{}, fmt.Errorf("catalog login not configured")
	}

	body, _ := json.Marshal(map[string]string{
		"username": p.username,
		"password": p.password,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.loginURL, bytes.NewReader(body))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", time.Time{}, fmt.Errorf("login failed: status %d", resp.StatusCode)
	}

	var result struct {
		Token       string `json:"token"`
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", time.Time{}, fmt.Errorf("decode login response: %w", err)
	}

	token := result.Token
	if token == "" {
		token = result.AccessToken
	}
	if token == "" {
		return "", time.Time{}, fmt.Errorf("login response missing token field")
	}

	return token, tokenExpiry(token), nil
}

// tokenExpiry 从JWT exp声明推算过期时间，解析失败按默认有效期处理。
// 这里只读声明不验签——签名校验是后端的事，客户端只关心续期时机。
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return time.Now().Add(fallbackTokenTTL)
}
