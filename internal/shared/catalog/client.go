package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrConflict 创建时撞上已存在的编码（并发导入的常态，不是事故）
	ErrConflict = errors.New("catalog: duplicate code conflict")
	// ErrUnauthorized 后端返回401，凭证已被作废，下次调用会重新登录
	ErrUnauthorized = errors.New("catalog: unauthorized")
	// ErrNotFound 后端返回404
	ErrNotFound = errors.New("catalog: not found")
)

// BOMItem 批量替换BOM时的行项
type BOMItem struct {
	MaterialID string  `json:"materialId"`
	Quantity   float64 `json:"quantity"`
}

// Record 后端实体记录。不同实体字段不一，只保证有id，其余原样保留。
type Record struct {
	ID     string
	Fields map[string]interface{}
}

// StringField 取字符串字段，数字会被格式化（后端偶尔把编码存成数字）
func (r Record) StringField(keys ...string) string {
	for _, key := range keys {
		if v, ok := r.Fields[key]; ok {
			if s := stringify(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// Client 供应链后端REST客户端。
// 所有请求带context和超时，token由TokenProvider透明管理。
type Client struct {
	baseURL    string
	tokens     *TokenProvider
	httpClient *http.Client
}

// NewClient 创建后端客户端，baseURL 形如 https://host/api
func NewClient(baseURL string, tokens *TokenProvider) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// List 按关键字分页查询实体，兼容 data.list / list / data数组 / 裸数组 四种返回
func (c *Client) List(ctx context.Context, entityType, keyword string, page, pageSize int) ([]Record, error) {
	q := url.Values{}
	if keyword != "" {
		q.Set("keyword", keyword)
	}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		q.Set("pageSize", strconv.Itoa(pageSize))
	}

	path := "/" + entityType
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}

	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return extractRecords(body), nil
}

// Create 创建实体，返回新记录id（data.id 或 id，字符串或数字都接受）
func (c *Client) Create(ctx context.Context, entityType string, payload interface{}) (string, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/"+entityType, payload)
	if err != nil {
		return "", err
	}

	id := extractID(body)
	if id == "" {
		return "", fmt.Errorf("create %s: response missing id", entityType)
	}
	return id, nil
}

// ReplaceBOM 整体替换一个产品的BOM行
func (c *Client) ReplaceBOM(ctx context.Context, productID string, items []BOMItem) error {
	path := "/products/" + url.PathEscape(productID) + "/bom"
	_, err := c.doRequest(ctx, http.MethodPut, path, map[string]interface{}{
		"bomItems": items,
	})
	return err
}

// ListAllMaterials 翻页拉全量物料目录，用于兜底回填编码→id映射
func (c *Client) ListAllMaterials(ctx context.Context) ([]Record, error) {
	const pageSize = 200

	var all []Record
	for page := 1; ; page++ {
		records, err := c.List(ctx, "materials", "", page, pageSize)
		if err != nil {
			return all, err
		}
		all = append(all, records...)
		if len(records) < pageSize {
			return all, nil
		}
	}
}

// GetJSON 对后端任意GET接口发起带鉴权的请求，结果整体反序列化。
// 预警列表、仪表板快照这类非实体接口走这里。
func (c *Client) GetJSON(ctx context.Context, path string, out interface{}) error {
	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// doRequest 统一的请求/鉴权/错误翻译。返回已解析的响应体。
func (c *Client) doRequest(ctx context.Context, method, path string, payload interface{}) (interface{}, error) {
	var bodyReader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.tokens != nil {
		auth, err := c.tokens.AuthHeader(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire credential: %w", err)
		}
		req.Header.Set("Authorization", auth)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var body interface{}
	if len(bytes.TrimSpace(raw)) > 0 {
		// 有些接口把JSON再包一层字符串返回
		if err := json.Unmarshal(raw, &body); err == nil {
			if s, ok := body.(string); ok {
				var inner interface{}
				if json.Unmarshal([]byte(s), &inner) == nil {
					body = inner
				}
			}
		}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		if c.tokens != nil {
			c.tokens.Invalidate()
		}
		return nil, fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	case resp.StatusCode == http.StatusConflict || (resp.StatusCode >= 400 && isDuplicateMessage(body)):
		return nil, fmt.Errorf("%s %s: %w", method, path, ErrConflict)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg := responseMessage(body)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, msg)
	}

	return body, nil
}

// isDuplicateMessage 后端不一定用409表达唯一键冲突，从message里识别
func isDuplicateMessage(body interface{}) bool {
	msg := strings.ToLower(responseMessage(body))
	if msg == "" {
		return false
	}
	for _, kw := range []string{"已存在", "重复", "duplicate", "already exists", "unique"} {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}

func responseMessage(body interface{}) string {
	m, ok := body.(map[string]interface{})
	if !ok {
		return ""
	}
	for _, key := range []string{"message", "msg", "error"} {
		if v, ok := m[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

// extractRecords 兼容多种列表包裹结构
func extractRecords(body interface{}) []Record {
	var items []interface{}

	switch v := body.(type) {
	case []interface{}:
		items = v
	case map[string]interface{}:
		for _, key := range []string{"list", "data"} {
			switch inner := v[key].(type) {
			case []interface{}:
				items = inner
			case map[string]interface{}:
				if list, ok := inner["list"].([]interface{}); ok {
					items = list
				}
			}
			if items != nil {
				break
			}
		}
	}

	records := make([]Record, 0, len(items))
	for _, item := range items {
		fields, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		records = append(records, Record{
			ID:     stringify(fields["id"]),
			Fields: fields,
		})
	}
	return records
}

// extractID data.id 或 id
func extractID(body interface{}) string {
	m, ok := body.(map[string]interface{})
	if !ok {
		return ""
	}
	if id := stringify(m["id"]); id != "" {
		return id
	}
	if data, ok := m["data"].(map[string]interface{}); ok {
		return stringify(data["id"])
	}
	return ""
}

// stringify id和编码在不同后端里可能是字符串也可能是数字
func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}
