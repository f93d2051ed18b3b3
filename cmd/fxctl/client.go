package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pquerna/otp/totp"
)

// apiClient calls the fxd HTTP API.
type apiClient struct {
	http       *resty.Client
	totpSecret string
	now        func() time.Time
}

func newAPIClient(baseURL, totpSecret string, timeout time.Duration) *apiClient {
	return &apiClient{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
		totpSecret: totpSecret,
		now:        time.Now,
	}
}

// call performs the request and returns the indented JSON body. Non-2xx
// responses become errors carrying the server's detail message.
func (c *apiClient) call(ctx context.Context, method, path string, body any, admin bool) ([]byte, error) {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if admin && c.totpSecret != "" {
		code, err := totp.GenerateCode(c.totpSecret, c.now().UTC())
		if err != nil {
			return nil, fmt.Errorf("admin code: %w", err)
		}
		req.SetHeader("X-Admin-TOTP", code)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if !resp.IsSuccess() {
		var e struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(resp.Body(), &e) == nil && e.Detail != "" {
			return nil, fmt.Errorf("%s %s: %s (%d)", method, path, e.Detail, resp.StatusCode())
		}
		return nil, fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode())
	}

	var out bytes.Buffer
	if err := json.Indent(&out, resp.Body(), "", "  "); err != nil {
		return resp.Body(), nil
	}
	return out.Bytes(), nil
}
