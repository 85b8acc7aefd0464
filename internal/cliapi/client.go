// Package cliapi is the HTTP client pgconsolectl uses to talk to a running
// gateway: session cookie auth instead of the dashboard's browser-based
// OIDC flow, same JSON wire shapes the handler package writes.
package cliapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultBaseURL is used when the CLI isn't pointed at a specific gateway.
const DefaultBaseURL = "http://localhost:8080"

// Client is the pgconsolectl API client.
type Client struct {
	baseURL      string
	sessionToken string
	httpClient   *http.Client
}

// NewClient builds a client. sessionToken may be empty for unauthenticated
// calls (signin itself).
func NewClient(baseURL, sessionToken string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:      baseURL,
		sessionToken: sessionToken,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError mirrors the handler package's error envelope.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

type errorEnvelope struct {
	Error APIError `json:"error"`
}

type successEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// Request issues one HTTP call against the gateway and decodes a successful
// response's data field into result.
func (c *Client) Request(method, path string, body, result interface{}) error {
	u, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, u, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.sessionToken != "" {
		req.AddCookie(&http.Cookie{Name: "pgconsole_session", Value: c.sessionToken})
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var envelope errorEnvelope
		if jsonErr := json.Unmarshal(respBody, &envelope); jsonErr == nil && envelope.Error.Code != "" {
			return &envelope.Error
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	if result == nil {
		return nil
	}

	var envelope successEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("decode response envelope: %w", err)
	}
	return json.Unmarshal(envelope.Data, result)
}

// Signin posts the credentials and returns the session cookie value of a
// successful signin, extracted from the Set-Cookie header rather than the
// JSON body.
func (c *Client) Signin(email, password string) (string, error) {
	u, err := url.JoinPath(c.baseURL, "/v1/auth/signin")
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequest(http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("signin request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		var envelope errorEnvelope
		if jsonErr := json.Unmarshal(respBody, &envelope); jsonErr == nil && envelope.Error.Code != "" {
			return "", &envelope.Error
		}
		return "", fmt.Errorf("signin failed with status %d", resp.StatusCode)
	}

	for _, cookie := range resp.Cookies() {
		if cookie.Name == "pgconsole_session" {
			return cookie.Value, nil
		}
	}
	return "", fmt.Errorf("signin succeeded but no session cookie was returned")
}
