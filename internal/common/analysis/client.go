// Package analysis is the client for the external analysis and valuation backend.
package analysis

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "ipo-compliance/internal/common/errors"
	httpclient "ipo-compliance/internal/common/http"
	"ipo-compliance/internal/common/observability"
)

// Credentials identify the company owner when opening a backend session.
type Credentials struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	CompanyID string `json:"company_id"`
	Role      string `json:"role"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
}

type reportResponse struct {
	Report string `json:"report"`
}

// Client talks to the analysis backend. Every call is bounded by timeout in addition to
// the caller's context.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *httpclient.Client
	obs     *observability.Observability
}

func NewClient(baseURL string, timeout time.Duration, obs *observability.Observability) *Client {
	// transport timeout trails the context deadline so expiry surfaces as DeadlineExceeded
	return NewClientWith(baseURL, timeout, httpclient.NewClient(timeout+5*time.Second), obs)
}

func NewClientWith(baseURL string, timeout time.Duration, hc *httpclient.Client, obs *observability.Observability) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		timeout: timeout,
		http:    hc,
		obs:     obs,
	}
}

// Login opens a session and returns its bearer token.
func (c *Client) Login(ctx context.Context, creds Credentials) (string, error) {
	var resp loginResponse
	err := c.call(ctx, "login", http.MethodPost, "/login", "", creds, &resp)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeBackendTimeout) {
			return "", err
		}
		return "", apperrors.NewBackendSessionError(stderrors.Unwrap(err))
	}
	if resp.AccessToken == "" {
		return "", apperrors.NewBackendSessionError(fmt.Errorf("login response carried no access_token"))
	}
	return resp.AccessToken, nil
}

// FetchReport returns the markdown compliance report of one document.
func (c *Client) FetchReport(ctx context.Context, token, generationID, documentID string) (string, error) {
	path := fmt.Sprintf("/api/v1/report/%s/%s", url.PathEscape(generationID), url.PathEscape(documentID))

	var resp reportResponse
	if err := c.call(ctx, "report", http.MethodGet, path, token, nil, &resp); err != nil {
		return "", err
	}
	return resp.Report, nil
}

// CalculateValuation runs the valuation model synchronously.
func (c *Client) CalculateValuation(ctx context.Context, token string, input map[string]interface{}) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := c.call(ctx, "valuation", http.MethodPost, "/Ipo/valuation", token, input, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, op, method, path, token string, body, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var headers map[string]string
	if token != "" {
		headers = map[string]string{"Authorization": "Bearer " + token}
	}

	start := time.Now()
	err := c.http.DoJSON(ctx, method, c.baseURL+path, headers, body, out)
	c.obs.RecordBackendCall(ctx, op, time.Since(start), err)

	if err == nil {
		return nil
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewBackendTimeoutError(op, err)
	}
	return apperrors.NewBackendRequestError(op, err)
}
