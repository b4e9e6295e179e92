package records

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"writline/internal/apperr"
	"writline/internal/domain"
)

// Client talks to the remote case-record service.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Timeout    time.Duration
	Log        *zap.SugaredLogger
	Now        func() time.Time
}

// New creates a client with sane defaults.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		Timeout: 30 * time.Second,
		Log:     zap.NewNop().Sugar(),
		Now:     time.Now,
	}
}

func (c *Client) ListFIRs(ctx context.Context) ([]domain.FIR, error) {
	var resp []domain.FIR
	err := c.doJSON(ctx, http.MethodGet, "fir", nil, &resp)
	return resp, err
}

func (c *Client) GetFIR(ctx context.Context, id string) (domain.FIR, error) {
	var resp domain.FIR
	err := c.doJSON(ctx, http.MethodGet, "fir/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) CreateFIR(ctx context.Context, fir domain.FIR) (domain.FIR, error) {
	var resp domain.FIR
	err := c.doJSON(ctx, http.MethodPost, "fir", fir.Particulars(), &resp)
	return resp, err
}

func (c *Client) UpdateFIR(ctx context.Context, id string, fir domain.FIR) (domain.FIR, error) {
	var resp domain.FIR
	body := fir.Particulars()
	body.ID = id
	err := c.doJSON(ctx, http.MethodPut, "fir/"+url.PathEscape(id), body, &resp)
	return resp, err
}

func (c *Client) ListProceedings(ctx context.Context) ([]domain.Proceeding, error) {
	var resp []domain.Proceeding
	err := c.doJSON(ctx, http.MethodGet, "proceedings", nil, &resp)
	return resp, err
}

func (c *Client) ProceedingsByFIR(ctx context.Context, firID string) ([]domain.Proceeding, error) {
	var resp []domain.Proceeding
	err := c.doJSON(ctx, http.MethodGet, "proceedings/fir/"+url.PathEscape(firID), nil, &resp)
	return resp, err
}

// DraftProceeding returns the case's draft proceeding, or nil when it has none.
func (c *Client) DraftProceeding(ctx context.Context, firID string) (*domain.Proceeding, error) {
	var resp *domain.Proceeding
	err := c.doJSON(ctx, http.MethodGet, "proceedings/fir/"+url.PathEscape(firID)+"/draft", nil, &resp)
	return resp, err
}

func (c *Client) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	var resp []domain.Branch
	err := c.doJSON(ctx, http.MethodGet, "branches", nil, &resp)
	return resp, err
}

func (c *Client) CreateProceeding(ctx context.Context, w ProceedingWrite) (domain.Proceeding, error) {
	var resp domain.Proceeding
	body, contentType, err := w.encode(false)
	if err != nil {
		return resp, err
	}
	err = c.do(ctx, http.MethodPost, "proceedings", body, contentType, &resp)
	return resp, err
}

func (c *Client) UpdateProceeding(ctx context.Context, id string, w ProceedingWrite) (domain.Proceeding, error) {
	var resp domain.Proceeding
	body, contentType, err := w.encode(true)
	if err != nil {
		return resp, err
	}
	err = c.do(ctx, http.MethodPut, "proceedings/"+url.PathEscape(id), body, contentType, &resp)
	return resp, err
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	return c.do(ctx, method, endpoint, &buf, "application/json", out)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, contentType string, out any) error {
	hc := c.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: c.Timeout}
	}
	log := c.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if err := checkToken(c.Token, c.now()); err != nil {
		return err
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := hc.Do(req)
	if err != nil {
		log.Warnw("request failed", "method", method, "endpoint", endpoint, "error", err)
		return apperr.Transport(0, "", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Transport(resp.StatusCode, "", err)
	}
	log.Debugw("request", "method", method, "endpoint", endpoint, "status", resp.StatusCode)
	if err := classify(resp.StatusCode, data); err != nil {
		return err
	}
	payload, err := unwrap(resp.StatusCode, data)
	if err != nil {
		return err
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return apperr.Transport(resp.StatusCode, "", fmt.Errorf("decode %s %s: %w", method, endpoint, err))
	}
	return nil
}

func (c *Client) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
