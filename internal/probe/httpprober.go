package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hamed0406/endpointmonitor/internal/domain"
)

const (
	// UserAgent identifies probe traffic. User supplied headers may override it.
	UserAgent = "ApexStatus-Checker/1.0"

	DefaultTimeout = 10 * time.Second

	maxErrorText = 100
)

type HTTPProber struct {
	Client *http.Client
	now    func() time.Time
}

// NewHTTPProber returns a prober whose client never follows redirects.
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPProber{
		Client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		now: time.Now,
	}
}

func (h *HTTPProber) Probe(ctx context.Context, cfg domain.EndpointConfig) domain.CheckResult {
	start := h.now()

	req, err := buildRequest(ctx, cfg)
	if err != nil {
		return h.failure(start, err)
	}

	resp, err := h.Client.Do(req)
	latency := h.now().Sub(start)
	if err != nil {
		return h.failure(start, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	return domain.CheckResult{
		Timestamp:  h.now().UnixMilli(),
		Status:     domain.Classify(resp.StatusCode, latency),
		LatencyMS:  latency.Milliseconds(),
		StatusCode: domain.IntPtr(resp.StatusCode),
		StatusText: reasonPhrase(resp),
	}
}

func (h *HTTPProber) failure(start time.Time, err error) domain.CheckResult {
	end := h.now()
	return domain.CheckResult{
		Timestamp:  end.UnixMilli(),
		Status:     domain.StatusDown,
		LatencyMS:  end.Sub(start).Milliseconds(),
		StatusCode: domain.IntPtr(0),
		StatusText: "Check failed: " + truncate(err.Error(), maxErrorText),
	}
}

func buildRequest(ctx context.Context, cfg domain.EndpointConfig) (*http.Request, error) {
	headers, err := domain.ParseHeaders(cfg.Headers)
	if err != nil {
		return nil, fmt.Errorf("parse headers: %w", err)
	}

	var body io.Reader
	if strings.TrimSpace(cfg.Body) != "" {
		var v any
		if err := json.Unmarshal([]byte(cfg.Body), &v); err != nil {
			return nil, fmt.Errorf("parse body: %w", err)
		}
		if v != nil {
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("encode body: %w", err)
			}
			body = bytes.NewReader(raw)
		}
	}

	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodGet
	}
	if cfg.URL == "" {
		return nil, errors.New("empty url")
	}
	req, err := http.NewRequestWithContext(ctx, method, cfg.URL, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", UserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// reasonPhrase strips the numeric code from resp.Status ("404 Not Found" -> "Not Found").
func reasonPhrase(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
