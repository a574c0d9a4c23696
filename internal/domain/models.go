package domain

import "time"

// HistoryLimit caps the number of check results kept per endpoint.
const HistoryLimit = 50

// HTTP methods an endpoint may be probed with.
const (
	MethodGet    = "GET"
	MethodPost   = "POST"
	MethodPut    = "PUT"
	MethodDelete = "DELETE"
	MethodPatch  = "PATCH"
)

// EndpointConfig is the user supplied part of a monitored endpoint.
// Headers and Body hold JSON text exactly as it was submitted.
type EndpointConfig struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	URL       string `json:"url"`
	Method    string `json:"method"`
	Headers   string `json:"headers,omitempty"`
	Body      string `json:"body,omitempty"`
	CreatedAt int64  `json:"createdAt"` // epoch ms
}

// EndpointInput is what create and update accept: a config without id/createdAt.
type EndpointInput struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	Method  string `json:"method"`
	Headers string `json:"headers,omitempty"`
	Body    string `json:"body,omitempty"`
}

// EndpointRecord is the persisted unit: config plus newest-first history.
type EndpointRecord struct {
	EndpointConfig
	History []CheckResult `json:"history"`
}

// NewRecord builds a record with an empty history.
func NewRecord(id string, in EndpointInput, createdAt time.Time) EndpointRecord {
	rec := EndpointRecord{
		EndpointConfig: EndpointConfig{ID: id, CreatedAt: createdAt.UnixMilli()},
		History:        []CheckResult{},
	}
	rec.Apply(in)
	return rec
}

// Apply overwrites the configuration fields. ID, CreatedAt and History are untouched.
func (r *EndpointRecord) Apply(in EndpointInput) {
	r.Name = in.Name
	r.URL = in.URL
	r.Method = in.Method
	r.Headers = in.Headers
	r.Body = in.Body
}

// Prepend puts res at the head of the history and drops whatever falls past HistoryLimit.
func (r *EndpointRecord) Prepend(res CheckResult) {
	n := len(r.History) + 1
	if n > HistoryLimit {
		n = HistoryLimit
	}
	h := make([]CheckResult, n)
	h[0] = res
	copy(h[1:], r.History)
	r.History = h
}

// Clone returns a deep copy safe to hand across goroutines.
func (r EndpointRecord) Clone() EndpointRecord {
	out := r
	out.History = make([]CheckResult, len(r.History))
	for i, c := range r.History {
		out.History[i] = c.clone()
	}
	return out
}

// EndpointView is the read-only shape exposed to consumers. It is derived on
// every read and never stored.
type EndpointView struct {
	EndpointConfig
	Status        Status        `json:"status"`
	LastCheck     *CheckResult  `json:"lastCheck,omitempty"`
	StatusHistory []CheckResult `json:"statusHistory"`
}

// View derives the consumer-facing shape of a record.
func (r EndpointRecord) View() EndpointView {
	c := r.Clone()
	v := EndpointView{
		EndpointConfig: c.EndpointConfig,
		Status:         StatusUnknown,
		StatusHistory:  c.History,
	}
	if len(c.History) > 0 {
		last := c.History[0]
		v.Status = last.Status
		v.LastCheck = &last
	}
	return v
}
