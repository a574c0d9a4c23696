package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func msDuration(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

func TestClassify(t *testing.T) {
	cases := []struct {
		code    int
		latency int
		want    Status
	}{
		{200, 500, StatusUp},
		{200, 1000, StatusUp},
		{200, 1001, StatusDegraded},
		{200, 1500, StatusDegraded},
		{204, 10, StatusUp},
		{302, 10, StatusDown},
		{404, 10, StatusDown},
		{500, 10, StatusDown},
		{0, 10, StatusDown},
	}
	for _, c := range cases {
		if got := Classify(c.code, msDuration(c.latency)); got != c.want {
			t.Fatalf("Classify(%d, %dms)=%s want %s", c.code, c.latency, got, c.want)
		}
	}
}

func TestPrepend_DropsExactlyTheOldest(t *testing.T) {
	rec := EndpointRecord{}
	for i := 1; i <= HistoryLimit; i++ {
		rec.Prepend(CheckResult{Timestamp: int64(i)})
	}
	if len(rec.History) != HistoryLimit || rec.History[HistoryLimit-1].Timestamp != 1 {
		t.Fatalf("unexpected history before overflow: len=%d", len(rec.History))
	}

	rec.Prepend(CheckResult{Timestamp: HistoryLimit + 1})
	if len(rec.History) != HistoryLimit {
		t.Fatalf("want %d entries, got %d", HistoryLimit, len(rec.History))
	}
	if rec.History[0].Timestamp != HistoryLimit+1 {
		t.Fatalf("newest not at head: %d", rec.History[0].Timestamp)
	}
	if rec.History[HistoryLimit-1].Timestamp != 2 {
		t.Fatalf("want oldest kept to be 2, got %d", rec.History[HistoryLimit-1].Timestamp)
	}
}

func TestView_EmptyHistoryIsUnknown(t *testing.T) {
	rec := NewRecord("E1", EndpointInput{Name: "api", URL: "https://example.com", Method: "GET"}, time.UnixMilli(1700000000000))
	v := rec.View()
	if v.Status != StatusUnknown || v.LastCheck != nil {
		t.Fatalf("want UNKNOWN without last check, got %+v", v)
	}
	if v.StatusHistory == nil || len(v.StatusHistory) != 0 {
		t.Fatalf("want empty non-nil history, got %#v", v.StatusHistory)
	}
	if v.CreatedAt != 1700000000000 {
		t.Fatalf("createdAt not carried: %d", v.CreatedAt)
	}
}

func TestView_DerivesFromHead(t *testing.T) {
	rec := NewRecord("E1", EndpointInput{Name: "api", URL: "https://example.com", Method: "GET"}, time.Now())
	rec.Prepend(CheckResult{Timestamp: 1, Status: StatusDown, StatusCode: IntPtr(500)})
	rec.Prepend(CheckResult{Timestamp: 2, Status: StatusDegraded, StatusCode: IntPtr(200)})

	v := rec.View()
	if v.Status != StatusDegraded || v.LastCheck == nil || v.LastCheck.Timestamp != 2 {
		t.Fatalf("view not derived from newest entry: %+v", v)
	}
	if len(v.StatusHistory) != 2 {
		t.Fatalf("want 2 history entries, got %d", len(v.StatusHistory))
	}

	// the view owns its copy
	*v.StatusHistory[0].StatusCode = 999
	if rec.History[0].Code() != 200 {
		t.Fatalf("view mutation leaked into record")
	}
}

func TestView_JSONNeverExposesRawHistory(t *testing.T) {
	rec := NewRecord("E1", EndpointInput{Name: "api", URL: "https://example.com", Method: "GET"}, time.Now())
	rec.Prepend(CheckResult{Timestamp: 1, Status: StatusUp})
	b, err := json.Marshal(rec.View())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := m["history"]; ok {
		t.Fatalf("view leaked raw history field: %s", b)
	}
	for _, k := range []string{"status", "lastCheck", "statusHistory", "createdAt", "method"} {
		if _, ok := m[k]; !ok {
			t.Fatalf("view missing %q: %s", k, b)
		}
	}
}

func TestApply_LeavesHistoryAndIdentity(t *testing.T) {
	rec := NewRecord("E1", EndpointInput{Name: "a", URL: "https://a.example", Method: "GET"}, time.UnixMilli(10))
	rec.Prepend(CheckResult{Timestamp: 1, Status: StatusUp})
	rec.Apply(EndpointInput{Name: "b", URL: "https://b.example", Method: "POST", Body: `{"x":1}`})
	if rec.ID != "E1" || rec.CreatedAt != 10 || len(rec.History) != 1 {
		t.Fatalf("apply touched identity or history: %+v", rec)
	}
	if rec.Name != "b" || rec.Method != "POST" || rec.Body != `{"x":1}` {
		t.Fatalf("apply did not overwrite config: %+v", rec)
	}
}

func TestValidate(t *testing.T) {
	ok := EndpointInput{Name: "api", URL: "https://example.com/health", Method: "get", Headers: `{"X-Token":"t"}`, Body: `{"a":[1,2]}`}.Normalize()
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}
	if ok.Method != "GET" {
		t.Fatalf("method not normalized: %q", ok.Method)
	}

	cases := []struct {
		in    EndpointInput
		field string
	}{
		{EndpointInput{URL: "https://example.com"}, "name"},
		{EndpointInput{Name: "x", URL: "ftp://example.com"}, "url"},
		{EndpointInput{Name: "x", URL: "https://"}, "url"},
		{EndpointInput{Name: "x", URL: "https://example.com", Method: "HEAD"}, "method"},
		{EndpointInput{Name: "x", URL: "https://example.com", Headers: `{"a":1}`}, "headers"},
		{EndpointInput{Name: "x", URL: "https://example.com", Headers: `not json`}, "headers"},
		{EndpointInput{Name: "x", URL: "https://example.com", Body: `{broken`}, "body"},
	}
	for _, c := range cases {
		err := c.in.Normalize().Validate()
		ce, isCfg := err.(*ConfigError)
		if !isCfg || ce.Field != c.field {
			t.Fatalf("input %+v: want ConfigError on %s, got %v", c.in, c.field, err)
		}
	}
}

func TestIsValidHTTPURL(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"https://example.com", true},
		{"http://EXAMPLE.com", true},
		{"ftp://x", false},
		{"", false},
		{"https://", false},
	}
	for _, c := range cases {
		if got := IsValidHTTPURL(c.in); got != c.want {
			t.Fatalf("IsValidHTTPURL(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestCheckResult_UnmarshalRejectsUnknownStatus(t *testing.T) {
	var ok CheckResult
	if err := json.Unmarshal([]byte(`{"timestamp":1,"status":"DEGRADED","latency":1500}`), &ok); err != nil {
		t.Fatalf("valid result rejected: %v", err)
	}
	if ok.Status != StatusDegraded {
		t.Fatalf("want DEGRADED, got %s", ok.Status)
	}

	var rec EndpointRecord
	err := json.Unmarshal([]byte(`{"id":"E1","history":[{"timestamp":1,"status":"SIDEWAYS","latency":3}]}`), &rec)
	if err == nil {
		t.Fatalf("expected error for unknown status, got %+v", rec.History)
	}
	if _, err := ParseStatus("up"); err == nil {
		t.Fatalf("status names are case sensitive")
	}
}
