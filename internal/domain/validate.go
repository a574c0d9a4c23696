package domain

import (
	"encoding/json"
	"net/url"
	"strings"
)

// Normalize trims the input and upper-cases the method. An empty method means GET.
func (in EndpointInput) Normalize() EndpointInput {
	in.Name = strings.TrimSpace(in.Name)
	in.URL = strings.TrimSpace(in.URL)
	in.Method = strings.ToUpper(strings.TrimSpace(in.Method))
	if in.Method == "" {
		in.Method = MethodGet
	}
	in.Headers = strings.TrimSpace(in.Headers)
	in.Body = strings.TrimSpace(in.Body)
	return in
}

// Validate checks a normalized input and returns a *ConfigError on the first problem.
func (in EndpointInput) Validate() error {
	if in.Name == "" {
		return &ConfigError{Field: "name", Reason: "name is required"}
	}
	if !IsValidHTTPURL(in.URL) {
		return &ConfigError{Field: "url", Reason: "must be an absolute http(s) URL"}
	}
	switch in.Method {
	case MethodGet, MethodPost, MethodPut, MethodDelete, MethodPatch:
	default:
		return &ConfigError{Field: "method", Reason: "must be one of GET, POST, PUT, DELETE, PATCH"}
	}
	if in.Headers != "" {
		if _, err := ParseHeaders(in.Headers); err != nil {
			return &ConfigError{Field: "headers", Reason: err.Error()}
		}
	}
	if in.Body != "" && !json.Valid([]byte(in.Body)) {
		return &ConfigError{Field: "body", Reason: "must be valid JSON"}
	}
	return nil
}

// IsValidHTTPURL accepts absolute http and https URLs with a host.
func IsValidHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	s := strings.ToLower(u.Scheme)
	if s != "http" && s != "https" {
		return false
	}
	return u.Host != "" && u.Hostname() != ""
}

// ParseHeaders decodes stored header JSON into a string map.
// Non-string values are rejected.
func ParseHeaders(raw string) (map[string]string, error) {
	out := map[string]string{}
	if strings.TrimSpace(raw) == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}
