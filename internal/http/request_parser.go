package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cassa/internal/core"
)

const maxBodyBytes = 1 << 20

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month int
}

// ParseMonthParams reads year and month from query parameters, defaulting
// each to now's. Present but malformed values are a validation error.
func ParseMonthParams(query url.Values, now time.Time) (MonthParams, error) {
	params := MonthParams{Year: now.Year(), Month: int(now.Month())}

	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1 || y > 9999 {
			return params, fmt.Errorf("%w: invalid year %q", core.ErrValidation, v)
		}
		params.Year = y
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			return params, core.ErrInvalidMonth
		}
		params.Month = m
	}
	return params, nil
}

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads at most 1 MiB of the request body once.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if p.body[0] == '{' || strings.Contains(p.contentType, "application/json") {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// Has reports whether key was sent at all, even empty.
func (p *RequestBodyParser) Has(key string) bool {
	if p.jsonData != nil {
		_, ok := p.jsonData[key]
		return ok
	}
	_, ok := p.formData[key]
	return ok
}

// Required returns the value of key or a validation error when it is blank.
func (p *RequestBodyParser) Required(key string) (string, error) {
	v := p.Get(key)
	if v == "" {
		return "", fmt.Errorf("%w: %s is required", core.ErrValidation, key)
	}
	return v, nil
}

// Optional returns nil for a blank value.
func (p *RequestBodyParser) Optional(key string) *string {
	v := p.Get(key)
	if v == "" {
		return nil
	}
	return &v
}

// Amount parses key as a positive money amount.
func (p *RequestBodyParser) Amount(key string) (decimal.Decimal, error) {
	v, err := p.Required(key)
	if err != nil {
		return decimal.Zero, err
	}
	return core.ParseAmount(v)
}

// Date parses key as YYYY-MM-DD, returning def when blank.
func (p *RequestBodyParser) Date(key string, def core.Date) (core.Date, error) {
	v := p.Get(key)
	if v == "" {
		return def, nil
	}
	return core.ParseDate(v)
}

// OptionalDate parses key as YYYY-MM-DD; blank yields nil.
func (p *RequestBodyParser) OptionalDate(key string) (*core.Date, error) {
	v := p.Get(key)
	if v == "" {
		return nil, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Int parses key as an integer, returning def when blank.
func (p *RequestBodyParser) Int(key string, def int) (int, error) {
	v := p.Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a whole number", core.ErrValidation, key)
	}
	return n, nil
}

// Bool reads checkbox-style values: "on", "true", "1" and "yes" are true.
func (p *RequestBodyParser) Bool(key string, def bool) bool {
	if !p.Has(key) {
		return def
	}
	switch strings.ToLower(p.Get(key)) {
	case "on", "true", "1", "yes":
		return true
	default:
		return false
	}
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// sanitizeInput drops control characters other than tab and newlines and
// trims whitespace.
func sanitizeInput(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s))
}
