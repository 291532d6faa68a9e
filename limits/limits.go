// Package limits mitigates oversized tool responses: merely-large payloads
// are trimmed, extreme ones are replaced with a summary, and every response
// is annotated with a _meta object describing what happened.
package limits

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/effective-security/toolgate/pkg/metricskey"
	"github.com/effective-security/x/slices"
	"github.com/tidwall/sjson"
)

const (
	// TrimThreshold is the size below which responses pass through unchanged.
	TrimThreshold = 500_000
	// SummaryThreshold is the size above which a summary replaces the
	// response instead of plain trimming.
	SummaryThreshold = 2_000_000
	// previewSize is the head snippet carried in a summary response.
	previewSize = 2048
)

// Result of limiting a response.
type Result struct {
	Limited      string
	WasLimited   bool
	OriginalSize int
}

// Limiter truncates or summarizes oversized tool results.
type Limiter interface {
	LimitResponse(response string) Result
	CreateSummaryResponse(response string, toolName string) string
}

type limiter struct {
	trimLimit    int
	summaryLimit int
}

// Option configures the default Limiter.
type Option func(*limiter)

// WithTrimThreshold overrides the trimming threshold.
func WithTrimThreshold(n int) Option {
	return func(l *limiter) { l.trimLimit = n }
}

// NewLimiter creates the default Limiter.
func NewLimiter(options ...Option) Limiter {
	l := &limiter{
		trimLimit:    TrimThreshold,
		summaryLimit: SummaryThreshold,
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

func (l *limiter) LimitResponse(response string) Result {
	size := len(response)
	if size <= l.trimLimit {
		return Result{Limited: response, OriginalSize: size}
	}

	head := slices.StringUpto(response, l.trimLimit)
	return Result{
		Limited:      head + fmt.Sprintf("\n... [response truncated, %d of %d bytes shown]", len(head), size),
		WasLimited:   true,
		OriginalSize: size,
	}
}

type summaryResponse struct {
	Tool         string `json:"tool"`
	Summary      string `json:"summary"`
	OriginalSize int    `json:"originalSize"`
	Preview      string `json:"preview"`
}

func (l *limiter) CreateSummaryResponse(response string, toolName string) string {
	sr := summaryResponse{
		Tool:         toolName,
		Summary:      fmt.Sprintf("the %s response exceeded %d bytes and was replaced with this summary; narrow the request or paginate to retrieve the full data", toolName, l.summaryLimit),
		OriginalSize: len(response),
		Preview:      slices.StringUpto(response, previewSize),
	}
	bs, _ := json.Marshal(sr)
	return string(bs)
}

// Meta is the response metadata attached to every tool response.
type Meta struct {
	// TokenCount approximates tokens as ceil(serializedBytes/4).
	TokenCount   int  `json:"tokenCount"`
	ResponseSize int  `json:"responseSize"`
	WasLimited   bool `json:"wasLimited"`
}

// Apply runs the limiter on a tool response and computes its Meta.
// Responses above the summary threshold are summarized rather than trimmed.
func Apply(l Limiter, toolName, response string) (string, Meta) {
	res := l.LimitResponse(response)

	out := res.Limited
	wasLimited := res.WasLimited
	if res.OriginalSize > SummaryThreshold {
		out = l.CreateSummaryResponse(response, toolName)
		wasLimited = true
		metricskey.StatsResponsesSummarized.IncrCounter(1, toolName)
	} else if wasLimited {
		metricskey.StatsResponsesLimited.IncrCounter(1, toolName)
	}

	return out, Meta{
		TokenCount:   (len(out) + 3) / 4,
		ResponseSize: len(out),
		WasLimited:   wasLimited,
	}
}

// AttachMeta shallow-merges the Meta into the response's _meta object.
// Caller-supplied _meta keys are never overwritten. Non-object responses
// are wrapped into {"content": ..., "_meta": ...}.
func AttachMeta(response string, meta Meta) string {
	var envelope map[string]json.RawMessage
	trimmed := strings.TrimSpace(response)
	if !strings.HasPrefix(trimmed, "{") || json.Unmarshal([]byte(trimmed), &envelope) != nil {
		wrapped, _ := json.Marshal(map[string]any{
			"content": response,
			"_meta":   meta,
		})
		return string(wrapped)
	}

	existing := map[string]json.RawMessage{}
	if raw, ok := envelope["_meta"]; ok {
		// a non-object _meta is replaced wholesale
		_ = json.Unmarshal(raw, &existing)
	}

	out := response
	if _, ok := existing["tokenCount"]; !ok {
		out, _ = sjson.Set(out, "_meta.tokenCount", meta.TokenCount)
	}
	if _, ok := existing["responseSize"]; !ok {
		out, _ = sjson.Set(out, "_meta.responseSize", meta.ResponseSize)
	}
	if _, ok := existing["wasLimited"]; !ok {
		out, _ = sjson.Set(out, "_meta.wasLimited", meta.WasLimited)
	}
	return out
}
