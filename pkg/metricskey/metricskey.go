package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
	StatsToolCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_succeeded",
		Help:         "stats_tool_calls_succeeded provides total tool calls succeeded",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_failed",
		Help:         "stats_tool_calls_failed provides total tool calls failed",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsRetried = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_retried",
		Help:         "stats_tool_calls_retried provides total tool call attempts retried",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsNotFound = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_not_found",
		Help:         "stats_tool_calls_not_found provides total calls to unknown tools",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsRejected = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_rejected",
		Help:         "stats_tool_calls_rejected provides total calls rejected by an open circuit breaker",
		RequiredTags: []string{"tool"},
	}

	StatsBreakerOpened = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_breaker_opened",
		Help:         "stats_breaker_opened provides total circuit breaker open transitions",
		RequiredTags: []string{"tool"},
	}

	StatsBreakerAutoReset = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_breaker_auto_reset",
		Help:         "stats_breaker_auto_reset provides total circuit breaker auto resets after cool-down",
		RequiredTags: []string{"tool"},
	}

	StatsAuthCacheHits = metrics.Describe{
		Type: metrics.TypeCounter,
		Name: "stats_auth_cache_hits",
		Help: "stats_auth_cache_hits provides total session validations served from cache",
	}

	StatsAuthCacheMisses = metrics.Describe{
		Type: metrics.TypeCounter,
		Name: "stats_auth_cache_misses",
		Help: "stats_auth_cache_misses provides total session validations requiring remote calls",
	}

	StatsAuthRefreshFailed = metrics.Describe{
		Type: metrics.TypeCounter,
		Name: "stats_auth_refresh_failed",
		Help: "stats_auth_refresh_failed provides total failed token refreshes",
	}

	StatsMemoryWarnings = metrics.Describe{
		Type: metrics.TypeCounter,
		Name: "stats_memory_warnings",
		Help: "stats_memory_warnings provides total high memory usage warnings",
	}

	StatsMemoryGCForced = metrics.Describe{
		Type: metrics.TypeCounter,
		Name: "stats_memory_gc_forced",
		Help: "stats_memory_gc_forced provides total garbage collections requested by the memory guard",
	}

	StatsMemoryAborts = metrics.Describe{
		Type: metrics.TypeCounter,
		Name: "stats_memory_aborts",
		Help: "stats_memory_aborts provides total calls aborted due to critical memory usage",
	}

	StatsResponsesLimited = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_responses_limited",
		Help:         "stats_responses_limited provides total tool responses trimmed by the limiter",
		RequiredTags: []string{"tool"},
	}

	StatsResponsesSummarized = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_responses_summarized",
		Help:         "stats_responses_summarized provides total oversized tool responses replaced with summaries",
		RequiredTags: []string{"tool"},
	}
)

// Perf
var (
	PerfToolCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_tool_call",
		Help:         "perf_tool_call provides duration of a dispatched tool call",
		RequiredTags: []string{"tool"},
	}

	PerfToolAttempt = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_tool_attempt",
		Help:         "perf_tool_attempt provides duration of a single tool call attempt",
		RequiredTags: []string{"tool"},
	}

	PerfAuthValidate = metrics.Describe{
		Type: metrics.TypeSample,
		Name: "perf_auth_validate",
		Help: "perf_auth_validate provides duration of session validation",
	}
)

// Metrics returns slice of metrics from this repo
// keep sorted by name
var Metrics = []*metrics.Describe{
	&PerfAuthValidate,
	&PerfToolAttempt,
	&PerfToolCall,
	&StatsAuthCacheHits,
	&StatsAuthCacheMisses,
	&StatsAuthRefreshFailed,
	&StatsBreakerAutoReset,
	&StatsBreakerOpened,
	&StatsMemoryAborts,
	&StatsMemoryGCForced,
	&StatsMemoryWarnings,
	&StatsResponsesLimited,
	&StatsResponsesSummarized,
	&StatsToolCallsFailed,
	&StatsToolCallsNotFound,
	&StatsToolCallsRejected,
	&StatsToolCallsRetried,
	&StatsToolCallsSucceeded,
}
