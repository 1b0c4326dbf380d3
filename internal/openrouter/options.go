package openrouter

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultBaseURL        = "https://openrouter.ai/api/v1"
	DefaultModel          = "openai/gpt-4.1-mini"
	DefaultRequestTimeout = 20 * time.Second
	DefaultRetryAttempts  = 1
	DefaultRetryBaseDelay = 300 * time.Millisecond
	DefaultRetryMaxDelay  = 2 * time.Second

	minRetryBaseDelay = 50 * time.Millisecond
)

// Environment variables consulted when an option is not given explicitly.
const (
	EnvAPIKey              = "OPENROUTER_API_KEY"
	EnvBaseURL             = "OPENROUTER_BASE_URL"
	EnvDefaultModel        = "OPENROUTER_DEFAULT_MODEL"
	EnvDefaultSystemPrompt = "OPENROUTER_DEFAULT_SYSTEM_PROMPT"
	EnvAppURL              = "OPENROUTER_APP_URL"
	EnvAppTitle            = "OPENROUTER_APP_TITLE"
	EnvRequestTimeoutMS    = "OPENROUTER_REQUEST_TIMEOUT_MS"
)

// LookupFunc reads a configuration value from the environment.
type LookupFunc func(key string) (string, bool)

// RetryPolicy controls the attempt budget and the exponential backoff between attempts.
// Zero fields take the package defaults when passed to WithRetry; use the single-field
// options to set an explicit zero.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// Option configures a Client. An applied option is explicit and wins over the
// environment even when its value is empty.
type Option func(*options)

type options struct {
	apiKey              *string
	baseURL             *string
	defaultModel        *string
	defaultSystemPrompt *string
	appURL              *string
	appTitle            *string
	requestTimeout      *time.Duration
	defaultParams       ModelParams
	retryAttempts       *int
	retryBaseDelay      *time.Duration
	retryMaxDelay       *time.Duration
	adapter             Adapter
	lookup              LookupFunc
}

func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = &key }
}

func WithBaseURL(baseURL string) Option {
	return func(o *options) { o.baseURL = &baseURL }
}

func WithDefaultModel(model string) Option {
	return func(o *options) { o.defaultModel = &model }
}

// WithDefaultSystemPrompt sets the system message injected into requests that carry none.
func WithDefaultSystemPrompt(prompt string) Option {
	return func(o *options) { o.defaultSystemPrompt = &prompt }
}

// WithDefaultModelParams sets client-level params; per-request params win field by field.
func WithDefaultModelParams(params ModelParams) Option {
	return func(o *options) { o.defaultParams = params }
}

// WithAppURL sets the HTTP-Referer header sent with every request.
func WithAppURL(appURL string) Option {
	return func(o *options) { o.appURL = &appURL }
}

// WithAppTitle sets the X-Title header sent with every request.
func WithAppTitle(title string) Option {
	return func(o *options) { o.appTitle = &title }
}

// WithRequestTimeout bounds each individual attempt. It must be positive.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(o *options) { o.requestTimeout = &timeout }
}

// WithRetry sets every non-zero field of policy.
func WithRetry(policy RetryPolicy) Option {
	return func(o *options) {
		if policy.Attempts != 0 {
			o.retryAttempts = &policy.Attempts
		}
		if policy.BaseDelay != 0 {
			o.retryBaseDelay = &policy.BaseDelay
		}
		if policy.MaxDelay != 0 {
			o.retryMaxDelay = &policy.MaxDelay
		}
	}
}

// WithRetryAttempts sets the retry budget. Values below zero are treated as zero, which
// still allows a single attempt.
func WithRetryAttempts(attempts int) Option {
	return func(o *options) { o.retryAttempts = &attempts }
}

// WithRetryBaseDelay sets the first backoff delay. It is raised to at least 50ms.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(o *options) { o.retryBaseDelay = &delay }
}

// WithRetryMaxDelay caps the backoff delay. It is raised to at least the base delay.
func WithRetryMaxDelay(delay time.Duration) Option {
	return func(o *options) { o.retryMaxDelay = &delay }
}

// WithAdapter replaces the network adapter, typically with a fake in tests.
func WithAdapter(adapter Adapter) Option {
	return func(o *options) { o.adapter = adapter }
}

// WithLookupEnv replaces os.LookupEnv as the environment source.
func WithLookupEnv(lookup LookupFunc) Option {
	return func(o *options) { o.lookup = lookup }
}

// settings is the fully resolved, read-only client configuration.
type settings struct {
	apiKey              string
	baseURL             string
	defaultModel        string
	defaultSystemPrompt string
	appURL              string
	appTitle            string
	requestTimeout      time.Duration
	defaultParams       ModelParams
	retryAttempts       int
	retryBaseDelay      time.Duration
	retryMaxDelay       time.Duration
}

// resolveSettings applies explicit option > environment > default for every field.
func resolveSettings(o options, lookup LookupFunc) (settings, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	s := settings{
		apiKey:              pick(o.apiKey, lookup, EnvAPIKey, ""),
		baseURL:             pick(o.baseURL, lookup, EnvBaseURL, DefaultBaseURL),
		defaultModel:        pick(o.defaultModel, lookup, EnvDefaultModel, DefaultModel),
		defaultSystemPrompt: pick(o.defaultSystemPrompt, lookup, EnvDefaultSystemPrompt, ""),
		appURL:              pick(o.appURL, lookup, EnvAppURL, ""),
		appTitle:            pick(o.appTitle, lookup, EnvAppTitle, ""),
		defaultParams:       o.defaultParams,
	}

	if s.apiKey == "" {
		return settings{}, newConfigError(EnvAPIKey + " is not configured")
	}
	s.baseURL = strings.TrimSuffix(s.baseURL, "/")

	switch {
	case o.requestTimeout != nil:
		if *o.requestTimeout <= 0 {
			return settings{}, newConfigError("request timeout must be positive")
		}
		s.requestTimeout = *o.requestTimeout
	default:
		s.requestTimeout = timeoutFromEnv(lookup)
	}

	s.retryAttempts = max(0, orDefault(o.retryAttempts, DefaultRetryAttempts))
	s.retryBaseDelay = max(minRetryBaseDelay, orDefault(o.retryBaseDelay, DefaultRetryBaseDelay))
	s.retryMaxDelay = max(s.retryBaseDelay, orDefault(o.retryMaxDelay, DefaultRetryMaxDelay))

	return s, nil
}

func pick(explicit *string, lookup LookupFunc, key, fallback string) string {
	if explicit != nil {
		return *explicit
	}
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func orDefault[T any](explicit *T, fallback T) T {
	if explicit != nil {
		return *explicit
	}
	return fallback
}

func timeoutFromEnv(lookup LookupFunc) time.Duration {
	raw, ok := lookup(EnvRequestTimeoutMS)
	if !ok || strings.TrimSpace(raw) == "" {
		return DefaultRequestTimeout
	}
	ms, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || !(ms > 0) || ms > float64(time.Duration(1<<62)/time.Millisecond) {
		return DefaultRequestTimeout
	}
	return time.Duration(ms * float64(time.Millisecond))
}
