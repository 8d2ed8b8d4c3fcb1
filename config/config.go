// Package config centralises data-source configuration: backend selection,
// cache policy, hooks, and column metadata.
package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tesseradata/tessera/errs"
	"github.com/tesseradata/tessera/query"
	"github.com/tesseradata/tessera/schema"
	"github.com/tesseradata/tessera/store"
)

// Kind names a backend variant. The set is closed; dispatch over it is
// exhaustive.
type Kind string

const (
	// KindLocal serves rows from an in-memory array.
	KindLocal Kind = "local"
	// KindOData serves rows from an OData v4 endpoint.
	KindOData Kind = "odata"
	// KindCustom delegates to a user-supplied store.
	KindCustom Kind = "custom"
)

// Valid reports whether the kind belongs to the closed set.
func (k Kind) Valid() bool {
	switch k {
	case KindLocal, KindOData, KindCustom:
		return true
	default:
		return false
	}
}

const (
	// DefaultTimeout bounds remote requests that carry no explicit deadline.
	DefaultTimeout = 30 * time.Second
	// DefaultCacheDuration is the result-cache TTL when caching is enabled
	// without an explicit duration.
	DefaultCacheDuration = 5 * time.Minute
)

// LocalSettings configures the in-memory backend.
type LocalSettings struct {
	Data []schema.Row
}

// RemoteSettings configures the OData backend.
type RemoteSettings struct {
	URL       string
	Headers   map[string]string
	Timeout   time.Duration
	RateLimit float64
	RateBurst int
}

// CustomSettings configures the delegating backend.
type CustomSettings struct {
	Store store.Store
}

// CacheSettings controls the result cache.
type CacheSettings struct {
	Enabled  bool
	Duration time.Duration
	Capacity int
	// KeyFunc overrides the canonical query fingerprint used as cache key.
	KeyFunc func(query.LoadOptions) string
}

// Hooks are the caller's interception points around a load. Each hook may be
// nil. OnBeforeLoad returns the options to dispatch; OnAfterLoad returns the
// result to hand back (and cache); TransformResponse rewrites raw backend
// rows before any other processing; OnLoadError observes classified failures.
type Hooks struct {
	OnBeforeLoad      func(query.LoadOptions) query.LoadOptions
	OnAfterLoad       func(query.Result) query.Result
	OnLoadError       func(*errs.E)
	TransformResponse func([]schema.Row) []schema.Row
}

// Config is the static description of one data source.
type Config struct {
	Kind         Kind
	Local        LocalSettings
	Remote       RemoteSettings
	Custom       CustomSettings
	Key          string
	SearchFields []string
	Columns      schema.Provider
	Cache        CacheSettings
	Hooks        Hooks
	Language     string
}

// Default returns the baseline configuration: caching on with the default
// TTL, default request timeout, no backend selected.
func Default() Config {
	return Config{
		Kind:  "",
		Local: LocalSettings{Data: nil},
		Remote: RemoteSettings{
			URL:       "",
			Headers:   nil,
			Timeout:   DefaultTimeout,
			RateLimit: 0,
			RateBurst: 0,
		},
		Custom:       CustomSettings{Store: nil},
		Key:          "",
		SearchFields: nil,
		Columns:      nil,
		Cache: CacheSettings{
			Enabled:  true,
			Duration: DefaultCacheDuration,
			Capacity: 0,
			KeyFunc:  nil,
		},
		Hooks:    Hooks{OnBeforeLoad: nil, OnAfterLoad: nil, OnLoadError: nil, TransformResponse: nil},
		Language: "",
	}
}

// FromEnv loads configuration overrides from environment variables on top of
// the defaults.
func FromEnv() Config {
	cfg := Default()
	if v := strings.TrimSpace(os.Getenv("TESSERA_ODATA_URL")); v != "" {
		cfg.Remote.URL = v
		cfg.Kind = KindOData
	}
	if v := strings.TrimSpace(os.Getenv("TESSERA_ODATA_TIMEOUT")); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			cfg.Remote.Timeout = dur
		}
	}
	if v := strings.TrimSpace(os.Getenv("TESSERA_ODATA_RATE_LIMIT")); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil && rate > 0 {
			cfg.Remote.RateLimit = rate
		}
	}
	if v := strings.TrimSpace(os.Getenv("TESSERA_CACHE_ENABLED")); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Cache.Enabled = enabled
		}
	}
	if v := strings.TrimSpace(os.Getenv("TESSERA_CACHE_TTL")); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			cfg.Cache.Duration = dur
		}
	}
	if v := strings.TrimSpace(os.Getenv("TESSERA_KEY_FIELD")); v != "" {
		cfg.Key = v
	}
	return cfg
}

// Option mutates a Config when applied via Apply.
type Option func(*Config)

// Apply applies the provided Option set to a copy of the base Config.
func Apply(base Config, opts ...Option) Config {
	cfg := base.clone()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithData selects the local backend over the given rows.
func WithData(rows []schema.Row) Option {
	return func(c *Config) {
		c.Kind = KindLocal
		c.Local.Data = rows
	}
}

// WithODataURL selects the OData backend at the given service URL.
func WithODataURL(rawURL string) Option {
	trimmed := strings.TrimSpace(rawURL)
	return func(c *Config) {
		c.Kind = KindOData
		c.Remote.URL = trimmed
	}
}

// WithHeaders merges request headers for the remote backend.
func WithHeaders(headers map[string]string) Option {
	return func(c *Config) {
		if len(headers) == 0 {
			return
		}
		if c.Remote.Headers == nil {
			c.Remote.Headers = make(map[string]string, len(headers))
		}
		for k, v := range headers {
			key := strings.TrimSpace(k)
			if key == "" {
				continue
			}
			c.Remote.Headers[key] = strings.TrimSpace(v)
		}
	}
}

// WithTimeout overrides the remote request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.Remote.Timeout = timeout
		}
	}
}

// WithRateLimit throttles remote requests to the given rate per second.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Config) {
		if perSecond > 0 {
			c.Remote.RateLimit = perSecond
		}
		if burst > 0 {
			c.Remote.RateBurst = burst
		}
	}
}

// WithStore selects the custom backend.
func WithStore(s store.Store) Option {
	return func(c *Config) {
		c.Kind = KindCustom
		c.Custom.Store = s
	}
}

// WithKey names the field that identifies rows for mutations and ByKey.
func WithKey(field string) Option {
	trimmed := strings.TrimSpace(field)
	return func(c *Config) {
		c.Key = trimmed
	}
}

// WithColumns supplies column metadata.
func WithColumns(provider schema.Provider) Option {
	return func(c *Config) {
		c.Columns = provider
	}
}

// WithSearchFields restricts free-text search to the given fields.
func WithSearchFields(fields ...string) Option {
	return func(c *Config) {
		c.SearchFields = append([]string(nil), fields...)
	}
}

// WithCache toggles result caching and sets its TTL.
func WithCache(enabled bool, duration time.Duration) Option {
	return func(c *Config) {
		c.Cache.Enabled = enabled
		if duration > 0 {
			c.Cache.Duration = duration
		}
	}
}

// WithCacheCapacity bounds the number of cached result sets.
func WithCacheCapacity(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.Cache.Capacity = n
		}
	}
}

// WithCacheKeyFunc overrides the cache-key fingerprint.
func WithCacheKeyFunc(fn func(query.LoadOptions) string) Option {
	return func(c *Config) {
		c.Cache.KeyFunc = fn
	}
}

// WithHooks installs the load interception hooks.
func WithHooks(hooks Hooks) Option {
	return func(c *Config) {
		c.Hooks = hooks
	}
}

// WithLanguage sets the BCP 47 tag used for collated string sorting.
func WithLanguage(tag string) Option {
	trimmed := strings.TrimSpace(tag)
	return func(c *Config) {
		c.Language = trimmed
	}
}

// Resolve picks the effective backend kind. An explicit Kind must name a
// member of the closed set and be backed by its settings. When Kind is
// unset, precedence follows the legacy contract: custom store first, then
// remote URL, then static data.
func (c Config) Resolve() (Kind, *errs.E) {
	if c.Kind != "" {
		if !c.Kind.Valid() {
			return "", errs.New("config", errs.CodeConfig,
				errs.WithMessage("unrecognized data source kind"),
				errs.WithField("kind", string(c.Kind)))
		}
		switch c.Kind {
		case KindCustom:
			if c.Custom.Store == nil {
				return "", errs.New("config", errs.CodeConfig, errs.WithMessage("custom kind requires a store"))
			}
		case KindOData:
			if strings.TrimSpace(c.Remote.URL) == "" {
				return "", errs.New("config", errs.CodeConfig, errs.WithMessage("odata kind requires a url"))
			}
		case KindLocal:
		}
		return c.Kind, nil
	}

	switch {
	case c.Custom.Store != nil:
		return KindCustom, nil
	case strings.TrimSpace(c.Remote.URL) != "":
		return KindOData, nil
	case c.Local.Data != nil:
		return KindLocal, nil
	default:
		return "", errs.New("config", errs.CodeConfig, errs.WithMessage("no backend configured"))
	}
}

// Validate resolves the backend and checks the remaining invariants.
func (c Config) Validate() *errs.E {
	kind, err := c.Resolve()
	if err != nil {
		return err
	}
	if kind == KindOData {
		parsed, parseErr := url.Parse(strings.TrimSpace(c.Remote.URL))
		if parseErr != nil || parsed.Scheme == "" || parsed.Host == "" {
			return errs.New("config", errs.CodeConfig,
				errs.WithMessage("odata url must be absolute"),
				errs.WithField("url", c.Remote.URL))
		}
		if c.Remote.Timeout < 0 {
			return errs.New("config", errs.CodeConfig, errs.WithMessage("timeout must be >= 0"))
		}
	}
	if c.Cache.Enabled && c.Cache.Duration < 0 {
		return errs.New("config", errs.CodeConfig, errs.WithMessage("cache duration must be >= 0"))
	}
	if c.Columns != nil {
		accessor := schema.NewAccessor(c.Columns())
		fields := append([]string(nil), c.SearchFields...)
		if c.Key != "" {
			fields = append(fields, c.Key)
		}
		if err := accessor.Validate(fields...); err != nil {
			return errs.New("config", errs.CodeConfig,
				errs.WithMessage("column metadata rejects configured fields"),
				errs.WithCause(err))
		}
	}
	return nil
}

// Accessor builds the row accessor from the configured column provider.
func (c Config) Accessor() schema.Accessor {
	if c.Columns == nil {
		return schema.NewAccessor(nil)
	}
	return schema.NewAccessor(c.Columns())
}

func (c Config) clone() Config {
	out := c
	if c.Local.Data != nil {
		out.Local.Data = append([]schema.Row(nil), c.Local.Data...)
	}
	if c.Remote.Headers != nil {
		out.Remote.Headers = make(map[string]string, len(c.Remote.Headers))
		for k, v := range c.Remote.Headers {
			out.Remote.Headers[k] = v
		}
	}
	if c.SearchFields != nil {
		out.SearchFields = append([]string(nil), c.SearchFields...)
	}
	return out
}
