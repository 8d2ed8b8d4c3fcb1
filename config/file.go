package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tesseradata/tessera/schema"
)

type ttlKind int

const (
	ttlUnset ttlKind = iota
	ttlExplicit
	ttlOff
	ttlDefault
)

// TTLSetting encapsulates the cache duration allowing duration strings,
// integer seconds, and the symbolic values "default" and "off".
type TTLSetting struct {
	kind  ttlKind
	value time.Duration
}

// UnmarshalYAML supports "5m"-style durations, integer seconds, "default",
// and "off".
func (s *TTLSetting) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = TTLSetting{kind: ttlUnset, value: 0}
		return nil
	}

	text := strings.TrimSpace(node.Value)
	if text == "" {
		s.kind = ttlUnset
		s.value = 0
		return nil
	}

	switch strings.ToLower(text) {
	case "default":
		s.kind = ttlDefault
		s.value = 0
		return nil
	case "off", "none":
		s.kind = ttlOff
		s.value = 0
		return nil
	}

	if dur, err := time.ParseDuration(text); err == nil {
		if dur < 0 {
			return fmt.Errorf("cache duration: must be >= 0")
		}
		s.kind = ttlExplicit
		s.value = dur
		return nil
	}
	if secs, err := strconv.Atoi(text); err == nil {
		if secs < 0 {
			return fmt.Errorf("cache duration: must be >= 0")
		}
		s.kind = ttlExplicit
		s.value = time.Duration(secs) * time.Second
		return nil
	}
	return fmt.Errorf("cache duration: invalid value %q", node.Value)
}

// resolve returns the effective duration and whether caching stays enabled.
func (s TTLSetting) resolve() (time.Duration, bool) {
	switch s.kind {
	case ttlExplicit:
		return s.value, true
	case ttlOff:
		return 0, false
	case ttlDefault, ttlUnset:
		return DefaultCacheDuration, true
	default:
		return DefaultCacheDuration, true
	}
}

// ColumnFile describes one column in a YAML config.
type ColumnFile struct {
	Field string `yaml:"field"`
	Title string `yaml:"title"`
	Type  string `yaml:"type"`
}

// CacheFile describes the cache block in a YAML config.
type CacheFile struct {
	Enabled  *bool      `yaml:"enabled"`
	Duration TTLSetting `yaml:"duration"`
	Capacity int        `yaml:"capacity"`
}

// File is the YAML-facing mirror of Config. Inline data rows select the
// local backend; a url selects OData.
type File struct {
	Kind         string            `yaml:"kind"`
	URL          string            `yaml:"url"`
	Headers      map[string]string `yaml:"headers"`
	Timeout      string            `yaml:"timeout"`
	RateLimit    float64           `yaml:"rateLimit"`
	RateBurst    int               `yaml:"rateBurst"`
	Key          string            `yaml:"key"`
	SearchFields []string          `yaml:"searchFields"`
	Columns      []ColumnFile      `yaml:"columns"`
	Cache        CacheFile         `yaml:"cache"`
	Data         []map[string]any  `yaml:"data"`
	Language     string            `yaml:"language"`
}

// LoadFile reads, validates, and converts a YAML data-source configuration.
func LoadFile(path string) (Config, error) {
	reader, closer, err := openConfigFile(path)
	if err != nil {
		return Config{}, err
	}
	defer closer()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg, err := file.toConfig()
	if err != nil {
		return Config{}, err
	}
	if verr := cfg.Validate(); verr != nil {
		return Config{}, verr
	}
	return cfg, nil
}

func (f File) toConfig() (Config, error) {
	cfg := Default()

	kind := Kind(strings.ToLower(strings.TrimSpace(f.Kind)))
	if kind != "" && !kind.Valid() {
		return Config{}, fmt.Errorf("kind: must be one of local, odata, custom")
	}
	cfg.Kind = kind

	cfg.Remote.URL = strings.TrimSpace(f.URL)
	if len(f.Headers) > 0 {
		cfg.Remote.Headers = make(map[string]string, len(f.Headers))
		for k, v := range f.Headers {
			cfg.Remote.Headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	if t := strings.TrimSpace(f.Timeout); t != "" {
		dur, err := time.ParseDuration(t)
		if err != nil {
			return Config{}, fmt.Errorf("timeout: %w", err)
		}
		if dur <= 0 {
			return Config{}, fmt.Errorf("timeout: must be > 0")
		}
		cfg.Remote.Timeout = dur
	}
	if f.RateLimit < 0 {
		return Config{}, fmt.Errorf("rateLimit: must be >= 0")
	}
	cfg.Remote.RateLimit = f.RateLimit
	cfg.Remote.RateBurst = f.RateBurst

	cfg.Key = strings.TrimSpace(f.Key)
	cfg.SearchFields = trimFields(f.SearchFields)
	cfg.Language = strings.TrimSpace(f.Language)

	if len(f.Columns) > 0 {
		columns := make([]schema.Column, 0, len(f.Columns))
		for _, col := range f.Columns {
			colType, err := parseColumnType(col.Type)
			if err != nil {
				return Config{}, err
			}
			field := strings.TrimSpace(col.Field)
			if field == "" {
				return Config{}, fmt.Errorf("columns: field name required")
			}
			columns = append(columns, schema.Column{
				Field: field,
				Title: strings.TrimSpace(col.Title),
				Type:  colType,
			})
		}
		cfg.Columns = func() []schema.Column { return columns }
	}

	duration, enabled := f.Cache.Duration.resolve()
	cfg.Cache.Duration = duration
	cfg.Cache.Enabled = enabled
	if f.Cache.Enabled != nil {
		cfg.Cache.Enabled = *f.Cache.Enabled
	}
	if f.Cache.Capacity < 0 {
		return Config{}, fmt.Errorf("cache capacity: must be >= 0")
	}
	cfg.Cache.Capacity = f.Cache.Capacity

	if len(f.Data) > 0 {
		rows := make([]schema.Row, len(f.Data))
		for i, raw := range f.Data {
			rows[i] = schema.Row(raw)
		}
		cfg.Local.Data = rows
		if cfg.Kind == "" {
			cfg.Kind = KindLocal
		}
	}

	return cfg, nil
}

func parseColumnType(raw string) (schema.Type, error) {
	switch schema.Type(strings.ToLower(strings.TrimSpace(raw))) {
	case schema.TypeAuto:
		return schema.TypeAuto, nil
	case schema.TypeString:
		return schema.TypeString, nil
	case schema.TypeNumber:
		return schema.TypeNumber, nil
	case schema.TypeDate:
		return schema.TypeDate, nil
	case schema.TypeDateTime:
		return schema.TypeDateTime, nil
	case schema.TypeBool:
		return schema.TypeBool, nil
	case schema.TypeObject:
		return schema.TypeObject, nil
	default:
		return schema.TypeAuto, fmt.Errorf("columns: unknown type %q", raw)
	}
}

func trimFields(fields []string) []string {
	if len(fields) == 0 {
		return nil
	}
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if trimmed := strings.TrimSpace(f); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func openConfigFile(path string) (io.Reader, func(), error) {
	candidate := strings.TrimSpace(path)
	candidate = filepath.Clean(candidate)

	file, err := os.Open(candidate) // #nosec G304 -- path is operator controlled.
	if err != nil {
		return nil, nil, fmt.Errorf("open data source config: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}
