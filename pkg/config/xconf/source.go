package xconf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	delim     = "."
	structTag = "koanf"
)

// source 持有配置快照与覆盖值。读取走原子指针，写入由 mu 串行化。
type source struct {
	path   string
	format Format

	snapshot atomic.Pointer[koanf.Koanf]

	mu        sync.Mutex
	overrides map[string]any
	order     []string
}

// New 读取配置文件，格式由扩展名决定（.yaml、.yml、.json）。
func New(path string) (Config, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	format, err := formatOf(path)
	if err != nil {
		return nil, err
	}
	s := &source{path: path, format: format, overrides: map[string]any{}}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewFromBytes 从内存数据创建配置，data 为空时得到空配置。
func NewFromBytes(data []byte, format Format) (Config, error) {
	parser, err := parserFor(format)
	if err != nil {
		return nil, err
	}
	k, err := parse(data, parser)
	if err != nil {
		return nil, err
	}
	s := &source{format: format, overrides: map[string]any{}}
	s.snapshot.Store(k)
	return s, nil
}

func (s *source) Client() *koanf.Koanf {
	return s.snapshot.Load()
}

func (s *source) Unmarshal(path string, target any) error {
	err := s.Client().UnmarshalWithConf(path, target, koanf.UnmarshalConf{Tag: structTag})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnmarshalFailed, err)
	}
	return nil
}

func (s *source) Override(key string, value any) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyKey
	}
	if str, ok := value.(string); ok && str == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// 在副本上修改，持有旧快照的读者不受影响
	next := s.Client().Copy()
	if err := next.Set(key, value); err != nil {
		return fmt.Errorf("xconf: override %s: %w", key, err)
	}
	if _, seen := s.overrides[key]; !seen {
		s.order = append(s.order, key)
	}
	s.overrides[key] = value
	s.snapshot.Store(next)
	return nil
}

func (s *source) Reload() error {
	if s.path == "" {
		return ErrNotReloadable
	}
	parser, err := parserFor(s.format)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(filepath.Clean(s.path))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	next, err := parse(data, parser)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range s.order {
		if err := next.Set(key, s.overrides[key]); err != nil {
			return fmt.Errorf("xconf: override %s: %w", key, err)
		}
	}
	s.snapshot.Store(next)
	return nil
}

func (s *source) Path() string { return s.path }

func (s *source) Format() Format { return s.format }

func formatOf(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: extension %q", ErrUnsupportedFormat, ext)
	}
}

func parserFor(format Format) (koanf.Parser, error) {
	switch format {
	case FormatYAML:
		return yaml.Parser(), nil
	case FormatJSON:
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func parse(data []byte, parser koanf.Parser) (*koanf.Koanf, error) {
	k := koanf.New(delim)
	if len(data) == 0 {
		return k, nil
	}
	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseFailed, err)
	}
	return k, nil
}
