package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Source is the interface for configuration sources
type Source interface {
	// Name returns the name of the source
	Name() string

	// Load returns the source's values keyed by dotted path
	Load(ctx context.Context) (map[string]interface{}, error)

	// Priority returns the priority of the source (higher values have higher priority)
	Priority() int

	// Watch starts watching for changes in the source (if supported)
	Watch(ctx context.Context, callback func()) error
}

// Standard priority levels for configuration sources
const (
	PriorityDefault = 100
	PriorityFile    = 200
	PriorityEnv     = 300
	PriorityFlag    = 400
)

// EnvPrefix is the prefix of the environment variables read by the bridge
const EnvPrefix = "PGBRIDGE_"

// EnvSource is a configuration source that loads from environment variables.
// PGBRIDGE_ENCODING_POLICY maps to the key "encoding.policy".
type EnvSource struct {
	prefix string
}

// NewEnvSource creates a new environment variable configuration source
func NewEnvSource(prefix string) *EnvSource {
	return &EnvSource{prefix: prefix}
}

func (s *EnvSource) Name() string {
	return "environment"
}

func (s *EnvSource) Load(ctx context.Context) (map[string]interface{}, error) {
	result := make(map[string]interface{})

	for _, env := range os.Environ() {
		key, value, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}

		if s.prefix != "" {
			if !strings.HasPrefix(key, s.prefix) {
				continue
			}
			key = strings.TrimPrefix(strings.TrimPrefix(key, s.prefix), "_")
		}
		if key == "" {
			continue
		}

		key = strings.ReplaceAll(strings.ToLower(key), "_", ".")
		result[key] = parseValue(value)
	}

	return result, nil
}

func (s *EnvSource) Priority() int {
	return PriorityEnv
}

// Watch is a no-op; the environment of a running process doesn't change under it
func (s *EnvSource) Watch(ctx context.Context, callback func()) error {
	return nil
}

// FileSource is a configuration source that loads a yaml, json or toml file
type FileSource struct {
	path      string
	format    string
	priority  int
	watcher   bool
	optional  bool
	mu        sync.RWMutex
	fsWatcher *fsnotify.Watcher
}

// FileSourceOption is a function that configures a FileSource
type FileSourceOption func(*FileSource)

// WithWatcher enables file watching for configuration changes
func WithWatcher(enabled bool) FileSourceOption {
	return func(s *FileSource) {
		s.watcher = enabled
	}
}

// WithPriority sets the priority of the file source
func WithPriority(priority int) FileSourceOption {
	return func(s *FileSource) {
		s.priority = priority
	}
}

// Optional makes a missing file load as empty instead of failing
func Optional() FileSourceOption {
	return func(s *FileSource) {
		s.optional = true
	}
}

// NewFileSource creates a new file configuration source.
// An empty format is inferred from the file extension.
func NewFileSource(path string, format string, opts ...FileSourceOption) *FileSource {
	if format == "" {
		format = strings.TrimPrefix(filepath.Ext(path), ".")
	}

	s := &FileSource{
		path:     path,
		format:   strings.ToLower(format),
		priority: PriorityFile,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *FileSource) Name() string {
	return fmt.Sprintf("file(%s)", s.path)
}

func (s *FileSource) Load(ctx context.Context) (map[string]interface{}, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) && s.optional {
			return map[string]interface{}{}, nil
		}
		return nil, fmt.Errorf("failed to read configuration file %s: %w", s.path, err)
	}

	parsed := make(map[string]interface{})
	switch s.format {
	case "yaml", "yml":
		err = yaml.Unmarshal(raw, &parsed)
	case "json":
		err = json.Unmarshal(raw, &parsed)
	case "toml":
		err = toml.Unmarshal(raw, &parsed)
	default:
		return nil, fmt.Errorf("unsupported configuration format: %s", s.format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s configuration file %s: %w", s.format, s.path, err)
	}

	result := make(map[string]interface{})
	flattenMap(parsed, "", result)
	return result, nil
}

// flattenMap flattens a nested map to dot notation.
// Nested maps are also kept under their own key so map-typed fields can take them whole.
func flattenMap(input map[string]interface{}, prefix string, output map[string]interface{}) {
	for k, v := range input {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}

		switch value := v.(type) {
		case map[string]interface{}:
			output[key] = value
			flattenMap(value, key, output)
		case map[interface{}]interface{}:
			strMap := make(map[string]interface{}, len(value))
			for mk, mv := range value {
				strMap[fmt.Sprint(mk)] = mv
			}
			output[key] = strMap
			flattenMap(strMap, key, output)
		default:
			output[key] = v
		}
	}
}

func (s *FileSource) Priority() int {
	return s.priority
}

// Watch calls callback after the file is written or replaced.
// The containing directory is watched so that editors that rename over the file are seen.
func (s *FileSource) Watch(ctx context.Context, callback func()) error {
	if !s.watcher {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fsWatcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	s.fsWatcher = watcher
	go s.watchLoop(ctx, watcher, callback)
	return nil
}

const watchDebounce = 100 * time.Millisecond

func (s *FileSource) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, callback func()) {
	fileName := filepath.Base(s.path)

	// Editors often emit several events per save; fire once after they settle.
	timer := time.NewTimer(watchDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != fileName {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				timer.Reset(watchDebounce)
			}
		case <-timer.C:
			callback()
		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		case <-ctx.Done():
			s.Close()
			return
		}
	}
}

// Close stops watching the file
func (s *FileSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fsWatcher == nil {
		return nil
	}
	err := s.fsWatcher.Close()
	s.fsWatcher = nil
	return err
}

// FlagSource is a configuration source that loads from command line flags.
// Only flags the user changed are reported; "--encoding-policy" maps to "encoding.policy".
type FlagSource struct {
	flagSet *pflag.FlagSet
	keys    map[string]string
	mu      sync.RWMutex
}

// FlagSourceOption is a function that configures a FlagSource
type FlagSourceOption func(*FlagSource)

// WithFlagSet sets the flag set for the flag source
func WithFlagSet(flagSet *pflag.FlagSet) FlagSourceOption {
	return func(s *FlagSource) {
		s.flagSet = flagSet
	}
}

// WithFlagKey maps a flag to an explicit configuration key
func WithFlagKey(flag, key string) FlagSourceOption {
	return func(s *FlagSource) {
		s.keys[flag] = key
	}
}

// NewFlagSource creates a new command line flag configuration source
func NewFlagSource(opts ...FlagSourceOption) *FlagSource {
	s := &FlagSource{
		flagSet: pflag.NewFlagSet("config", pflag.ContinueOnError),
		keys:    make(map[string]string),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *FlagSource) Name() string {
	return "flags"
}

func (s *FlagSource) Load(ctx context.Context) (map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]interface{})
	if s.flagSet != nil {
		// cobra parses into the command's merged flag set; only the shared *Flag sees Changed
		s.flagSet.VisitAll(func(flag *pflag.Flag) {
			if !flag.Changed {
				return
			}
			key, ok := s.keys[flag.Name]
			if !ok {
				key = strings.ReplaceAll(strings.ToLower(flag.Name), "-", ".")
			}
			result[key] = parseValue(flag.Value.String())
		})
	}

	return result, nil
}

func (s *FlagSource) Priority() int {
	return PriorityFlag
}

// Watch is a no-op; flags are fixed once parsed
func (s *FlagSource) Watch(ctx context.Context, callback func()) error {
	return nil
}

// AddToCommand reads flags from the persistent flag set of cmd
func (s *FlagSource) AddToCommand(cmd *cobra.Command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flagSet = cmd.PersistentFlags()
}

// parseValue turns a string into a bool or number when it is one entirely
func parseValue(value string) interface{} {
	if b, err := strconv.ParseBool(value); err == nil && (strings.EqualFold(value, "true") || strings.EqualFold(value, "false")) {
		return b
	}
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}
