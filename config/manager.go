package config

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/santif/pgbridge/observability"
)

// Manager is the interface for configuration management
type Manager interface {
	// Load loads configuration into the provided struct
	Load(dest interface{}) error

	// Validate validates the configuration struct against defined rules
	Validate(config interface{}) error

	// Watch registers a callback to be called when configuration changes
	Watch(callback func(interface{})) error

	// StartWatching starts watching for configuration changes
	StartWatching(ctx context.Context, config interface{}) error

	// StopWatching stops watching for configuration changes
	StopWatching() error
}

// ValidationError represents a validation error with detailed information
type ValidationError struct {
	Field   string
	Value   interface{}
	Tag     string
	Message string
}

// Error returns the error message
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s': %s", e.Field, e.Message)
}

// ValidationErrors is returned by Validate when one or more fields fail their rules
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	var b strings.Builder
	b.WriteString("configuration validation failed:")
	for _, e := range v {
		b.WriteString("\n  - ")
		b.WriteString(e.Error())
	}
	return b.String()
}

// DefaultManager is the default implementation of the Manager interface
type DefaultManager struct {
	sources  []Source
	validate *validator.Validate
	logger   observability.Logger
	mu       sync.RWMutex
	watchers []func(interface{})
	cancel   context.CancelFunc
	config   interface{}
}

// ManagerOption is a function that configures a DefaultManager
type ManagerOption func(*DefaultManager)

// WithSource adds a configuration source to the manager
func WithSource(source Source) ManagerOption {
	return func(m *DefaultManager) {
		m.sources = append(m.sources, source)
	}
}

// WithLogger sets the logger used to report source and reload failures
func WithLogger(logger observability.Logger) ManagerOption {
	return func(m *DefaultManager) {
		m.logger = logger
	}
}

// NewManager creates a new configuration manager with the provided options
func NewManager(opts ...ManagerOption) *DefaultManager {
	validate := validator.New()

	// Report fields by their yaml name, the name users write in files
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"yaml", "json"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return fld.Name
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})

	m := &DefaultManager{
		validate: validate,
		logger:   observability.NoOpLogger(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// AddSource adds a configuration source to the manager
func (m *DefaultManager) AddSource(source Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources = append(m.sources, source)
}

// Load merges all sources by priority on top of the values already in dest, then validates it.
// A source that fails to load is logged and skipped.
func (m *DefaultManager) Load(dest interface{}) error {
	if dest == nil {
		return fmt.Errorf("destination cannot be nil")
	}

	v := reflect.ValueOf(dest)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("destination must be a pointer to a struct")
	}

	m.mu.RLock()
	sources := make([]Source, len(m.sources))
	copy(sources, m.sources)
	m.mu.RUnlock()

	// Higher priority first; the first source to set a key wins
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].Priority() > sources[j].Priority()
	})

	merged := make(map[string]interface{})
	ctx := context.Background()
	for _, source := range sources {
		values, err := source.Load(ctx)
		if err != nil {
			m.logger.Warn("skipping configuration source", observability.NewField("source", source.Name()),
				observability.NewField("error", err.Error()))
			continue
		}

		for k, val := range values {
			if _, exists := merged[k]; !exists {
				merged[k] = val
			}
		}
	}

	if err := mergeConfig(merged, v.Elem()); err != nil {
		return fmt.Errorf("failed to merge configuration: %w", err)
	}

	return m.Validate(dest)
}

// Validate validates the configuration struct against its validate tags.
// Field failures are reported as ValidationErrors.
func (m *DefaultManager) Validate(config interface{}) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	err := m.validate.Struct(config)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return err
	}

	result := make(ValidationErrors, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		var message string
		switch fe.Tag() {
		case "required", "required_if":
			message = "this field is required"
		case "min":
			message = fmt.Sprintf("value must be greater than or equal to %s", fe.Param())
		case "max":
			message = fmt.Sprintf("value must be less than or equal to %s", fe.Param())
		case "oneof":
			message = fmt.Sprintf("value must be one of [%s]", fe.Param())
		default:
			message = fmt.Sprintf("failed validation for tag '%s'", fe.Tag())
		}

		// "Config.encoding.policy" becomes "encoding.policy"
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}

		result = append(result, ValidationError{
			Field:   field,
			Value:   fe.Value(),
			Tag:     fe.Tag(),
			Message: message,
		})
	}
	return result
}

// Watch registers a callback to be called when configuration changes
func (m *DefaultManager) Watch(callback func(interface{})) error {
	if callback == nil {
		return fmt.Errorf("callback cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchers = append(m.watchers, callback)
	return nil
}

// StartWatching reloads config whenever a watchable source changes.
// config must be the pointer previously passed to Load.
func (m *DefaultManager) StartWatching(ctx context.Context, config interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
	}

	watchCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.config = config

	for _, source := range m.sources {
		err := source.Watch(watchCtx, func() {
			if err := m.reloadConfig(); err != nil {
				m.logger.Error("failed to reload configuration", err)
			}
		})
		if err != nil {
			cancel()
			m.cancel = nil
			return fmt.Errorf("failed to watch source %s: %w", source.Name(), err)
		}
	}

	return nil
}

// StopWatching stops watching for configuration changes
func (m *DefaultManager) StopWatching() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	return nil
}

// reloadConfig loads a fresh copy seeded with the current values.
// The watched struct is only replaced when the new one validates.
func (m *DefaultManager) reloadConfig() error {
	m.mu.RLock()
	current := m.config
	m.mu.RUnlock()

	if current == nil {
		return fmt.Errorf("no configuration to reload")
	}

	currentVal := reflect.ValueOf(current)
	fresh := reflect.New(currentVal.Type().Elem())
	fresh.Elem().Set(currentVal.Elem())

	if err := m.Load(fresh.Interface()); err != nil {
		return err
	}

	currentVal.Elem().Set(fresh.Elem())
	m.notifyWatchers(current)
	return nil
}

// notifyWatchers calls every watcher in registration order
func (m *DefaultManager) notifyWatchers(config interface{}) {
	m.mu.RLock()
	watchers := make([]func(interface{}), len(m.watchers))
	copy(watchers, m.watchers)
	m.mu.RUnlock()

	for _, w := range watchers {
		w(config)
	}
}

// mergeConfig applies flat dotted keys ("encoding.policy") to the struct in dest.
// Keys that match no field are ignored.
func mergeConfig(values map[string]interface{}, dest reflect.Value) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []error
	for _, key := range keys {
		field, ok := findField(dest, strings.Split(key, "."))
		if !ok || !field.CanSet() {
			continue
		}
		// nested sections are applied through their flattened keys
		if field.Kind() == reflect.Struct && field.Type() != durationType {
			if _, isMap := values[key].(map[string]interface{}); isMap {
				continue
			}
		}
		if err := setFieldValue(field, values[key]); err != nil {
			errs = append(errs, fmt.Errorf("field %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// findField walks parts through nested structs.
// Segments are also tried joined with underscores so that "connect.timeout" reaches connect_timeout.
func findField(val reflect.Value, parts []string) (reflect.Value, bool) {
	if len(parts) == 0 {
		return val, true
	}
	if val.Kind() != reflect.Struct {
		return reflect.Value{}, false
	}

	for n := len(parts); n >= 1; n-- {
		field := findFieldByName(val, strings.Join(parts[:n], "_"))
		if !field.IsValid() {
			continue
		}
		if found, ok := findField(field, parts[n:]); ok {
			return found, true
		}
	}
	return reflect.Value{}, false
}

// findFieldByName finds a field in a struct by name, checking yaml and json tags
func findFieldByName(val reflect.Value, name string) reflect.Value {
	typ := val.Type()

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}

		if strings.EqualFold(field.Name, name) {
			return val.Field(i)
		}
		for _, tag := range []string{"yaml", "json"} {
			if strings.SplitN(field.Tag.Get(tag), ",", 2)[0] == name {
				return val.Field(i)
			}
		}
	}

	return reflect.Value{}
}

var durationType = reflect.TypeOf(time.Duration(0))

// setFieldValue sets a field value with appropriate type conversion
func setFieldValue(field reflect.Value, value interface{}) error {
	if value == nil {
		return nil
	}

	if field.Type() == durationType {
		switch v := value.(type) {
		case string:
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.SetInt(int64(d))
			return nil
		case time.Duration:
			field.SetInt(int64(v))
			return nil
		}
	}

	valueVal := reflect.ValueOf(value)

	if s, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(s)
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			i, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			u, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				return err
			}
			field.SetUint(u)
		case reflect.Float32, reflect.Float64:
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return err
			}
			field.SetFloat(f)
		case reflect.Bool:
			b, err := strconv.ParseBool(s)
			if err != nil {
				return err
			}
			field.SetBool(b)
		default:
			return fmt.Errorf("unsupported conversion from string to %s", field.Type())
		}
		return nil
	}

	if field.Kind() == reflect.String {
		field.SetString(fmt.Sprint(value))
		return nil
	}

	if valueVal.Kind() == reflect.Map && field.Kind() == reflect.Map {
		out := reflect.MakeMap(field.Type())
		iter := valueVal.MapRange()
		for iter.Next() {
			k, v := iter.Key(), iter.Value()
			if v.Kind() == reflect.Interface {
				v = v.Elem()
			}
			if !k.Type().ConvertibleTo(field.Type().Key()) || !v.Type().ConvertibleTo(field.Type().Elem()) {
				return fmt.Errorf("cannot convert map entry %v:%v to %s", k.Interface(), v.Interface(), field.Type())
			}
			out.SetMapIndex(k.Convert(field.Type().Key()), v.Convert(field.Type().Elem()))
		}
		field.Set(out)
		return nil
	}

	if valueVal.Type().AssignableTo(field.Type()) {
		field.Set(valueVal)
		return nil
	}

	if valueVal.Type().ConvertibleTo(field.Type()) {
		field.Set(valueVal.Convert(field.Type()))
		return nil
	}

	return fmt.Errorf("cannot convert %s to %s", valueVal.Type(), field.Type())
}
