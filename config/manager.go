package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"
)

// ConfigManager loads configuration sections by name and reloads them when
// their backing file changes on disk.
type ConfigManager interface {
	LoadConfig(configName string, config Config) error
	LoadConfigOrDefault(configName string, config Config) error
	GetConfig(configName string) (Config, error)
	RegisterValidator(configName string, validator ValidatorFunc)
	RegisterHook(configName string, hook HookFunc)
	AddChangeListener(listener ConfigChangeListener)
	SetBasePath(path string)
	SetEnvironment(env string)
	Close() error
}

// ValidatorFunc configuration validation function
type ValidatorFunc func(Config) error

// HookFunc configuration change hook function
type HookFunc func(oldVal, newVal Config) error

// ErrConfigNotFound is returned by GetConfig for a section that was never loaded.
var ErrConfigNotFound = errors.New("config not found")

type configManager struct {
	mu         sync.RWMutex
	configs    map[string]Config
	watchers   map[string]*fsnotify.Watcher
	validators map[string]ValidatorFunc
	hooks      map[string][]HookFunc
	listeners  []ConfigChangeListener
	basePath   string
	env        string
}

// NewConfigManager creates a manager reading from ./configs in the development environment.
func NewConfigManager() ConfigManager {
	return &configManager{
		configs:    make(map[string]Config),
		watchers:   make(map[string]*fsnotify.Watcher),
		validators: make(map[string]ValidatorFunc),
		hooks:      make(map[string][]HookFunc),
		basePath:   "./configs",
		env:        "development",
	}
}

// newViper builds a viper instance for one section. Keys can be overridden by
// environment variables named <SECTION>_<KEY>, e.g. SERVER_LISTENADDR.
func (cm *configManager) newViper(configName string) *viper.Viper {
	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)
	v.AddConfigPath(fmt.Sprintf("%s/%s", cm.basePath, cm.env))

	v.AutomaticEnv()
	v.SetEnvPrefix(strings.ToUpper(configName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

// LoadConfig reads <basePath>/<configName>.yaml into config, validates it and
// starts watching the file.
func (cm *configManager) LoadConfig(configName string, config Config) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	v := cm.newViper(configName)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", configName, err)
	}

	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("unmarshal config %s: %w", configName, err)
	}

	if err := cm.validate(configName, config); err != nil {
		return fmt.Errorf("validate config %s: %w", configName, err)
	}

	cm.configs[configName] = config

	if err := cm.watchConfigFile(configName, v); err != nil {
		return fmt.Errorf("watch config %s: %w", configName, err)
	}

	return nil
}

// LoadConfigOrDefault is LoadConfig for optional sections. Without a file,
// config keeps the values it already holds and is validated as is.
func (cm *configManager) LoadConfigOrDefault(configName string, config Config) error {
	err := cm.LoadConfig(configName, config)
	var notFound viper.ConfigFileNotFoundError
	if !errors.As(err, &notFound) {
		return err
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()
	if err := cm.validate(configName, config); err != nil {
		return fmt.Errorf("validate default config %s: %w", configName, err)
	}
	cm.configs[configName] = config
	return nil
}

func (cm *configManager) validate(configName string, config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	if validator, exists := cm.validators[configName]; exists {
		return validator(config)
	}
	return nil
}

// GetConfig returns a previously loaded section.
func (cm *configManager) GetConfig(configName string) (Config, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	config, exists := cm.configs[configName]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configName)
	}
	return config, nil
}

// RegisterValidator registers configuration validator
func (cm *configManager) RegisterValidator(configName string, validator ValidatorFunc) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.validators[configName] = validator
}

// RegisterHook registers configuration change hook
func (cm *configManager) RegisterHook(configName string, hook HookFunc) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.hooks[configName] = append(cm.hooks[configName], hook)
}

// AddChangeListener subscribes listener to reloads of listener.GetConfigName().
func (cm *configManager) AddChangeListener(listener ConfigChangeListener) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.listeners = append(cm.listeners, listener)
}

// SetBasePath sets base path for configuration files
func (cm *configManager) SetBasePath(path string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.basePath = path
}

// SetEnvironment sets environment for configuration
func (cm *configManager) SetEnvironment(env string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.env = env
}

func (cm *configManager) watchConfigFile(configName string, v *viper.Viper) error {
	configFile := v.ConfigFileUsed()
	if configFile == "" {
		return nil
	}
	if _, watching := cm.watchers[configName]; watching {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	cm.watchers[configName] = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Write == fsnotify.Write {
					if err := cm.reloadConfig(configName); err != nil {
						fmt.Printf("config reload %s: %v\n", configName, err)
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				fmt.Printf("config watcher error: %v\n", err)
			}
		}
	}()

	return watcher.Add(configFile)
}

// reloadConfig re-reads a section. On any failure the previous value stays in place.
func (cm *configManager) reloadConfig(configName string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	oldConfig, exists := cm.configs[configName]
	if !exists {
		return nil
	}

	// start from the current values so keys missing from the file keep them
	fresh := reflect.New(reflect.TypeOf(oldConfig).Elem())
	fresh.Elem().Set(reflect.ValueOf(oldConfig).Elem())
	newConfig := fresh.Interface().(Config)

	v := cm.newViper(configName)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read: %w", err)
	}
	if err := v.Unmarshal(newConfig); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if err := cm.validate(configName, newConfig); err != nil {
		return fmt.Errorf("validate: %w", err)
	}

	for _, hook := range cm.hooks[configName] {
		if err := hook(oldConfig, newConfig); err != nil {
			return fmt.Errorf("hook: %w", err)
		}
	}

	cm.configs[configName] = newConfig

	for _, l := range cm.listeners {
		if l.GetConfigName() != configName {
			continue
		}
		if err := l.OnConfigChanged(configName, newConfig, oldConfig); err != nil {
			fmt.Printf("config listener %s: %v\n", configName, err)
		}
	}
	return nil
}

// Close stops every file watcher.
func (cm *configManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	var result *multierror.Error
	for name, watcher := range cm.watchers {
		if err := watcher.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close watcher %s: %w", name, err))
		}
		delete(cm.watchers, name)
	}
	return result.ErrorOrNil()
}
