package config

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/kbukum/flowkit/logger"
)

// LoaderOption customizes Load.
type LoaderOption func(*loader)

// WithConfigFile sets the YAML file instead of searching for one. A path
// that does not exist leaves every setting to the environment.
func WithConfigFile(path string) LoaderOption {
	return func(l *loader) { l.configFile = path }
}

// WithEnvFile sets the .env file instead of searching for one.
func WithEnvFile(path string) LoaderOption {
	return func(l *loader) { l.envFile = path }
}

type loader struct {
	configFile string
	envFile    string
}

func configCandidates(service string) []string {
	return []string{
		filepath.Join("cmd", service, "config.yml"),
		filepath.Join("config", service+".yml"),
		filepath.Join("config", "config.yml"),
		"config.yml",
	}
}

func envCandidates(service string) []string {
	return []string{
		filepath.Join("cmd", service, ".env"),
		".env." + service,
		".env",
	}
}

func firstExisting(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// read fills cfg from the YAML file, the .env file and the process
// environment. Variables set in the process win over the .env file, and
// both win over the YAML file.
func (l *loader) read(service string, cfg *Config) error {
	log := logger.Get("config")

	configFile := l.configFile
	if configFile == "" {
		configFile = firstExisting(configCandidates(service))
	}
	envFile := l.envFile
	if envFile == "" {
		envFile = firstExisting(envCandidates(service))
	}

	v := viper.New()
	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			v.SetConfigFile(configFile)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to read config file %s: %w", configFile, err)
			}
		} else {
			configFile = ""
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !stderrors.Is(err, fs.ErrNotExist) {
				log.Warn("failed to load env file", logger.Fields("file", envFile, logger.FieldError, err.Error()))
			}
			envFile = ""
		}
	}
	bindEnv(v, reflect.TypeOf(*cfg), "")

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config for %s: %w", service, err)
	}

	log.Debug("configuration loaded", logger.Fields(
		"service", service,
		"config_file", configFile,
		"env_file", envFile,
	))
	return nil
}

// bindEnv binds every fixed key under t to an environment variable. The
// name comes from the env tag, or else the key upper-cased with dots as
// underscores, so TRACING_SAMPLE_RATE sets tracing.sample_rate. Map
// sections such as stages have no fixed keys and are read from the file.
func bindEnv(v *viper.Viper, t reflect.Type, prefix string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if !f.IsExported() || name == "" || name == "-" {
			continue
		}
		key := prefix + name

		switch f.Type.Kind() {
		case reflect.Struct:
			bindEnv(v, f.Type, key+".")
		case reflect.Map, reflect.Slice, reflect.Func, reflect.Pointer:
		default:
			env := f.Tag.Get("env")
			if env == "" {
				env = strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
			}
			_ = v.BindEnv(key, env)
		}
	}
}
