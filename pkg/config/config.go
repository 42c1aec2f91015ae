package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

const defaultEnvFile = ".env"

var (
	mu          sync.Mutex
	envFilePath string
	resolved    bool
	exported    = map[string]bool{}
)

// SetEnvFile selects the env file explicitly, for callers that parse their own flags
// (the cobra CLI). The standard flag set is then left untouched.
func SetEnvFile(path string) {
	mu.Lock()
	defer mu.Unlock()
	envFilePath = strings.TrimSpace(path)
	resolved = true
}

func MustNew[T any](prefix string) *T {
	conf, err := New[T](prefix)
	if err != nil {
		panic(err)
	}
	return conf
}

// New exports the env file (once per path) and processes T with envconfig under prefix.
// Variables already present in the process environment win over the file.
func New[T any](prefix string) (*T, error) {
	path, explicit := resolveEnvPath()
	if err := exportOnce(path, explicit); err != nil {
		return nil, err
	}

	var conf T
	if err := envconfig.Process(prefix, &conf); err != nil {
		return nil, err
	}
	return &conf, nil
}

func resolveEnvPath() (string, bool) {
	mu.Lock()
	defer mu.Unlock()
	if !resolved {
		if f := flag.Lookup("env"); f != nil {
			envFilePath = strings.TrimSpace(f.Value.String())
		} else {
			fs := flag.NewFlagSet("config", flag.ContinueOnError)
			fs.SetOutput(io.Discard)
			p := fs.String("env", "", "path to .env file")
			// Unknown flags belong to the caller; only --env is of interest here.
			for i, arg := range os.Args[1:] {
				if arg == "--env" || arg == "-env" || strings.HasPrefix(arg, "--env=") || strings.HasPrefix(arg, "-env=") {
					_ = fs.Parse(os.Args[1+i : min(len(os.Args), 3+i)])
					break
				}
			}
			envFilePath = strings.TrimSpace(*p)
		}
		resolved = true
	}
	if envFilePath != "" {
		return envFilePath, true
	}
	return defaultEnvFile, false
}

func exportOnce(path string, explicit bool) error {
	mu.Lock()
	defer mu.Unlock()
	if exported[path] {
		return nil
	}

	info, err := os.Stat(path)
	switch {
	case err == nil && info.IsDir():
		return fmt.Errorf("env file %s is a directory", path)
	case errors.Is(err, os.ErrNotExist) && !explicit:
		exported[path] = true
		return nil
	case err != nil:
		return fmt.Errorf("failed to load env file: %w", err)
	}

	if err := exportEnvironment(path); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	exported[path] = true
	return nil
}

func exportEnvironment(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return err
	}

	for k, val := range v.AllSettings() {
		key := strings.ToUpper(k)
		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, fmt.Sprint(val)); err != nil {
			return err
		}
	}
	return nil
}
