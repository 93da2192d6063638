// Package config resolves the runtime environment of the extract-load
// orchestrator: the active deployment environment, derived database names,
// and the deployment parameters shared with the provisioning stack.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// TimestampFormat is the canonical wire format of timestamps
// (options.start/end, watermarks, load_date).
const TimestampFormat = "2006-01-02T15:04:05"

// DateFormat is the format of date-only bounds and batch dates.
const DateFormat = "2006-01-02"

// DefaultTimezone applies when a table declares no zone of its own.
const DefaultTimezone = "Europe/Berlin"

// Env selects the deployment environment.
type Env string

const (
	EnvDev  Env = "dev"
	EnvProd Env = "prod"
)

// ParseEnv validates an environment name.
func ParseEnv(s string) (Env, error) {
	switch Env(s) {
	case EnvDev, EnvProd:
		return Env(s), nil
	}
	return "", fmt.Errorf("unknown environment %q (expected dev or prod)", s)
}

// ActiveEnv returns the environment selected by APP_ENV, defaulting to dev.
func ActiveEnv() Env {
	if env, err := ParseEnv(os.Getenv("APP_ENV")); err == nil {
		return env
	}
	return EnvDev
}

// SetEnv selects the active environment for this process and its children.
func SetEnv(env Env) { os.Setenv("APP_ENV", string(env)) }

// DatabaseName derives the warehouse database of the active environment.
func DatabaseName() string {
	if ActiveEnv() == EnvProd {
		if name := os.Getenv("DATABASE_NAME_PROD"); name != "" {
			return name
		}
		return "sources"
	}
	if name := os.Getenv("DATABASE_NAME_DEV"); name != "" {
		return name
	}
	return "sources_dev"
}

// StageLocation is the schema-qualified name of the warehouse external
// stage, without the database prefix.
func StageLocation() string {
	if loc := os.Getenv("DATABASE_STAGE"); loc != "" {
		return loc
	}
	return "public.stage"
}

// TablesPath locates the catalog document.
func TablesPath() string {
	if path := os.Getenv("TABLES_YAML_PATH"); path != "" {
		return path
	}
	return "/var/task/tables.yaml"
}

// LambdaTimeoutMillis is the total task budget used for progress reporting.
func LambdaTimeoutMillis() int64 {
	if raw := os.Getenv("AWS_LAMBDA_TIMEOUT"); raw != "" {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return ms
		}
	}
	return 900_000
}

// Parameters are the deployment parameters of the active environment,
// read from the provisioning (SAM) config document. Resource names are
// derived as "<stem>-<env>".
type Parameters map[string]string

type samConfig map[string]struct {
	Deploy struct {
		Parameters struct {
			Profile            string   `yaml:"profile"`
			ParameterOverrides []string `yaml:"parameter_overrides"`
		} `yaml:"parameters"`
	} `yaml:"deploy"`
}

// LoadParameters reads deployment parameters for the active environment.
// An empty path falls back to SAM_CONFIG_FILE, then /var/task/samconfig.yaml.
func LoadParameters(path string) (Parameters, error) {
	if path == "" {
		path = os.Getenv("SAM_CONFIG_FILE")
	}
	if path == "" {
		path = "/var/task/samconfig.yaml"
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading parameters %q: %w", path, err)
	}
	var parsed samConfig
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parsing parameters %q: %w", path, err)
	}
	section, ok := parsed[string(ActiveEnv())]
	if !ok {
		return nil, fmt.Errorf("parameters %q have no %s section", path, ActiveEnv())
	}

	var params = Parameters{"profile": section.Deploy.Parameters.Profile}
	for _, override := range section.Deploy.Parameters.ParameterOverrides {
		var key, value, found = strings.Cut(override, "=")
		if !found {
			return nil, fmt.Errorf("malformed parameter override %q in %q", override, path)
		}
		params[key] = value
	}
	log.WithFields(log.Fields{"path": path, "env": ActiveEnv()}).Debug("loaded deployment parameters")
	return params, nil
}

// Get returns a parameter or its default.
func (p Parameters) Get(key, fallback string) string {
	if v, ok := p[key]; ok && v != "" {
		return v
	}
	return fallback
}

// ResourceName joins a parameter stem with the active environment.
func (p Parameters) ResourceName(stemKey, fallbackStem string) string {
	return fmt.Sprintf("%s-%s", p.Get(stemKey, fallbackStem), ActiveEnv())
}
