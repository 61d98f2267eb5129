// Package config loads framework configuration from a YAML file and the
// environment, with env vars taking precedence over file values.
package config

import (
	"errors"
	"io/fs"
	"os"
	"slices"

	"github.com/spf13/viper"
)

// DbtConfig is the static part of the dbt run configuration. Trigger-time
// overrides (full refresh, warehouse selection) are layered on top per
// execution.
type DbtConfig struct {
	Bin         string `mapstructure:"bin" yaml:"bin"`
	ProfilesDir string `mapstructure:"profiles_dir" yaml:"profiles_dir"`
	// Profile is the profiles.yml entry validated against before a run.
	// Optional; validation is skipped when empty.
	Profile   string            `mapstructure:"profile" yaml:"profile"`
	Target    string            `mapstructure:"target" yaml:"target"`
	Dir       string            `mapstructure:"dir" yaml:"dir"`
	Env       map[string]string `mapstructure:"env" yaml:"env,omitempty"`
	Vars      map[string]any    `mapstructure:"vars" yaml:"vars,omitempty"`
	WarnError bool              `mapstructure:"warn_error" yaml:"warn_error"`
	Verbose   bool              `mapstructure:"verbose" yaml:"verbose"`
}

// WarehouseConfig is the warehouse control connection.
//
// WARNING: the DSN embeds credentials and should not be logged or set in
// file configuration.
type WarehouseConfig struct {
	DSN string `mapstructure:"dsn" yaml:"dsn"` // Secret: gosnowflake DSN
}

// VariablesConfig is the metadata database holding persisted variables.
//
// WARNING: the DSN embeds credentials and should not be logged or set in
// file configuration.
type VariablesConfig struct {
	DSN string `mapstructure:"dsn" yaml:"dsn"` // Secret: postgres DSN
}

// ArtifactsConfig is the object storage endpoint docs artifacts are
// published to. Publishing is disabled when the bucket is empty.
//
// WARNING: this data type contains sensitive fields and should not be logged
// or set in file configuration.
type ArtifactsConfig struct {
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"` // Secret
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"` // Secret
	Region    string `mapstructure:"region" yaml:"region"`
	UseSSL    bool   `mapstructure:"use_ssl" yaml:"use_ssl"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	Prefix    string `mapstructure:"prefix" yaml:"prefix"`
}

// Config wraps the entire configuration for the framework.
type Config struct {
	Dbt       DbtConfig       `mapstructure:"dbt" yaml:"dbt"`
	Warehouse WarehouseConfig `mapstructure:"warehouse" yaml:"warehouse"`
	Variables VariablesConfig `mapstructure:"variables" yaml:"variables"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts" yaml:"artifacts"`
}

// Load loads the config from the file path, falling back to env vars if the
// file does not exist. If the file exists, any env vars that are set override
// the values loaded from the file.
func Load(filePath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(filePath)

	if err := bindEnvs(v); err != nil {
		return nil, err
	}

	// If the config file exists, we continue to read it, otherwise we fall
	// back to using environment variables.
	if _, err := os.Stat(filePath); !errors.Is(err, fs.ErrNotExist) {
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	err := v.Unmarshal(cfg)

	return cfg, err
}

// LoadEnv loads the config from the environment variables only.
func LoadEnv() (*Config, error) {
	v := viper.New()

	if err := bindEnvs(v); err != nil {
		return nil, err
	}

	cfg := &Config{}
	err := v.Unmarshal(cfg)

	return cfg, err
}

// envBindings maps config keys to the environment variables that can provide
// their value. The first element is the preferred name; any later ones are
// legacy names kept for compatibility with existing deployments. Viper
// checks each listed variable in order and uses the first one that is set.
var envBindings = map[string][]string{
	"dbt.bin":              {"DBT_BIN"},
	"dbt.profiles_dir":     {"DBT_PROFILES_DIR"},
	"dbt.profile":          {"DBT_PROFILE"},
	"dbt.target":           {"DBT_TARGET"},
	"dbt.dir":              {"DBT_PROJECT_DIR"},
	"warehouse.dsn":        {"WAREHOUSE_DSN", "SNOWFLAKE_DSN"},
	"variables.dsn":        {"VARIABLES_DB_DSN", "METADATA_DB_DSN"},
	"artifacts.endpoint":   {"ARTIFACTS_ENDPOINT"},
	"artifacts.access_key": {"ARTIFACTS_ACCESS_KEY"},
	"artifacts.secret_key": {"ARTIFACTS_SECRET_KEY"},
	"artifacts.region":     {"ARTIFACTS_REGION"},
	"artifacts.bucket":     {"ARTIFACTS_BUCKET"},
	"artifacts.prefix":     {"ARTIFACTS_PREFIX"},
}

// bindEnvs binds the environment variable mappings to the viper instance.
func bindEnvs(v *viper.Viper) error {
	for key, envs := range envBindings {
		inputs := slices.Insert(envs, 0, key)

		if err := v.BindEnv(inputs...); err != nil {
			return err
		}
	}

	return nil
}
