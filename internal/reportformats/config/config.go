// Package config loads the report format service configuration from a TOML
// or YAML file and exposes it through Config().
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type DBConfig struct {
	// Driver is "postgresql" or "sqlite".
	Driver         string        `toml:"driver" yaml:"driver" validate:"required,oneof=postgresql sqlite"`
	DSN            string        `toml:"dsn" yaml:"dsn" validate:"required"`
	ConnectRetries uint          `toml:"connect_retries" yaml:"connect_retries"`
	RetryDelay     time.Duration `toml:"retry_delay" yaml:"retry_delay"`
	MaxOpenConns   int           `toml:"max_open_conns" yaml:"max_open_conns" validate:"gte=0"`
}

type SignatureConfig struct {
	// Backend is "gpgv" to run the external verifier or "openpgp" to check
	// signatures in process against the same keyring.
	Backend   string `toml:"backend" yaml:"backend" validate:"oneof=gpgv openpgp"`
	GpgvPath  string `toml:"gpgv_path" yaml:"gpgv_path"`
	GnupgHome string `toml:"gnupg_home" yaml:"gnupg_home" validate:"required"`
}

type ConfigParam struct {
	ServerPort string `toml:"server_port" yaml:"server_port"`
	HandleCORS bool   `toml:"handle_cors" yaml:"handle_cors"`
	// CORSOrigins is only used when HandleCORS is set.
	CORSOrigins []string `toml:"cors_origins" yaml:"cors_origins"`
	// TokenSecret signs the bearer tokens that carry the caller principal.
	TokenSecret    string        `toml:"token_secret" yaml:"token_secret"`
	RequestTimeout time.Duration `toml:"request_timeout" yaml:"request_timeout"`
	LogLevel       string        `toml:"log_level" yaml:"log_level"`

	// StateDir holds per-owner bundles, the trash tree and the signature mirror.
	StateDir string `toml:"state_dir" yaml:"state_dir" validate:"required"`
	// FeedDir holds one directory per predefined format with a report_format.xml.
	FeedDir string `toml:"feed_dir" yaml:"feed_dir" validate:"required"`
	// FeedSignatureDir holds <uuid>.asc detached signatures shipped with the feed.
	FeedSignatureDir string `toml:"feed_signature_dir" yaml:"feed_signature_dir"`
	// UnprivilegedUser runs generate scripts when the service runs as root.
	UnprivilegedUser string `toml:"unprivileged_user" yaml:"unprivileged_user"`
	// AdminUsers may act on formats they do not own.
	AdminUsers []string `toml:"admin_users" yaml:"admin_users"`

	DB        DBConfig        `toml:"db" yaml:"db"`
	Signature SignatureConfig `toml:"signature" yaml:"signature"`
}

const DefaultConfigFile = "reportformats.toml"

var cfg *ConfigParam

func Config() *ConfigParam {
	return cfg
}

// SetConfig replaces the active configuration. It is used by tests and by
// commands that build a configuration from flags.
func SetConfig(c *ConfigParam) {
	cfg = c
}

// Defaults returns a configuration rooted at baseDir with a sqlite database.
func Defaults(baseDir string) *ConfigParam {
	return &ConfigParam{
		ServerPort:       "8195",
		RequestTimeout:   5 * time.Minute,
		LogLevel:         "info",
		StateDir:         filepath.Join(baseDir, "state"),
		FeedDir:          filepath.Join(baseDir, "feed", "report_formats"),
		FeedSignatureDir: filepath.Join(baseDir, "feed", "signatures", "report_formats"),
		UnprivilegedUser: "nobody",
		DB: DBConfig{
			Driver:         "sqlite",
			DSN:            filepath.Join(baseDir, "reportformats.db"),
			ConnectRetries: 5,
			RetryDelay:     time.Second,
		},
		Signature: SignatureConfig{
			Backend:   "gpgv",
			GpgvPath:  "gpgv",
			GnupgHome: filepath.Join(baseDir, "gnupg"),
		},
	}
}

// LoadConfig reads filename, fills unset values from Defaults and validates
// the result. An empty filename loads the defaults rooted at the working
// directory.
func LoadConfig(filename string) error {
	c, err := Parse(filename)
	if err != nil {
		return err
	}
	cfg = c
	return nil
}

// Parse is LoadConfig without installing the result.
func Parse(filename string) (*ConfigParam, error) {
	wd, _ := os.Getwd()
	c := Defaults(wd)
	if filename != "" {
		content, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %v", err)
		}
		switch strings.ToLower(filepath.Ext(filename)) {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(content, c); err != nil {
				return nil, fmt.Errorf("error parsing config file: %v", err)
			}
		default:
			if _, err := toml.Decode(string(content), c); err != nil {
				return nil, fmt.Errorf("error parsing config file: %v", err)
			}
		}
	}
	if err := Validate(c); err != nil {
		return nil, err
	}
	return c, nil
}

var validate = validator.New()

func Validate(c *ConfigParam) error {
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			var fields []string
			for _, fe := range verrs {
				fields = append(fields, fe.Namespace()+" ("+fe.Tag()+")")
			}
			return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid config: %v", err)
	}
	return nil
}

// GnupgKeyring is the keyring file consulted by both signature backends.
func (c *ConfigParam) GnupgKeyring() string {
	return filepath.Join(c.Signature.GnupgHome, "pubring.gpg")
}
