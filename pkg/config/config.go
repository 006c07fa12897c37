// accolade/pkg/config/config.go

// Package config loads accoladed settings. ACCOLADE_ environment variables
// override the config file, which overrides the defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"rgehrsitz/accolade/pkg/logging"
)

const EnvPrefix = "ACCOLADE"

type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Rules     RulesConfig     `mapstructure:"rules"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Identity  IdentityConfig  `mapstructure:"identity"`
	Transport TransportConfig `mapstructure:"transport"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error fatal panic"`
	Output string `mapstructure:"output" validate:"required"`
}

type RulesConfig struct {
	Directory       string `mapstructure:"directory" validate:"required"`
	RefreshSchedule string `mapstructure:"refresh_schedule"`
}

type EngineConfig struct {
	Workers            int           `mapstructure:"workers" validate:"min=1"`
	WaitForArchive     bool          `mapstructure:"wait_for_archive"`
	RecordEvents       bool          `mapstructure:"record_events"`
	ArchiveWaitDelay   time.Duration `mapstructure:"archive_wait_delay" validate:"min=0"`
	EmailDomain        string        `mapstructure:"email_domain" validate:"required,hostname"`
	IDProviderHostname string        `mapstructure:"id_provider_hostname"`
	DistgitHostname    string        `mapstructure:"distgit_hostname"`
	Issuer             string        `mapstructure:"issuer"`
}

type CacheConfig struct {
	Backend string      `mapstructure:"backend" validate:"oneof=redis bolt memory"`
	Redis   RedisConfig `mapstructure:"redis"`
	Bolt    BoltConfig  `mapstructure:"bolt"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"min=0"`
}

type BoltConfig struct {
	Path string `mapstructure:"path"`
}

type DatabaseConfig struct {
	LedgerURL  string `mapstructure:"ledger_url" validate:"required"`
	ArchiveURL string `mapstructure:"archive_url" validate:"required"`
}

type IdentityConfig struct {
	// URL of the account system. Empty selects the static directory in
	// StaticUsers, which is meant for development.
	URL         string        `mapstructure:"url" validate:"omitempty,url"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"min=0"`
	StaticUsers []string      `mapstructure:"static_users"`
}

type TransportConfig struct {
	Backend       string      `mapstructure:"backend" validate:"oneof=redis mqtt"`
	Channels      []string    `mapstructure:"channels" validate:"min=1,dive,required"`
	PublishPrefix string      `mapstructure:"publish_prefix" validate:"required"`
	Redis         RedisConfig `mapstructure:"redis"`
	MQTT          MQTTConfig  `mapstructure:"mqtt"`
}

type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	QoS      byte   `mapstructure:"qos" validate:"max=2"`
}

type DashboardConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address" validate:"required_if=Enabled true"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.output", "console")
	v.SetDefault("rules.directory", "./rules")
	v.SetDefault("rules.refresh_schedule", "")
	v.SetDefault("engine.workers", 4)
	v.SetDefault("engine.wait_for_archive", true)
	v.SetDefault("engine.record_events", true)
	v.SetDefault("engine.archive_wait_delay", "1s")
	v.SetDefault("engine.email_domain", "fedoraproject.org")
	v.SetDefault("engine.id_provider_hostname", "id.fedoraproject.org")
	v.SetDefault("engine.distgit_hostname", "src.fedoraproject.org")
	v.SetDefault("engine.issuer", "fedora-project")
	v.SetDefault("cache.backend", "redis")
	v.SetDefault("cache.redis.address", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.bolt.path", "./accolade-cache.db")
	v.SetDefault("database.ledger_url", "sqlite://./accolade-ledger.db")
	v.SetDefault("database.archive_url", "sqlite://./accolade-archive.db")
	v.SetDefault("identity.url", "")
	v.SetDefault("identity.timeout", "10s")
	v.SetDefault("identity.static_users", []string{})
	v.SetDefault("transport.backend", "redis")
	v.SetDefault("transport.channels", []string{"accolade_events"})
	v.SetDefault("transport.publish_prefix", "org.fedoraproject.prod")
	v.SetDefault("transport.redis.address", "localhost:6379")
	v.SetDefault("transport.redis.password", "")
	v.SetDefault("transport.redis.db", 0)
	v.SetDefault("transport.mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("transport.mqtt.client_id", "accoladed")
	v.SetDefault("transport.mqtt.username", "")
	v.SetDefault("transport.mqtt.password", "")
	v.SetDefault("transport.mqtt.qos", 1)
	v.SetDefault("dashboard.enabled", false)
	v.SetDefault("dashboard.address", ":8080")
}

// New returns a viper instance with defaults and environment binding set.
// Callers may bind flags to it before passing it to Load.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configPath, if given, or an accolade.{yaml,json,toml} from the
// usual locations, then decodes and validates the result.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("accolade")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.accolade")
		v.AddConfigPath("/etc/accolade")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configPath != "" {
			return nil, logging.NewError(logging.ErrorTypeConfig, "error reading config file", err,
				map[string]interface{}{"path": configPath})
		}
		logging.Logger.Info().Msg("No configuration file found, using defaults")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, logging.NewError(logging.ErrorTypeConfig, "cannot decode configuration", err, nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the cross-section rules the tags
// cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			err = errors.New(strings.Join(msgs, "; "))
		}
		return logging.NewError(logging.ErrorTypeConfig, "invalid configuration", err, nil)
	}

	var problems []string
	if c.Cache.Backend == "redis" && c.Cache.Redis.Address == "" {
		problems = append(problems, "cache.redis.address is required for the redis cache")
	}
	if c.Cache.Backend == "bolt" && c.Cache.Bolt.Path == "" {
		problems = append(problems, "cache.bolt.path is required for the bolt cache")
	}
	if c.Transport.Backend == "redis" && c.Transport.Redis.Address == "" {
		problems = append(problems, "transport.redis.address is required for the redis transport")
	}
	if c.Transport.Backend == "mqtt" && c.Transport.MQTT.Broker == "" {
		problems = append(problems, "transport.mqtt.broker is required for the mqtt transport")
	}
	if len(problems) > 0 {
		return logging.NewError(logging.ErrorTypeConfig, "invalid configuration",
			errors.New(strings.Join(problems, "; ")), nil)
	}
	return nil
}
