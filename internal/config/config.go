package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix — префикс переменных окружения (LIMS_PORT, LIMS_DB_URL, ...).
const EnvPrefix = "LIMS"

type Config struct {
	Port         string `mapstructure:"port"`
	ResourcesDir string `mapstructure:"resources_dir"`
	EnumsDir     string `mapstructure:"enums_dir"`

	// DBURL — база тенанта по умолчанию, если Tenants пуст.
	// postgres://... | sqlite:<путь> | sqlite::memory:
	DBURL string `mapstructure:"db_url"`

	// Tenants — имя тенанта -> URL базы.
	Tenants        map[string]string `mapstructure:"tenants"`
	DefaultTenant  string            `mapstructure:"default_tenant"`
	TenantHeader   string            `mapstructure:"tenant_header"`
	TenantPoolSize int               `mapstructure:"tenant_pool_size"`

	AutoMigrate bool `mapstructure:"auto_migrate"`

	LogLevel       string `mapstructure:"log_level"`
	LogDevelopment bool   `mapstructure:"log_development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("resources_dir", "resources")
	v.SetDefault("enums_dir", "reference/enums")
	v.SetDefault("db_url", "sqlite::memory:")
	v.SetDefault("default_tenant", "default")
	v.SetDefault("tenant_header", "X-Tenant")
	v.SetDefault("tenant_pool_size", 16)
	v.SetDefault("auto_migrate", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_development", false)
}

// Load читает конфигурацию: файл (если задан или найден) -> ENV -> флаги.
// flags может быть nil.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// явно указанный файл обязан существовать
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// флаги пишутся через дефис: --resources-dir -> resources_dir
	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if bindErr == nil {
				bindErr = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
			}
		})
		if bindErr != nil {
			return Config{}, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Port = strings.TrimSpace(c.Port)
	c.DefaultTenant = strings.ToLower(strings.TrimSpace(c.DefaultTenant))
	if len(c.Tenants) == 0 {
		c.Tenants = map[string]string{c.DefaultTenant: strings.TrimSpace(c.DBURL)}
	}
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	if c.Port == "" {
		return errors.New("config: port is empty")
	}
	if c.DefaultTenant == "" {
		return errors.New("config: default_tenant is empty")
	}
	if _, ok := c.Tenants[c.DefaultTenant]; !ok {
		return fmt.Errorf("config: default tenant %q has no database url", c.DefaultTenant)
	}
	for name, url := range c.Tenants {
		if strings.TrimSpace(url) == "" {
			return fmt.Errorf("config: tenant %q has an empty database url", name)
		}
	}
	return nil
}

// Addr — адрес для http.Server.
func (c Config) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}
