package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server           ServerConfig           `mapstructure:"server"`
	Database         DatabaseConfig         `mapstructure:"database"`
	PartitionManager PartitionManagerConfig `mapstructure:"partition_manager"`
	Worker           WorkerConfig           `mapstructure:"worker"`
	JWT              JWTConfig              `mapstructure:"jwt"`
	Trial            TrialConfig            `mapstructure:"trial"`
	Notification     NotificationConfig     `mapstructure:"notification"`
	Logging          LoggingConfig          `mapstructure:"logging"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	Timezone        string        `mapstructure:"timezone"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	AutoCreateDB    bool          `mapstructure:"auto_create_db"`
}

type PartitionManagerConfig struct {
	ContextTimeout time.Duration `mapstructure:"context_timeout"`
	MaxHandles     int           `mapstructure:"max_handles"`
}

type WorkerConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	LifecycleCron     string        `mapstructure:"lifecycle_cron"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	MaxConcurrency    int           `mapstructure:"max_concurrency"`
}

type JWTConfig struct {
	SecretKey   string        `mapstructure:"secret_key"`
	TokenExpiry time.Duration `mapstructure:"token_expiry"`
}

type TrialConfig struct {
	Days int `mapstructure:"days"`
}

type NotificationConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
