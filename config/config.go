package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	SLA        SLAConfig        `yaml:"sla"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Roster     RosterConfig     `yaml:"roster"`
	Scanner    ScannerConfig    `yaml:"scanner"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogLevel               string `yaml:"log_level"`
}

// SLAConfig holds the deadline windows, in hours.
type SLAConfig struct {
	CustomerHours       int `yaml:"customer_hours"`
	WarrantyRepairHours int `yaml:"warranty_repair_hours"`
	WarningHours        int `yaml:"warning_hours"`
	CriticalHours       int `yaml:"critical_hours"`
}

// SchedulerConfig controls generation of recurring maintenance tasks.
type SchedulerConfig struct {
	YearlyTaskCount       int    `yaml:"yearly_task_count"`
	YearlyMaintenanceType string `yaml:"yearly_maintenance_type"`
}

// RosterConfig lists the technicians issues and tasks can be assigned to.
type RosterConfig struct {
	Technicians []string `yaml:"technicians"`
}

// ScannerConfig holds the configuration of the periodic SLA scan.
type ScannerConfig struct {
	Enabled         bool          `yaml:"enabled"`
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// LogConfig selects the logger flavour.
type LogConfig struct {
	Development bool `yaml:"development"`
}

// Load reads the configuration from the given path. Values from a .env file in the
// working directory are exported first, and DATABASE_DSN overrides database.dsn.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills every unset value with its default.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 5
	}

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "file:service.db"
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}

	if cfg.SLA.CustomerHours <= 0 {
		cfg.SLA.CustomerHours = 12
	}
	if cfg.SLA.WarrantyRepairHours <= 0 {
		cfg.SLA.WarrantyRepairHours = 24
	}
	if cfg.SLA.WarningHours <= 0 {
		cfg.SLA.WarningHours = 6
	}
	if cfg.SLA.CriticalHours <= 0 {
		cfg.SLA.CriticalHours = 2
	}

	if cfg.Scheduler.YearlyTaskCount <= 0 {
		cfg.Scheduler.YearlyTaskCount = 5
	}
	if cfg.Scheduler.YearlyMaintenanceType == "" {
		cfg.Scheduler.YearlyMaintenanceType = "routine"
	}

	if len(cfg.Roster.Technicians) == 0 {
		cfg.Roster.Technicians = []string{"Technician 1", "Technician 2", "Technician 3"}
	}

	if cfg.Scanner.IntervalSeconds <= 0 {
		cfg.Scanner.IntervalSeconds = 30
	}
	cfg.Scanner.Interval = time.Duration(cfg.Scanner.IntervalSeconds) * time.Second

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		cfg.WorkerPool.Size = 1
	}
}
