package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/Netflix/go-env"
	"github.com/kursadbilgin/risk-alert-engine/internal/domain"
	"github.com/robfig/cron/v3"
)

type Config struct {
	DatabaseDSN     string        `env:"DATABASE_DSN,required=true"`
	RedisURL        string        `env:"REDIS_URL,required=true"`
	APIPort         int           `env:"API_PORT,default=8080"`
	LogLevel        string        `env:"LOG_LEVEL,default=info"`
	DBMaxOpenConns  int           `env:"DB_MAX_OPEN_CONNS,default=10"`
	DBMaxIdleConns  int           `env:"DB_MAX_IDLE_CONNS,default=2"`
	DBConnMaxLife   time.Duration `env:"DB_CONN_MAX_LIFETIME,default=1h"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`

	AttendanceThreshold float64 `env:"ATTENDANCE_THRESHOLD,default=75"`
	MarksThreshold      float64 `env:"MARKS_THRESHOLD,default=40"`
	DeclineDelta        float64 `env:"DECLINE_DELTA,default=20"`
	RetentionDays       int     `env:"RETENTION_DAYS,default=90"`
	StatsWindowDays     int     `env:"STATS_WINDOW_DAYS,default=7"`

	SchedulerEnabled  bool          `env:"SCHEDULER_ENABLED,default=true"`
	SchedulerTimezone string        `env:"SCHEDULER_TIMEZONE,default=UTC"`
	JobLockEnabled    bool          `env:"JOB_LOCK_ENABLED,default=true"`
	JobLockTTL        time.Duration `env:"JOB_LOCK_TTL,default=30m"`
	AttendanceCron    string        `env:"LOW_ATTENDANCE_CRON,default=0 6 * * *"`
	AtRiskCron        string        `env:"AT_RISK_CRON,default=0 7 * * 1"`
	RetentionCron     string        `env:"RETENTION_CRON,default=0 3 * * 0"`
	StatsCron         string        `env:"DELIVERY_STATS_CRON,default=0 23 * * *"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Rules returns the alert thresholds as a domain rule set.
func (c *Config) Rules() domain.RuleSet {
	return domain.RuleSet{
		Attendance: domain.AttendanceRule{Threshold: c.AttendanceThreshold},
		Marks:      domain.MarksRule{Threshold: c.MarksThreshold},
		Decline:    domain.DeclineRule{Delta: c.DeclineDelta},
		Retention:  domain.RetentionPolicy{MaxAgeDays: c.RetentionDays},
	}
}

// Location resolves SchedulerTimezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.SchedulerTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_TIMEZONE %q: %w", c.SchedulerTimezone, err)
	}
	return loc, nil
}

func (c *Config) Validate() error {
	var errs []error

	if err := c.Rules().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.StatsWindowDays < 1 {
		errs = append(errs, fmt.Errorf("STATS_WINDOW_DAYS must be positive, got %d", c.StatsWindowDays))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}

	specs := map[string]string{
		"LOW_ATTENDANCE_CRON": c.AttendanceCron,
		"AT_RISK_CRON":        c.AtRiskCron,
		"RETENTION_CRON":      c.RetentionCron,
		"DELIVERY_STATS_CRON": c.StatsCron,
	}
	for _, name := range []string{"LOW_ATTENDANCE_CRON", "AT_RISK_CRON", "RETENTION_CRON", "DELIVERY_STATS_CRON"} {
		if _, err := cron.ParseStandard(specs[name]); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s %q: %w", name, specs[name], err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
