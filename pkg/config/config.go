package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/noah-isme/lesson-scheduler/pkg/schedule"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config is the scheduler worker's full runtime configuration, loaded from
// environment variables (with .env as a development convenience) the same
// way the teacher's Load does.
type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	TimeModel TimeModelConfig
	Scheduler SchedulerHyperparams
	Driver    DriverRuntimeConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type LogConfig struct {
	Level  string
	Format string
}

// TimeModelConfig configures the discretisation of wall-clock time into
// schedulable units (spec §4.1).
type TimeModelConfig struct {
	SecondsPerUnit    int `validate:"required,gt=0"`
	TimePerDay        int `validate:"required,gt=0"`
	DayStartOffset    time.Duration
	DesiredLessonTime int `validate:"required,gt=0"`
}

// SchedulerHyperparams configures the GA Population (spec §4.4). Cross-field
// ordering (NumParents <= PopSize, GuaranteedSurvivingParents <= NumParents)
// isn't expressible as a struct tag and is checked separately in Validate.
type SchedulerHyperparams struct {
	PopSize                     int     `validate:"required,gt=0"`
	NumParents                  int     `validate:"required,gt=0"`
	NumOffspring                int     `validate:"required,gt=0"`
	GuaranteedSurvivingParents  int     `validate:"gte=0"`
	MutationAmount              int     `validate:"gte=0"`
	RandomLessonSkipProbability float64 `validate:"gte=0,lte=1"`
}

// DriverRuntimeConfig configures the Driver's tick behaviour (spec §4.6).
type DriverRuntimeConfig struct {
	CronExpr        string `validate:"required"`
	LookAheadPeriod int    `validate:"required,gt=0"`
	Iterations      int    `validate:"required,gt=0"`
	FeederEnabled   bool
	LockTTL         time.Duration `validate:"required"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.TimeModel = TimeModelConfig{
		SecondsPerUnit:    v.GetInt("TIME_SECONDS_PER_UNIT"),
		TimePerDay:        v.GetInt("TIME_PER_DAY"),
		DayStartOffset:    parseDuration(v.GetString("TIME_DAY_START_OFFSET"), 8*time.Hour+30*time.Minute),
		DesiredLessonTime: v.GetInt("TIME_DESIRED_LESSON_TIME"),
	}

	cfg.Scheduler = SchedulerHyperparams{
		PopSize:                     v.GetInt("GA_POPSIZE"),
		NumParents:                  v.GetInt("GA_NUM_PARENTS"),
		NumOffspring:                v.GetInt("GA_NUM_OFFSPRING"),
		GuaranteedSurvivingParents:  v.GetInt("GA_GUARANTEED_SURVIVING_PARENTS"),
		MutationAmount:              v.GetInt("GA_MUTATION_AMOUNT"),
		RandomLessonSkipProbability: v.GetFloat64("GA_RANDOM_LESSON_SKIP_PROBABILITY"),
	}

	cfg.Driver = DriverRuntimeConfig{
		CronExpr:        v.GetString("DRIVER_CRON"),
		LookAheadPeriod: v.GetInt("DRIVER_LOOK_AHEAD_PERIOD"),
		Iterations:      v.GetInt("DRIVER_ITERATIONS"),
		FeederEnabled:   v.GetBool("DRIVER_FEEDER_ENABLED"),
		LockTTL:         parseDuration(v.GetString("DRIVER_LOCK_TTL"), 10*time.Minute),
	}

	return cfg, nil
}

// Validate enforces the Configuration-error invariants that must hold
// before the Driver's first tick (spec §7: a Configuration error is fatal
// at startup, not a per-run condition).
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c.TimeModel); err != nil {
		return fmt.Errorf("config: time model: %w", err)
	}
	if err := validate.Struct(c.Scheduler); err != nil {
		return fmt.Errorf("config: scheduler hyperparameters: %w", err)
	}
	if err := validate.Struct(c.Driver); err != nil {
		return fmt.Errorf("config: driver runtime: %w", err)
	}

	if c.Scheduler.NumParents > c.Scheduler.PopSize {
		return fmt.Errorf("config: GA_NUM_PARENTS must be <= GA_POPSIZE")
	}
	if c.Scheduler.GuaranteedSurvivingParents > c.Scheduler.NumParents {
		return fmt.Errorf("config: GA_GUARANTEED_SURVIVING_PARENTS must be <= GA_NUM_PARENTS")
	}
	if _, err := schedule.ParseExpr(c.Driver.CronExpr); err != nil {
		return fmt.Errorf("config: DRIVER_CRON invalid: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/internal")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "scheduler")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("TIME_SECONDS_PER_UNIT", 300)
	v.SetDefault("TIME_PER_DAY", 114)
	v.SetDefault("TIME_DAY_START_OFFSET", "8h30m")
	v.SetDefault("TIME_DESIRED_LESSON_TIME", 44)

	v.SetDefault("GA_POPSIZE", 200)
	v.SetDefault("GA_NUM_PARENTS", 50)
	v.SetDefault("GA_NUM_OFFSPRING", 100)
	v.SetDefault("GA_GUARANTEED_SURVIVING_PARENTS", 5)
	v.SetDefault("GA_MUTATION_AMOUNT", 3)
	v.SetDefault("GA_RANDOM_LESSON_SKIP_PROBABILITY", 0.2)

	v.SetDefault("DRIVER_CRON", "0 20 * * *")
	v.SetDefault("DRIVER_LOOK_AHEAD_PERIOD", 14)
	v.SetDefault("DRIVER_ITERATIONS", 10)
	v.SetDefault("DRIVER_FEEDER_ENABLED", true)
	v.SetDefault("DRIVER_LOCK_TTL", "10m")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

