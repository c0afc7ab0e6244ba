package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	CORS      CORSConfig
	Log       LogConfig
	Scheduler SchedulerConfig
	Jobs      JobsConfig
	Audit     AuditConfig
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
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SchedulerConfig tunes the timetable engine and the proposal store.
type SchedulerConfig struct {
	Enabled             bool
	ProposalTTL         time.Duration
	Days                []int
	AcceptanceThreshold float64
	Budget              time.Duration
	Workers             int
	BatchSize           int
	ShortCircuitAfter   int
	MaxConsecutive      int
	MaxReoptimizePasses int
	IdealWeeklyMin      float64
	IdealWeeklyMax      float64
	EveningStartHour    int
	Weights             WeightsConfig
	RoomCompatibility   map[string][]string
}

// WeightsConfig holds the soft constraint weight vector.
type WeightsConfig struct {
	Time         float64
	Workload     float64
	Utilization  float64
	Distribution float64
	DailyBalance float64
	Continuity   float64
	RoomMatch    float64
}

// JobsConfig sizes the asynchronous solve queue.
type JobsConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Retention  time.Duration
}

// AuditConfig controls conflict report caching.
type AuditConfig struct {
	CacheTTL time.Duration
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
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
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
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Scheduler = SchedulerConfig{
		Enabled:             v.GetBool("ENABLE_SCHEDULER"),
		ProposalTTL:         parseDuration(v.GetString("SCHEDULER_PROPOSAL_TTL"), 30*time.Minute),
		Days:                parseDays(v.GetString("SCHEDULER_DAYS")),
		AcceptanceThreshold: v.GetFloat64("SCHEDULER_ACCEPTANCE_THRESHOLD"),
		Budget:              parseDuration(v.GetString("SCHEDULER_BUDGET"), 30*time.Second),
		Workers:             v.GetInt("SCHEDULER_WORKERS"),
		BatchSize:           v.GetInt("SCHEDULER_BATCH_SIZE"),
		ShortCircuitAfter:   v.GetInt("SCHEDULER_SHORT_CIRCUIT_AFTER"),
		MaxConsecutive:      v.GetInt("SCHEDULER_MAX_CONSECUTIVE"),
		MaxReoptimizePasses: v.GetInt("SCHEDULER_REOPTIMIZE_PASSES"),
		IdealWeeklyMin:      v.GetFloat64("SCHEDULER_IDEAL_WEEKLY_MIN"),
		IdealWeeklyMax:      v.GetFloat64("SCHEDULER_IDEAL_WEEKLY_MAX"),
		EveningStartHour:    v.GetInt("SCHEDULER_EVENING_START_HOUR"),
		Weights: WeightsConfig{
			Time:         v.GetFloat64("SCHEDULER_WEIGHT_TIME"),
			Workload:     v.GetFloat64("SCHEDULER_WEIGHT_WORKLOAD"),
			Utilization:  v.GetFloat64("SCHEDULER_WEIGHT_UTILIZATION"),
			Distribution: v.GetFloat64("SCHEDULER_WEIGHT_DISTRIBUTION"),
			DailyBalance: v.GetFloat64("SCHEDULER_WEIGHT_DAILY_BALANCE"),
			Continuity:   v.GetFloat64("SCHEDULER_WEIGHT_CONTINUITY"),
			RoomMatch:    v.GetFloat64("SCHEDULER_WEIGHT_ROOM_MATCH"),
		},
		RoomCompatibility: ParseRoomCompatibility(v.GetString("SCHEDULER_ROOM_COMPATIBILITY")),
	}

	cfg.Jobs = JobsConfig{
		Workers:    v.GetInt("JOBS_WORKERS"),
		BufferSize: v.GetInt("JOBS_BUFFER_SIZE"),
		MaxRetries: v.GetInt("JOBS_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("JOBS_RETRY_DELAY"), time.Second),
		Retention:  parseDuration(v.GetString("JOBS_RETENTION"), time.Hour),
	}

	cfg.Audit = AuditConfig{
		CacheTTL: parseDuration(v.GetString("AUDIT_CACHE_TTL"), 10*time.Minute),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "timetable")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("ENABLE_REDIS", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_SCHEDULER", true)
	v.SetDefault("SCHEDULER_PROPOSAL_TTL", "30m")
	v.SetDefault("SCHEDULER_DAYS", "1,2,3,4,5")
	v.SetDefault("SCHEDULER_ACCEPTANCE_THRESHOLD", 60)
	v.SetDefault("SCHEDULER_BUDGET", "30s")
	v.SetDefault("SCHEDULER_WORKERS", 4)
	v.SetDefault("SCHEDULER_BATCH_SIZE", 256)
	v.SetDefault("SCHEDULER_SHORT_CIRCUIT_AFTER", 48)
	v.SetDefault("SCHEDULER_MAX_CONSECUTIVE", 2)
	v.SetDefault("SCHEDULER_REOPTIMIZE_PASSES", 2)
	v.SetDefault("SCHEDULER_IDEAL_WEEKLY_MIN", 10)
	v.SetDefault("SCHEDULER_IDEAL_WEEKLY_MAX", 18)
	v.SetDefault("SCHEDULER_EVENING_START_HOUR", 17)
	v.SetDefault("SCHEDULER_WEIGHT_TIME", 0.25)
	v.SetDefault("SCHEDULER_WEIGHT_WORKLOAD", 0.20)
	v.SetDefault("SCHEDULER_WEIGHT_UTILIZATION", 0.15)
	v.SetDefault("SCHEDULER_WEIGHT_DISTRIBUTION", 0.15)
	v.SetDefault("SCHEDULER_WEIGHT_DAILY_BALANCE", 0.10)
	v.SetDefault("SCHEDULER_WEIGHT_CONTINUITY", 0.10)
	v.SetDefault("SCHEDULER_WEIGHT_ROOM_MATCH", 0.05)
	v.SetDefault("SCHEDULER_ROOM_COMPATIBILITY", "lab:lab|computer;computer:computer|lab")

	v.SetDefault("JOBS_WORKERS", 2)
	v.SetDefault("JOBS_BUFFER_SIZE", 16)
	v.SetDefault("JOBS_MAX_RETRIES", 1)
	v.SetDefault("JOBS_RETRY_DELAY", "1s")
	v.SetDefault("JOBS_RETENTION", "1h")

	v.SetDefault("AUDIT_CACHE_TTL", "10m")
}

// ParseRoomCompatibility reads "course:room|room;course:room" into a lookup map.
func ParseRoomCompatibility(raw string) map[string][]string {
	result := make(map[string][]string)
	for _, rule := range strings.Split(raw, ";") {
		parts := strings.SplitN(rule, ":", 2)
		if len(parts) != 2 {
			continue
		}
		course := strings.ToLower(strings.TrimSpace(parts[0]))
		if course == "" {
			continue
		}
		for _, room := range strings.Split(parts[1], "|") {
			room = strings.ToLower(strings.TrimSpace(room))
			if room != "" {
				result[course] = append(result[course], room)
			}
		}
	}
	return result
}

func parseDays(raw string) []int {
	var days []int
	for _, part := range splitAndTrim(raw) {
		day, err := strconv.Atoi(part)
		if err != nil || day < 1 || day > 7 {
			continue
		}
		days = append(days, day)
	}
	return days
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

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
