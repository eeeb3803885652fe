package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bitfantasy/nimo-qms/internal/qms/engine"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Feishu   FeishuConfig   `mapstructure:"feishu"`
	Log      LogConfig      `mapstructure:"log"`
	Quality  QualityConfig  `mapstructure:"quality"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN postgres 连接串
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// Addr host:port
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type FeishuConfig struct {
	AppID             string `mapstructure:"app_id"`
	AppSecret         string `mapstructure:"app_secret"`
	BaseURL           string `mapstructure:"base_url"`
	VerificationToken string `mapstructure:"verification_token"`
	AndonChatID       string `mapstructure:"andon_chat_id"`
	// 安灯看板地址，卡片“查看详情”按钮使用
	DashboardURL string `mapstructure:"dashboard_url"`
}

// Enabled 是否配置了飞书应用
func (c FeishuConfig) Enabled() bool {
	return c.AppID != "" && c.AppSecret != ""
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// QualityConfig 质量目标与安灯分级
type QualityConfig struct {
	Targets             []TargetConfig     `mapstructure:"targets"`
	Escalation          []EscalationConfig `mapstructure:"escalation"`
	KPICacheTTL         time.Duration      `mapstructure:"kpi_cache_ttl"`
	ConsecutiveLookback int                `mapstructure:"consecutive_lookback"`
	ReworkWindow        time.Duration      `mapstructure:"rework_window"`
}

type TargetConfig struct {
	Category string  `mapstructure:"category"`
	Target   float64 `mapstructure:"target"`
	Unit     string  `mapstructure:"unit"`
	Strategy string  `mapstructure:"strategy"`
}

type EscalationConfig struct {
	Level              int      `mapstructure:"level"`
	MinConsecutive     int      `mapstructure:"min_consecutive"`
	MinReworkRate      float64  `mapstructure:"min_rework_rate"`
	MinLineStopMinutes float64  `mapstructure:"min_line_stop_minutes"`
	ResponseMinutes    int      `mapstructure:"response_minutes"`
	RequiredActions    []string `mapstructure:"required_actions"`
}

// RateCalculator 由配置构建，未配置时使用默认目标
func (q QualityConfig) RateCalculator() *engine.RateCalculator {
	if len(q.Targets) == 0 {
		return engine.NewRateCalculator(engine.DefaultTargets())
	}
	targets := make([]engine.KpiTarget, 0, len(q.Targets))
	for _, t := range q.Targets {
		targets = append(targets, engine.KpiTarget{
			Category: t.Category,
			Target:   t.Target,
			Unit:     engine.Unit(t.Unit),
			Strategy: t.Strategy,
		})
	}
	return engine.NewRateCalculator(targets)
}

// EscalationPolicy 由配置构建，未配置时使用默认分级
func (q QualityConfig) EscalationPolicy() (*engine.EscalationPolicy, error) {
	if len(q.Escalation) == 0 {
		return engine.DefaultEscalationPolicy(), nil
	}
	rules := make([]engine.TierRule, 0, len(q.Escalation))
	for _, e := range q.Escalation {
		rules = append(rules, engine.TierRule{
			Level:              e.Level,
			MinConsecutive:     e.MinConsecutive,
			MinReworkRate:      e.MinReworkRate,
			MinLineStopMinutes: e.MinLineStopMinutes,
			ResponseMinutes:    e.ResponseMinutes,
			RequiredActions:    e.RequiredActions,
		})
	}
	return engine.NewEscalationPolicy(rules)
}

// Load 从 ./configs 或当前目录读取 config.yaml
func Load() (*Config, error) {
	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// 配置文件不存在，使用默认值与环境变量
	}
	return unmarshal(v)
}

// LoadFile 读取指定配置文件
func LoadFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindEnvVariables(v)
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("feishu.base_url", "https://open.feishu.cn/open-apis")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("quality.kpi_cache_ttl", "5m")
	v.SetDefault("quality.consecutive_lookback", 10)
	v.SetDefault("quality.rework_window", "1h")
}

func bindEnvVariables(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.mode", "SERVER_MODE")

	// Database
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// MinIO
	v.BindEnv("minio.endpoint", "MINIO_ENDPOINT")
	v.BindEnv("minio.access_key", "MINIO_ACCESS_KEY")
	v.BindEnv("minio.secret_key", "MINIO_SECRET_KEY")
	v.BindEnv("minio.bucket", "MINIO_BUCKET")

	// JWT
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// Feishu
	v.BindEnv("feishu.app_id", "FEISHU_APP_ID")
	v.BindEnv("feishu.app_secret", "FEISHU_APP_SECRET")
	v.BindEnv("feishu.verification_token", "FEISHU_VERIFICATION_TOKEN")
	v.BindEnv("feishu.andon_chat_id", "FEISHU_ANDON_CHAT_ID")
}

// GetEnvOrDefault 获取环境变量，如果不存在则返回默认值
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
