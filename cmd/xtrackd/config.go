package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xtrack/internal/api"
	"github.com/omeyang/xtrack/internal/trackstore"
	"github.com/omeyang/xtrack/pkg/business/xtracking"
	"github.com/omeyang/xtrack/pkg/config/xconf"
)

// Config xtrackd 进程配置，对应配置文件的顶层结构。
type Config struct {
	Server   ServerConfig     `koanf:"server"`
	Redis    RedisConfig      `koanf:"redis"`
	Mongo    MongoConfig      `koanf:"mongo"`
	Tracking xtracking.Config `koanf:"tracking"`
	Log      LogConfig        `koanf:"log"`
}

type ServerConfig struct {
	Addr              string        `koanf:"addr"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	// SnapshotInterval 快照预热周期，0 表示不预热
	SnapshotInterval time.Duration `koanf:"snapshot_interval"`
	// CORS 未配置 allow_origins 时不启用
	CORS api.CORSConfig `koanf:"cors"`
}

type RedisConfig struct {
	Addr         string        `koanf:"addr"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	KeyPrefix    string        `koanf:"key_prefix"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	// BreakerFailures 连续失败多少次后熔断
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`
}

type MongoConfig struct {
	URI            string        `koanf:"uri"`
	Database       string        `koanf:"database"`
	Collection     string        `koanf:"collection"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
	QueryTimeout   time.Duration `koanf:"query_timeout"`
	WriteTimeout   time.Duration `koanf:"write_timeout"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	// File 非空时写入文件并按大小轮转
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
	Compress   bool   `koanf:"compress"`
	// AddSource 输出调用位置
	AddSource bool `koanf:"add_source"`
	// Redact 输出时以 *** 替换的字段，例如 customer_slug
	Redact []string `koanf:"redact"`
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      15 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			SnapshotInterval:  5 * time.Minute,
			CORS:              api.CORSConfig{MaxAge: 12 * time.Hour},
		},
		Redis: RedisConfig{
			Addr:            "127.0.0.1:6379",
			DialTimeout:     2 * time.Second,
			ReadTimeout:     time.Second,
			WriteTimeout:    time.Second,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Mongo: MongoConfig{
			URI:            "mongodb://127.0.0.1:27017",
			Database:       "xtrack",
			Collection:     trackstore.DefaultCollection,
			ConnectTimeout: 5 * time.Second,
			QueryTimeout:   5 * time.Second,
			WriteTimeout:   5 * time.Second,
		},
		Tracking: xtracking.DefaultConfig(),
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 7,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}
}

// Validate 检查启动必需的配置项。
func (c Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required"))
	}
	if c.Mongo.URI == "" {
		errs = append(errs, errors.New("mongo.uri is required"))
	}
	if c.Mongo.Database == "" {
		errs = append(errs, errors.New("mongo.database is required"))
	}
	if c.Server.SnapshotInterval < 0 {
		errs = append(errs, errors.New("server.snapshot_interval must not be negative"))
	}
	if err := c.Tracking.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// flagOverrides 全局 flag 与配置 key 的对应关系，flag 优先于配置文件。
var flagOverrides = []struct {
	flag string
	key  string
}{
	{flagListen, "server.addr"},
	{flagRedisAddr, "redis.addr"},
	{flagMongoURI, "mongo.uri"},
	{flagLogLevel, "log.level"},
}

// loadConfig 读取配置文件（可选），应用 flag 覆盖，并以 defaultConfig 为底解出 Config。
// 返回的 xconf.Config 供 serve 监视文件变更；未指定配置文件时不可重载。
func loadConfig(cmd *cli.Command) (Config, xconf.Config, error) {
	var (
		src xconf.Config
		err error
	)
	if path := cmd.String(flagConfig); path != "" {
		src, err = xconf.New(path)
	} else {
		src, err = xconf.NewFromBytes([]byte("{}"), xconf.FormatJSON)
	}
	if err != nil {
		return Config{}, nil, fmt.Errorf("load config: %w", err)
	}

	for _, o := range flagOverrides {
		if err := src.Override(o.key, cmd.String(o.flag)); err != nil {
			return Config{}, nil, err
		}
	}

	cfg, err := decodeConfig(src)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, src, nil
}

func decodeConfig(src xconf.Config) (Config, error) {
	cfg := defaultConfig()
	if err := src.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, &usageError{msg: fmt.Sprintf("invalid config: %v", err)}
	}
	return cfg, nil
}
