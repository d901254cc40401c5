package config

import (
	"time"

	"github.com/spf13/viper"

	"photostream-realtime/internal/infrastructure/logger"
)

// Config holds process configuration, loaded from the environment with an
// optional .env file.
type Config struct {
	Addr          string
	JWTSecret     string
	SweepInterval time.Duration
	Logger        *logger.Config
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")

	v.SetDefault("REALTIME_ADDR", ":8080")
	v.SetDefault("REALTIME_JWT_SECRET", "dev-secret")
	v.SetDefault("REALTIME_SWEEP_INTERVAL", "60s")
	v.SetDefault("REALTIME_LOG_LEVEL", "info")
	v.SetDefault("REALTIME_LOG_FORMAT", "console")
	v.AutomaticEnv()

	// A missing .env file is fine; environment variables and defaults apply.
	_ = v.ReadInConfig()

	sweepInterval, err := time.ParseDuration(v.GetString("REALTIME_SWEEP_INTERVAL"))
	if err != nil {
		return nil, err
	}

	logCfg := logger.NewDefaultConfig()
	logCfg.Format = v.GetString("REALTIME_LOG_FORMAT")
	logCfg.Level = parseLevel(v.GetString("REALTIME_LOG_LEVEL"))

	return &Config{
		Addr:          v.GetString("REALTIME_ADDR"),
		JWTSecret:     v.GetString("REALTIME_JWT_SECRET"),
		SweepInterval: sweepInterval,
		Logger:        logCfg,
	}, nil
}

func parseLevel(level string) logger.Level {
	switch level {
	case "debug":
		return logger.LevelDebug
	case "warn":
		return logger.LevelWarn
	case "error":
		return logger.LevelError
	default:
		return logger.LevelInfo
	}
}
