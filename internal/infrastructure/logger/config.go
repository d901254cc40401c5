package logger

import "os"

type Config struct {
	Level      Level             `json:"level"       yaml:"level"`
	Format     string            `json:"format"      yaml:"format"` // json, text, console
	Output     string            `json:"output"      yaml:"output"` // stdout, stderr, file
	FilePath   string            `json:"file_path"   yaml:"file_path"`
	MaxSize    int               `json:"max_size"    yaml:"max_size"` // MB
	MaxBackups int               `json:"max_backups" yaml:"max_backups"`
	MaxAge     int               `json:"max_age"     yaml:"max_age"` // days
	Compress   bool              `json:"compress"    yaml:"compress"`
	Fields     map[string]string `json:"fields"      yaml:"fields"` // static fields for container environments
}

func NewDefaultConfig() *Config {
	config := &Config{
		Level:      LevelInfo,
		Format:     "console",
		Output:     "stdout",
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
		Fields:     make(map[string]string),
	}

	if hostname, err := os.Hostname(); err == nil {
		config.Fields["hostname"] = hostname
	}
	if appName := os.Getenv("APP_NAME"); appName != "" {
		config.Fields["app_name"] = appName
	}
	if env := os.Getenv("APP_ENV"); env != "" {
		config.Fields["environment"] = env
	}

	return config
}
