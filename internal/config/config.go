package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env         string        `yaml:"env" env-required:"true"`
	StoragePath string        `yaml:"storage_path" env-required:"true"`
	TokenTTL    time.Duration `yaml:"token_ttl" env-default:"1h"`
	HTTPServer  `yaml:"http_server"`
	Editor      `yaml:"editor"`
	AutoSave    `yaml:"autosave"`
	Preview     `yaml:"preview"`
	Render      `yaml:"render"`
}

type HTTPServer struct {
	Address      string        `yaml:"address" env-default:"localhost:8080"`
	Timeout      time.Duration `yaml:"timeout" env-default:"4s"`
	IddleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

type Editor struct {
	DefaultClipDuration time.Duration `yaml:"default_clip_duration" env-default:"5s"`
	MaxClipDuration     time.Duration `yaml:"max_clip_duration" env-default:"30s"`
	SnapDistance        time.Duration `yaml:"snap_distance" env-default:"500ms"`
}

type AutoSave struct {
	Dir      string        `yaml:"dir" env-default:"./snapshots"`
	Interval time.Duration `yaml:"interval" env-default:"30s"`
}

type Preview struct {
	MinBufferTime time.Duration `yaml:"min_buffer_time" env-default:"2s"`
}

type Render struct {
	Address      string        `yaml:"address" env-required:"true"`
	Timeout      time.Duration `yaml:"timeout" env-default:"5m"`
	RetriesCount int           `yaml:"retries_count" env-default:"3"`
}

func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		panic("config path is empty")
	}

	return MustLoadPath(configPath)
}

func MustLoadPath(configPath string) *Config {
	// check if file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("cannot read config: " + err.Error())
	}

	return &cfg
}

// fetchConfigPath fetches config path from command line flag or environment variable.
// Priority: flag > env > default.
// Default value is empty string.
func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}
