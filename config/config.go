package config

import (
	"database/sql"
	"errors"
	_ "github.com/lib/pq"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"strings"
	"time"
)

type Config struct {
	MinIOBucket string        `yaml:"minio_bucket"`
	App         App           `yaml:"app"`
	DB          *sql.DB       `yaml:"db"`
	Queue       *RabbitMQ     `yaml:"rabbitmq"`
	Storage     *minio.Client `yaml:"storage"`
	Redis       *redis.Client `yaml:"redis"`
	Server      Server        `yaml:"server"`
	Upload      Upload        `yaml:"upload"`
	Pipeline    Pipeline      `yaml:"pipeline"`
	Whisper     Whisper       `yaml:"whisper"`
	FFmpeg      FFmpeg        `yaml:"ffmpeg"`
	OpenAI      OpenAI        `yaml:"openai"`
	Watchdog    Watchdog      `yaml:"watchdog"`
}

type App struct {
	Environment string `yaml:"environment"`
	Host        string `yaml:"host"`
	Protocol    string `yaml:"protocol"`
}

type Server struct {
	HttpPort      string `yaml:"http_port"`
	Workers       int    `yaml:"workers"`
	TriggerLimit  int    `yaml:"trigger_limit"`
	TriggerWindow time.Duration
}

type RabbitMQ struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	User         string `json:"user"`
	Pass         string `json:"pass"`
	ExchangeName string `json:"exchange_name"`
	Kind         string `json:"kind"`
}

type Upload struct {
	Dir string `yaml:"upload_dir"`
}

type Pipeline struct {
	Language         string
	TargetLanguage   string
	Accent           string
	TranslationBatch int
	PhoneticBatch    int
	GrammarBatch     int
	ThumbnailAt      float64
}

type Whisper struct {
	Binary   string
	Model    string
	ModelDir string
	Slots    int
}

type FFmpeg struct {
	FFmpeg  string
	FFprobe string
}

type OpenAI struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type Watchdog struct {
	Interval     time.Duration
	StuckTimeout time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "develop")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.workers", 2)
	v.SetDefault("server.trigger_limit", 10)
	v.SetDefault("server.trigger_window", time.Minute)
	v.SetDefault("rabbitmq_port", 5672)
	v.SetDefault("rabbitmq_kind", "direct")
	v.SetDefault("storage.upload_dir", "uploads")
	v.SetDefault("pipeline.language", "en")
	v.SetDefault("pipeline.target_language", "Chinese")
	v.SetDefault("pipeline.accent", "American")
	v.SetDefault("pipeline.translation_batch", 20)
	v.SetDefault("pipeline.phonetic_batch", 20)
	v.SetDefault("pipeline.grammar_batch", 5)
	v.SetDefault("pipeline.thumbnail_at", 1.0)
	v.SetDefault("whisper.binary", "whisper")
	v.SetDefault("whisper.model", "medium")
	v.SetDefault("whisper.slots", 1)
	v.SetDefault("ffmpeg.ffmpeg", "ffmpeg")
	v.SetDefault("ffmpeg.ffprobe", "ffprobe")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.timeout", time.Minute)
	v.SetDefault("watchdog.interval", 5*time.Minute)
	v.SetDefault("watchdog.stuck_timeout", time.Hour)
}

// Read loads config.yaml from path (if present) plus environment overrides.
// Env keys replace "." with "_", e.g. WATCHDOG_STUCK_TIMEOUT.
func Read(path string) (*viper.Viper, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}
	return v, nil
}

// Settings maps plain values without opening any connection.
func Settings(v *viper.Viper) *Config {
	return &Config{
		MinIOBucket: v.GetString("minio.bucket"),
		App: App{
			Environment: v.GetString("app.environment"),
			Host:        v.GetString("app.host"),
			Protocol:    v.GetString("app.protocol"),
		},
		Server: Server{
			HttpPort:      v.GetString("server.port"),
			Workers:       v.GetInt("server.workers"),
			TriggerLimit:  v.GetInt("server.trigger_limit"),
			TriggerWindow: v.GetDuration("server.trigger_window"),
		},
		Queue: &RabbitMQ{
			Host: v.GetString("rabbitmq_host"),
			Port: v.GetInt("rabbitmq_port"),
			User: v.GetString("rabbitmq_user"),
			Pass: v.GetString("rabbitmq_pass"),
			Kind: v.GetString("rabbitmq_kind"),
		},
		Upload: Upload{Dir: v.GetString("storage.upload_dir")},
		Pipeline: Pipeline{
			Language:         v.GetString("pipeline.language"),
			TargetLanguage:   v.GetString("pipeline.target_language"),
			Accent:           v.GetString("pipeline.accent"),
			TranslationBatch: v.GetInt("pipeline.translation_batch"),
			PhoneticBatch:    v.GetInt("pipeline.phonetic_batch"),
			GrammarBatch:     v.GetInt("pipeline.grammar_batch"),
			ThumbnailAt:      v.GetFloat64("pipeline.thumbnail_at"),
		},
		Whisper: Whisper{
			Binary:   v.GetString("whisper.binary"),
			Model:    v.GetString("whisper.model"),
			ModelDir: v.GetString("whisper.model_dir"),
			Slots:    v.GetInt("whisper.slots"),
		},
		FFmpeg: FFmpeg{
			FFmpeg:  v.GetString("ffmpeg.ffmpeg"),
			FFprobe: v.GetString("ffmpeg.ffprobe"),
		},
		OpenAI: OpenAI{
			BaseURL: v.GetString("openai.base_url"),
			APIKey:  v.GetString("openai.api_key"),
			Model:   v.GetString("openai.model"),
			Timeout: v.GetDuration("openai.timeout"),
		},
		Watchdog: Watchdog{
			Interval:     v.GetDuration("watchdog.interval"),
			StuckTimeout: v.GetDuration("watchdog.stuck_timeout"),
		},
	}
}

// Load reads the configuration and opens the database, object storage and
// redis handles. MinIO and Redis stay nil when their address is not set.
func Load(path string) (*Config, error) {
	v, err := Read(path)
	if err != nil {
		return nil, err
	}
	cfg := Settings(v)

	db, err := sql.Open("postgres", v.GetString("postgresql_host"))
	if err != nil {
		return nil, err
	}
	cfg.DB = db

	if url := v.GetString("minio.url"); url != "" {
		minioClient, err := minio.New(url, &minio.Options{
			Creds:  credentials.NewStaticV4(v.GetString("minio.access_id"), v.GetString("minio.secret_access_key"), ""),
			Secure: v.GetBool("minio.secure"),
		})
		if err != nil {
			return nil, err
		}
		cfg.Storage = minioClient
	}

	if addr := v.GetString("redis.addr"); addr != "" {
		cfg.Redis = NewRedisClient(addr, v.GetString("redis.password"), v.GetInt("redis.db"))
	}

	return cfg, nil
}
