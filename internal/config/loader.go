package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads configuration in three layers, each overriding the last:
// built-in defaults, an optional YAML file (path from CONFIG_FILE, default
// ./config.yaml; silently skipped if absent), then environment variables
// (optionally from a .env file in the working directory). Env wins so a
// local override always takes precedence over a checked-in YAML file.
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{
		Queue: QueueConfig{
			MaxSize: 1000,
			Workers: 2,
		},
		Dispatch: DispatchConfig{
			ParticleTimeoutSeconds: 300,
			WaveTimeoutSeconds:     60,
			EmbedTimeoutSeconds:    30,
			RequestDeadlineSeconds: 600,
			GracePeriodSeconds:     2,
		},
		Synth: SynthConfig{
			MemoryTopK: 3,
		},
		Memory: MemoryConfig{
			SimilarityThreshold: 0.7,
		},
		Profile: ProfileConfig{
			RecentContextLines: 10,
		},
		Shutdown: ShutdownConfig{
			DrainPeriodSeconds: 30,
		},
		Embedding: EmbeddingConfig{
			Backend: "local",
		},
		Log: LogConfig{
			Level: "info",
		},
		DataRoot:      "./data",
		ControlSocket: "/tmp/qdcd.sock",
	}

	if err := mergeYAMLFile(&cfg, yamlConfigPath()); err != nil {
		return Config{}, err
	}

	if v := intFromEnv("QUEUE_MAXSIZE", 0); v != 0 {
		cfg.Queue.MaxSize = v
	}
	if v := intFromEnv("QUEUE_WORKERS", 0); v != 0 {
		cfg.Queue.Workers = v
	}
	if v := strings.TrimSpace(os.Getenv("QUEUE_CANCELREGISTRY_REDISADDR")); v != "" {
		cfg.Queue.CancelRegistryRedisAddr = v
	}

	if v := intFromEnv("DISPATCH_PARTICLETIMEOUT", 0); v != 0 {
		cfg.Dispatch.ParticleTimeoutSeconds = v
	}
	if v := intFromEnv("DISPATCH_WAVETIMEOUT", 0); v != 0 {
		cfg.Dispatch.WaveTimeoutSeconds = v
	}
	if v := intFromEnv("DISPATCH_EMBEDTIMEOUT", 0); v != 0 {
		cfg.Dispatch.EmbedTimeoutSeconds = v
	}
	if v := intFromEnv("DISPATCH_REQUESTDEADLINE", 0); v != 0 {
		cfg.Dispatch.RequestDeadlineSeconds = v
	}
	if v := intFromEnv("DISPATCH_GRACEPERIOD", 0); v != 0 {
		cfg.Dispatch.GracePeriodSeconds = v
	}

	if v := intFromEnv("SYNTH_MEMORYTOPK", 0); v != 0 {
		cfg.Synth.MemoryTopK = v
	}

	if v := strings.TrimSpace(os.Getenv("MEMORY_SIMILARITYTHRESHOLD")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Memory.SimilarityThreshold = f
		}
	}

	if v := intFromEnv("PROFILE_RECENTCONTEXTLINES", 0); v != 0 {
		cfg.Profile.RecentContextLines = v
	}
	if v := strings.TrimSpace(os.Getenv("PROFILE_TEMPLATEPATH")); v != "" {
		cfg.Profile.TemplatePath = v
	}

	if v := intFromEnv("SHUTDOWN_DRAINPERIOD", 0); v != 0 {
		cfg.Shutdown.DrainPeriodSeconds = v
	}

	if v := strings.TrimSpace(os.Getenv("EMBEDDING_BACKEND")); v != "" {
		cfg.Embedding.Backend = v
	}
	if v := strings.TrimSpace(os.Getenv("EMBEDDING_QDRANT_DSN")); v != "" {
		cfg.Embedding.QdrantDSN = v
	}
	if v := strings.TrimSpace(os.Getenv("EMBEDDING_S3ARCHIVE_BUCKET")); v != "" {
		cfg.Embedding.S3ArchiveBucket = v
	}
	if v := intFromEnv("EMBEDDING_S3ARCHIVE_INTERVAL", 0); v != 0 {
		cfg.Embedding.S3ArchiveIntervalSeconds = v
	}

	if v := strings.TrimSpace(os.Getenv("INFERENCE_GENERATIVE_URL")); v != "" {
		cfg.Inference.GenerativeURL = v
	}
	if v := strings.TrimSpace(os.Getenv("INFERENCE_CONTEXTUAL_URL")); v != "" {
		cfg.Inference.ContextualURL = v
	}
	if v := strings.TrimSpace(os.Getenv("INFERENCE_EMBEDDING_URL")); v != "" {
		cfg.Inference.EmbeddingURL = v
	}
	if v := strings.TrimSpace(os.Getenv("INFERENCE_GENERATIVE_MODEL")); v != "" {
		cfg.Inference.GenerativeModel = v
	}
	if v := strings.TrimSpace(os.Getenv("INFERENCE_CONTEXTUAL_MODEL")); v != "" {
		cfg.Inference.ContextualModel = v
	}
	if v := strings.TrimSpace(os.Getenv("INFERENCE_EMBEDDING_MODEL")); v != "" {
		cfg.Inference.EmbeddingModel = v
	}

	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.Log.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_PATH")); v != "" {
		cfg.Log.Path = v
	}

	if v := strings.TrimSpace(os.Getenv("OTEL_ENDPOINT")); v != "" {
		cfg.Otel.Endpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_SERVICENAME")); v != "" {
		cfg.Otel.ServiceName = v
	} else if cfg.Otel.ServiceName == "" {
		cfg.Otel.ServiceName = "qdc"
	}

	if v := strings.TrimSpace(os.Getenv("CHATADAPTER_KAFKA_BROKERS")); v != "" {
		cfg.ChatAdapter.KafkaBrokers = v
	}
	if v := strings.TrimSpace(os.Getenv("CHATADAPTER_KAFKA_COMMANDSTOPIC")); v != "" {
		cfg.ChatAdapter.KafkaCommandsTopic = v
	}
	if v := strings.TrimSpace(os.Getenv("CHATADAPTER_KAFKA_RESPONSESTOPIC")); v != "" {
		cfg.ChatAdapter.KafkaResponsesTopic = v
	}
	if v := strings.TrimSpace(os.Getenv("CHATADAPTER_KAFKA_GROUPID")); v != "" {
		cfg.ChatAdapter.KafkaGroupID = v
	}

	if v := strings.TrimSpace(os.Getenv("DATA_ROOT")); v != "" {
		cfg.DataRoot = v
	}
	if v := strings.TrimSpace(os.Getenv("CONTROL_SOCKET")); v != "" {
		cfg.ControlSocket = v
	}

	return cfg, nil
}

func yamlConfigPath() string {
	if v := strings.TrimSpace(os.Getenv("CONFIG_FILE")); v != "" {
		return v
	}
	return "./config.yaml"
}

// mergeYAMLFile unmarshals path onto cfg (a field set in the file overrides
// the built-in default already in cfg; a field absent from the file leaves
// cfg's current value in place). A missing file is not an error; a
// malformed one is.
func mergeYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func intFromEnv(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
