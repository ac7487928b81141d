// Package config loads the Quantum Dispatch Core's configuration from
// environment variables (with an optional .env file), applying defaults for
// everything spec.md §6 enumerates plus the ambient keys the supporting
// stack needs, grounded on the teacher's internal/config.Load pattern.
package config

// Config is the fully resolved runtime configuration for the dispatch core.
// Every field also carries a yaml tag, since Load reads an optional YAML
// file before applying env overrides. YAML keys nest by section but use the
// tag names below (e.g. dispatch.particleTimeoutSeconds), so several of them
// differ from spec §6's dotted key names that the env variables follow.
type Config struct {
	Queue         QueueConfig       `yaml:"queue"`
	Dispatch      DispatchConfig    `yaml:"dispatch"`
	Synth         SynthConfig       `yaml:"synth"`
	Memory        MemoryConfig      `yaml:"memory"`
	Profile       ProfileConfig     `yaml:"profile"`
	Shutdown      ShutdownConfig    `yaml:"shutdown"`
	Embedding     EmbeddingConfig   `yaml:"embedding"`
	Inference     InferenceConfig   `yaml:"inference"`
	Log           LogConfig         `yaml:"log"`
	Otel          OtelConfig        `yaml:"otel"`
	ChatAdapter   ChatAdapterConfig `yaml:"chatadapter"`
	DataRoot      string            `yaml:"dataRoot"`
	ControlSocket string            `yaml:"controlSocket"`
}

type QueueConfig struct {
	MaxSize                 int    `yaml:"maxSize"`
	Workers                 int    `yaml:"workers"`
	CancelRegistryRedisAddr string `yaml:"cancelRegistryRedisAddr"`
}

type DispatchConfig struct {
	ParticleTimeoutSeconds int `yaml:"particleTimeoutSeconds"`
	WaveTimeoutSeconds     int `yaml:"waveTimeoutSeconds"`
	EmbedTimeoutSeconds    int `yaml:"embedTimeoutSeconds"`
	RequestDeadlineSeconds int `yaml:"requestDeadlineSeconds"`
	GracePeriodSeconds     int `yaml:"gracePeriodSeconds"`
}

type SynthConfig struct {
	MemoryTopK int `yaml:"memoryTopK"`
}

type MemoryConfig struct {
	SimilarityThreshold float64 `yaml:"similarityThreshold"`
}

type ProfileConfig struct {
	RecentContextLines int    `yaml:"recentContextLines"`
	TemplatePath       string `yaml:"templatePath"`
}

type ShutdownConfig struct {
	DrainPeriodSeconds int `yaml:"drainPeriodSeconds"`
}

type EmbeddingConfig struct {
	Backend                  string `yaml:"backend"` // "local" or "qdrant"
	QdrantDSN                string `yaml:"qdrantDSN"`
	S3ArchiveBucket          string `yaml:"s3ArchiveBucket"`
	S3ArchiveIntervalSeconds int    `yaml:"s3ArchiveIntervalSeconds"`
}

type InferenceConfig struct {
	GenerativeURL   string `yaml:"generativeURL"`
	ContextualURL   string `yaml:"contextualURL"`
	EmbeddingURL    string `yaml:"embeddingURL"`
	GenerativeModel string `yaml:"generativeModel"`
	ContextualModel string `yaml:"contextualModel"`
	EmbeddingModel  string `yaml:"embeddingModel"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Path  string `yaml:"path"`
}

type OtelConfig struct {
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"serviceName"`
}

type ChatAdapterConfig struct {
	KafkaBrokers        string `yaml:"kafkaBrokers"`
	KafkaCommandsTopic  string `yaml:"kafkaCommandsTopic"`
	KafkaResponsesTopic string `yaml:"kafkaResponsesTopic"`
	KafkaGroupID        string `yaml:"kafkaGroupID"`
}
