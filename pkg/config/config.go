package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	Milvus    MilvusConfig
	Neo4j     Neo4jConfig
	LLM       LLMConfig
	Pipeline  PipelineConfig
	WebSearch WebSearchConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type MilvusConfig struct {
	Endpoint       string
	CollectionName string
	VectorDim      int
}

type Neo4jConfig struct {
	Enabled  bool
	URI      string
	Username string
	Password string
	Database string
}

type LLMConfig struct {
	Model          string
	APIKey         string
	Temperature    float32
	MaxTokens      int
	TimeoutSec     int
	EmbeddingModel string
}

// PipelineConfig seeds the runtime config store; these are the immutable
// defaults, admin overrides are layered on top at runtime.
type PipelineConfig struct {
	RelevanceThreshold            float64
	ToneThreshold                 float64
	CompletenessThreshold         float64
	PolicyComplianceThreshold     float64
	SimilarityThreshold           float64
	MaxResultsPerSearch           int
	MaxImprovementRounds          int
	RegressionSimilarityThreshold float64
}

type WebSearchConfig struct {
	Enabled    bool
	PortalURL  string
	MaxResults int
	TimeoutSec int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/civic-agent")

	viper.SetEnvPrefix("CIVIC_AGENT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 120)
	viper.SetDefault("server.writeTimeout", 120)
	viper.SetDefault("server.bodyLimit", 1048576)

	viper.SetDefault("sqlite.path", "./data/civicagent.db")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("milvus.endpoint", "localhost:19530")
	viper.SetDefault("milvus.collectionName", "civic_docs")
	viper.SetDefault("milvus.vectorDim", 1536)

	viper.SetDefault("neo4j.enabled", false)
	viper.SetDefault("neo4j.uri", "bolt://localhost:7687")
	viper.SetDefault("neo4j.username", "neo4j")
	viper.SetDefault("neo4j.password", "password")
	viper.SetDefault("neo4j.database", "neo4j")

	viper.SetDefault("llm.model", "gpt-4")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.maxTokens", 2048)
	viper.SetDefault("llm.timeoutSec", 60)
	viper.SetDefault("llm.embeddingModel", "text-embedding-3-large")

	viper.SetDefault("pipeline.relevanceThreshold", 0.70)
	viper.SetDefault("pipeline.toneThreshold", 0.60)
	viper.SetDefault("pipeline.completenessThreshold", 0.70)
	viper.SetDefault("pipeline.policyComplianceThreshold", 0.80)
	viper.SetDefault("pipeline.similarityThreshold", 0.65)
	viper.SetDefault("pipeline.maxResultsPerSearch", 5)
	viper.SetDefault("pipeline.maxImprovementRounds", 2)
	viper.SetDefault("pipeline.regressionSimilarityThreshold", 0.70)

	viper.SetDefault("websearch.enabled", false)
	viper.SetDefault("websearch.maxResults", 3)
	viper.SetDefault("websearch.timeoutSec", 10)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
