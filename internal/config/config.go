// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Audio output modes.
const (
	AudioOutputNone    = "none"
	AudioOutputSpeaker = "speaker"
	AudioOutputStream  = "stream"
)

// Config 存储应用配置
type Config struct {
	Port             string
	DataDir          string
	LogDir           string
	DebugMode        bool
	LogLevel         string
	RelaySecret      string
	RateLimit        int // relay requests per minute per IP, 0 disables
	LLMProvider      string // anthropic or openrouter
	AnthropicAPIKey  string
	OpenRouterAPIKey string
	LLMModel         string // empty selects the provider default
	AudioOutput      string
	AudioDir         string
	ExportCron       string
	SimulationConfig string

	Simulation *SimulationConfig
}

// Load 从环境变量加载配置. A missing .env file is not an error.
func Load() (*Config, error) {
	// 尝试加载.env文件（可选）
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		DataDir:          getEnvPath("DATA_DIR", "data"),
		LogDir:           getEnvPath("LOG_DIR", "logs"),
		DebugMode:        getEnvBool("DEBUG_MODE", false),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		RelaySecret:      getEnv("RELAY_SECRET", ""),
		RateLimit:        getEnvInt("RATE_LIMIT", 600),
		LLMProvider:      getEnv("LLM_PROVIDER", "anthropic"),
		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		OpenRouterAPIKey: getEnv("OPENROUTER_API_KEY", ""),
		LLMModel:         getEnv("LLM_MODEL", ""),
		AudioOutput:      getEnv("AUDIO_OUTPUT", AudioOutputStream),
		AudioDir:         getEnv("AUDIO_DIR", ""),
		ExportCron:       getEnv("EXPORT_CRON", "@every 1m"),
		SimulationConfig: getEnv("SIMULATION_CONFIG", ""),
	}

	switch cfg.AudioOutput {
	case AudioOutputNone, AudioOutputSpeaker, AudioOutputStream:
	default:
		return nil, fmt.Errorf("config: AUDIO_OUTPUT must be none, speaker or stream, got %q", cfg.AudioOutput)
	}

	switch cfg.LLMProvider {
	case "anthropic", "openrouter":
	default:
		return nil, fmt.Errorf("config: LLM_PROVIDER must be anthropic or openrouter, got %q", cfg.LLMProvider)
	}

	if cfg.SimulationConfig != "" {
		sim, err := LoadSimulation(cfg.SimulationConfig)
		if err != nil {
			return nil, err
		}
		cfg.Simulation = sim
	} else {
		cfg.Simulation = DefaultSimulation()
	}

	return cfg, nil
}

// LLMAPIKey is the key of the selected commentary provider. Empty disables
// generated commentary.
func (c *Config) LLMAPIKey() string {
	if c.LLMProvider == "openrouter" {
		return c.OpenRouterAPIKey
	}
	return c.AnthropicAPIKey
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvPath 获取环境变量表示的路径，并确保目录存在
func getEnvPath(key, defaultValue string) string {
	path := getEnv(key, defaultValue)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "警告: 创建目录失败 %s: %v\n", path, err)
		}
	}

	return path
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value == "true" || value == "1" || value == "yes"
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
