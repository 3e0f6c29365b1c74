package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/livekit/protocol/livekit"
)

// Config holds the configuration for the worker.
type Config struct {
	// LiveKit configuration
	LiveKitURL         string
	LiveKitAPIKey      string
	LiveKitAPISecret   string
	AgentName          string
	Namespace          string
	JobType            livekit.JobType
	DrainTimeout       time.Duration
	MaxConcurrentJobs  int
	LogLevel           string
	PProfAddr          string
	LoadUpdateInterval time.Duration

	// Speech recognition (Deepgram)
	DeepgramAPIKey string
	DeepgramModel  string
	STTSampleRate  int

	// Translation / synthesis (OpenAI)
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	TranslationModel string
	SynthesisModel   string
	SynthesisVoice   string

	// Source language of the speaking participant
	SourceLanguage string
}

// Load loads configuration from environment variables and flags.
func Load() (*Config, error) {
	cfg := &Config{}

	// Set defaults
	cfg.JobType = livekit.JobType_JT_ROOM
	cfg.DrainTimeout = 30 * time.Second
	cfg.MaxConcurrentJobs = 8
	cfg.LogLevel = "info"
	cfg.LoadUpdateInterval = 5 * time.Second
	cfg.DeepgramModel = "nova-2"
	cfg.STTSampleRate = 16000
	cfg.TranslationModel = "gpt-4o-mini"
	cfg.SynthesisModel = "tts-1"
	cfg.SynthesisVoice = "alloy"
	cfg.SourceLanguage = "en"

	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	// Load from environment
	cfg.LiveKitURL = getEnv("LIVEKIT_URL", "")
	cfg.LiveKitAPIKey = getEnv("LIVEKIT_API_KEY", "")
	cfg.LiveKitAPISecret = getEnv("LIVEKIT_API_SECRET", "")
	cfg.AgentName = getEnv("LK_AGENT_NAME", "")
	cfg.Namespace = getEnv("LK_NAMESPACE", "")
	cfg.PProfAddr = getEnv("LK_PPROF_ADDR", "")
	cfg.DeepgramAPIKey = getEnv("DEEPGRAM_API_KEY", "")
	cfg.DeepgramModel = getEnv("DEEPGRAM_MODEL", cfg.DeepgramModel)
	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", "")
	cfg.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", "")
	cfg.TranslationModel = getEnv("TRANSLATION_MODEL", cfg.TranslationModel)
	cfg.SynthesisModel = getEnv("SYNTHESIS_MODEL", cfg.SynthesisModel)
	cfg.SynthesisVoice = getEnv("SYNTHESIS_VOICE", cfg.SynthesisVoice)
	cfg.SourceLanguage = getEnv("SOURCE_LANGUAGE", cfg.SourceLanguage)

	if rateStr := getEnv("STT_SAMPLE_RATE", ""); rateStr != "" {
		if n, err := strconv.Atoi(rateStr); err == nil && n > 0 {
			cfg.STTSampleRate = n
		}
	}

	if drainTimeoutStr := getEnv("LK_DRAIN_TIMEOUT", ""); drainTimeoutStr != "" {
		if d, err := time.ParseDuration(drainTimeoutStr); err == nil {
			cfg.DrainTimeout = d
		}
	}

	if maxJobsStr := getEnv("LK_MAX_CONCURRENT_JOBS", ""); maxJobsStr != "" {
		if n, err := strconv.Atoi(maxJobsStr); err == nil && n > 0 {
			cfg.MaxConcurrentJobs = n
		}
	}

	if logLevel := getEnv("LK_LOG_LEVEL", ""); logLevel != "" {
		cfg.LogLevel = logLevel
	}

	// Override with flags
	flag.StringVar(&cfg.LiveKitURL, "url", cfg.LiveKitURL, "LiveKit server URL")
	flag.StringVar(&cfg.LiveKitAPIKey, "api-key", cfg.LiveKitAPIKey, "LiveKit API key")
	flag.StringVar(&cfg.LiveKitAPISecret, "api-secret", cfg.LiveKitAPISecret, "LiveKit API secret")
	flag.StringVar(&cfg.AgentName, "agent-name", cfg.AgentName, "Agent name")
	flag.StringVar(&cfg.Namespace, "namespace", cfg.Namespace, "Namespace")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	flag.StringVar(&cfg.PProfAddr, "pprof-addr", cfg.PProfAddr, "pprof HTTP server address")
	flag.DurationVar(&cfg.DrainTimeout, "drain-timeout", cfg.DrainTimeout, "Drain timeout")
	flag.IntVar(&cfg.MaxConcurrentJobs, "max-jobs", cfg.MaxConcurrentJobs, "Maximum concurrent jobs")
	flag.StringVar(&cfg.SourceLanguage, "source-language", cfg.SourceLanguage, "Source language code of the host")
	flag.Parse()

	// Validate required fields
	if cfg.LiveKitURL == "" {
		return nil, fmt.Errorf("LIVEKIT_URL is required")
	}
	if cfg.LiveKitAPIKey == "" {
		return nil, fmt.Errorf("LIVEKIT_API_KEY is required")
	}
	if cfg.LiveKitAPISecret == "" {
		return nil, fmt.Errorf("LIVEKIT_API_SECRET is required")
	}
	if cfg.DeepgramAPIKey == "" {
		return nil, fmt.Errorf("DEEPGRAM_API_KEY is required")
	}
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
