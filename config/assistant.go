package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// LLMConfig selects one language-model provider.
type LLMConfig struct {
	Type      string `toml:"type"` // openai | anthropic | vertex
	APIKey    string `toml:"-"`
	BaseURL   string `toml:"base_url"`
	Model     string `toml:"model"`
	ProjectID string `toml:"project_id"`
	Location  string `toml:"location"`
}

type AssistantConfig struct {
	Cooldown          time.Duration `toml:"cooldown"`
	DailyLimit        int           `toml:"daily_limit"`
	HistoryCap        int           `toml:"history_cap"`
	MaxToolRounds     int           `toml:"max_tool_rounds"`
	PrimaryTimeout    time.Duration `toml:"primary_timeout"`
	ResumeDelay       time.Duration `toml:"resume_delay"`
	ContinuousEnabled bool          `toml:"continuous"`
	ResumeAfterCancel bool          `toml:"resume_after_cancel"`
	Timezone          string        `toml:"timezone"`
	Locale            string        `toml:"locale"`

	PrimaryLLM   LLMConfig `toml:"primary"`
	SecondaryLLM LLMConfig `toml:"secondary"`

	SynthesisOrder   []string `toml:"synthesis_order"`
	DeviceVoice      string   `toml:"device_voice"`
	ElevenLabsAPIKey string   `toml:"-"`
	ElevenLabsVoice  string   `toml:"elevenlabs_voice"`
	ElevenLabsModel  string   `toml:"elevenlabs_model"`
	GoogleTTSVoice   string   `toml:"google_voice"`
	AudioCacheBucket string   `toml:"audio_cache_bucket"`

	ToolServerURL   string        `toml:"tool_server_url"`
	ToolServerToken string        `toml:"-"`
	DisabledTools   []string      `toml:"disabled_tools"`
	ReadCacheTTL    time.Duration `toml:"read_cache_ttl"`

	RateLimitBackend string `toml:"rate_limit_backend"` // redis | sqlite
}

// DefaultAssistant returns the built-in engine constants.
func DefaultAssistant() AssistantConfig {
	return AssistantConfig{
		Cooldown:          6 * time.Second,
		DailyLimit:        200,
		HistoryCap:        12,
		MaxToolRounds:     3,
		PrimaryTimeout:    20 * time.Second,
		ResumeDelay:       500 * time.Millisecond,
		ContinuousEnabled: true,
		ResumeAfterCancel: true,
		Timezone:          "Local",
		Locale:            "en-US",
		PrimaryLLM:        LLMConfig{Type: "openai", Model: "gpt-4o-mini"},
		SecondaryLLM:      LLMConfig{Type: "vertex", Model: "gemini-1.5-flash", Location: "us-central1"},
		SynthesisOrder:    []string{"elevenlabs", "google"},
		DeviceVoice:       "en-US",
		ElevenLabsModel:   "eleven_flash_v2_5",
		GoogleTTSVoice:    "en-US-Neural2-F",
		ReadCacheTTL:      30 * time.Second,
		RateLimitBackend:  "redis",
	}
}

// LoadAssistant reads env over the defaults, then overlays ASSISTANT_CONFIG_FILE if set.
// Secrets only come from env.
func LoadAssistant() (AssistantConfig, error) {
	cfg := DefaultAssistant()

	if path := os.Getenv("ASSISTANT_CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	cfg.Cooldown = getEnvDuration("ASSISTANT_COOLDOWN", cfg.Cooldown)
	cfg.DailyLimit = getEnvInt("ASSISTANT_DAILY_LIMIT", cfg.DailyLimit)
	cfg.HistoryCap = getEnvInt("ASSISTANT_HISTORY_CAP", cfg.HistoryCap)
	cfg.MaxToolRounds = getEnvInt("ASSISTANT_MAX_TOOL_ROUNDS", cfg.MaxToolRounds)
	cfg.PrimaryTimeout = getEnvDuration("ASSISTANT_PRIMARY_TIMEOUT", cfg.PrimaryTimeout)
	cfg.ResumeDelay = getEnvDuration("ASSISTANT_RESUME_DELAY", cfg.ResumeDelay)
	cfg.ContinuousEnabled = getEnvBool("ASSISTANT_CONTINUOUS", cfg.ContinuousEnabled)
	cfg.ResumeAfterCancel = getEnvBool("ASSISTANT_RESUME_AFTER_CANCEL", cfg.ResumeAfterCancel)
	cfg.Timezone = getEnv("ASSISTANT_TIMEZONE", cfg.Timezone)
	cfg.Locale = getEnv("ASSISTANT_LOCALE", cfg.Locale)

	cfg.PrimaryLLM.Type = getEnv("LLM_PRIMARY", cfg.PrimaryLLM.Type)
	cfg.PrimaryLLM.Model = getEnv("LLM_PRIMARY_MODEL", cfg.PrimaryLLM.Model)
	cfg.PrimaryLLM.BaseURL = getEnv("LLM_PRIMARY_BASE_URL", cfg.PrimaryLLM.BaseURL)
	cfg.PrimaryLLM.APIKey = apiKeyFor(cfg.PrimaryLLM.Type)
	cfg.SecondaryLLM.Type = getEnv("LLM_SECONDARY", cfg.SecondaryLLM.Type)
	cfg.SecondaryLLM.Model = getEnv("LLM_SECONDARY_MODEL", cfg.SecondaryLLM.Model)
	cfg.SecondaryLLM.APIKey = apiKeyFor(cfg.SecondaryLLM.Type)
	cfg.SecondaryLLM.ProjectID = getEnv("GCP_PROJECT_ID", cfg.SecondaryLLM.ProjectID)
	cfg.SecondaryLLM.Location = getEnv("GCP_LOCATION", cfg.SecondaryLLM.Location)
	if cfg.PrimaryLLM.Type == "vertex" {
		cfg.PrimaryLLM.ProjectID = cfg.SecondaryLLM.ProjectID
		cfg.PrimaryLLM.Location = cfg.SecondaryLLM.Location
	}

	if v := os.Getenv("TTS_ORDER"); v != "" {
		cfg.SynthesisOrder = splitList(v)
	}
	cfg.DeviceVoice = getEnv("TTS_DEVICE_VOICE", cfg.DeviceVoice)
	cfg.ElevenLabsAPIKey = os.Getenv("ELEVENLABS_API_KEY")
	cfg.ElevenLabsVoice = getEnv("ELEVENLABS_VOICE_ID", cfg.ElevenLabsVoice)
	cfg.ElevenLabsModel = getEnv("ELEVENLABS_MODEL_ID", cfg.ElevenLabsModel)
	cfg.GoogleTTSVoice = getEnv("GOOGLE_TTS_VOICE", cfg.GoogleTTSVoice)
	cfg.AudioCacheBucket = getEnv("AUDIO_CACHE_BUCKET", cfg.AudioCacheBucket)

	cfg.ToolServerURL = getEnv("TOOL_SERVER_URL", cfg.ToolServerURL)
	cfg.ToolServerToken = os.Getenv("TOOL_SERVER_TOKEN")
	if v := os.Getenv("ASSISTANT_DISABLED_TOOLS"); v != "" {
		cfg.DisabledTools = splitList(v)
	}
	cfg.ReadCacheTTL = getEnvDuration("TOOL_READ_CACHE_TTL", cfg.ReadCacheTTL)
	cfg.RateLimitBackend = getEnv("RATE_LIMIT_BACKEND", cfg.RateLimitBackend)

	return cfg, cfg.Validate()
}

func (c AssistantConfig) Validate() error {
	switch {
	case c.Cooldown <= 0:
		return errors.New("cooldown must be positive")
	case c.DailyLimit <= 0:
		return errors.New("daily limit must be positive")
	case c.HistoryCap <= 0 || c.HistoryCap%2 != 0:
		return errors.New("history cap must be a positive even number")
	case c.MaxToolRounds <= 0:
		return errors.New("max tool rounds must be positive")
	case c.ResumeDelay < 0:
		return errors.New("resume delay must not be negative")
	}
	switch c.RateLimitBackend {
	case "redis", "sqlite":
	default:
		return fmt.Errorf("unknown rate limit backend %q", c.RateLimitBackend)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	return nil
}

// Location is the zone used to decide when the daily quota rolls over.
func (c AssistantConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

func apiKeyFor(providerType string) string {
	switch providerType {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	}
	return ""
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
