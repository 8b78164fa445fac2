// Package config provides the configuration schema and loader for the
// shuoba server.
package config

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// HistoryBackend selects where the conversation log is stored.
type HistoryBackend string

const (
	// HistoryFile keeps the log in a single JSON file.
	HistoryFile HistoryBackend = "file"

	// HistoryPostgres keeps the log in a chat_messages table.
	HistoryPostgres HistoryBackend = "postgres"
)

// IsValid reports whether b is a recognised history backend.
func (b HistoryBackend) IsValid() bool {
	return b == HistoryFile || b == HistoryPostgres
}

// ChatBackend selects the text generation provider.
type ChatBackend string

const (
	// ChatGroq uses Groq-hosted open-weight models.
	ChatGroq ChatBackend = "groq"

	// ChatGeminiLive uses the Gemini Live WebSocket API.
	ChatGeminiLive ChatBackend = "gemini-live"
)

// IsValid reports whether b is a recognised chat backend.
func (b ChatBackend) IsValid() bool {
	return b == ChatGroq || b == ChatGeminiLive
}

// Config is the root configuration, typically loaded from YAML via [Load].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	History   HistoryConfig   `yaml:"history"`
}

// ServerConfig holds network and upload settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g. ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// StaticDir is the directory synthesized clips are written to and
	// served from.
	StaticDir string `yaml:"static_dir"`

	// MaxUploadBytes caps the size of one audio upload.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig configures the external AI backends.
type ProvidersConfig struct {
	STT  STTConfig  `yaml:"stt"`
	Chat ChatConfig `yaml:"chat"`
	TTS  TTSConfig  `yaml:"tts"`
}

// STTConfig configures the Groq Whisper transcription backend.
type STTConfig struct {
	// APIKey authenticates against Groq. Supports ${VAR} expansion.
	APIKey string `yaml:"api_key"`

	// Model is the Whisper model name.
	Model string `yaml:"model"`

	// Language is the ISO-639-1 recognition hint.
	Language string `yaml:"language"`
}

// ChatConfig configures the dialogue/translation backend.
type ChatConfig struct {
	// Name selects the backend implementation.
	Name ChatBackend `yaml:"name"`

	// APIKey authenticates against the selected backend.
	APIKey string `yaml:"api_key"`

	// Model overrides the backend's default model.
	Model string `yaml:"model"`
}

// TTSConfig configures the synthesis failover chain.
type TTSConfig struct {
	// Order lists providers by priority; the first healthy one wins.
	Order []string `yaml:"order"`

	Gemini GeminiTTSConfig `yaml:"gemini"`
	GTTS   GTTSConfig      `yaml:"gtts"`
}

// GeminiTTSConfig configures the Gemini speech generation provider.
type GeminiTTSConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
	Voice  string `yaml:"voice"`
}

// GTTSConfig configures the Google Translate TTS provider.
type GTTSConfig struct {
	Language string `yaml:"language"`
}

// HistoryConfig selects and configures the conversation log backend.
type HistoryConfig struct {
	// Backend selects the store implementation.
	Backend HistoryBackend `yaml:"backend"`

	// FilePath is the JSON log location for the file backend.
	FilePath string `yaml:"file_path"`

	// PostgresDSN is the connection string for the postgres backend.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// knownTTSProviders lists valid entries for providers.tts.order.
var knownTTSProviders = []string{"gemini", "gtts"}

// applyDefaults fills zero fields with working defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.StaticDir == "" {
		cfg.Server.StaticDir = "static/audio"
	}
	if cfg.Server.MaxUploadBytes <= 0 {
		cfg.Server.MaxUploadBytes = 10 << 20
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Providers.STT.Model == "" {
		cfg.Providers.STT.Model = "whisper-large-v3"
	}
	if cfg.Providers.STT.Language == "" {
		cfg.Providers.STT.Language = "zh"
	}
	if cfg.Providers.Chat.Name == "" {
		cfg.Providers.Chat.Name = ChatGroq
	}
	if len(cfg.Providers.TTS.Order) == 0 {
		cfg.Providers.TTS.Order = []string{"gemini", "gtts"}
	}
	if cfg.Providers.TTS.Gemini.Model == "" {
		cfg.Providers.TTS.Gemini.Model = "gemini-2.5-flash-preview-tts"
	}
	if cfg.Providers.TTS.Gemini.Voice == "" {
		cfg.Providers.TTS.Gemini.Voice = "Zephyr"
	}
	if cfg.Providers.TTS.GTTS.Language == "" {
		cfg.Providers.TTS.GTTS.Language = "zh-CN"
	}
	if cfg.History.Backend == "" {
		cfg.History.Backend = HistoryFile
	}
	if cfg.History.FilePath == "" {
		cfg.History.FilePath = "chat_history.json"
	}
}
