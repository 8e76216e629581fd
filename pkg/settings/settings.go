// Package settings holds the runtime configuration of chatdesk: which
// assistant backend to use and how to reach it, reply timeouts and the
// history window sent to the backend.
//
// Settings can be decoded from a YAML file and overridden from viper, which in
// turn is fed by flags, CHATDESK_* environment variables and config files.
package settings

import (
	"os"
	"time"

	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/chatdesk/pkg/security"
)

type BackendKind string

const (
	BackendDemo   BackendKind = "demo"
	BackendEcho   BackendKind = "echo"
	BackendOpenAI BackendKind = "openai"
	BackendOllama BackendKind = "ollama"
)

func (b BackendKind) IsValid() bool {
	switch b {
	case BackendDemo, BackendEcho, BackendOpenAI, BackendOllama:
		return true
	default:
		return false
	}
}

const (
	DefaultDemoDelay    = 1500 * time.Millisecond
	DefaultReplyTimeout = 60 * time.Second
	DefaultOpenAIModel  = "gpt-4o-mini"
	DefaultOllamaModel  = "llama2"
)

type Settings struct {
	Backend      BackendKind `yaml:"backend"`
	Model        *string     `yaml:"model,omitempty"`
	APIKey       string      `yaml:"api_key,omitempty"`
	BaseURL      string      `yaml:"base_url,omitempty"`
	SystemPrompt string      `yaml:"system_prompt,omitempty"`
	MaxTokens    int         `yaml:"max_tokens,omitempty"`

	// AllowInsecureBaseURL accepts http and local network base URLs.
	AllowInsecureBaseURL bool `yaml:"allow_insecure_base_url,omitempty"`

	// DemoDelay is how long the demo backend waits before replying.
	DemoDelay time.Duration `yaml:"-"`
	// ReplyTimeout bounds a single backend call. Zero disables the bound.
	ReplyTimeout time.Duration `yaml:"-"`

	HistoryMaxTokens   int `yaml:"history_max_tokens,omitempty"`
	HistoryMaxMessages int `yaml:"history_max_messages,omitempty"`

	UserName string `yaml:"user_name,omitempty"`
}

func NewSettings() *Settings {
	return &Settings{
		Backend:      BackendDemo,
		DemoDelay:    DefaultDemoDelay,
		ReplyTimeout: DefaultReplyTimeout,
	}
}

// UnmarshalYAML reads demo_delay_ms and reply_timeout (seconds) into durations.
func (s *Settings) UnmarshalYAML(value *yaml.Node) error {
	type Alias Settings
	aux := &struct {
		DemoDelayMs  *int `yaml:"demo_delay_ms,omitempty"`
		ReplyTimeout *int `yaml:"reply_timeout,omitempty"`
		*Alias       `yaml:",inline"`
	}{
		Alias: (*Alias)(s),
	}
	if err := value.Decode(aux); err != nil {
		return err
	}
	if aux.DemoDelayMs != nil {
		s.DemoDelay = time.Duration(*aux.DemoDelayMs) * time.Millisecond
	}
	if aux.ReplyTimeout != nil {
		s.ReplyTimeout = time.Duration(*aux.ReplyTimeout) * time.Second
	}
	return nil
}

func (s *Settings) Clone() *Settings {
	return clone.Clone(s).(*Settings)
}

// WithBackend returns a copy of s that uses backend b.
func (s *Settings) WithBackend(b BackendKind) *Settings {
	ret := s.Clone()
	ret.Backend = b
	return ret
}

// ModelOrDefault returns the configured model, falling back to the backend's default.
func (s *Settings) ModelOrDefault() string {
	if s.Model != nil && *s.Model != "" {
		return *s.Model
	}
	switch s.Backend {
	case BackendOllama:
		return DefaultOllamaModel
	default:
		return DefaultOpenAIModel
	}
}

func (s *Settings) Validate() error {
	if !s.Backend.IsValid() {
		return errors.Errorf("unknown backend %q", s.Backend)
	}
	if s.DemoDelay < 0 {
		return errors.New("demo delay must not be negative")
	}
	if s.ReplyTimeout < 0 {
		return errors.New("reply timeout must not be negative")
	}
	if s.HistoryMaxTokens < 0 || s.HistoryMaxMessages < 0 {
		return errors.New("history limits must not be negative")
	}
	if s.Backend == BackendOpenAI && s.APIKey == "" {
		return errors.New("openai backend requires an api key")
	}
	if s.BaseURL != "" {
		err := security.ValidateBaseURL(s.BaseURL, security.BaseURLOptions{AllowInsecure: s.AllowInsecureBaseURL})
		if err != nil {
			return err
		}
	}
	return nil
}

// Parse decodes YAML on top of the defaults.
func Parse(b []byte) (*Settings, error) {
	ret := NewSettings()
	if err := yaml.Unmarshal(b, ret); err != nil {
		return nil, errors.Wrap(err, "could not parse settings")
	}
	return ret, nil
}

func LoadFile(path string) (*Settings, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read settings file %s", path)
	}
	return Parse(b)
}

// Viper keys, shared with the CLI flag names.
const (
	KeySettingsFile       = "settings-file"
	KeyBackend            = "backend"
	KeyModel              = "model"
	KeyAPIKey             = "api-key"
	KeyBaseURL            = "base-url"
	KeyAllowInsecure      = "allow-insecure-base-url"
	KeySystemPrompt       = "system-prompt"
	KeyMaxTokens          = "max-tokens"
	KeyDemoDelay          = "demo-delay"
	KeyReplyTimeout       = "reply-timeout"
	KeyHistoryMaxTokens   = "history-max-tokens"
	KeyHistoryMaxMessages = "history-max-messages"
	KeyUserName           = "user-name"
)

// FromViper loads the settings file named by KeySettingsFile, if any, and
// applies every key explicitly set in v on top of it.
func FromViper(v *viper.Viper) (*Settings, error) {
	ret := NewSettings()
	if path := v.GetString(KeySettingsFile); path != "" {
		var err error
		ret, err = LoadFile(path)
		if err != nil {
			return nil, err
		}
	}

	if v.IsSet(KeyBackend) {
		ret.Backend = BackendKind(v.GetString(KeyBackend))
	}
	if v.IsSet(KeyModel) {
		model := v.GetString(KeyModel)
		ret.Model = &model
	}
	if v.IsSet(KeyAPIKey) {
		ret.APIKey = v.GetString(KeyAPIKey)
	}
	if v.IsSet(KeyBaseURL) {
		ret.BaseURL = v.GetString(KeyBaseURL)
	}
	if v.IsSet(KeyAllowInsecure) {
		ret.AllowInsecureBaseURL = v.GetBool(KeyAllowInsecure)
	}
	if v.IsSet(KeySystemPrompt) {
		ret.SystemPrompt = v.GetString(KeySystemPrompt)
	}
	if v.IsSet(KeyMaxTokens) {
		ret.MaxTokens = v.GetInt(KeyMaxTokens)
	}
	if v.IsSet(KeyDemoDelay) {
		ret.DemoDelay = v.GetDuration(KeyDemoDelay)
	}
	if v.IsSet(KeyReplyTimeout) {
		ret.ReplyTimeout = v.GetDuration(KeyReplyTimeout)
	}
	if v.IsSet(KeyHistoryMaxTokens) {
		ret.HistoryMaxTokens = v.GetInt(KeyHistoryMaxTokens)
	}
	if v.IsSet(KeyHistoryMaxMessages) {
		ret.HistoryMaxMessages = v.GetInt(KeyHistoryMaxMessages)
	}
	if v.IsSet(KeyUserName) {
		ret.UserName = v.GetString(KeyUserName)
	}

	return ret, nil
}
