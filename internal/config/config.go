package config

import (
	"time"

	"github.com/spf13/viper"

	"alphamachine/gateway/internal/workspace"
)

type SlackConfig struct {
	SigningSecret string
	BotToken      string
	AppToken      string
}

type LinearConfig struct {
	ReadAPIKey        string
	WriteAPIKey       string
	TeamName          string
	DefaultAssignee   string
	SharedWorkspace   string
	IsolatedWorkspace string
}

type OpenAIConfig struct {
	APIKey          string
	Model           string
	MaxOutputTokens int
	Temperature     float64
}

type Config struct {
	Host   string
	Port   string
	DBPath string

	Slack       SlackConfig
	Linear      LinearConfig
	OpenAI      OpenAIConfig
	NotionToken string

	WritesEnabled   bool
	CacheTTL        time.Duration
	FetchTimeout    time.Duration
	MutationTimeout time.Duration

	WeeklyCron    string
	WeeklyChannel string
}

func Load() Config {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("ALPHA_HOST", "127.0.0.1")
	v.SetDefault("ALPHA_PORT", "8090")
	v.SetDefault("ALPHA_DB_PATH", ".data/alphamachine.db")
	v.SetDefault("ALPHA_WRITES_ENABLED", false)
	v.SetDefault("ALPHA_CACHE_TTL_SECONDS", 300)
	v.SetDefault("ALPHA_FETCH_TIMEOUT_SECONDS", 10)
	v.SetDefault("ALPHA_MUTATION_TIMEOUT_SECONDS", 30)
	v.SetDefault("ALPHA_WEEKLY_CRON", "")
	v.SetDefault("ALPHA_WEEKLY_CHANNEL", "")
	v.SetDefault("LINEAR_TEAM_NAME", "")
	v.SetDefault("LINEAR_DEFAULT_ASSIGNEE", "")
	v.SetDefault("LINEAR_SHARED_WORKSPACE", "shared")
	v.SetDefault("LINEAR_ISOLATED_WORKSPACE", "isolated")
	v.SetDefault("OPENAI_MODEL", "gpt-4.1-mini")
	v.SetDefault("OPENAI_MAX_TOKENS", 16000)
	v.SetDefault("OPENAI_TEMPERATURE", 0.1)

	return Config{
		Host:   v.GetString("ALPHA_HOST"),
		Port:   v.GetString("ALPHA_PORT"),
		DBPath: v.GetString("ALPHA_DB_PATH"),
		Slack: SlackConfig{
			SigningSecret: v.GetString("SLACK_SIGNING_SECRET"),
			BotToken:      v.GetString("SLACK_BOT_TOKEN"),
			AppToken:      v.GetString("SLACK_APP_TOKEN"),
		},
		Linear: LinearConfig{
			ReadAPIKey:        v.GetString("LINEAR_API_KEY"),
			WriteAPIKey:       v.GetString("LINEAR_WRITE_API_KEY"),
			TeamName:          v.GetString("LINEAR_TEAM_NAME"),
			DefaultAssignee:   v.GetString("LINEAR_DEFAULT_ASSIGNEE"),
			SharedWorkspace:   v.GetString("LINEAR_SHARED_WORKSPACE"),
			IsolatedWorkspace: v.GetString("LINEAR_ISOLATED_WORKSPACE"),
		},
		OpenAI: OpenAIConfig{
			APIKey:          v.GetString("OPENAI_API_KEY"),
			Model:           v.GetString("OPENAI_MODEL"),
			MaxOutputTokens: v.GetInt("OPENAI_MAX_TOKENS"),
			Temperature:     v.GetFloat64("OPENAI_TEMPERATURE"),
		},
		NotionToken:     v.GetString("NOTION_TOKEN"),
		WritesEnabled:   v.GetBool("ALPHA_WRITES_ENABLED"),
		CacheTTL:        time.Duration(v.GetInt("ALPHA_CACHE_TTL_SECONDS")) * time.Second,
		FetchTimeout:    time.Duration(v.GetInt("ALPHA_FETCH_TIMEOUT_SECONDS")) * time.Second,
		MutationTimeout: time.Duration(v.GetInt("ALPHA_MUTATION_TIMEOUT_SECONDS")) * time.Second,
		WeeklyCron:      v.GetString("ALPHA_WEEKLY_CRON"),
		WeeklyChannel:   v.GetString("ALPHA_WEEKLY_CHANNEL"),
	}
}

// Credentials builds the immutable two-key pair; it fails fast on a
// misconfigured pair (missing or identical tokens) so the process never starts
// with a write path that could reach the shared workspace.
func (c Config) Credentials() (workspace.CredentialPair, error) {
	return workspace.NewCredentialPair(
		c.Linear.ReadAPIKey,
		c.Linear.WriteAPIKey,
		c.Linear.SharedWorkspace,
		c.Linear.IsolatedWorkspace,
	)
}
