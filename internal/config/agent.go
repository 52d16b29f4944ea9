package config

import (
	"fmt"
	"os"

	gaconfig "github.com/JaimeStill/go-agents/pkg/config"
)

// agentEnv maps go-agents config fields to environment variable names so each
// stage agent can be overridden independently.
type agentEnv struct {
	ProviderName string
	BaseURL      string
	Token        string
	Deployment   string
	APIVersion   string
	AuthType     string
	ModelName    string
}

var classifierEnv = &agentEnv{
	ProviderName: "CONDUCTOR_CLASSIFIER_PROVIDER_NAME",
	BaseURL:      "CONDUCTOR_CLASSIFIER_BASE_URL",
	Token:        "CONDUCTOR_CLASSIFIER_TOKEN",
	Deployment:   "CONDUCTOR_CLASSIFIER_DEPLOYMENT",
	APIVersion:   "CONDUCTOR_CLASSIFIER_API_VERSION",
	AuthType:     "CONDUCTOR_CLASSIFIER_AUTH_TYPE",
	ModelName:    "CONDUCTOR_CLASSIFIER_MODEL_NAME",
}

var summarizerEnv = &agentEnv{
	ProviderName: "CONDUCTOR_SUMMARIZER_PROVIDER_NAME",
	BaseURL:      "CONDUCTOR_SUMMARIZER_BASE_URL",
	Token:        "CONDUCTOR_SUMMARIZER_TOKEN",
	Deployment:   "CONDUCTOR_SUMMARIZER_DEPLOYMENT",
	APIVersion:   "CONDUCTOR_SUMMARIZER_API_VERSION",
	AuthType:     "CONDUCTOR_SUMMARIZER_AUTH_TYPE",
	ModelName:    "CONDUCTOR_SUMMARIZER_MODEL_NAME",
}

// AgentsConfig holds the go-agents configurations for the model-backed stages.
type AgentsConfig struct {
	Classifier gaconfig.AgentConfig `toml:"classifier"`
	Summarizer gaconfig.AgentConfig `toml:"summarizer"`
}

// Finalize applies defaults, environment variable overrides, and validation
// to each stage agent.
func (c *AgentsConfig) Finalize() error {
	if err := finalizeAgent(&c.Classifier, "classifier", classifierEnv); err != nil {
		return fmt.Errorf("classifier: %w", err)
	}
	if err := finalizeAgent(&c.Summarizer, "summarizer", summarizerEnv); err != nil {
		return fmt.Errorf("summarizer: %w", err)
	}
	return nil
}

// Merge overwrites non-zero fields from overlay for each stage agent.
func (c *AgentsConfig) Merge(overlay *AgentsConfig) {
	c.Classifier.Merge(&overlay.Classifier)
	c.Summarizer.Merge(&overlay.Summarizer)
}

func finalizeAgent(c *gaconfig.AgentConfig, name string, env *agentEnv) error {
	loadAgentDefaults(c, name)
	loadAgentEnv(c, env)
	return validateAgent(c)
}

func loadAgentDefaults(c *gaconfig.AgentConfig, name string) {
	defaults := gaconfig.DefaultAgentConfig()
	defaults.Merge(c)
	*c = defaults

	if c.Name == "" {
		c.Name = name
	}
}

func loadAgentEnv(c *gaconfig.AgentConfig, env *agentEnv) {
	if c.Provider == nil {
		c.Provider = &gaconfig.ProviderConfig{}
	}
	if c.Provider.Options == nil {
		c.Provider.Options = make(map[string]any)
	}
	if c.Model == nil {
		c.Model = &gaconfig.ModelConfig{}
	}
	if v := os.Getenv(env.ProviderName); v != "" {
		c.Provider.Name = v
	}
	if v := os.Getenv(env.BaseURL); v != "" {
		c.Provider.BaseURL = v
	}
	if v := os.Getenv(env.ModelName); v != "" {
		c.Model.Name = v
	}

	setOption := func(envVar, key string) {
		if v := os.Getenv(envVar); v != "" {
			c.Provider.Options[key] = v
		}
	}

	setOption(env.Token, "token")
	setOption(env.Deployment, "deployment")
	setOption(env.APIVersion, "api_version")
	setOption(env.AuthType, "auth_type")
}

func validateAgent(c *gaconfig.AgentConfig) error {
	if c.Name == "" {
		return fmt.Errorf("name required")
	}
	if c.Provider == nil {
		return fmt.Errorf("provider required")
	}
	if c.Provider.Name == "" {
		return fmt.Errorf("provider name required")
	}
	if c.Model == nil {
		return fmt.Errorf("model required")
	}
	return nil
}
