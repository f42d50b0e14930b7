package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	xapisdk "xapikit/sdk/go"
	"xapikit/xapi"
)

// Config models xapi.yml.
type Config struct {
	LRS    LRSConfig    `yaml:"lrs"`
	Actor  ActorConfig  `yaml:"actor"`
	Server ServerConfig `yaml:"server"`
}

// LRSConfig describes the remote LRS the client talks to.
type LRSConfig struct {
	Endpoint   string `yaml:"endpoint" validate:"required,url"`
	Auth       string `yaml:"auth" validate:"omitempty,oneof=basic basic-pre-encoded"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	Credential string `yaml:"credential"`
	Timeout    string `yaml:"timeout"`
}

// ActorConfig is the default actor for statements built by the CLI.
type ActorConfig struct {
	Name    string `yaml:"name"`
	Mbox    string `yaml:"mbox" validate:"omitempty,email"`
	OpenID  string `yaml:"openid" validate:"omitempty,url"`
	Account struct {
		HomePage string `yaml:"home_page" validate:"required_with=Name"`
		Name     string `yaml:"name" validate:"required_with=HomePage"`
	} `yaml:"account"`
}

// ServerConfig configures the development LRS.
type ServerConfig struct {
	Addr        string       `yaml:"addr" validate:"required,hostname_port"`
	BasePath    string       `yaml:"base_path" validate:"required,startswith=/"`
	PageSize    int          `yaml:"page_size" validate:"min=1,max=500"`
	MoreTTL     string       `yaml:"more_ttl"`
	JWTSecret   string       `yaml:"jwt_secret" validate:"omitempty,min=16"`
	Credentials []Credential `yaml:"credentials" validate:"dive"`
}

// Credential is a Basic auth account accepted by the development LRS.
type Credential struct {
	Username string `yaml:"username" validate:"required"`
	Password string `yaml:"password" validate:"required"`
	HomePage string `yaml:"home_page" validate:"omitempty,url"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with xapi config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fieldError(verrs[0])
		}
		return err
	}
	method, err := xapi.ParseAuthMethod(c.LRS.Auth)
	if err != nil {
		return fmt.Errorf("config.lrs.auth: %w", err)
	}
	switch method {
	case xapi.AuthBasicPreEncoded:
		if _, err := xapi.PreEncodedAuthHeader(c.LRS.Credential); err != nil {
			return fmt.Errorf("config.lrs.credential: %w", err)
		}
	default:
		if c.LRS.Username == "" {
			return fmt.Errorf("config.lrs.username is required for basic auth")
		}
	}
	if _, err := c.LRSTimeout(); err != nil {
		return err
	}
	if _, err := c.Server.MoreTTLDuration(); err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, cred := range c.Server.Credentials {
		if seen[cred.Username] {
			return fmt.Errorf("config.server.credentials has duplicate username %s", cred.Username)
		}
		seen[cred.Username] = true
	}
	return nil
}

func fieldError(fe validator.FieldError) error {
	path := "config." + strings.ToLower(strings.TrimPrefix(fe.Namespace(), "Config."))
	switch fe.Tag() {
	case "required", "required_with":
		return fmt.Errorf("%s is required", path)
	case "oneof":
		return fmt.Errorf("%s must be one of %s", path, fe.Param())
	default:
		return fmt.Errorf("%s is invalid (%s)", path, fe.Tag())
	}
}

// LRSTimeout parses lrs.timeout, defaulting to ten seconds.
func (c *Config) LRSTimeout() (time.Duration, error) {
	if c.LRS.Timeout == "" {
		return 10 * time.Second, nil
	}
	d, err := time.ParseDuration(c.LRS.Timeout)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("config.lrs.timeout %q is not a positive duration", c.LRS.Timeout)
	}
	return d, nil
}

// MoreTTLDuration parses server.more_ttl, defaulting to ten minutes.
func (s ServerConfig) MoreTTLDuration() (time.Duration, error) {
	if s.MoreTTL == "" {
		return 10 * time.Minute, nil
	}
	d, err := time.ParseDuration(s.MoreTTL)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("config.server.more_ttl %q is not a positive duration", s.MoreTTL)
	}
	return d, nil
}

// ClientOptions converts the lrs section into client options.
func (c *Config) ClientOptions() (xapisdk.Options, error) {
	timeout, err := c.LRSTimeout()
	if err != nil {
		return xapisdk.Options{}, err
	}
	return xapisdk.Options{
		Endpoint:   c.LRS.Endpoint,
		AuthMethod: c.LRS.Auth,
		Username:   c.LRS.Username,
		Password:   c.LRS.Password,
		Credential: c.LRS.Credential,
		Timeout:    timeout,
	}, nil
}

// DefaultActor builds the configured actor. Account takes precedence over
// mbox, and mbox over openid.
func (c *Config) DefaultActor() (xapi.Actor, error) {
	a := c.Actor
	var actor xapi.Actor
	switch {
	case a.Account.HomePage != "":
		actor = xapi.AgentFromAccount(a.Name, a.Account.HomePage, a.Account.Name)
	case a.Mbox != "":
		actor = xapi.AgentFromMailbox(a.Name, a.Mbox)
	case a.OpenID != "":
		actor = xapi.AgentFromOpenID(a.Name, a.OpenID)
	default:
		return xapi.Actor{}, errors.New("config.actor needs account, mbox or openid")
	}
	return actor, actor.Validate()
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "xapi.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(endpoint string) string {
	return fmt.Sprintf(defaultTemplate, endpoint)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for an endpoint.
func Default(endpoint string) *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(GenerateDefault(endpoint)), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default("http://127.0.0.1:8080/xapi/")
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `lrs:
  endpoint: %s
  auth: basic
  username: dev
  password: dev
  timeout: 10s

actor:
  name: Local Learner
  mbox: learner@example.com

server:
  addr: 127.0.0.1:8080
  base_path: /xapi
  page_size: 25
  more_ttl: 10m
  jwt_secret: change-me-local-dev-secret
  credentials:
    - username: dev
      password: dev
      home_page: http://127.0.0.1:8080
`
