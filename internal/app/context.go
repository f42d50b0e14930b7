package app

import (
	"context"

	"github.com/rs/zerolog"

	"xapikit/internal/config"
	"xapikit/internal/db"
	"xapikit/internal/server"
	"xapikit/internal/store"
	xapisdk "xapikit/sdk/go"
)

// Overrides are LRS settings taken from flags or the environment. Empty
// fields leave the file value alone.
type Overrides struct {
	Endpoint   string
	Auth       string
	Username   string
	Password   string
	Credential string
	Timeout    string
}

// ResolveConfig loads xapi.yml from workspace, or the defaults when it is
// absent, and applies overrides before validating.
func ResolveConfig(workspace string, o Overrides) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default("http://127.0.0.1:8080/xapi/")
	}
	apply := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	apply(&cfg.LRS.Endpoint, o.Endpoint)
	apply(&cfg.LRS.Auth, o.Auth)
	apply(&cfg.LRS.Username, o.Username)
	apply(&cfg.LRS.Password, o.Password)
	apply(&cfg.LRS.Credential, o.Credential)
	apply(&cfg.LRS.Timeout, o.Timeout)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// OpenStore opens and migrates the workspace database.
func OpenStore(ctx context.Context, workspace string) (store.Store, error) {
	return store.Open(ctx, db.Config{Workspace: workspace})
}

// NewClient builds an LRS client from the lrs section of cfg.
func NewClient(cfg *config.Config, logger zerolog.Logger) (*xapisdk.Client, error) {
	opts, err := cfg.ClientOptions()
	if err != nil {
		return nil, err
	}
	opts.Logger = &logger
	return xapisdk.FromOptions(opts)
}

// ServerConfig maps the server section of cfg onto the development LRS.
func ServerConfig(cfg *config.Config, st store.Store, logger zerolog.Logger) (server.Config, error) {
	ttl, err := cfg.Server.MoreTTLDuration()
	if err != nil {
		return server.Config{}, err
	}
	creds := make([]server.Credential, 0, len(cfg.Server.Credentials))
	for _, c := range cfg.Server.Credentials {
		creds = append(creds, server.Credential{Username: c.Username, Password: c.Password, HomePage: c.HomePage})
	}
	return server.Config{
		Store:    st,
		BasePath: cfg.Server.BasePath,
		PageSize: cfg.Server.PageSize,
		MoreTTL:  ttl,
		Auth: server.AuthConfig{
			Credentials: creds,
			JWTSecret:   cfg.Server.JWTSecret,
			Anonymous:   len(creds) == 0 && cfg.Server.JWTSecret == "",
		},
		Logger: logger,
	}, nil
}
