package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	// upstream.token_url is required.
	if c.Upstream.TokenURL == "" {
		errs = append(errs, fmt.Errorf("upstream.token_url is required"))
	}

	// server.port must be positive.
	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	// Renewal must run strictly more often than credentials expire; the
	// lookahead keeps a margin, so both must be positive.
	if c.Credential.RenewInterval <= 0 {
		errs = append(errs, fmt.Errorf("credential.renew_interval must be > 0, got %v", c.Credential.RenewInterval))
	}
	if c.Credential.RenewAhead < 0 {
		errs = append(errs, fmt.Errorf("credential.renew_ahead must be >= 0, got %v", c.Credential.RenewAhead))
	}

	// usage.type must be a known value.
	switch c.Usage.Type {
	case "memory", "postgres":
		// valid
	default:
		errs = append(errs, fmt.Errorf("usage.type must be \"memory\" or \"postgres\", got %q", c.Usage.Type))
	}

	// If usage.type is "postgres", DSN or DSNFile must be set.
	if c.Usage.Type == "postgres" {
		if c.Usage.Postgres.DSN == "" && c.Usage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("usage.postgres.dsn or usage.postgres.dsn_file is required when usage.type is \"postgres\""))
		}
	}

	// auth.type must be a known value.
	switch c.Auth.Type {
	case "none", "apikey", "jwt":
		// valid
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", c.Auth.Type))
	}

	// auth.type=jwt needs a JWKS endpoint.
	if c.Auth.Type == "jwt" && c.Auth.JWT.JWKSURL == "" {
		errs = append(errs, fmt.Errorf("auth.jwt.jwks_url is required when auth.type is \"jwt\""))
	}

	return errors.Join(errs...)
}
