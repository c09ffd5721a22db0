package configuration

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Environment variables understood by the registry. Scalar variables map
// directly onto Configuration fields; identity providers are declared with
// one variable set per provider, e.g. OIDC_GOOGLE_ISSUER /
// OIDC_GOOGLE_CLIENT_ID / OIDC_GOOGLE_CLIENT_SECRET configure the provider
// named "google".
const (
	EnvBindAddress     = "BIND_ADDRESS"
	EnvPort            = "PORT"
	EnvSecretKey       = "SECRET_KEY"
	EnvDBPath          = "DB_PATH"
	EnvStoragePath     = "STORAGE_PATH"
	EnvStaticPath      = "STATIC_PATH"
	EnvRegistryName    = "REGISTRY_NAME"
	EnvDomain          = "DOMAIN"
	EnvLogLevel        = "LOG_LEVEL"
	EnvDiscoveryURL    = "DISCOVERY_URL"
	EnvRedirectBaseURL = "REDIRECT_BASE_URL"
	EnvMaxPackageSize  = "MAX_PACKAGE_SIZE"
)

// applyEnvironment overlays environment variables onto config.
func applyEnvironment(config *Configuration) error {
	if v := os.Getenv(EnvBindAddress); v != "" {
		config.HTTP.BindAddress = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing %s: %v", EnvPort, err)
		}
		config.HTTP.Port = port
	}
	if v := os.Getenv(EnvSecretKey); v != "" {
		config.HTTP.Secret = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		config.Catalog.Path = v
	}
	if v := os.Getenv(EnvStoragePath); v != "" {
		config.Storage.Root = v
	}
	if v := os.Getenv(EnvStaticPath); v != "" {
		config.Static.Root = v
	}
	if v := os.Getenv(EnvRegistryName); v != "" {
		config.Registry.Name = v
	}
	if v := os.Getenv(EnvDomain); v != "" {
		config.Registry.Domain = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		level := Loglevel(strings.ToLower(v))
		switch level {
		case "error", "warn", "info", "debug":
			config.Loglevel = level
		default:
			return fmt.Errorf("invalid %s %q", EnvLogLevel, v)
		}
	}
	if v := os.Getenv(EnvDiscoveryURL); v != "" {
		config.Discovery.URL = v
	}
	if v := os.Getenv(EnvRedirectBaseURL); v != "" {
		config.HTTP.RedirectBaseURL = v
	}
	if v := os.Getenv(EnvMaxPackageSize); v != "" {
		size, err := strconv.ParseInt(v, 10, 64)
		if err != nil || size <= 0 {
			return fmt.Errorf("invalid %s %q", EnvMaxPackageSize, v)
		}
		config.Storage.MaxPackageSize = size
	}

	applyProviderEnvironment(config, os.Environ())

	return nil
}

// applyProviderEnvironment scans environ for OIDC_* and OAUTH_* triples and
// merges them into the provider maps. File-configured providers can be
// partially overridden variable by variable.
func applyProviderEnvironment(config *Configuration, environ []string) {
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || value == "" {
			continue
		}

		switch {
		case strings.HasPrefix(key, "OIDC_"):
			name, field, ok := splitProviderKey(strings.TrimPrefix(key, "OIDC_"))
			if !ok {
				continue
			}
			if config.OIDC == nil {
				config.OIDC = map[string]OIDCProvider{}
			}
			p := config.OIDC[name]
			switch field {
			case "ISSUER":
				p.Issuer = value
			case "CLIENT_ID":
				p.ClientID = value
			case "CLIENT_SECRET":
				p.ClientSecret = value
			default:
				continue
			}
			config.OIDC[name] = p

		case strings.HasPrefix(key, "OAUTH_"):
			name, field, ok := splitProviderKey(strings.TrimPrefix(key, "OAUTH_"))
			if !ok {
				continue
			}
			if config.OAuth == nil {
				config.OAuth = map[string]OAuthProvider{}
			}
			p := config.OAuth[name]
			switch field {
			case "AUTH_URL":
				p.AuthURL = value
			case "TOKEN_URL":
				p.TokenURL = value
			case "USERINFO_URL":
				p.UserInfoURL = value
			case "CLIENT_ID":
				p.ClientID = value
			case "CLIENT_SECRET":
				p.ClientSecret = value
			default:
				continue
			}
			config.OAuth[name] = p
		}
	}
}

// splitProviderKey splits "GOOGLE_CLIENT_ID" into ("google", "CLIENT_ID").
// The provider name is the first underscore-delimited token.
func splitProviderKey(key string) (name, field string, ok bool) {
	name, field, ok = strings.Cut(key, "_")
	if !ok || name == "" || field == "" {
		return "", "", false
	}
	return strings.ToLower(name), field, true
}
