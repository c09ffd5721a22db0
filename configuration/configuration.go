package configuration

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

// defaultMaxPackageSize caps publish uploads at 50 MiB unless overridden.
const defaultMaxPackageSize = 50 << 20

// Configuration is the registry configuration, intended to be provided by a
// yaml file and optionally modified by environment variables.
type Configuration struct {
	// Loglevel is the level at which registry operations are logged.
	Loglevel Loglevel `yaml:"loglevel"`

	// HTTP contains configuration parameters for the registry's http
	// interface.
	HTTP struct {
		// BindAddress specifies the listen address for the registry.
		BindAddress string `yaml:"bindaddress"`

		// Port specifies the listen port.
		Port int `yaml:"port"`

		// Secret is the HMAC key with which bearer tokens are signed. It
		// must be at least 32 bytes; boot fails otherwise.
		Secret string `yaml:"secret"`

		// RedirectBaseURL is the public base used to synthesize OAuth and
		// OIDC callback URLs when the registry sits behind a proxy.
		RedirectBaseURL string `yaml:"redirectbaseurl"`
	} `yaml:"http"`

	// Registry holds the displayed identity of this instance.
	Registry struct {
		// Name is the human-readable registry name.
		Name string `yaml:"name"`

		// Domain is used to synthesize absolute URLs in API responses.
		Domain string `yaml:"domain"`
	} `yaml:"registry"`

	// Catalog configures the relational store.
	Catalog struct {
		// Path is the SQLite database path. ":memory:" is accepted for
		// tests.
		Path string `yaml:"path"`

		// MaxOpenConns bounds the connection pool.
		MaxOpenConns int `yaml:"maxopenconns"`
	} `yaml:"catalog"`

	// Storage configures the blob store.
	Storage struct {
		// Root is the blob store root directory. Archives live under
		// <root>/packages/<owner>/<repo>/<tag>.zpkg.
		Root string `yaml:"root"`

		// MaxPackageSize caps publish uploads, in bytes.
		MaxPackageSize int64 `yaml:"maxpackagesize"`
	} `yaml:"storage"`

	// Static configures the UI file server.
	Static struct {
		// Root is the directory the SPA and its assets are served from.
		// Static serving is disabled when empty.
		Root string `yaml:"root"`
	} `yaml:"static"`

	// Discovery configures the upstream discovery provider. Empty URL
	// disables the proxy surface.
	Discovery struct {
		URL string `yaml:"url"`
	} `yaml:"discovery"`

	// OIDC configures delegated identity providers using the OIDC
	// authorization-code flow, keyed by provider name.
	OIDC map[string]OIDCProvider `yaml:"oidc"`

	// OAuth configures plain OAuth2 providers, keyed by provider name.
	OAuth map[string]OAuthProvider `yaml:"oauth"`

	// RateLimit configures per-client request budgets, in requests per
	// minute. Zero disables the corresponding limit.
	RateLimit struct {
		Anonymous     int `yaml:"anonymous"`
		Authenticated int `yaml:"authenticated"`
	} `yaml:"ratelimit"`
}

// OIDCProvider holds per-provider OIDC client configuration.
type OIDCProvider struct {
	Issuer       string `yaml:"issuer"`
	ClientID     string `yaml:"clientid"`
	ClientSecret string `yaml:"clientsecret"`
}

// OAuthProvider holds per-provider OAuth2 client configuration.
type OAuthProvider struct {
	AuthURL      string `yaml:"authurl"`
	TokenURL     string `yaml:"tokenurl"`
	UserInfoURL  string `yaml:"userinfourl"`
	ClientID     string `yaml:"clientid"`
	ClientSecret string `yaml:"clientsecret"`
}

// Loglevel is the level at which operations are logged. This can be error,
// warn, info, or debug.
type Loglevel string

// UnmarshalYAML implements the yaml.Umarshaler interface, lowercasing the
// string and validating that it represents a valid loglevel.
func (loglevel *Loglevel) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var loglevelString string
	err := unmarshal(&loglevelString)
	if err != nil {
		return err
	}

	loglevelString = strings.ToLower(loglevelString)
	switch loglevelString {
	case "error", "warn", "info", "debug":
	default:
		return fmt.Errorf("invalid loglevel %s Must be one of [error, warn, info, debug]", loglevelString)
	}

	*loglevel = Loglevel(loglevelString)
	return nil
}

// Addr returns the host:port the HTTP server should listen on.
func (config *Configuration) Addr() string {
	return net.JoinHostPort(config.HTTP.BindAddress, strconv.Itoa(config.HTTP.Port))
}

// MaxPackageSize returns the configured upload cap, falling back to the
// 50 MiB default.
func (config *Configuration) MaxPackageSize() int64 {
	if config.Storage.MaxPackageSize > 0 {
		return config.Storage.MaxPackageSize
	}
	return defaultMaxPackageSize
}

// Validate checks invariants that must hold before the registry can boot.
func (config *Configuration) Validate() error {
	if len(config.HTTP.Secret) < 32 {
		return fmt.Errorf("http secret must be at least 32 bytes, got %d", len(config.HTTP.Secret))
	}
	if config.Catalog.Path == "" {
		return fmt.Errorf("no catalog path provided")
	}
	if config.Storage.Root == "" {
		return fmt.Errorf("no storage root provided")
	}
	for name, p := range config.OIDC {
		if p.Issuer == "" || p.ClientID == "" {
			return fmt.Errorf("oidc provider %q requires issuer and clientid", name)
		}
	}
	for name, p := range config.OAuth {
		if p.AuthURL == "" || p.TokenURL == "" || p.ClientID == "" {
			return fmt.Errorf("oauth provider %q requires authurl, tokenurl and clientid", name)
		}
	}
	return nil
}

// Default returns a Configuration with the documented defaults applied.
func Default() *Configuration {
	config := new(Configuration)
	config.Loglevel = "info"
	config.HTTP.BindAddress = "0.0.0.0"
	config.HTTP.Port = 8080
	config.Registry.Name = "zpkg registry"
	config.Storage.MaxPackageSize = defaultMaxPackageSize
	config.RateLimit.Anonymous = 60
	config.RateLimit.Authenticated = 5000
	return config
}

// Parse parses an input configuration yaml document into a Configuration
// struct and applies environment variable overrides (see environment.go).
// This should generally be capable of handling old configuration format
// versions; fields it does not recognize are ignored.
func Parse(rd io.Reader) (*Configuration, error) {
	in, err := io.ReadAll(rd)
	if err != nil {
		return nil, err
	}

	config := Default()
	if err := yaml.Unmarshal(in, config); err != nil {
		return nil, err
	}

	if err := applyEnvironment(config); err != nil {
		return nil, err
	}

	return config, nil
}

// ParseEnvironment builds a Configuration from defaults and environment
// variables alone, for deployments without a configuration file.
func ParseEnvironment() (*Configuration, error) {
	config := Default()
	if err := applyEnvironment(config); err != nil {
		return nil, err
	}
	return config, nil
}
