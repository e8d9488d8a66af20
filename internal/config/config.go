package config

import (
	"maps"
	"path/filepath"
	"slices"

	"github.com/adrg/xdg"

	"github.com/nao1215/darkcrawl/internal/model"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "darkcrawl"

	// DefaultMaxDepth bounds how far from a seed the crawl follows links.
	// Candidates deeper than this are rejected at admission.
	DefaultMaxDepth = 10

	// DefaultMaxPagesPerDomain prevents runaway crawling of large or
	// infinitely-generating sites.
	DefaultMaxPagesPerDomain = 1000

	// DefaultMaxBodySizeMB limits the response body read per fetch.
	DefaultMaxBodySizeMB = 10

	// DefaultUserAgent mimics the Tor Browser so responses match what a
	// visitor sees.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; rv:128.0) Gecko/20100101 Firefox/128.0"

	// DefaultBloomCapacity is the expected number of distinct addresses.
	// The filter grows past it at the cost of a higher false positive rate.
	DefaultBloomCapacity = 10_000_000

	// DefaultBloomFPRate is the bloom filter's target false positive rate.
	// A false positive costs one store lookup, never a lost address.
	DefaultBloomFPRate = 0.001

	// DefaultMaxRetries is the retry budget of a transiently failing
	// candidate.
	DefaultMaxRetries = 3

	// DefaultMaxRetriesHyphanet is larger because a Hyphanet key is often
	// not yet routable on the first requests and the gateway answers with a
	// temporary error until it is.
	DefaultMaxRetriesHyphanet = 12

	// DefaultBackpressureThreshold is the partition length above which
	// aliasable candidates are dropped.
	DefaultBackpressureThreshold = 50_000

	// DefaultMaxFormVariants caps the URLs generated per search form.
	DefaultMaxFormVariants = 6

	// DefaultMaxEnumerate is how many numeric neighbours of an ID are
	// guessed on each side.
	DefaultMaxEnumerate = 2
)

// Config holds all configuration options for darkcrawl.
// It is populated from defaults, then the configuration file, then CLI
// flags, and passed through the application rather than kept global.
//
// Design decision: Unlike a flat option struct, the file is grouped in
// sections, and each network gets its own block so operators can tune a slow
// network without touching the others.
type Config struct {
	General   General   `yaml:"general"`
	Frontier  Frontier  `yaml:"frontier"`
	Discovery Discovery `yaml:"discovery"`
	Networks  Networks  `yaml:"networks" validate:"dive"`
	Metrics   Metrics   `yaml:"metrics"`

	// Verbose enables debug logging. Set from the CLI only.
	Verbose bool `yaml:"-"`

	// LogJSON switches logs to JSON. Set from the CLI only.
	LogJSON bool `yaml:"-"`

	// ConfigFilePath is the file the configuration was loaded from, empty
	// when no file was found.
	ConfigFilePath string `yaml:"-"`
}

// General holds the crawl-wide limits.
type General struct {
	// DataDir holds the SQLite database. Defaults to the XDG data
	// directory (~/.local/share/darkcrawl on Linux).
	DataDir string `yaml:"data_dir"`

	// MaxDepth is the depth ceiling. Seeds are depth zero.
	MaxDepth int `yaml:"max_depth" validate:"gte=1"`

	// MaxPagesPerDomain caps the pages fetched per domain. Zero means no cap.
	MaxPagesPerDomain int `yaml:"max_pages_per_domain" validate:"gte=0"`

	// MaxBodySizeMB truncates larger responses.
	MaxBodySizeMB int `yaml:"max_body_size_mb" validate:"gte=1"`

	// UserAgent is sent with every request.
	UserAgent string `yaml:"user_agent"`
}

// Frontier holds the admission and retry settings.
type Frontier struct {
	BloomCapacity         uint    `yaml:"bloom_capacity" validate:"gte=1"`
	BloomFPRate           float64 `yaml:"bloom_fp_rate" validate:"gt=0,lt=1"`
	MaxRetries            int     `yaml:"max_retries" validate:"gte=0"`
	MaxRetriesHyphanet    int     `yaml:"max_retries_hyphanet" validate:"gte=0"`
	BackpressureThreshold int     `yaml:"backpressure_threshold" validate:"gte=0"`
}

// Discovery toggles the discovery strategies.
type Discovery struct {
	ExplicitLinks       bool `yaml:"explicit_links"`
	SourceMining        bool `yaml:"source_mining"`
	HeaderAliases       bool `yaml:"header_aliases"`
	FormSpidering       bool `yaml:"form_spidering"`
	InfrastructureProbe bool `yaml:"infrastructure_probe"`
	PatternMutation     bool `yaml:"pattern_mutation"`

	MaxFormVariants int `yaml:"max_form_variants" validate:"gte=0"`
	MaxEnumerate    int `yaml:"max_enumerate" validate:"gte=0"`

	// IgnorePatterns are path globs never followed.
	IgnorePatterns []string `yaml:"ignore_patterns"`

	// FollowPatterns, when set, are the only path globs followed.
	FollowPatterns []string `yaml:"follow_patterns"`
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	// Listen is the address of the /metrics endpoint. Empty disables it.
	Listen string `yaml:"listen" validate:"omitempty,hostname_port"`
}

// NewConfig creates a new Config with default values.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero. The file is decoded on top
// of this value, so anything the file leaves out keeps its default.
func NewConfig() *Config {
	networks := make(Networks, len(networkDefaults))
	for network, nc := range networkDefaults {
		networks[network.String()] = nc
	}

	return &Config{
		General: General{
			DataDir:           XDGDataDir(),
			MaxDepth:          DefaultMaxDepth,
			MaxPagesPerDomain: DefaultMaxPagesPerDomain,
			MaxBodySizeMB:     DefaultMaxBodySizeMB,
			UserAgent:         DefaultUserAgent,
		},
		Frontier: Frontier{
			BloomCapacity:         DefaultBloomCapacity,
			BloomFPRate:           DefaultBloomFPRate,
			MaxRetries:            DefaultMaxRetries,
			MaxRetriesHyphanet:    DefaultMaxRetriesHyphanet,
			BackpressureThreshold: DefaultBackpressureThreshold,
		},
		Discovery: Discovery{
			ExplicitLinks:       true,
			SourceMining:        true,
			HeaderAliases:       true,
			FormSpidering:       true,
			InfrastructureProbe: true,
			PatternMutation:     true,
			MaxFormVariants:     DefaultMaxFormVariants,
			MaxEnumerate:        DefaultMaxEnumerate,
		},
		Networks: networks,
	}
}

// XDGDataDir returns the XDG data directory for darkcrawl.
// On Linux: ~/.local/share/darkcrawl
// On macOS: ~/Library/Application Support/darkcrawl
// On Windows: %LOCALAPPDATA%\darkcrawl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for darkcrawl.
// On Linux: ~/.config/darkcrawl
// On macOS: ~/Library/Application Support/darkcrawl
// On Windows: %APPDATA%\darkcrawl
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Network returns the configuration of network with unset values filled
// from the network's defaults. The second result is false when the network
// is not configured or not enabled.
func (c *Config) Network(network model.Network) (NetworkConfig, bool) {
	nc, ok := c.Networks[network.String()]
	if !ok {
		return NetworkConfig{}, false
	}
	nc = nc.withDefaults(networkDefaults[network])
	return nc, nc.Enabled && network.Schedulable()
}

// EnabledNetworks returns the networks that will be crawled, in the stable
// order of model.Networks.
func (c *Config) EnabledNetworks() []model.Network {
	var enabled []model.Network
	for _, network := range model.Networks() {
		if _, ok := c.Network(network); ok {
			enabled = append(enabled, network)
		}
	}
	return enabled
}

// MaxRetries returns the retry budget of network.
func (c *Config) MaxRetries(network model.Network) int {
	if network == model.NetworkHyphanet {
		return c.Frontier.MaxRetriesHyphanet
	}
	return c.Frontier.MaxRetries
}

// MaxBodySize returns the body limit in bytes.
func (c *Config) MaxBodySize() int64 {
	return int64(c.General.MaxBodySizeMB) * 1024 * 1024
}

// ClearDeadNetworks returns the enabled networks whose dead letters are
// cleared at startup.
func (c *Config) ClearDeadNetworks() []model.Network {
	var networks []model.Network
	for _, network := range c.EnabledNetworks() {
		if nc, _ := c.Network(network); nc.ClearDeadOnStartup {
			networks = append(networks, network)
		}
	}
	return networks
}

// Validate checks if the configuration is valid.
// It returns a specific error describing what is invalid.
//
// Design decision: We validate at the config level rather than at each
// point of use to fail fast and provide clear error messages upfront.
// Field ranges are declared as validator tags next to the fields; the
// cross-field rules (known network names, at least one network) are checked
// here. Only the first error is returned because fixing one often makes
// others irrelevant.
func (c *Config) Validate() error {
	for _, name := range slices.Sorted(maps.Keys(c.Networks)) {
		network, err := model.ParseNetwork(name)
		if err != nil {
			return wrapf(ErrUnknownNetwork, "%q", name)
		}
		if network == model.NetworkZeroNet && c.Networks[name].Enabled {
			return ErrZeroNetEnabled
		}
	}

	if err := validate.Struct(c); err != nil {
		return validationError(err)
	}

	if len(c.EnabledNetworks()) == 0 {
		return ErrNoNetworkEnabled
	}
	return nil
}
