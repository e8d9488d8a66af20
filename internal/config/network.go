package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nao1215/darkcrawl/internal/model"
	"github.com/nao1215/darkcrawl/internal/transport"
)

// NetworkConfig holds the settings of one network.
type NetworkConfig struct {
	// Enabled turns the network's worker pool on.
	Enabled bool `yaml:"enabled"`

	// Proxies are the daemon endpoints ("host:port") the pool rotates over.
	// Empty means the network's conventional local endpoint.
	Proxies []string `yaml:"proxies" validate:"dive,hostname_port"`

	// Instances limits how many of Proxies are used. Zero uses all of them.
	Instances int `yaml:"instances" validate:"gte=0"`

	// MaxConcurrency is the number of fetches in flight at once.
	MaxConcurrency int `yaml:"max_concurrency" validate:"gte=0"`

	// MinDelaySeconds is the minimum time between two fetches of one domain.
	MinDelaySeconds float64 `yaml:"min_delay_seconds" validate:"gte=0"`

	ConnectTimeoutSeconds int `yaml:"connect_timeout_seconds" validate:"gte=0"`
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds" validate:"gte=0"`

	// WaitForProxy holds the pool until its proxy answers.
	WaitForProxy bool `yaml:"wait_for_proxy"`

	// ClearDeadOnStartup deletes the network's dead letters before the run,
	// giving their addresses a fresh retry budget.
	ClearDeadOnStartup bool `yaml:"clear_dead_on_startup"`

	// Cookie is sent with every request of the network.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are extra request headers of the network.
	Headers map[string]string `yaml:"headers,omitempty"`
}

// Networks maps network names to their configuration.
type Networks map[string]NetworkConfig

// UnmarshalYAML decodes each network block on top of the entry already in
// the map, so a block that only lists proxies keeps the network's defaults.
// Aliases ("freenet", "onion", "loki") are stored under the canonical name.
func (n *Networks) UnmarshalYAML(value *yaml.Node) error {
	var raw map[string]yaml.Node
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if *n == nil {
		*n = make(Networks, len(raw))
	}
	for name, node := range raw {
		// Unknown names are kept as written and rejected by Validate.
		if network, err := model.ParseNetwork(name); err == nil {
			name = network.String()
		}
		nc := (*n)[name]
		if err := node.Decode(&nc); err != nil {
			return fmt.Errorf("networks.%s: %w", name, err)
		}
		(*n)[name] = nc
	}
	return nil
}

// networkDefaults are the per-network defaults. Tor is the only network
// enabled out of the box; the others need their daemon running.
//
// Design decision: I2P tunnels and Hyphanet key lookups are far slower than
// Tor circuits, so those networks get longer timeouts, fewer workers, and
// wait for their daemon at startup.
var networkDefaults = map[model.Network]NetworkConfig{
	model.NetworkTor: {
		Enabled:               true,
		MaxConcurrency:        16,
		MinDelaySeconds:       1,
		ConnectTimeoutSeconds: 30,
		RequestTimeoutSeconds: 60,
	},
	model.NetworkI2P: {
		MaxConcurrency:        8,
		MinDelaySeconds:       2,
		ConnectTimeoutSeconds: 60,
		RequestTimeoutSeconds: 120,
		WaitForProxy:          true,
	},
	model.NetworkHyphanet: {
		MaxConcurrency:        4,
		MinDelaySeconds:       1,
		ConnectTimeoutSeconds: 30,
		RequestTimeoutSeconds: 30,
		WaitForProxy:          true,
	},
	model.NetworkLokinet: {
		MaxConcurrency:        8,
		MinDelaySeconds:       1,
		ConnectTimeoutSeconds: 30,
		RequestTimeoutSeconds: 60,
		WaitForProxy:          true,
	},
}

// withDefaults fills unset numeric values from def.
func (n NetworkConfig) withDefaults(def NetworkConfig) NetworkConfig {
	if n.MaxConcurrency == 0 {
		n.MaxConcurrency = def.MaxConcurrency
	}
	if n.ConnectTimeoutSeconds == 0 {
		n.ConnectTimeoutSeconds = def.ConnectTimeoutSeconds
	}
	if n.RequestTimeoutSeconds == 0 {
		n.RequestTimeoutSeconds = def.RequestTimeoutSeconds
	}
	return n
}

// Endpoints returns the proxy endpoints of network the pool uses.
func (n NetworkConfig) Endpoints(network model.Network) []string {
	proxies := n.Proxies
	if len(proxies) == 0 {
		if def := transport.DefaultProxy(network); def != "" {
			proxies = []string{def}
		}
	}
	if n.Instances > 0 && n.Instances < len(proxies) {
		proxies = proxies[:n.Instances]
	}
	return proxies
}

// MinDelay returns MinDelaySeconds as a duration.
func (n NetworkConfig) MinDelay() time.Duration {
	return time.Duration(n.MinDelaySeconds * float64(time.Second))
}

// ConnectTimeout returns ConnectTimeoutSeconds as a duration.
func (n NetworkConfig) ConnectTimeout() time.Duration {
	return time.Duration(n.ConnectTimeoutSeconds) * time.Second
}

// RequestTimeout returns RequestTimeoutSeconds as a duration.
func (n NetworkConfig) RequestTimeout() time.Duration {
	return time.Duration(n.RequestTimeoutSeconds) * time.Second
}
