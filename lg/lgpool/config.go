package lgpool

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/gordian-engine/gledger/gcrypto"
	"github.com/mr-tron/base58"
)

// FileConfig is the YAML representation of a pool configuration.
//
//	name: sandbox
//	protocol_version: 2
//	reply_timeout: 30s
//	nodes:
//	  - name: Node1
//	    address: http://127.0.0.1:9701
//	    key: <base58 registry-encoded public key>
//
// Durations use [time.ParseDuration] syntax.
// Omitted durations and limits take their values from [DefaultConfig].
type FileConfig struct {
	Name            string `yaml:"name"`
	ProtocolVersion uint32 `yaml:"protocol_version"`

	ReplyTimeout   string `yaml:"reply_timeout"`
	InitialBackoff string `yaml:"initial_backoff"`
	MaxBackoff     string `yaml:"max_backoff"`

	MaxConcurrentRoundTrips int `yaml:"max_concurrent_round_trips"`

	Nodes []FileNode `yaml:"nodes"`
}

type FileNode struct {
	Name            string `yaml:"name"`
	Address         string `yaml:"address"`
	Key             string `yaml:"key"`
	ProtocolVersion uint32 `yaml:"protocol_version"`
}

// LoadConfigFile reads a YAML pool configuration from path.
// The returned Config has no Transport set.
func LoadConfigFile(path string, reg *gcrypto.Registry) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read pool config: %w", err)
	}

	cfg, err := ParseConfig(data, reg)
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse pool config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes a YAML pool configuration.
// Node keys are decoded with reg; reg may be nil if no node has a key.
func ParseConfig(data []byte, reg *gcrypto.Registry) (Config, error) {
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, err
	}
	return fc.Config(reg)
}

// Config converts fc to a Config, applying defaults.
func (fc FileConfig) Config(reg *gcrypto.Registry) (Config, error) {
	cfg := DefaultConfig()
	cfg.Name = fc.Name
	cfg.ProtocolVersion = fc.ProtocolVersion

	for _, d := range []struct {
		name string
		in   string
		out  *time.Duration
	}{
		{"reply_timeout", fc.ReplyTimeout, &cfg.ReplyTimeout},
		{"initial_backoff", fc.InitialBackoff, &cfg.InitialBackoff},
		{"max_backoff", fc.MaxBackoff, &cfg.MaxBackoff},
	} {
		if d.in == "" {
			continue
		}
		v, err := time.ParseDuration(d.in)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", d.name, err)
		}
		*d.out = v
	}

	if fc.MaxConcurrentRoundTrips != 0 {
		cfg.MaxConcurrentRoundTrips = fc.MaxConcurrentRoundTrips
	}

	cfg.Nodes = make([]NodeEndpoint, len(fc.Nodes))
	for i, fn := range fc.Nodes {
		ep := NodeEndpoint{
			Name:            fn.Name,
			Address:         fn.Address,
			ProtocolVersion: fn.ProtocolVersion,
		}

		if fn.Key != "" {
			if reg == nil {
				return Config{}, fmt.Errorf("node %d has a key but no registry was provided", i)
			}
			raw, err := base58.Decode(fn.Key)
			if err != nil {
				return Config{}, fmt.Errorf("failed to decode key for node %d: %w", i, err)
			}
			ep.PubKey, err = reg.Unmarshal(raw)
			if err != nil {
				return Config{}, fmt.Errorf("failed to unmarshal key for node %d: %w", i, err)
			}
		}

		cfg.Nodes[i] = ep
	}

	return cfg, nil
}

// EncodeNodeKey returns the config file representation of a node key.
func EncodeNodeKey(reg *gcrypto.Registry, pub gcrypto.PubKey) string {
	return base58.Encode(reg.Marshal(pub))
}
