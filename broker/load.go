package broker

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/miladsoleymani/eventbridge/core"
)

// Environment variables that override file settings.
const (
	EnvDriver  = "EVENTBRIDGE_DRIVER"
	EnvBrokers = "EVENTBRIDGE_BROKERS"
	EnvTopic   = "EVENTBRIDGE_TOPIC"
)

// fileConfig is the on-disk layout:
//
//	driver: kafka
//	brokers: "kafka-1:9092,kafka-2:9092"
//	topic: cdr
//	extra:
//	  batch_size: 100
type fileConfig struct {
	Driver  string         `yaml:"driver"`
	Brokers brokerList     `yaml:"brokers"`
	Topic   string         `yaml:"topic"`
	Extra   map[string]any `yaml:"extra"`
}

// brokerList accepts either a comma-separated string or a YAML sequence.
type brokerList []string

func (b *brokerList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*b = ParseBrokers(node.Value)
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*b = ParseBrokers(strings.Join(items, ","))
		return nil
	default:
		return fmt.Errorf("line %d: brokers must be a string or a list", node.Line)
	}
}

// LoadFile reads a YAML configuration file. It does not validate the result.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: read %s: %w", core.ErrConfig, path, err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration bytes.
func Parse(data []byte) (Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("%w: parse yaml: %w", core.ErrConfig, err)
	}
	return Config{
		Driver:  fc.Driver,
		Brokers: []string(fc.Brokers),
		Topic:   strings.TrimSpace(fc.Topic),
		Extra:   fc.Extra,
	}, nil
}

// ApplyEnv overrides fields from environment variables found by lookup
// (usually os.LookupEnv). Empty values are ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvDriver); ok && v != "" {
		c.Driver = v
	}
	if v, ok := lookup(EnvBrokers); ok && v != "" {
		c.Brokers = ParseBrokers(v)
	}
	if v, ok := lookup(EnvTopic); ok && v != "" {
		c.Topic = strings.TrimSpace(v)
	}
}
