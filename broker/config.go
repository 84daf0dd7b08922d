package broker

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/miladsoleymani/eventbridge/core"
)

// DefaultDriver is the plugin used when Config.Driver is empty.
const DefaultDriver = "kafka"

// Config holds broker-agnostic configuration.
// Broker plugins extract the fields they need.
type Config struct {
	// Driver names the registered plugin that builds the client (e.g., "kafka").
	Driver string

	// Brokers is a list of broker addresses (e.g., "localhost:9092").
	// Every driver accepts host:port; nats also takes nats:// URLs and
	// rabbitmq amqp:// URIs.
	Brokers []string

	// Topic is the topic, subject or routing key events are published to.
	Topic string

	// Extra holds plugin-specific configuration.
	Extra map[string]any
}

// DriverName returns the configured driver or DefaultDriver.
func (c Config) DriverName() string {
	if c.Driver == "" {
		return DefaultDriver
	}
	return strings.ToLower(c.Driver)
}

// Validate checks that the broker list and topic are present. The returned
// error wraps core.ErrConfig.
func (c Config) Validate() error {
	var errs []error
	if len(c.Brokers) == 0 {
		errs = append(errs, errors.New("brokers are required"))
	}
	for i, b := range c.Brokers {
		if strings.TrimSpace(b) == "" {
			errs = append(errs, fmt.Errorf("broker %d is empty", i))
		}
	}
	if strings.TrimSpace(c.Topic) == "" {
		errs = append(errs, errors.New("topic is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", core.ErrConfig, errors.Join(errs...))
	}
	return nil
}

// ParseBrokers splits a comma-separated broker list, trimming blanks and
// dropping empty entries.
func ParseBrokers(list string) []string {
	var out []string
	for _, part := range strings.Split(list, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ValidateHostPorts checks that every address is a host:port pair with a
// numeric port. The returned error wraps core.ErrConfig.
func ValidateHostPorts(addrs []string) error {
	if len(addrs) == 0 {
		return fmt.Errorf("%w: at least one broker address is required", core.ErrConfig)
	}
	var errs []error
	for _, addr := range addrs {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			errs = append(errs, fmt.Errorf("broker %q: %w", addr, err))
			continue
		}
		if host == "" {
			errs = append(errs, fmt.Errorf("broker %q: missing host", addr))
		}
		if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
			errs = append(errs, fmt.Errorf("broker %q: invalid port %q", addr, port))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", core.ErrConfig, errors.Join(errs...))
	}
	return nil
}
