package broker

import (
	"fmt"
	"sort"
	"sync"

	"github.com/miladsoleymani/eventbridge/core"
)

// Factory creates a producer client from the given Config. Delivery reports
// are handed to onDelivery from the client's Poll.
type Factory func(cfg Config, onDelivery core.DeliveryFunc) (core.Client, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register adds a named client factory. Plugins call this from init().
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = factory
}

// Lookup returns the factory registered under name.
func Lookup(name string) (Factory, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown broker driver %q", core.ErrConfig, name)
	}
	return f, nil
}

// Create instantiates a client by name using the registered factory.
func Create(name string, cfg Config, onDelivery core.DeliveryFunc) (core.Client, error) {
	f, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return f(cfg, onDelivery)
}

// Drivers lists the registered driver names in sorted order.
func Drivers() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
