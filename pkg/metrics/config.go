package metrics

import (
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Config holds configuration for metrics collection.
type Config struct {
	// Enabled controls whether metrics collection is active.
	Enabled bool

	// Registry is the Prometheus registry to use. If nil, uses prometheus.DefaultRegisterer.
	Registry prometheus.Registerer

	// Namespace overrides the default "fanflow" namespace for metrics.
	Namespace string

	// Labels are additional labels to add to all metrics.
	Labels prometheus.Labels
}

// DefaultConfig returns a default metrics configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Registry:  prometheus.DefaultRegisterer,
		Namespace: "fanflow",
		Labels:    nil,
	}
}

type registryKey struct {
	reg       prometheus.Registerer
	namespace string
	labels    string
}

var (
	registriesMu sync.Mutex
	registries   = make(map[registryKey]*Registry)
)

// FromConfig returns the Registry described by config, or nil when metrics
// are disabled. Registries are shared per Prometheus registerer, namespace
// and label set, so any number of components may use the same Config.
func FromConfig(config Config) *Registry {
	if !config.Enabled {
		return nil
	}

	reg := config.Registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	namespace := config.Namespace
	if namespace == "" {
		namespace = "fanflow"
	}

	key := registryKey{reg: reg, namespace: namespace, labels: labelKey(config.Labels)}

	registriesMu.Lock()
	defer registriesMu.Unlock()

	if r, ok := registries[key]; ok {
		return r
	}
	if len(config.Labels) > 0 {
		reg = prometheus.WrapRegistererWith(config.Labels, reg)
	}
	r := newRegistry(reg, namespace)
	registries[key] = r
	return r
}

func labelKey(labels prometheus.Labels) string {
	if len(labels) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(labels))
	for k, v := range labels {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}
