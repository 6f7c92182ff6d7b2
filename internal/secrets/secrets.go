// Package secrets resolves named secret bundles for outbound
// credentials.
package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/gramlink/unfurler/internal/unfurl"
)

// EnvSource reads secrets from environment variables. The bundle name
// and key are upper-cased and joined, so GetSecret(ctx, "chat") with
// key "token" reads UNFURLER_SECRET_CHAT_TOKEN.
type EnvSource struct {
	prefix string
	keys   map[string][]string
}

// NewEnvSource builds a source for the given bundle layout. keys maps
// bundle name to the keys it must contain.
func NewEnvSource(prefix string, keys map[string][]string) *EnvSource {
	if prefix == "" {
		prefix = "UNFURLER_SECRET"
	}
	return &EnvSource{prefix: prefix, keys: keys}
}

// GetSecret resolves every key of the named bundle, failing when any
// variable is unset.
func (s *EnvSource) GetSecret(_ context.Context, name string) (map[string]string, error) {
	keys, ok := s.keys[name]
	if !ok {
		return nil, fmt.Errorf("unknown secret bundle %q", name)
	}

	bundle := make(map[string]string, len(keys))
	for _, key := range keys {
		envName := s.envName(name, key)
		value := os.Getenv(envName)
		if value == "" {
			return nil, fmt.Errorf("secret %s: %s is not set", name, envName)
		}
		bundle[key] = value
	}
	return bundle, nil
}

func (s *EnvSource) envName(bundle, key string) string {
	normalize := func(v string) string {
		return strings.ToUpper(strings.ReplaceAll(v, "-", "_"))
	}
	return s.prefix + "_" + normalize(bundle) + "_" + normalize(key)
}

// Cached wraps a SecretSource with a process-lifetime cache so hot
// paths never block on secret resolution twice for the same bundle.
type Cached struct {
	source unfurl.SecretSource

	mu      sync.Mutex
	bundles map[string]map[string]string
}

// NewCached wraps the given source.
func NewCached(source unfurl.SecretSource) *Cached {
	return &Cached{source: source, bundles: make(map[string]map[string]string)}
}

// GetSecret returns the cached bundle or resolves and caches it.
// Failed resolutions are not cached, so a fixed environment heals on
// the next call.
func (c *Cached) GetSecret(ctx context.Context, name string) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if bundle, ok := c.bundles[name]; ok {
		return bundle, nil
	}

	bundle, err := c.source.GetSecret(ctx, name)
	if err != nil {
		return nil, err
	}
	c.bundles[name] = bundle
	return bundle, nil
}
