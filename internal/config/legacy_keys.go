package config

import (
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Legacy environment variables from the Arthas-based deployment. They only
// fill target settings that were not configured through the new keys.
const (
	legacyHostEnv     = "ARTHAS_SSH_HOST"
	legacyPortEnv     = "ARTHAS_SSH_PORT"
	legacyPasswordEnv = "ARTHAS_SSH_PASSWORD"
)

var legacyTargetKeys = []struct {
	env string
	key string
	def string
}{
	{legacyHostEnv, "target.host", ""},
	{legacyPortEnv, "target.port", "22"},
	{legacyPasswordEnv, "target.password", ""},
}

func applyLegacyEnv(v *viper.Viper, envPrefix string, lookup func(string) (string, bool)) {
	if lookup == nil {
		return
	}
	prefix := strings.ToUpper(envPrefix)
	for _, lk := range legacyTargetKeys {
		val, ok := lookup(lk.env)
		val = strings.TrimSpace(val)
		if !ok || val == "" {
			continue
		}
		if v.GetString(lk.key) != lk.def || explicitlySet(v, lookup, prefix, lk.key) {
			continue
		}
		if lk.key == "target.port" {
			port, err := strconv.Atoi(val)
			if err != nil {
				// Leave the bad value for the validator to report.
				v.Set(lk.key, val)
				continue
			}
			v.Set(lk.key, port)
			continue
		}
		v.Set(lk.key, val)
	}
}

// explicitlySet reports whether key came from the config file or the
// prefixed environment, even when the value equals the default.
func explicitlySet(v *viper.Viper, lookup func(string) (string, bool), prefix, key string) bool {
	if v.InConfig(key) {
		return true
	}
	env := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
	if prefix != "" {
		env = prefix + "_" + env
	}
	if val, ok := lookup(env); ok && val != "" {
		return true
	}
	return false
}

// normalizeTarget splits a "user@host" host into its parts when no user is
// configured separately.
func normalizeTarget(t *TargetConfig) {
	t.Host = strings.TrimSpace(t.Host)
	t.User = strings.TrimSpace(t.User)
	if at := strings.LastIndex(t.Host, "@"); at >= 0 {
		if t.User == "" {
			t.User = t.Host[:at]
		}
		t.Host = t.Host[at+1:]
	}
}
