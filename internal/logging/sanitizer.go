package logging

import (
	"regexp"
)

// Sanitizer redacts sensitive information from log messages. JVM command
// lines reported by jps and jinfo routinely carry passwords in system
// properties, so those are covered alongside SSH credentials.
type Sanitizer struct {
	patterns []*regexp.Regexp
	redacted string
}

// NewSanitizer creates a sanitizer with default patterns.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		patterns: defaultPatterns(),
		redacted: "[REDACTED]",
	}
}

func defaultPatterns() []*regexp.Regexp {
	patterns := []string{
		// PEM private keys (ssh, rsa, ec, pkcs8)
		`(?s)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?-----END [A-Z ]*PRIVATE KEY-----`,
		// JVM system properties: -Djavax.net.ssl.keyStorePassword=..., -Ddb.password=...
		`(?i)-D[\w.-]*(password|passwd|secret|token|credentials?)[\w.-]*=\S+`,
		// JMX / JDBC URLs with inline credentials
		`(?i)://[^/\s:@]+:[^/\s@]+@`,
		// SSH passphrases
		`(?i)passphrase["'\s:=]+[^\s"']+`,
		// Generic passwords
		`(?i)password["'\s:=]+[^\s"']{4,}`,
		// Generic Bearer tokens
		`(?i)bearer\s+[a-zA-Z0-9._-]{20,}`,
		// Generic secrets
		`(?i)secret["'\s:=]+[a-zA-Z0-9_-]{16,}`,
		// AWS Access Key
		`AKIA[0-9A-Z]{16}`,
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return compiled
}

// Sanitize redacts sensitive information from a string.
func (s *Sanitizer) Sanitize(input string) string {
	result := input
	for _, pattern := range s.patterns {
		result = pattern.ReplaceAllString(result, s.redacted)
	}
	return result
}

// AddPattern adds a custom pattern.
func (s *Sanitizer) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	s.patterns = append(s.patterns, re)
	return nil
}
