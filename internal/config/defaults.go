package config

// DefaultConfigYAML is written by `jvmdiag config init`.
const DefaultConfigYAML = `# jvmdiag configuration
#
# Every key can be overridden from the environment with the JVMDIAG_ prefix,
# e.g. JVMDIAG_TARGET_HOST=deploy@app01 or JVMDIAG_LOG_LEVEL=debug.

log:
  level: info      # debug, info, warn, error
  format: auto     # auto, text, json

# Leave host empty to diagnose JVMs on this machine.
target:
  host: ""         # host or user@host
  port: 22
  user: ""
  # password: ""
  # key_file: ~/.ssh/id_ed25519
  # key_passphrase: ""
  # known_hosts: ~/.ssh/known_hosts
  dial_timeout: 10s

execution:
  max_concurrency: 4
  # Refuse to spawn local tools when free memory drops below this (0 = off).
  min_free_memory_mb: 0
  retry:
    max_attempts: 3
    timeout_attempts: 2   # a hung JVM rarely recovers; retry timeouts once
    base_delay: 200ms
    max_delay: 2s

cache:
  enabled: true

# Per-tool overrides. cache_ttl: 0s disables caching for that tool.
tools:
  # get_memory_histogram:
  #   timeout: 2m
  #   cache_ttl: 10s

process:
  # Command-line fragments that identify non-target JVMs during
  # automatic process selection.
  self_signatures:
    - arthas
    - sun.tools.jps
    - jdk.jcmd
`
