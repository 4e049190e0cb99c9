// Package config handles configuration loading for synapse-warden.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	homeserver:
//	  registration_shared_secret: "${SYNAPSE_REGISTRATION_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	reconcile:
//	  interval: "2m"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Homeserver:
//
//	homeserver:
//	  public_url: "https://chat.example.com"
//	  local_url: "http://localhost:8008"
//	  server_name: "example.com"
//	  registration_shared_secret: "${SYNAPSE_REGISTRATION_SECRET}"
//
// Moderation add-on:
//
//	mjolnir:
//	  enabled: true
//	  bot_username: "moderator"
//	  config_path: "/data/config/production.yaml"
//	  rate_limit:
//	    messages_per_second: 0
//	    burst_count: 0
//
// Supervisor and secret store:
//
//	supervisor:
//	  socket_path: "/var/run/synapse/supervisor.sock"
//	  service_name: "synapse"
//	secrets:
//	  path: "/var/lib/warden/secrets.db"
//
// Status endpoint:
//
//	server:
//	  http_addr: "0.0.0.0:8124"
//	  jwt_secret: "${WARDEN_JWT_SECRET}"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - server_name and supervisor socket presence
//   - JWT secret minimum length (32 bytes) when the endpoint is enabled
//   - Duration format validity
//   - Rate-limit policy values
package config
