// Package config handles HCL configuration parsing, validation, and defaults.
//
// # Overview
//
// pfw reads an HCL file (JSON is accepted as a fallback) with four blocks:
//
//   - server: listen address, timeouts, limits, API keys, CORS
//   - store: backend kind and path
//   - console: server URL and client timeout for the console and CLI
//   - logging: level and output format
//
// Values may reference the environment through the env function:
//
//	server {
//	  listen = env("PFW_LISTEN", "127.0.0.1:8000")
//	}
//
// After decoding, [Config.ApplyDefaults] fills anything left unset and
// [Config.ApplyEnv] lets PFW_* variables override the file.
//
// # Example
//
//	server {
//	  listen          = "0.0.0.0:8000"
//	  max_connections = 256
//	  cors_origins    = ["https://fw.example.net"]
//
//	  rate_limit {
//	    requests = 60
//	    interval = "1m"
//	  }
//
//	  api_key "ops" {
//	    hash = "$2a$10$..."
//	  }
//	}
//
//	store {
//	  kind   = "sqlite"
//	  path   = "/var/lib/pfw/rules.db"
//	  strict = true
//	}
package config
