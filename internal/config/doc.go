// Package config handles configuration loading for lex-gateway.
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
//	auth:
//	  jwt_secret: "${LEX_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	conversation:
//	  ttl: "30m"
//	backends:
//	  timeout: "45s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
// Database:
//
//	database:
//	  path: "/var/lib/lexgate/gateway.db"
//
// Access gate:
//
//	auth:
//	  passphrase: "${LEX_PASSPHRASE}"       # or passphrase_hash (bcrypt)
//	  jwt_secret: "${LEX_JWT_SECRET}"       # subscriber bearer tokens
//
// Retrieval and synthesis backends:
//
//	backends:
//	  timeout: "45s"
//	  openai:
//	    api_key: "${OPENAI_API_KEY}"
//	    model: "gpt-4o-mini"
//	    embedding_model: "text-embedding-3-large"
//	  qdrant:
//	    host: "localhost"
//	    port: 6334
//	  sources:
//	    legislation:
//	      collection: "legislation"
//	    jurisprudence:
//	      collection: "jurisprudence"
//	    parliamentary:
//	      collection: "parliamentary"
//
// Result aggregation:
//
//	aggregation:
//	  max_citations: 5   # per-source cap on merged citations
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//	  file: ""        # rotate via lumberjack when set
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load("/etc/lexgate/gateway.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
