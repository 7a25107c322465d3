// Package config handles configuration loading for coven-workbench.
//
// # Overview
//
// One file configures every binary: the workbench service, the terminal
// frontend, the example agent, and the dev orchestrator. Each binary calls
// the Validate method for its own role after Load.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path passed with --config
//  2. Path from WORKBENCH_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/coven/workbench.yaml
//  4. ~/.config/coven/workbench.yaml
//
// Files with a .toml extension are decoded as TOML; anything else as YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${WORKBENCH_JWT_SECRET}"
//
// Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	stream:
//	  keepalive_interval: "15s"
//	  retry: "3s"
//
// # Example
//
//	server:
//	  http_addr: "127.0.0.1:3000"
//	  grpc_addr: "127.0.0.1:3001"
//	database:
//	  path: "~/.local/share/coven/workbench.db"
//	workbench:
//	  service_url: "http://127.0.0.1:3000"
//	  conversation_id: "conv-1"
//	dev:
//	  processes:
//	    - name: service
//	      command: ["workbench-service", "serve"]
//	      wait_ready: true
//	    - name: agent
//	      command: ["example-agent", "--conversation", "conv-1"]
package config
