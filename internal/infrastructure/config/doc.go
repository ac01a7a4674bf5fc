// Package config handles loading and validating the hub runtime configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// The hass section carries the runtime switches that drive bootstrap and
// service dispatch:
//
//	hass:
//	  base_url: "http://homeassistant.local:8123"
//	  auto_scan_call_proxy: true     # load the service catalog on bootstrap
//	  auto_connect_socket: true      # connect + load entities on startup
//	  call_proxy_allow_rest: "allow" # allow, prefer, deny
//	  event_debounce_ms: 50
//	  retry_interval: 5000           # ms between bootstrap fetch attempts
//
// Security Considerations:
//   - The hub token should be set via GRAYLOGIC_HASS_TOKEN, not the file
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Hass.BaseURL)
package config
