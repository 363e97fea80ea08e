// Package config handles loading, validating and watching tickerbox configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields and pin assignments
//   - Default value handling (the reference 16x2 build)
//   - Live reload of the tracked topic list
//
// Security Considerations:
//   - Access tokens and broker passwords should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Pipeline.Topics)
package config
