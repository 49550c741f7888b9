// Package config loads statekit configuration files.
//
// Configuration is read from statekit.yaml (or statekit.yml, or
// statekit.json) in the working directory. The format is chosen by file
// extension.
//
// # Configuration File Structure
//
//	name: configurator
//	url:
//	  base: "#"
//	  delimiter: "|"
//	  noUrl: false
//	stateCss: [brand, bodystyle]
//	params:
//	  brand:
//	    oneOf: [gmc, chevrolet]
//	    default: gmc
//	  year:
//	    pattern: '\d{4}'
//	server:
//	  host: localhost
//	  port: 3000
//	  metrics: true
//	  shutdownTimeout: 5s
//	log:
//	  level: info
//	  format: text
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	m := state.New(state.WithConfig(cs))
//	m.AddConfig(cfg.Specs())
//	cfg.Apply(cs)
package config
