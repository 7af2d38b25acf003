// Package config provides ruleset management for the horse race game.
//
// The config package handles:
//   - Loading rulesets from JSON or HCL files
//   - Ruleset validation before anything is cached
//   - Default ruleset management
//   - Ruleset discovery and listing
//
// Ruleset Format:
//
// Rulesets live in a directory as <name>.json or <name>.hcl. Each one
// describes how a session generates its horses and races: roster size,
// runners per race, the race distances and the name and colour catalogs.
// Fields left out are taken from the built-in classic ruleset, so a file
// only needs a name and the values it changes:
//
//	name        = "Sprint"
//	description = "Four short races"
//	field_size  = 8
//	distances   = [1000, 1100, 1200, 1300]
//
// When the directory has no classic ruleset the built-in one is the
// default.
//
// Usage:
//
//	manager, err := config.NewManager("configs")
//
//	// Load specific ruleset
//	rules, err := manager.LoadConfig("sprint")
//
//	// List every valid ruleset in the directory
//	infos, err := manager.ListConfigs()
package config
