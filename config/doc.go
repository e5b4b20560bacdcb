// Package config provides configuration management for the topicflow
// runtime.
//
// Configuration is loaded from JSON or YAML files with layer merging (base +
// overrides) on top of built-in defaults, with environment variable
// overrides applied last. The Loader only replaces fields a layer
// actually sets, so partial override files stay small.
//
// Basic usage:
//
//	loader := config.NewLoader()
//	loader.AddLayer("config/base.json")
//	loader.AddLayer("config/production.json") // Overrides base
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
package config
