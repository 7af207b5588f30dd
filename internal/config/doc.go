// ABOUTME: Settings package
// ABOUTME: Viper-backed configuration for the command line
// Package config loads CLI settings with viper from resonate-engine.yaml,
// RESONATE_* environment variables and bound cobra flags, in increasing
// order of precedence.
package config
