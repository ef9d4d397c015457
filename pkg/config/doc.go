// Package config loads and validates the cluster configuration consumed
// by the provision, operator, and slice commands.
//
// Configuration is read with viper from a YAML file, with GPUSLICE_*
// environment variable overrides, decoded via mapstructure, and
// validated with struct tags plus Azure-specific custom rules.
package config
