// Package config loads the YAML configuration shared by the commands.
package config
