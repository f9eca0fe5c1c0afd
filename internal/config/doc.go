// Package config defines the authcore configuration tree, the YAML
// loader with environment-variable substitution, and a file watcher
// that reloads configuration on change.
package config
