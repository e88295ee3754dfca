// Package config loads the service configuration from a JSON file and fills
// in defaults for anything the operator left out.
package config
