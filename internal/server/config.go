package server

import "buildsnap/internal/config"

// Config for the HTTP API server.
type Config struct {
	// ListenAddr is the HTTP listen address.
	ListenAddr string

	// Runtime supplies the Jenkins target and credentials used when a
	// capture request does not override them.
	Runtime *config.Config
}
