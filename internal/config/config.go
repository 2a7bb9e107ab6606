package config

import "time"

type Config struct {
	Addr      string
	WorkDir   string
	StaticDir string
	LogFormat string
	LogLevel  string

	// ProbeTimeout bounds the database liveness check.
	ProbeTimeout time.Duration
	// StageTimeout bounds every other provisioning stage.
	StageTimeout time.Duration
	BcryptCost   int
}
