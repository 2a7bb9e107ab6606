package api

import (
	"github.com/getkin/kin-openapi/openapi3"

	"piexed/internal/config"
	"piexed/internal/installer"
	"piexed/internal/metrics"
	"piexed/internal/ws"
)

type server struct {
	cfg           config.Config
	installer     *installer.Installer
	hub           *ws.Hub
	metrics       *metrics.Metrics
	installSchema *openapi3.Schema
}
