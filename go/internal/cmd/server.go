package main

import (
	"net/http"

	"github.com/mcdev12/roast-arena/go/internal/config"
	"github.com/mcdev12/roast-arena/go/internal/inspector"
)

func setupServer(cfg *config.Config, services *Services) *http.Server {
	var arch inspector.Archive
	if services.Archive != nil {
		arch = services.Archive
	}
	handler := inspector.NewHandler(services.Orchestrator, services.API, arch)
	return inspector.NewServer(cfg.Inspector.Addr, handler)
}
