package server

import (
	"context"

	"github.com/toastate/frontpipe/internal/reload"
	"github.com/toastate/frontpipe/internal/server"
	"github.com/toastate/frontpipe/pkg/config"
)

// ReloadKind is what connected pages do on reload.
type ReloadKind = reload.Kind

const (
	ReloadCSS  = reload.CSS
	ReloadPage = reload.Page
)

type Server interface {
	Start(ctx context.Context) error
	Reload(k reload.Kind)
}

// NewServer returns the dev server of cfg.
func NewServer(cfg *config.Configuration) Server {
	return server.NewServer(cfg.Root, cfg.Serve.Host, cfg.Serve.Port, cfg.Serve.Redirect404)
}
