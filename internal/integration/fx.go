package integration

import (
	"go.uber.org/fx"

	"github.com/costplane/costplane/internal/integration/service"
)

var Module = fx.Module("integration.service",
	fx.Provide(service.NewService),
)
