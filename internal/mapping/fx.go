package mapping

import (
	"github.com/costplane/costplane/internal/mapping/service"
	"go.uber.org/fx"
)

var Module = fx.Module("mapping.service",
	fx.Provide(service.NewService),
)
