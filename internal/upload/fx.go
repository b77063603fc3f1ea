package upload

import (
	"github.com/costplane/costplane/internal/upload/service"
	"go.uber.org/fx"
)

var Module = fx.Module("upload.service",
	fx.Provide(service.NewService),
)
