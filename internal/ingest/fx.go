package ingest

import "go.uber.org/fx"

var Module = fx.Module("ingest.service",
	fx.Provide(NewService),
)
