package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/costplane/costplane/internal/config"
	"github.com/costplane/costplane/internal/dimension"
	"github.com/costplane/costplane/internal/ingest"
	"github.com/costplane/costplane/internal/integration"
	"github.com/costplane/costplane/internal/mapping"
	"github.com/costplane/costplane/internal/migration"
	"github.com/costplane/costplane/internal/poller"
	"github.com/costplane/costplane/internal/server"
	"github.com/costplane/costplane/internal/storage"
	"github.com/costplane/costplane/internal/upload"
	"github.com/costplane/costplane/pkg/db"
	"github.com/costplane/costplane/pkg/log"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		storage.Module,

		// Functional domains
		mapping.Module,
		dimension.Module,
		upload.Module,
		integration.Module,
		ingest.Module,

		// Surfaces
		server.Module,
		poller.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
