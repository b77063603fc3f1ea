package migration

import (
	"strings"

	"go.uber.org/fx"
	"gorm.io/gorm"

	dimensiondomain "github.com/costplane/costplane/internal/dimension/domain"
	factdomain "github.com/costplane/costplane/internal/fact/domain"
	integrationdomain "github.com/costplane/costplane/internal/integration/domain"
	mappingdomain "github.com/costplane/costplane/internal/mapping/domain"
	uploaddomain "github.com/costplane/costplane/internal/upload/domain"
)

// Models lists every persisted model, in dependency order.
var Models = []any{
	&mappingdomain.DetectedColumn{},
	&mappingdomain.MappingSuggestion{},
	&mappingdomain.ColumnMapping{},
	&dimensiondomain.Account{},
	&dimensiondomain.CloudService{},
	&dimensiondomain.Region{},
	&dimensiondomain.Resource{},
	&dimensiondomain.SKU{},
	&dimensiondomain.CommitmentDiscount{},
	&uploaddomain.Upload{},
	&factdomain.BillingFact{},
	&integrationdomain.StorageIntegration{},
}

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB) error {
		// SQL migrations target postgres; sqlite deployments rely on
		// gorm's schema derivation.
		if !strings.EqualFold(conn.Dialector.Name(), "postgres") {
			return conn.AutoMigrate(Models...)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
