package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	mappingdomain "github.com/costplane/costplane/internal/mapping/domain"
	"github.com/costplane/costplane/internal/provider"
	"github.com/costplane/costplane/internal/tenantctx"
)

func newTestService(t *testing.T) (mappingdomain.Service, context.Context, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&mappingdomain.DetectedColumn{},
		&mappingdomain.MappingSuggestion{},
		&mappingdomain.ColumnMapping{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
	})

	ctx := tenantctx.WithTenantID(context.Background(), node.Generate())
	return svc, ctx, db
}

func TestRecordDetectedColumns_Idempotent(t *testing.T) {
	svc, ctx, db := newTestService(t)

	headers := []string{"lineItem/UsageAccountId", "lineItem/ProductCode"}
	require.NoError(t, svc.RecordDetectedColumns(ctx, provider.AWS, headers))
	// Same headers again, different raw spelling of one of them.
	require.NoError(t, svc.RecordDetectedColumns(ctx, provider.AWS, []string{"line_item_usage_account_id", "lineItem/ProductCode"}))

	var count int64
	require.NoError(t, db.Model(&mappingdomain.DetectedColumn{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestRecordDetectedColumns_RequiresTenant(t *testing.T) {
	svc, _, _ := newTestService(t)

	err := svc.RecordDetectedColumns(context.Background(), provider.AWS, []string{"cost"})
	assert.ErrorIs(t, err, mappingdomain.ErrInvalidTenant)
}

func TestSuggest_AutoAcceptsExactAlias(t *testing.T) {
	svc, _, _ := newTestService(t)

	headers := []string{"lineItem/UsageAccountId", "lineItem/UnblendedCost", "some_random_junk_xyz"}
	sample := [][]string{
		{"123456789012", "1.25", "n/a"},
		{"123456789012", "0.75", "n/a"},
	}

	suggestions := svc.Suggest(headers, sample)

	byColumn := make(map[string]mappingdomain.Suggestion, len(suggestions))
	for _, s := range suggestions {
		byColumn[s.SourceColumn] = s
	}

	account, ok := byColumn["lineItem/UsageAccountId"]
	require.True(t, ok)
	assert.Equal(t, provider.FieldAccountID, account.TargetField)
	assert.True(t, account.AutoMapped)
	assert.GreaterOrEqual(t, account.Confidence, 0.8)

	cost, ok := byColumn["lineItem/UnblendedCost"]
	require.True(t, ok)
	assert.Equal(t, provider.FieldBilledCost, cost.TargetField)
	assert.True(t, cost.AutoMapped)
}

func TestSuggest_Deterministic(t *testing.T) {
	svc, _, _ := newTestService(t)

	headers := []string{"SubscriptionId", "MeterCategory", "CostInBillingCurrency", "UsageDateTime"}
	first := svc.Suggest(headers, nil)
	second := svc.Suggest(headers, nil)
	assert.Equal(t, first, second)
}

func TestPersistSuggestions_ConfirmedMappingWins(t *testing.T) {
	svc, ctx, _ := newTestService(t)

	// Tenant confirms a mapping by hand first.
	confirmed, err := svc.ConfirmMapping(ctx, mappingdomain.ConfirmMappingRequest{
		Provider:     string(provider.AWS),
		TargetField:  string(provider.FieldBilledCost),
		SourceColumn: "my_custom_cost",
	})
	require.NoError(t, err)
	assert.False(t, confirmed.AutoMapped)

	// A later upload produces an auto-accepted suggestion for the same field.
	err = svc.PersistSuggestions(ctx, provider.AWS, []mappingdomain.Suggestion{
		{
			SourceColumn: "lineItem/UnblendedCost",
			TargetField:  provider.FieldBilledCost,
			Confidence:   0.95,
			AutoMapped:   true,
		},
	})
	require.NoError(t, err)

	mappings, err := svc.ListMappings(ctx, provider.AWS)
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	assert.Equal(t, "my_custom_cost", mappings[0].SourceColumn)
	assert.False(t, mappings[0].AutoMapped)

	// The suggestion itself is still kept for audit.
	suggestions, err := svc.ListSuggestions(ctx, provider.AWS)
	require.NoError(t, err)
	assert.Len(t, suggestions, 1)
}

func TestConfirmMapping_OverridesAutoMapped(t *testing.T) {
	svc, ctx, _ := newTestService(t)

	err := svc.PersistSuggestions(ctx, provider.AWS, []mappingdomain.Suggestion{
		{SourceColumn: "lineItem/UnblendedCost", TargetField: provider.FieldBilledCost, Confidence: 0.95, AutoMapped: true},
	})
	require.NoError(t, err)

	_, err = svc.ConfirmMapping(ctx, mappingdomain.ConfirmMappingRequest{
		Provider:     string(provider.AWS),
		TargetField:  string(provider.FieldBilledCost),
		SourceColumn: "corrected_cost",
	})
	require.NoError(t, err)

	mappings, err := svc.ListMappings(ctx, provider.AWS)
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	assert.Equal(t, "corrected_cost", mappings[0].SourceColumn)
	assert.False(t, mappings[0].AutoMapped)
}

func TestConfirmMapping_RejectsUnknownField(t *testing.T) {
	svc, ctx, _ := newTestService(t)

	_, err := svc.ConfirmMapping(ctx, mappingdomain.ConfirmMappingRequest{
		Provider:     string(provider.AWS),
		TargetField:  "not_a_field",
		SourceColumn: "whatever",
	})
	assert.ErrorIs(t, err, mappingdomain.ErrInvalidField)
}

func TestResolveMapping_ExactAndNormalized(t *testing.T) {
	svc, ctx, _ := newTestService(t)

	_, err := svc.ConfirmMapping(ctx, mappingdomain.ConfirmMappingRequest{
		Provider:     string(provider.AWS),
		TargetField:  string(provider.FieldAccountID),
		SourceColumn: "lineItem/UsageAccountId",
	})
	require.NoError(t, err)

	// Exact header match.
	resolved, err := svc.ResolveMapping(ctx, provider.AWS, []string{"lineItem/UsageAccountId", "cost"})
	require.NoError(t, err)
	assert.Equal(t, "lineItem/UsageAccountId", resolved[provider.FieldAccountID])

	// The same mapping applies to a file spelling the header differently.
	resolved, err = svc.ResolveMapping(ctx, provider.AWS, []string{"line_item_usage_account_id", "cost"})
	require.NoError(t, err)
	assert.Equal(t, "line_item_usage_account_id", resolved[provider.FieldAccountID])

	// A file without the column leaves the field unmapped.
	resolved, err = svc.ResolveMapping(ctx, provider.AWS, []string{"cost"})
	require.NoError(t, err)
	_, ok := resolved[provider.FieldAccountID]
	assert.False(t, ok)
}
