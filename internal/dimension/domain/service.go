package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	mappingdomain "github.com/costplane/costplane/internal/mapping/domain"
	"github.com/costplane/costplane/internal/provider"
)

// Kind identifies one dimension table.
type Kind string

const (
	KindAccount            Kind = "account"
	KindService            Kind = "service"
	KindRegion             Kind = "region"
	KindResource           Kind = "resource"
	KindSKU                Kind = "sku"
	KindCommitmentDiscount Kind = "commitment_discount"
)

// Kinds lists every dimension kind. The first three are mandatory for fact
// rows; the rest may resolve to null.
var Kinds = []Kind{
	KindAccount,
	KindService,
	KindRegion,
	KindResource,
	KindSKU,
	KindCommitmentDiscount,
}

// MandatoryKinds are the dimensions a fact row cannot be written without.
var MandatoryKinds = []Kind{KindAccount, KindService, KindRegion}

// kindFields maps each kind to the internal field holding its natural key.
var kindFields = map[Kind]provider.Field{
	KindAccount:            provider.FieldAccountID,
	KindService:            provider.FieldServiceName,
	KindRegion:             provider.FieldRegionCode,
	KindResource:           provider.FieldResourceID,
	KindSKU:                provider.FieldSKUID,
	KindCommitmentDiscount: provider.FieldCommitmentDiscountID,
}

// KeyField returns the internal field carrying the natural key for a kind.
func KeyField(kind Kind) provider.Field { return kindFields[kind] }

// KeySet holds the distinct natural keys collected for one batch, per kind.
type KeySet map[Kind]map[string]struct{}

// IDMap is the preloaded natural-key -> surrogate-id cache, per kind.
type IDMap map[Kind]map[string]snowflake.ID

// IDs carries the resolved surrogate ids for one mapped row. Optional kinds
// stay nil when the row has no value or the key is unknown.
type IDs struct {
	AccountID            *snowflake.ID
	ServiceID            *snowflake.ID
	RegionID             *snowflake.ID
	ResourceID           *snowflake.ID
	SKUID                *snowflake.ID
	CommitmentDiscountID *snowflake.ID
}

type Service interface {
	// UpsertKeys writes every key in the set inside one transaction.
	// Re-upserting a known key is a no-op; any failure rolls back the
	// whole batch.
	UpsertKeys(ctx context.Context, prov provider.Provider, keys KeySet) error
	// LoadMaps rebuilds the full natural-key -> surrogate-id map per kind
	// for the tenant, including rows committed by the latest UpsertKeys.
	// Accounts are keyed per provider, so the map only covers the given
	// provider's rows.
	LoadMaps(ctx context.Context, prov provider.Provider) (IDMap, error)
}

var ErrInvalidTenant = errors.New("invalid_tenant")

// Collect accumulates the distinct natural keys present in a batch of mapped
// rows, skipping keys already resolved in a previous batch. Single pass, no
// queries.
func Collect(rows []mappingdomain.MappedRow, known IDMap) KeySet {
	keys := make(KeySet, len(Kinds))
	for _, kind := range Kinds {
		keys[kind] = make(map[string]struct{})
	}
	for _, row := range rows {
		for _, kind := range Kinds {
			value, ok := row[kindFields[kind]]
			if !ok || value == "" {
				continue
			}
			if cached, ok := known[kind]; ok {
				if _, hit := cached[value]; hit {
					continue
				}
			}
			keys[kind][value] = struct{}{}
		}
	}
	return keys
}

// Empty reports whether the set holds no keys at all.
func (k KeySet) Empty() bool {
	for _, values := range k {
		if len(values) > 0 {
			return false
		}
	}
	return true
}

// Resolve attaches surrogate ids to one mapped row from the preloaded maps.
// It returns false when a mandatory dimension is missing or unknown; such
// rows are dropped and counted by the caller, never written with defaults.
func Resolve(row mappingdomain.MappedRow, maps IDMap) (IDs, bool) {
	var ids IDs
	assign := map[Kind]**snowflake.ID{
		KindAccount:            &ids.AccountID,
		KindService:            &ids.ServiceID,
		KindRegion:             &ids.RegionID,
		KindResource:           &ids.ResourceID,
		KindSKU:                &ids.SKUID,
		KindCommitmentDiscount: &ids.CommitmentDiscountID,
	}

	for _, kind := range Kinds {
		value, ok := row[kindFields[kind]]
		if !ok || value == "" {
			continue
		}
		if id, hit := maps[kind][value]; hit {
			resolved := id
			*assign[kind] = &resolved
		}
	}

	for _, kind := range MandatoryKinds {
		if *assign[kind] == nil {
			return IDs{}, false
		}
	}
	return ids, true
}
