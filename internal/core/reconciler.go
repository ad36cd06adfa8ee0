package core

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/cmingest/internal/logging"
	"github.com/google/uuid"
)

// AssetUIDKey is the catalog asset metadata key holding the source asset uid.
const AssetUIDKey = "UID"

// Reconciler creates catalog entities at most once per canonical record.
//
// Asset resolution results, hits and misses alike, are cached per external
// uid for the lifetime of the Reconciler, which is one run. The Reconciler
// is not safe for concurrent use; the pipeline is single-threaded.
type Reconciler struct {
	catalog Catalog
	assets  map[string]*int64
}

// NewReconciler returns a Reconciler backed by catalog.
func NewReconciler(catalog Catalog) *Reconciler {
	return &Reconciler{
		catalog: catalog,
		assets:  make(map[string]*int64),
	}
}

// ResolveAsset returns the catalog id of the asset whose metadata UID equals
// ref.ExternalUID, or nil when there is no such asset or ref has no uid.
// When several assets share the uid the first candidate is used.
func (r *Reconciler) ResolveAsset(ctx context.Context, ref AssetRef) (*int64, error) {
	log := logging.FromContext(ctx)
	if ref.ExternalUID == "" {
		log.Warn("no asset uid, time series will not be linked to an asset", "asset", ref.DisplayName)
		return nil, nil
	}
	if id, ok := r.assets[ref.ExternalUID]; ok {
		return id, nil
	}

	candidates, err := r.catalog.ListAssetsByMetadata(ctx, map[string]string{AssetUIDKey: ref.ExternalUID})
	if err != nil {
		return nil, NewFailure(ReconciliationFailure, CodeLookupFailed,
			fmt.Errorf("look up asset %q: %w", ref.ExternalUID, err))
	}

	var id *int64
	matches := 0
	for _, a := range candidates {
		if a.Metadata[AssetUIDKey] != ref.ExternalUID {
			continue
		}
		if id == nil {
			assetID := a.ID
			id = &assetID
		}
		matches++
	}

	switch {
	case id == nil:
		log.Warn("asset not found in catalog", "asset", ref.DisplayName, "uid", ref.ExternalUID)
	case matches > 1:
		log.Warn("several catalog assets share a uid, using the first",
			"uid", ref.ExternalUID, "matches", matches, "asset_id", *id)
	default:
		log.Debug("asset resolved", "asset", ref.DisplayName, "asset_id", *id)
	}

	r.assets[ref.ExternalUID] = id
	return id, nil
}

// FindExisting returns the time series named exactly name, or nil.
// The catalog prefix query also returns longer names sharing the prefix,
// so candidates are filtered for an exact match.
func (r *Reconciler) FindExisting(ctx context.Context, name string) (*TimeSeries, error) {
	candidates, err := r.catalog.ListTimeSeriesByPrefix(ctx, name)
	if err != nil {
		return nil, NewFailure(ReconciliationFailure, CodeLookupFailed,
			fmt.Errorf("look up time series %q: %w", name, err))
	}
	for i := range candidates {
		if candidates[i].Name == name {
			found := candidates[i]
			logging.FromContext(ctx).Debug("time series exists", "name", name, "id", found.ID)
			return &found, nil
		}
	}
	logging.FromContext(ctx).Info("time series does not exist", "name", name)
	return nil, nil
}

// EnsureTimeSeries returns the catalog time series for rec, creating it when
// absent. Existing time series are never modified. created reports whether a
// new time series was made.
func (r *Reconciler) EnsureTimeSeries(ctx context.Context, rec TimeSeriesRecord) (ts TimeSeries, created bool, err error) {
	existing, err := r.FindExisting(ctx, rec.Name)
	if err != nil {
		return TimeSeries{}, false, err
	}
	if existing != nil {
		return *existing, false, nil
	}

	assetID, err := r.ResolveAsset(ctx, rec.Asset)
	if err != nil {
		return TimeSeries{}, false, err
	}

	ts, err = r.catalog.CreateTimeSeries(ctx, TimeSeries{
		Name:        rec.Name,
		Unit:        rec.Unit,
		Description: rec.Description,
		AssetID:     assetID,
		Metadata:    rec.Metadata,
	})
	if err != nil {
		return TimeSeries{}, false, NewFailure(ReconciliationFailure, CodeCreateFailed,
			fmt.Errorf("create time series %q: %w", rec.Name, err))
	}
	logging.FromContext(ctx).Info("time series created", "name", ts.Name, "id", ts.ID)
	return ts, true, nil
}

// CreateSequence always creates a new catalog sequence for rec and returns it
// with the column ids assigned by the catalog.
func (r *Reconciler) CreateSequence(ctx context.Context, rec SequenceRecord) (Sequence, error) {
	assetID, err := r.ResolveAsset(ctx, rec.Asset)
	if err != nil {
		return Sequence{}, err
	}

	columns := make([]Column, len(rec.Columns))
	for i, c := range rec.Columns {
		columns[i] = Column{Name: c.Name, ValueType: c.ValueType.CatalogType()}
	}

	seq, err := r.catalog.CreateSequence(ctx, Sequence{
		ExternalID:  uuid.NewString(),
		Name:        rec.Name,
		Description: rec.Description,
		AssetID:     assetID,
		Metadata:    rec.Metadata,
		Columns:     columns,
	})
	if err != nil {
		return Sequence{}, NewFailure(ReconciliationFailure, CodeCreateFailed,
			fmt.Errorf("create sequence %q: %w", rec.Name, err))
	}
	logging.FromContext(ctx).Info("sequence created", "name", seq.Name, "id", seq.ID)
	return seq, nil
}
