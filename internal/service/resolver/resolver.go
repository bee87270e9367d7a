// Package resolver turns a batch request into an ordered list of work items
// using the metadata catalog.
package resolver

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"vibe-transcriber-service/internal/apperr"
	"vibe-transcriber-service/internal/models"
	"vibe-transcriber-service/internal/observability/logging"
	"vibe-transcriber-service/internal/store"
)

// Catalog is the read side of the metadata catalog.
type Catalog interface {
	FindByFileRef(ctx context.Context, fileRef string) (*models.CatalogEntry, error)
	FindByDevice(ctx context.Context, deviceID, localDate string, timeBlocks []string) ([]models.CatalogEntry, error)
}

// Resolution is the outcome of resolving one request.
type Resolution struct {
	// Items are in request order (Explicit) or recorded_at order (ByDevice).
	Items []models.WorkItem
	// Unresolved lists explicit references the catalog does not know.
	Unresolved []string
}

// Resolver resolves batch requests.
type Resolver struct {
	catalog Catalog
	log     zerolog.Logger
}

// New creates a resolver.
func New(c Catalog) *Resolver {
	return &Resolver{catalog: c, log: logging.WithComponent("resolver")}
}

// Resolve maps req to work items. An empty result is valid. A failed
// ByDevice query is a KindCatalog error; a request with neither variant is
// KindInvalidRequest.
func (r *Resolver) Resolve(ctx context.Context, req models.BatchRequest) (Resolution, error) {
	switch req.Mode() {
	case models.BatchModeByDevice:
		return r.byDevice(ctx, *req.ByDevice)
	case models.BatchModeExplicit:
		return r.explicit(ctx, req.Explicit.FileRefs), nil
	default:
		return Resolution{}, apperr.Errorf(apperr.KindInvalidRequest, "resolver.resolve",
			"either device_id + local_date or file_paths is required")
	}
}

func (r *Resolver) byDevice(ctx context.Context, sel models.DeviceSelection) (Resolution, error) {
	entries, err := r.catalog.FindByDevice(ctx, sel.DeviceID, sel.LocalDate, sel.TimeBlocks)
	if err != nil {
		return Resolution{}, apperr.E(apperr.KindCatalog, "resolver.by_device", err)
	}

	items := make([]models.WorkItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, e.WorkItem())
	}
	r.log.Info().
		Str("deviceId", sel.DeviceID).
		Str("localDate", sel.LocalDate).
		Strs("timeBlocks", sel.TimeBlocks).
		Int("items", len(items)).
		Msg("Resolved device selection")
	return Resolution{Items: items}, nil
}

// explicit looks each reference up. A reference that cannot be resolved is
// dropped with a warning and never becomes a work item.
func (r *Resolver) explicit(ctx context.Context, fileRefs []string) Resolution {
	var res Resolution
	res.Items = make([]models.WorkItem, 0, len(fileRefs))

	for _, ref := range fileRefs {
		if strings.TrimSpace(ref) == "" {
			r.log.Warn().Msg("Skipping empty file reference")
			res.Unresolved = append(res.Unresolved, ref)
			continue
		}

		entry, err := r.catalog.FindByFileRef(ctx, ref)
		switch {
		case errors.Is(err, store.ErrNotFound):
			r.log.Warn().Str("fileRef", ref).Msg("File reference not found in catalog, skipping")
			res.Unresolved = append(res.Unresolved, ref)
			continue
		case err != nil:
			r.log.Error().Err(err).Str("fileRef", ref).Msg("Catalog lookup failed, skipping")
			res.Unresolved = append(res.Unresolved, ref)
			continue
		}
		res.Items = append(res.Items, entry.WorkItem())
	}

	r.log.Info().
		Int("requested", len(fileRefs)).
		Int("resolved", len(res.Items)).
		Int("unresolved", len(res.Unresolved)).
		Msg("Resolved explicit selection")
	return res
}
