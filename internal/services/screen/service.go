// Package screen runs declarative screens over the reconciled universe.
package screen

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bobmcallan/fnoscreen/internal/common"
	"github.com/bobmcallan/fnoscreen/internal/interfaces"
	"github.com/bobmcallan/fnoscreen/internal/models"
	"github.com/bobmcallan/fnoscreen/internal/services/snapshot"
)

// Service implements ScreenService
type Service struct {
	loader  *snapshot.Loader
	engine  *Engine
	logger  *common.Logger
	order   []string
	screens map[string]*models.ScreenDefinition
}

var _ interfaces.ScreenService = (*Service)(nil)

// NewService validates the built-in catalog plus any custom definitions. A custom screen
// with a built-in id replaces it. Any invalid definition is an error.
func NewService(loader *snapshot.Loader, logger *common.Logger, custom ...models.ScreenDefinition) (*Service, error) {
	s := &Service{
		loader:  loader,
		engine:  NewEngine(),
		logger:  logger,
		screens: make(map[string]*models.ScreenDefinition),
	}

	defs := append(Builtins(), custom...)
	for i := range defs {
		def := defs[i]
		if err := s.engine.Validate(&def); err != nil {
			return nil, err
		}
		if _, exists := s.screens[def.ID]; !exists {
			s.order = append(s.order, def.ID)
		}
		s.screens[def.ID] = &def
	}

	logger.Debug().Int("screens", len(s.order)).Int("custom", len(custom)).Msg("Screen catalog loaded")
	return s, nil
}

// ListScreens returns the catalog in display order.
func (s *Service) ListScreens() []models.ScreenSummary {
	out := make([]models.ScreenSummary, 0, len(s.order))
	for _, id := range s.order {
		def := s.screens[id]
		out = append(out, models.ScreenSummary{ID: def.ID, Title: def.Title, Description: def.Description})
	}
	return out
}

// GetScreen returns a definition by id.
func (s *Service) GetScreen(id string) (*models.ScreenDefinition, error) {
	def, ok := s.screens[id]
	if !ok {
		return nil, common.NewScreenNotFound(id)
	}
	return def, nil
}

// RunScreen executes a screen against the current snapshot.
func (s *Service) RunScreen(ctx context.Context, id string, query models.ScreenQuery) (*models.ScreenResult, error) {
	def, err := s.GetScreen(id)
	if err != nil {
		return nil, err
	}

	sortKeys, err := resolveSort(def, query)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	snap, err := s.loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load universe: %w", err)
	}

	result := s.engine.Run(def, snap, sortKeys)

	s.logger.Debug().
		Str("screen", id).
		Int("matched", result.Count).
		Dur("elapsed", time.Since(start)).
		Msg("Screen executed")

	return result, nil
}

// resolveSort applies the caller's sort, which must name a declared column, over the
// definition's default ordering.
func resolveSort(def *models.ScreenDefinition, query models.ScreenQuery) ([]models.SortKey, error) {
	order := strings.ToLower(strings.TrimSpace(query.Order))
	if order != "" && order != "asc" && order != "desc" {
		return nil, common.NewInvalidParameter("invalid sort order %q (must be asc or desc)", query.Order)
	}

	column := strings.TrimSpace(query.Sort)
	if column == "" {
		if order == "" {
			return def.Sort, nil
		}
		// order alone flips the primary default key
		keys := append([]models.SortKey(nil), def.Sort...)
		if len(keys) > 0 {
			keys[0].Desc = order == "desc"
		}
		return keys, nil
	}

	for _, col := range def.Columns {
		if col.Key == column {
			return []models.SortKey{{Column: column, Desc: order == "desc"}}, nil
		}
	}
	return nil, common.NewInvalidParameter("unknown sort column %q for screen %s", query.Sort, def.ID)
}
