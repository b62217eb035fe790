package wells

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"prodsum/internal/frame"
	"prodsum/internal/services"
)

// Aggregator runs the full per-year transformation.
type Aggregator struct {
	Columns        Columns
	RemoveInactive bool
}

// YearTables locates one report year's converted production and completions
// Parquet files.
type YearTables struct {
	ProductionPath  string
	CompletionsPath string
}

// Run transforms every year in a fresh DuckDB database and joins each
// production summary with the latest year's completions.
func (a Aggregator) Run(ctx context.Context, tables map[int]YearTables) (map[int]*frame.Frame, error) {
	engine, err := OpenEngine(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "aggregate", "open engine", "", err)
	}
	defer engine.Close()

	production := make(map[int]string, len(tables))
	completions := make(map[int]string, len(tables))
	for _, year := range slices.Sorted(maps.Keys(tables)) {
		t := tables[year]
		if t.ProductionPath == "" || t.CompletionsPath == "" {
			return nil, services.Wrap(services.ErrValidation, "aggregate", "load tables", fmt.Sprintf("year %d: missing table", year), nil)
		}
		rawProd, rawComp := tableName("raw_production", year), tableName("raw_completions", year)
		if err := engine.LoadParquet(ctx, rawProd, t.ProductionPath); err != nil {
			return nil, services.Wrap(services.ErrIntegrity, "aggregate", "read production table", t.ProductionPath, err)
		}
		if err := engine.LoadParquet(ctx, rawComp, t.CompletionsPath); err != nil {
			return nil, services.Wrap(services.ErrIntegrity, "aggregate", "read completions table", t.CompletionsPath, err)
		}

		prod, comp := tableName("production", year), tableName("completions", year)
		if err := engine.TransformProduction(ctx, rawProd, prod, a.Columns); err != nil {
			return nil, fmt.Errorf("year %d production: %w", year, err)
		}
		if err := engine.TransformCompletions(ctx, rawComp, comp, a.Columns); err != nil {
			return nil, fmt.Errorf("year %d completions: %w", year, err)
		}
		production[year] = prod
		completions[year] = comp
	}
	return engine.JoinLatest(ctx, production, completions, a.RemoveInactive)
}
