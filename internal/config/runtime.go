package config

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/modplan/internal/dataset"
	"github.com/roach88/modplan/internal/engine"
	"github.com/roach88/modplan/internal/ir"
	"github.com/roach88/modplan/internal/modify"
	"github.com/roach88/modplan/internal/querysql"
	"github.com/roach88/modplan/internal/store"
)

// Runtime is a store with compiled plans and an engine running them.
type Runtime struct {
	Store    *store.Store
	Datasets *dataset.Registry
	Plans    *modify.Registry
	Engine   *engine.Engine
}

// Open opens the configured store, creates the content tables of types,
// compiles their plans and builds an engine. Extra options are applied
// after the configured ones.
func (c *Config) Open(ctx context.Context, types []*ir.ContentType, logger *zap.Logger, extra ...engine.Option) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	s, err := store.OpenDSN(c.Store.Driver, c.Store.DSN, store.WithStatementCacheSize(c.Store.StatementCache))
	if err != nil {
		return nil, err
	}

	rt, err := c.build(ctx, s, types, logger, extra)
	if err != nil {
		s.Close()
		return nil, err
	}
	return rt, nil
}

func (c *Config) build(ctx context.Context, s *store.Store, types []*ir.ContentType, logger *zap.Logger, extra []engine.Option) (*Runtime, error) {
	compiler := querysql.NewSQLCompiler(s.Dialect())
	for _, ct := range types {
		ddl, err := compiler.CreateTables(ct, c.Columns)
		if err != nil {
			return nil, fmt.Errorf("content type %s: %w", ct.Name, err)
		}
		if err := s.EnsureTables(ctx, ddl); err != nil {
			return nil, fmt.Errorf("content type %s: %w", ct.Name, err)
		}
	}

	plans, datasets, err := c.compilePlans(compiler, types, logger)
	if err != nil {
		return nil, err
	}

	opts := append([]engine.Option{
		engine.WithLogger(logger.Named("engine")),
		engine.WithParamNames(c.Params),
		engine.WithDiscriminators(c.Discriminators),
		engine.WithMaxRows(c.Engine.MaxRows),
	}, extra...)
	e, err := engine.New(ctx, s, plans, datasets, opts...)
	if err != nil {
		return nil, err
	}

	return &Runtime{Store: s, Datasets: datasets, Plans: plans, Engine: e}, nil
}

// Plans compiles the plans of types for the configured dialect without
// opening a store.
func (c *Config) Plans(types []*ir.ContentType, logger *zap.Logger) (*modify.Registry, *dataset.Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dialect, err := querysql.ParseDialect(c.Store.Driver)
	if err != nil {
		return nil, nil, err
	}
	return c.compilePlans(querysql.NewSQLCompiler(dialect), types, logger)
}

func (c *Config) compilePlans(compiler *querysql.SQLCompiler, types []*ir.ContentType, logger *zap.Logger) (*modify.Registry, *dataset.Registry, error) {
	datasets := dataset.NewRegistry()
	pc := modify.NewPlanCompiler(dataset.NewCreator(compiler, datasets),
		modify.WithSystemColumns(c.Columns),
		modify.WithParamNames(c.Params),
		modify.WithDiscriminators(c.Discriminators),
		modify.WithLogger(logger.Named("compile")))
	plans, err := modify.NewRegistry(pc, types...)
	if err != nil {
		return nil, nil, err
	}
	return plans, datasets, nil
}

// Close closes the store.
func (r *Runtime) Close() error {
	return r.Store.Close()
}
