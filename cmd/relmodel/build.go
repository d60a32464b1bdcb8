package main

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/pthm/relmodel"
	"github.com/pthm/relmodel/internal/cli"
	"github.com/pthm/relmodel/schema"
)

// loadSet reads the effective schema set at path.
func loadSet(path string) (*schema.EffectiveSchemaSet, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, cli.SchemaParseError(fmt.Sprintf("effective schema set not found: %s", path), nil)
	}
	set, err := schema.Load(path)
	if err != nil {
		return nil, cli.SchemaParseError("reading effective schema set", err)
	}
	return set, nil
}

// buildAll builds set once per dialect. The results are in dialect order.
func buildAll(ctx context.Context, set *schema.EffectiveSchemaSet, dialects []relmodel.Dialect) ([]*relmodel.ModelSet, error) {
	out := make([]*relmodel.ModelSet, len(dialects))
	g, ctx := errgroup.WithContext(ctx)
	for i, d := range dialects {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			models, err := relmodel.Build(set, d, relmodel.WithLogger(logger.With("dialect", string(d))))
			if err != nil {
				return cli.ClassifyBuildError(fmt.Sprintf("building %s model", d), err)
			}
			out[i] = models
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
