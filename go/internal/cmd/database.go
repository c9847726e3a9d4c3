package main

import (
	"context"
	"fmt"

	"github.com/mcdev12/roast-arena/go/internal/archive"
	"github.com/mcdev12/roast-arena/go/internal/config"
)

func setupArchive(ctx context.Context, cfg *config.Config) (*archive.Repository, error) {
	if !cfg.Archive.Enabled {
		return nil, nil
	}
	repo, err := archive.Connect(ctx, cfg.Archive.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to connect results archive: %w", err)
	}
	return repo, nil
}
