package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/catalog"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/config"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/db"
)

func newSeedCmd(load func() (*config.Config, error)) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load catalog products from a YAML file into Postgres and drop their cached pages",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			cfg.App.Storage = config.StoragePostgres
			if err := cfg.ValidateStorage(); err != nil {
				return err
			}

			products, err := readSeed(file)
			if err != nil {
				return err
			}

			pg, err := db.New(cmd.Context(), cfg.Postgres)
			if err != nil {
				return err
			}
			defer pg.Close()

			pages, closePages, err := openPageCache(cmd.Context(), cfg.Redis)
			if err != nil {
				return err
			}
			defer closePages()

			return catalog.NewService(pg, catalog.NewRepository, pages).Seed(cmd.Context(), products)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML catalog seed")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readSeed(path string) ([]catalog.Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()
	return catalog.LoadSeed(f)
}

// seedStore loads the seed at path through service. An empty path does
// nothing.
func seedStore(ctx context.Context, service catalog.Service, path string) error {
	if path == "" {
		return nil
	}
	products, err := readSeed(path)
	if err != nil {
		return err
	}
	return service.Seed(ctx, products)
}
