// Package modcatalog parses catalog export flags and dumps a loaded mod
// set's definitions and prototypes to a SQLite database.
package modcatalog

import (
	"context"
	"flag"
	"fmt"
	"log"

	entrypoint "github.com/louisbranch/rengine/internal/platform/cmd"

	"github.com/louisbranch/rengine/internal/catalog"
	"github.com/louisbranch/rengine/internal/catalog/sqlite"
	"github.com/louisbranch/rengine/internal/modding"
	"github.com/louisbranch/rengine/internal/modding/discover"
)

// Config holds catalog export command configuration.
type Config struct {
	ModsPath    string `env:"RENGINE_MODS_PATH" envDefault:"./mods"`
	LibName     string `env:"RENGINE_LIB_NAME" envDefault:"core"`
	CatalogPath string `env:"RENGINE_CATALOG_PATH" envDefault:"catalog.db"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.ModsPath, "mods", cfg.ModsPath, "The directory scanned for mods")
	fs.StringVar(&cfg.LibName, "lib", cfg.LibName, "The host library name exposed to scripts")
	fs.StringVar(&cfg.CatalogPath, "catalog", cfg.CatalogPath, "The SQLite file the catalog is written to")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run loads the mod set through the data and control phases and exports
// the assembled catalog.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.Run(ctx, entrypoint.ServiceModCatalog, func(ctx context.Context) error {
		found, err := discover.Mods(cfg.ModsPath)
		if err != nil {
			return fmt.Errorf("discover mods: %w", err)
		}

		mods, err := modding.New(modding.Config{
			Descriptors: discover.Descriptors(found),
			LibName:     cfg.LibName,
		})
		if err != nil {
			return err
		}
		if err := mods.LoadData(ctx); err != nil {
			return fmt.Errorf("load data: %w", err)
		}
		if err := mods.RunControl(ctx); err != nil {
			return fmt.Errorf("run control: %w", err)
		}

		store, err := sqlite.Open(cfg.CatalogPath)
		if err != nil {
			return fmt.Errorf("open catalog store: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Printf("close catalog store: %v", err)
			}
		}()

		if err := catalog.Export(ctx, store, mods.Table(), mods.Prototypes()); err != nil {
			return fmt.Errorf("export catalog: %w", err)
		}
		log.Printf("exported catalog for %d mods to %s", len(found), cfg.CatalogPath)
		return nil
	})
}
