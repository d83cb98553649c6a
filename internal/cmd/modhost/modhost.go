// Package modhost parses mod host flags and runs the mod lifecycle until
// the process is signalled to stop.
package modhost

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	entrypoint "github.com/louisbranch/rengine/internal/platform/cmd"

	"github.com/louisbranch/rengine/internal/modding"
	"github.com/louisbranch/rengine/internal/modding/discover"
)

const stopTimeout = 5 * time.Second

// Config holds mod host command configuration.
type Config struct {
	ModsPath string `env:"RENGINE_MODS_PATH" envDefault:"./mods"`
	LibName  string `env:"RENGINE_LIB_NAME" envDefault:"core"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.ModsPath, "mods", cfg.ModsPath, "The directory scanned for mods")
	fs.StringVar(&cfg.LibName, "lib", cfg.LibName, "The host library name exposed to scripts")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run discovers mods, drives the load phases and blocks until ctx is
// cancelled, then stops the mod set.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.Run(ctx, entrypoint.ServiceModHost, func(ctx context.Context) error {
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
		if err := mods.Start(ctx); err != nil {
			return fmt.Errorf("start mods: %w", err)
		}
		log.Printf("loaded %d mods from %s", len(found), cfg.ModsPath)

		<-ctx.Done()

		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if err := mods.Stop(stopCtx); err != nil {
			return fmt.Errorf("stop mods: %w", err)
		}
		return nil
	})
}
