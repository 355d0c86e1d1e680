package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dconlin/orch/internal/beads"
	"github.com/dconlin/orch/internal/config"
	"github.com/dconlin/orch/internal/gitutil"
	"github.com/dconlin/orch/internal/orchlog"
	"github.com/dconlin/orch/internal/registry"
	"github.com/dconlin/orch/internal/skillspec"
	"github.com/spf13/viper"
)

// app bundles the shared collaborators every subcommand wires together,
// constructed once from the loaded configuration.
type app struct {
	Config  *config.Config
	Store   *registry.Store
	Tracker *beads.Gateway
	Log     orchlog.Logger
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var log orchlog.Logger
	if viper.GetBool("verbose") {
		log, err = orchlog.NewDevelopment()
	} else {
		log, err = orchlog.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to construct logger: %w", err)
	}

	store := registry.Open(cfg.Registry.Path)
	tracker := beads.New(cfg.Tracker.BinPath, cfg.Tracker.DBPath, cfg.Tracker.DefaultTimeout)

	return &app{Config: cfg, Store: store, Tracker: tracker, Log: log}, nil
}

func (a *app) git(projectDir string) *gitutil.Repo {
	return gitutil.New(projectDir)
}

// loadManifest reads a skill manifest YAML file from projectDir, tolerating
// its absence (a project need not define skills to spawn plain agents).
func loadManifest(projectDir string) (*skillspec.Manifest, error) {
	path := filepath.Join(projectDir, ".orch", "skills.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &skillspec.Manifest{}, nil
		}
		return nil, err
	}
	return skillspec.ParseManifest(data)
}
