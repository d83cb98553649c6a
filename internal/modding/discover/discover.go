// Package discover walks a mods directory for manifest files and builds
// the ordered descriptor list the dispatcher consumes.
//
// A mod is a directory containing a mod.yaml manifest. Script files are
// partitioned into the two load phases by convention (data.lua, init.lua)
// unless the manifest lists them explicitly. The walk order is lexical, so
// discovery order is deterministic for a given tree.
package discover

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/louisbranch/rengine/internal/modding"
)

const (
	// ManifestName is the metadata file marking a directory as a mod.
	ManifestName = "mod.yaml"
	// DefaultDataScript is the conventional data-phase entry file.
	DefaultDataScript = "data.lua"
	// DefaultControlScript is the conventional control-phase entry file.
	DefaultControlScript = "init.lua"

	// maxDepth bounds the walk relative to the mods root; mods live at
	// most one directory below it.
	maxDepth = 2
)

// Mod names must be usable as Lua identifiers.
var modNameRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]+$`)

var (
	// ErrModNameInvalid indicates a manifest name failing validation.
	ErrModNameInvalid = errors.New("mod name is invalid")
	// ErrModNameTaken indicates two mods claiming the same name.
	ErrModNameTaken = errors.New("mod name already exists")
	// ErrNoScripts indicates a mod with neither data nor control scripts.
	ErrNoScripts = errors.New("mod has no scripts")
)

// Manifest is the metadata file found at the top level of a mod's folder.
type Manifest struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Author  string `yaml:"author"`
	Email   string `yaml:"email"`
	Website string `yaml:"website"`

	// DataScripts and InitScripts override the data.lua/init.lua
	// convention with explicit ordered file lists, relative to the mod
	// directory.
	DataScripts []string `yaml:"data_scripts"`
	InitScripts []string `yaml:"init_scripts"`
}

// Mod pairs a parsed manifest with its resolved descriptor.
type Mod struct {
	Manifest   Manifest
	Dir        string
	Descriptor modding.Descriptor
}

// Mods walks root for mod manifests and returns the discovered mods in
// lexical walk order.
func Mods(root string) ([]Mod, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("mod directory %s: %w", root, err)
	}
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("mod directory %s: %w", root, err)
	}

	var mods []Mod
	seen := map[string]bool{}

	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if isHidden(entry.Name()) && path != root {
				return filepath.SkipDir
			}
			if depth(root, path) > maxDepth {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.Name() != ManifestName {
			return nil
		}

		mod, err := loadMod(path)
		if err != nil {
			return err
		}
		if seen[mod.Manifest.Name] {
			return fmt.Errorf("%q: %w", mod.Manifest.Name, ErrModNameTaken)
		}
		seen[mod.Manifest.Name] = true
		mods = append(mods, mod)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mods, nil
}

// Descriptors projects discovered mods onto the dispatcher's input.
func Descriptors(mods []Mod) []modding.Descriptor {
	out := make([]modding.Descriptor, len(mods))
	for i, mod := range mods {
		out[i] = mod.Descriptor
	}
	return out
}

func loadMod(manifestPath string) (Mod, error) {
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return Mod{}, fmt.Errorf("read manifest %s: %w", manifestPath, err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(raw, &manifest); err != nil {
		return Mod{}, fmt.Errorf("parse manifest %s: %w", manifestPath, err)
	}
	if !modNameRe.MatchString(manifest.Name) {
		return Mod{}, fmt.Errorf("%q in %s: %w", manifest.Name, manifestPath, ErrModNameInvalid)
	}

	dir := filepath.Dir(manifestPath)
	dataScripts, err := scriptPaths(dir, manifest.DataScripts, DefaultDataScript)
	if err != nil {
		return Mod{}, fmt.Errorf("mod %s: %w", manifest.Name, err)
	}
	controlScripts, err := scriptPaths(dir, manifest.InitScripts, DefaultControlScript)
	if err != nil {
		return Mod{}, fmt.Errorf("mod %s: %w", manifest.Name, err)
	}
	if len(dataScripts) == 0 && len(controlScripts) == 0 {
		return Mod{}, fmt.Errorf("mod %s: %w", manifest.Name, ErrNoScripts)
	}

	return Mod{
		Manifest: manifest,
		Dir:      dir,
		Descriptor: modding.Descriptor{
			ID:             manifest.Name,
			DataScripts:    dataScripts,
			ControlScripts: controlScripts,
		},
	}, nil
}

// scriptPaths resolves a manifest's explicit script list, or falls back to
// the conventional file when it exists. Explicit entries must exist.
func scriptPaths(dir string, listed []string, conventional string) ([]string, error) {
	if len(listed) == 0 {
		path := filepath.Join(dir, conventional)
		if _, err := os.Stat(path); err != nil {
			return nil, nil
		}
		return []string{path}, nil
	}

	paths := make([]string, len(listed))
	for i, name := range listed {
		path := filepath.Join(dir, filepath.Clean(name))
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("script %s: %w", name, err)
		}
		paths[i] = path
	}
	return paths, nil
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func depth(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return 0
	}
	return len(strings.Split(rel, string(filepath.Separator)))
}
