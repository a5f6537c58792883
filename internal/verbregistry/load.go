package verbregistry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// domainFile is the on-disk shape of one YAML file: all verbs for a single
// domain, keyed by verb name (matches the "one logical file per domain"
// loading discipline in spec §4.2).
type domainFile struct {
	Domain string                 `yaml:"domain"`
	Verbs  map[string]verbYAML    `yaml:"verbs"`
}

// verbYAML is RuntimeVerb minus domain/verb, which come from the file
// structure itself.
type verbYAML struct {
	Description string     `yaml:"description"`
	Behavior    Behavior   `yaml:"behavior"`
	Args        []Arg      `yaml:"args,omitempty"`
	Returns     Returns    `yaml:"returns"`
	Produces    *Produces  `yaml:"produces,omitempty"`
	Consumes    []Consumes `yaml:"consumes,omitempty"`
	Lifecycle   *Lifecycle `yaml:"lifecycle,omitempty"`
}

// LoadDir reads every *.yaml/*.yml file in dir, parses each as a
// domainFile, and assembles a Registry. FQN uniqueness is enforced across
// all files (I-FQN-unique).
func LoadDir(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading verb source dir %q: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".yaml" || ext == ".yml" {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	reg := NewRegistry()
	for _, path := range paths {
		if err := loadFile(reg, path); err != nil {
			return nil, fmt.Errorf("loading %q: %w", path, err)
		}
	}
	return reg, nil
}

func loadFile(reg *Registry, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var file domainFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}
	if file.Domain == "" {
		return fmt.Errorf("missing top-level domain field")
	}

	// Deterministic order regardless of map iteration, for reproducible
	// load-time error messages.
	names := make([]string, 0, len(file.Verbs))
	for name := range file.Verbs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		v := file.Verbs[name]
		rv := &RuntimeVerb{
			Domain:      file.Domain,
			Verb:        name,
			Description: v.Description,
			Behavior:    v.Behavior,
			Args:        v.Args,
			Returns:     v.Returns,
			Produces:    v.Produces,
			Consumes:    v.Consumes,
			Lifecycle:   v.Lifecycle,
		}
		if err := reg.Add(rv); err != nil {
			return err
		}
	}
	return nil
}
