// Package config loads the optional panel profile file. The profile holds
// list-shaped settings that don't fit flags, master catalogs for
// selected-mode runs and notification destinations. Everything operational
// comes from flags and env.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// File is the root of the YAML profile.
type File struct {
	Masters []MasterGroup `yaml:"masters" json:"masters"`
	Notify  Notify        `yaml:"notify" json:"notify"`
}

// MasterGroup is a named set of master types rendered as one checkbox
// section on the runner page.
type MasterGroup struct {
	Name  string   `yaml:"name" json:"name"`
	Items []string `yaml:"items" json:"items"`
}

// Notify configures backend health alerts.
type Notify struct {
	// Destinations in go-pkgz/notify form, mailto:..., telegram:... or a webhook URL
	Destinations []string `yaml:"destinations" json:"destinations,omitempty"`
	// DownAfter is the number of consecutive poll failures before the down alert, default 3
	DownAfter int `yaml:"down_after" json:"down_after,omitempty"`
}

// Default returns the profile used when no file is given, the backend's
// builtin master set grouped the way the portal always showed it.
func Default() *File {
	return &File{
		Masters: []MasterGroup{
			{Name: "Accounts", Items: []string{"Group", "Ledger", "Currency", "VoucherType"}},
			{Name: "Inventory", Items: []string{"UnitOfMeasure", "GoDown", "StockGroup", "StockCategory", "StockItem"}},
		},
		Notify: Notify{DownAfter: 3},
	}
}

// Load reads and validates a profile file. Missing optional sections fall
// back to defaults.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from trusted flags
	if err != nil {
		return nil, fmt.Errorf("failed to read profile %s: %w", path, err)
	}

	res := &File{}
	if err := yaml.Unmarshal(data, res); err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", path, err)
	}

	if len(res.Masters) == 0 {
		res.Masters = Default().Masters
	}
	if res.Notify.DownAfter <= 0 {
		res.Notify.DownAfter = 3
	}

	if err := res.validate(); err != nil {
		return nil, fmt.Errorf("invalid profile %s: %w", path, err)
	}
	return res, nil
}

// MasterNames flattens the catalog into the order the groups declare.
func (f *File) MasterNames() []string {
	var res []string
	for _, g := range f.Masters {
		res = append(res, g.Items...)
	}
	return res
}

func (f *File) validate() error {
	seen := map[string]struct{}{}
	for i, g := range f.Masters {
		if strings.TrimSpace(g.Name) == "" {
			return fmt.Errorf("master group %d: name is required", i+1)
		}
		if _, ok := seen[g.Name]; ok {
			return fmt.Errorf("master group %d: duplicate name %q", i+1, g.Name)
		}
		seen[g.Name] = struct{}{}
		if len(g.Items) == 0 {
			return fmt.Errorf("master group %q: at least one item is required", g.Name)
		}
		for j, item := range g.Items {
			if strings.TrimSpace(item) == "" {
				return fmt.Errorf("master group %q: item %d is empty", g.Name, j+1)
			}
		}
	}

	for _, dest := range f.Notify.Destinations {
		if err := validateDestination(dest); err != nil {
			return err
		}
	}
	return nil
}

// validateDestination checks a destination against the schemas the notify
// senders understand.
func validateDestination(dest string) error {
	switch {
	case strings.HasPrefix(dest, "mailto:"), strings.HasPrefix(dest, "telegram:"):
		return nil
	case strings.HasPrefix(dest, "http://"), strings.HasPrefix(dest, "https://"):
		if _, err := url.Parse(dest); err != nil {
			return fmt.Errorf("invalid webhook destination %q: %w", dest, err)
		}
		return nil
	}
	return fmt.Errorf("unsupported notification destination %q, expected mailto:, telegram: or a webhook URL", dest)
}
