// Package enums provides type-safe enumeration types for the web interface.
//
// Each enum is a small struct wrapping its canonical lower-case name, so an
// arbitrary string can't be assigned to it by accident. Parse functions
// convert the names stored in cookies and form values back to enum values
// and reject anything unknown. All types implement TextMarshaler and
// TextUnmarshaler for use in JSON responses.
package enums

import "fmt"

// Theme selects the UI color scheme.
type Theme struct{ name string }

// recognized themes
var (
	ThemeLight = Theme{"light"}
	ThemeDark  = Theme{"dark"}
)

// String returns the canonical theme name.
func (t Theme) String() string { return t.name }

// MarshalText implements encoding.TextMarshaler.
func (t Theme) MarshalText() ([]byte, error) { return []byte(t.name), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Theme) UnmarshalText(b []byte) error {
	parsed, err := ParseTheme(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTheme converts a string to a Theme.
func ParseTheme(s string) (Theme, error) {
	switch s {
	case ThemeLight.name:
		return ThemeLight, nil
	case ThemeDark.name:
		return ThemeDark, nil
	}
	return Theme{}, fmt.Errorf("invalid theme: %q", s)
}

// SortMode selects the jobs list ordering.
type SortMode struct{ name string }

// recognized sort modes, default keeps the backend's order
var (
	SortModeDefault = SortMode{"default"}
	SortModeName    = SortMode{"name"}
	SortModeNextrun = SortMode{"nextrun"}
)

// String returns the canonical sort mode name.
func (m SortMode) String() string { return m.name }

// MarshalText implements encoding.TextMarshaler.
func (m SortMode) MarshalText() ([]byte, error) { return []byte(m.name), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *SortMode) UnmarshalText(b []byte) error {
	parsed, err := ParseSortMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseSortMode converts a string to a SortMode.
func ParseSortMode(s string) (SortMode, error) {
	switch s {
	case SortModeDefault.name:
		return SortModeDefault, nil
	case SortModeName.name:
		return SortModeName, nil
	case SortModeNextrun.name:
		return SortModeNextrun, nil
	}
	return SortMode{}, fmt.Errorf("invalid sort mode: %q", s)
}

// FilterMode selects which jobs the list shows by status.
type FilterMode struct{ name string }

// recognized filter modes
var (
	FilterModeAll     = FilterMode{"all"}
	FilterModeRunning = FilterMode{"running"}
	FilterModeIdle    = FilterMode{"idle"}
)

// String returns the canonical filter mode name.
func (m FilterMode) String() string { return m.name }

// MarshalText implements encoding.TextMarshaler.
func (m FilterMode) MarshalText() ([]byte, error) { return []byte(m.name), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *FilterMode) UnmarshalText(b []byte) error {
	parsed, err := ParseFilterMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseFilterMode converts a string to a FilterMode.
func ParseFilterMode(s string) (FilterMode, error) {
	switch s {
	case FilterModeAll.name:
		return FilterModeAll, nil
	case FilterModeRunning.name:
		return FilterModeRunning, nil
	case FilterModeIdle.name:
		return FilterModeIdle, nil
	}
	return FilterMode{}, fmt.Errorf("invalid filter mode: %q", s)
}
