// Package settings persists the appearance preference record. Stored
// values are merged over the defaults on every load, so records written
// by older versions gain new fields automatically.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/therealutkarshpriyadarshi/hdmsp/pkg/models"
)

// Key is the fixed storage key of the appearance record.
const Key = "hdmsp-appearance"

// Store loads and saves the appearance record.
type Store interface {
	Load(ctx context.Context) (models.AppearanceSettings, error)
	Save(ctx context.Context, s models.AppearanceSettings) error
}

// Merge decodes raw over the defaults. Missing fields keep their default;
// unreadable input yields the defaults and an error.
func Merge(raw []byte) (models.AppearanceSettings, error) {
	s := models.DefaultAppearanceSettings()
	if len(strings.TrimSpace(string(raw))) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return models.DefaultAppearanceSettings(), fmt.Errorf("failed to decode settings: %w", err)
	}
	return Normalize(s), nil
}

// Normalize replaces an unknown accent or theme with its default.
func Normalize(s models.AppearanceSettings) models.AppearanceSettings {
	def := models.DefaultAppearanceSettings()
	if !contains(models.Accents, s.Accent) {
		s.Accent = def.Accent
	}
	if !contains(models.Themes, s.Theme) {
		s.Theme = def.Theme
	}
	return s
}

// Apply sets one field by its JSON name, as used by `hdmsp settings --set`.
func Apply(s models.AppearanceSettings, key, value string) (models.AppearanceSettings, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	value = strings.TrimSpace(value)

	switch key {
	case "accent":
		if !contains(models.Accents, value) {
			return s, fmt.Errorf("unknown accent %q (want one of %s)", value, strings.Join(models.Accents, ", "))
		}
		s.Accent = value
		return s, nil
	case "theme":
		if !contains(models.Themes, value) {
			return s, fmt.Errorf("unknown theme %q (want one of %s)", value, strings.Join(models.Themes, ", "))
		}
		s.Theme = value
		return s, nil
	}

	field, ok := boolFields(&s)[key]
	if !ok {
		return s, fmt.Errorf("unknown setting %q (want one of %s)", key, strings.Join(Keys(), ", "))
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return s, fmt.Errorf("setting %s expects true or false, got %q", key, value)
	}
	*field = b
	return s, nil
}

// Get returns one field by its JSON name, formatted for display.
func Get(s models.AppearanceSettings, key string) (string, bool) {
	switch key {
	case "accent":
		return s.Accent, true
	case "theme":
		return s.Theme, true
	}
	field, ok := boolFields(&s)[key]
	if !ok {
		return "", false
	}
	return strconv.FormatBool(*field), true
}

// Keys lists the settable field names in sorted order.
func Keys() []string {
	var s models.AppearanceSettings
	keys := []string{"accent", "theme"}
	for k := range boolFields(&s) {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func boolFields(s *models.AppearanceSettings) map[string]*bool {
	return map[string]*bool{
		"orbs":       &s.Orbs,
		"particles":  &s.Particles,
		"glow":       &s.Glow,
		"glass":      &s.Glass,
		"scanlines":  &s.Scanlines,
		"grain":      &s.Grain,
		"animations": &s.Animations,
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
