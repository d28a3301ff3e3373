// Package catalog expands the achievement definition file into one achievement per
// (category, tier) pair.
package catalog

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"mindquake-service/internal/achievements"
	"mindquake-service/internal/domain"
)

// namespace seeds deterministic achievement ids so every loader derives the same id for a key.
var namespace = uuid.MustParse("6f1c1a52-9d1e-4f0e-8a43-2b8f0d7c5e11")

// Category is one trivia category that carries achievements.
type Category struct {
	Name  string            `yaml:"name"`
	Icons map[string]string `yaml:"icons"`
}

// File is the on-disk catalog definition.
type File struct {
	// IconPattern is a fmt pattern receiving the achievement key, used when no icon is set.
	IconPattern string     `yaml:"icon_pattern"`
	Categories  []Category `yaml:"categories"`
}

// Load reads a catalog definition from path.
func Load(path string) (File, error) {
	var f File
	data, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("read catalog: %w", err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("parse catalog: %w", err)
	}
	return f, nil
}

// Achievements expands the file into catalog entries, ordered as listed and by tier.
// Categories whose names normalize to the same key are kept once.
func (f File) Achievements() []domain.Achievement {
	seen := make(map[string]bool)
	var out []domain.Achievement
	for _, c := range f.Categories {
		normalized := achievements.NormalizeCategory(c.Name)
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true

		for _, tier := range domain.Tiers {
			key := achievements.Key(c.Name, tier)
			out = append(out, domain.Achievement{
				ID:       ID(key),
				Key:      key,
				Name:     strings.TrimSpace(c.Name) + " " + tierTitle(tier),
				Icon:     f.icon(c, tier, key),
				Category: normalized,
				Tier:     tier,
			})
		}
	}
	return out
}

// ID returns the deterministic id for an achievement key.
func ID(key string) string {
	return uuid.NewSHA1(namespace, []byte(key)).String()
}

func (f File) icon(c Category, tier domain.Tier, key string) string {
	if icon, ok := c.Icons[string(tier)]; ok && icon != "" {
		return icon
	}
	if f.IconPattern == "" {
		return ""
	}
	return fmt.Sprintf(f.IconPattern, key)
}

func tierTitle(t domain.Tier) string {
	s := string(t)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
