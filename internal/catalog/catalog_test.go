package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindquake-service/internal/domain"
)

const sampleCatalog = `
icon_pattern: "https://cdn.example.com/achievements/%s.png"
categories:
  - name: Science & Nature
    icons:
      platinum: "https://cdn.example.com/custom/science.png"
  - name: History
  - name: science &  nature
`

func TestLoadExpandsTiers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "achievements.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0o600))

	f, err := Load(path)
	require.NoError(t, err)

	list := f.Achievements()
	require.Len(t, list, 6, "duplicate category must be collapsed")

	first := list[0]
	assert.Equal(t, "science_and_nature_bronze", first.Key)
	assert.Equal(t, "Science & Nature Bronze", first.Name)
	assert.Equal(t, "science_and_nature", first.Category)
	assert.Equal(t, domain.TierBronze, first.Tier)
	assert.Equal(t, "https://cdn.example.com/achievements/science_and_nature_bronze.png", first.Icon)
	assert.Equal(t, "https://cdn.example.com/custom/science.png", list[2].Icon)
	assert.Equal(t, "history_silver", list[4].Key)
}

func TestIDIsDeterministic(t *testing.T) {
	assert.Equal(t, ID("history_bronze"), ID("history_bronze"))
	assert.NotEqual(t, ID("history_bronze"), ID("history_silver"))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
