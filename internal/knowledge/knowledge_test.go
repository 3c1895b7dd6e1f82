package knowledge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoad_UnknownCampaignReturnsEmptyBaseNotError(t *testing.T) {
	t.Parallel()
	s := NewStore(t.TempDir())
	base, err := s.Load("no-such-campaign")
	require.NoError(t, err)
	assert.Equal(t, "no-such-campaign", base.CampaignID)
	assert.Empty(t, base.NPCs)
}

func TestMergeInto_AppendsNewEntities(t *testing.T) {
	t.Parallel()
	s := NewStore(t.TempDir())

	base, err := s.MergeInto("camp1", Extraction{
		NPCs:   []Entity{{Name: "Gundren", Description: "dwarf merchant"}},
		Quests: []Quest{{Name: "Lost Mine", Status: "active"}},
	})
	require.NoError(t, err)
	assert.Len(t, base.NPCs, 1)
	assert.Len(t, base.Quests, 1)
}

func TestMergeInto_UpsertsByNameNewerWins(t *testing.T) {
	t.Parallel()
	s := NewStore(t.TempDir())

	_, err := s.MergeInto("camp1", Extraction{
		NPCs: []Entity{{Name: "Gundren", Description: "old description"}},
	})
	require.NoError(t, err)

	base, err := s.MergeInto("camp1", Extraction{
		NPCs: []Entity{{Name: "Gundren", Description: "kidnapped by goblins"}},
	})
	require.NoError(t, err)

	require.Len(t, base.NPCs, 1)
	assert.Equal(t, "kidnapped by goblins", base.NPCs[0].Description)
}

func TestMergeInto_PersistsAcrossStoreInstances(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s1 := NewStore(dir)
	_, err := s1.MergeInto("camp1", Extraction{NPCs: []Entity{{Name: "Gundren"}}})
	require.NoError(t, err)

	s2 := NewStore(dir)
	base, err := s2.Load("camp1")
	require.NoError(t, err)
	require.Len(t, base.NPCs, 1)
	assert.Equal(t, "Gundren", base.NPCs[0].Name)
}

func TestExportYAML_WritesReadableFileAlongsideJSON(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s := NewStore(dir)
	_, err := s.MergeInto("camp1", Extraction{
		NPCs:   []Entity{{Name: "Gundren", Description: "dwarf merchant"}},
		Quests: []Quest{{Name: "Lost Mine", Status: "active"}},
	})
	require.NoError(t, err)

	path, err := s.ExportYAML("camp1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "camp1.yaml"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var base Base
	require.NoError(t, yaml.Unmarshal(data, &base))
	assert.Equal(t, "camp1", base.CampaignID)
	require.Len(t, base.NPCs, 1)
	assert.Equal(t, "Gundren", base.NPCs[0].Name)
}

func TestExportYAML_UnknownCampaignWritesEmptyBase(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s := NewStore(dir)

	path, err := s.ExportYAML("ghost-campaign")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var base Base
	require.NoError(t, yaml.Unmarshal(data, &base))
	assert.Equal(t, "ghost-campaign", base.CampaignID)
	assert.Empty(t, base.NPCs)
}
