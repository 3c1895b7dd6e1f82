package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()
	s, err := Load(viper.New(), nil, "")
	require.NoError(t, err)
	assert.Equal(t, "output", s.OutputDir)
	assert.Equal(t, 4, s.NumSpeakers)
	assert.Equal(t, "whisper", s.TranscriptionBackend)
}

func TestLoad_ConfigFileOverridesDefaults(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output_dir: /custom/output\nnum_speakers: 6\n"), 0o644))

	s, err := Load(viper.New(), nil, path)
	require.NoError(t, err)
	assert.Equal(t, "/custom/output", s.OutputDir)
	assert.Equal(t, 6, s.NumSpeakers)
}

func TestLoad_EnvOverridesConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output_dir: /from/file\n"), 0o644))

	t.Setenv("SESSIONSCRIBE_OUTPUT_DIR", "/from/env")

	s, err := Load(viper.New(), nil, path)
	require.NoError(t, err)
	assert.Equal(t, "/from/env", s.OutputDir)
}

func TestLoad_FlagsOverrideEverything(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output_dir: /from/file\n"), 0o644))
	t.Setenv("SESSIONSCRIBE_OUTPUT_DIR", "/from/env")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("output_dir", "", "")
	require.NoError(t, flags.Set("output_dir", "/from/flag"))

	s, err := Load(viper.New(), flags, path)
	require.NoError(t, err)
	assert.Equal(t, "/from/flag", s.OutputDir)
}

func TestLoad_MissingConfigFileErrors(t *testing.T) {
	t.Parallel()
	_, err := Load(viper.New(), nil, "/does/not/exist.yaml")
	assert.Error(t, err)
}

func TestLoadPartyOverrides_RoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "party.yaml")
	content := "campaign_id: waterdeep\nparty_id: the-fellowship\ncharacter_names:\n  - Elora\n  - Thorn\nplayer_names:\n  - Alice\n  - Bob\nnum_speakers: 5\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	overrides, err := LoadPartyOverrides(path)
	require.NoError(t, err)
	assert.Equal(t, "waterdeep", overrides.CampaignID)
	assert.Equal(t, "the-fellowship", overrides.PartyID)
	assert.Equal(t, []string{"Elora", "Thorn"}, overrides.CharacterNames)
	assert.Equal(t, []string{"Alice", "Bob"}, overrides.PlayerNames)
	assert.Equal(t, 5, overrides.NumSpeakers)
}

func TestLoadPartyOverrides_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := LoadPartyOverrides("/does/not/exist.yaml")
	assert.Error(t, err)
}

func TestPartyOverrides_ApplyTo_DoesNotClobberExplicitSettings(t *testing.T) {
	t.Parallel()
	overrides := &PartyOverrides{CampaignID: "from-file", PartyID: "from-file-party", NumSpeakers: 7}
	settings := defaults()
	settings.CampaignID = "from-flag"

	overrides.ApplyTo(&settings)

	assert.Equal(t, "from-flag", settings.CampaignID, "explicit flag value must win over the file")
	assert.Equal(t, "from-file-party", settings.PartyID, "unset field takes the file's value")
	assert.Equal(t, 7, settings.NumSpeakers, "default value is overridden by the file")
}

func TestPartyOverrides_ApplyTo_Nil(t *testing.T) {
	t.Parallel()
	var overrides *PartyOverrides
	settings := defaults()
	overrides.ApplyTo(&settings)
	assert.Equal(t, defaults(), settings)
}
