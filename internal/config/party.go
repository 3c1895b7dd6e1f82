package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PartyOverrides is an optional per-campaign YAML file naming the
// characters and players in a session, so a recurring group doesn't have to
// repeat --character-names/--player-names on every invocation.
type PartyOverrides struct {
	CampaignID     string   `yaml:"campaign_id"`
	PartyID        string   `yaml:"party_id"`
	CharacterNames []string `yaml:"character_names"`
	PlayerNames    []string `yaml:"player_names"`
	NumSpeakers    int      `yaml:"num_speakers"`
}

// LoadPartyOverrides reads and parses a party config file at path.
func LoadPartyOverrides(path string) (*PartyOverrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read party overrides %s: %w", path, err)
	}
	var overrides PartyOverrides
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("config: parse party overrides %s: %w", path, err)
	}
	return &overrides, nil
}

// ApplyTo merges non-empty override fields into s, letting explicit CLI
// flags (already set on s) win over the file for any field the caller
// populated before calling this.
func (o *PartyOverrides) ApplyTo(s *Settings) {
	if o == nil {
		return
	}
	if s.CampaignID == "" {
		s.CampaignID = o.CampaignID
	}
	if s.PartyID == "" {
		s.PartyID = o.PartyID
	}
	if o.NumSpeakers > 0 && s.NumSpeakers == defaults().NumSpeakers {
		s.NumSpeakers = o.NumSpeakers
	}
}
