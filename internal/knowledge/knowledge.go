// Package knowledge extracts typed campaign entities (quests, NPCs, plot
// hooks, locations, items) from IC-only session text via an LLM call, then
// merges them into a persistent per-campaign JSON knowledge base. Failure
// here is non-fatal to the pipeline: a session with no extractable
// knowledge still produces every other artifact.
package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/gambitnl/sessionscribe/internal/apperrors"
)

// Entity is one extracted campaign fact, typed loosely enough to cover
// NPCs, locations, and items without a separate struct per kind.
type Entity struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Quest additionally tracks status, since quests (unlike NPCs/locations)
// move through a lifecycle a reader cares about.
type Quest struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Status      string `json:"status,omitempty" yaml:"status,omitempty"`
}

// Extraction is the set of entities pulled from a single session.
type Extraction struct {
	Quests     []Quest  `json:"quests"`
	NPCs       []Entity `json:"npcs"`
	PlotHooks  []Entity `json:"plot_hooks"`
	Locations  []Entity `json:"locations"`
	Items      []Entity `json:"items"`
}

// Backend performs the actual LLM extraction call, given IC-only transcript
// text and the known party context (character/player names).
type Backend interface {
	Extract(ctx context.Context, icText string, characterNames, playerNames []string) (Extraction, error)
}

// Base is the on-disk shape of a campaign's knowledge base.
type Base struct {
	CampaignID string   `json:"campaign_id" yaml:"campaign_id"`
	Quests     []Quest  `json:"quests" yaml:"quests"`
	NPCs       []Entity `json:"npcs" yaml:"npcs"`
	PlotHooks  []Entity `json:"plot_hooks" yaml:"plot_hooks"`
	Locations  []Entity `json:"locations" yaml:"locations"`
	Items      []Entity `json:"items" yaml:"items"`
}

// Store is a narrow file-backed repository over one campaign's knowledge
// base, keeping upserts serialized with mu the way a shared JSON file needs
// when the pipeline might process more than one session for the same
// campaign concurrently.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore returns a Store rooted at dir, one JSON file per campaign.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(campaignID string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s.json", campaignID))
}

// Load reads a campaign's knowledge base, returning an empty Base (not an
// error) if the campaign has never had anything merged into it.
func (s *Store) Load(campaignID string) (Base, error) {
	data, err := os.ReadFile(s.path(campaignID))
	if err != nil {
		if os.IsNotExist(err) {
			return Base{CampaignID: campaignID}, nil
		}
		return Base{}, apperrors.New(fmt.Errorf("read knowledge base: %w", err)).
			Component("knowledge").Category(apperrors.CategoryFileIO).Build()
	}
	var base Base
	if err := json.Unmarshal(data, &base); err != nil {
		return Base{}, apperrors.New(fmt.Errorf("parse knowledge base: %w", err)).
			Component("knowledge").Category(apperrors.CategoryFileIO).Build()
	}
	return base, nil
}

func (s *Store) save(base Base) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return apperrors.New(fmt.Errorf("create knowledge dir: %w", err)).
			Component("knowledge").Category(apperrors.CategoryFileIO).Build()
	}
	data, err := json.MarshalIndent(base, "", "  ")
	if err != nil {
		return apperrors.New(fmt.Errorf("marshal knowledge base: %w", err)).
			Component("knowledge").Category(apperrors.CategoryFileIO).Build()
	}
	if err := os.WriteFile(s.path(base.CampaignID), data, 0o644); err != nil {
		return apperrors.New(fmt.Errorf("write knowledge base: %w", err)).
			Component("knowledge").Category(apperrors.CategoryFileIO).Build()
	}
	return nil
}

// ExportYAML writes campaignID's knowledge base as a human-editable YAML
// file alongside the JSON source of truth, for GMs who want to read or
// hand-correct a campaign's accumulated entities between sessions. It
// returns the path written.
func (s *Store) ExportYAML(campaignID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base, err := s.Load(campaignID)
	if err != nil {
		return "", err
	}
	data, err := yaml.Marshal(base)
	if err != nil {
		return "", apperrors.New(fmt.Errorf("marshal knowledge base as yaml: %w", err)).
			Component("knowledge").Category(apperrors.CategoryFileIO).Build()
	}
	path := filepath.Join(s.dir, fmt.Sprintf("%s.yaml", campaignID))
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", apperrors.New(fmt.Errorf("create knowledge dir: %w", err)).
			Component("knowledge").Category(apperrors.CategoryFileIO).Build()
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", apperrors.New(fmt.Errorf("write knowledge base yaml: %w", err)).
			Component("knowledge").Category(apperrors.CategoryFileIO).Build()
	}
	return path, nil
}

// MergeInto upserts extraction into campaignID's knowledge base by name,
// the same upsert-by-key idiom a keyed repository update applies: an
// existing entity with a matching name is replaced (the newer description
// wins), a new name is appended.
func (s *Store) MergeInto(campaignID string, extraction Extraction) (Base, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base, err := s.Load(campaignID)
	if err != nil {
		return Base{}, err
	}
	base.CampaignID = campaignID

	base.Quests = mergeQuests(base.Quests, extraction.Quests)
	base.NPCs = mergeEntities(base.NPCs, extraction.NPCs)
	base.PlotHooks = mergeEntities(base.PlotHooks, extraction.PlotHooks)
	base.Locations = mergeEntities(base.Locations, extraction.Locations)
	base.Items = mergeEntities(base.Items, extraction.Items)

	if err := s.save(base); err != nil {
		return Base{}, err
	}
	return base, nil
}

func mergeEntities(existing, incoming []Entity) []Entity {
	byName := make(map[string]int, len(existing))
	for i, e := range existing {
		byName[e.Name] = i
	}
	for _, e := range incoming {
		if idx, ok := byName[e.Name]; ok {
			existing[idx] = e
			continue
		}
		byName[e.Name] = len(existing)
		existing = append(existing, e)
	}
	return existing
}

func mergeQuests(existing, incoming []Quest) []Quest {
	byName := make(map[string]int, len(existing))
	for i, q := range existing {
		byName[q.Name] = i
	}
	for _, q := range incoming {
		if idx, ok := byName[q.Name]; ok {
			existing[idx] = q
			continue
		}
		byName[q.Name] = len(existing)
		existing = append(existing, q)
	}
	return existing
}
