package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gambitnl/sessionscribe/internal/model"
)

func TestClampConfidence(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0.0, ClampConfidence(-0.5))
	assert.Equal(t, 1.0, ClampConfidence(1.5))
	assert.Equal(t, 0.42, ClampConfidence(0.42))
}

func TestPromptTemplate_SubstitutesAllPlaceholders(t *testing.T) {
	t.Parallel()
	tmpl := "chars={char_list} players={player_list} prev={prev_text} cur={current_text} next={next_text}"
	out := PromptTemplate(tmpl, "earlier", "now", "later", []string{"Thorn"}, []string{"Alice"})
	assert.Equal(t, "chars=Thorn players=Alice prev=earlier cur=now next=later", out)
}

func TestPromptTemplate_DefaultsToUnknownWhenNoNames(t *testing.T) {
	t.Parallel()
	out := PromptTemplate("{char_list}/{player_list}", "", "", "", nil, nil)
	assert.Equal(t, "Unknown/Unknown", out)
}

func TestParseResponse_ParsesAllFields(t *testing.T) {
	t.Parallel()
	response := "Classificatie: IC\nReden: sounds like roleplay\nVertrouwen: 0.85\nPersonage: Thorn"
	result := ParseResponse(response, 3)

	assert.Equal(t, 3, result.SegmentIndex)
	assert.Equal(t, model.InCharacter, result.Classification)
	assert.Equal(t, "sounds like roleplay", result.Reasoning)
	assert.Equal(t, 0.85, result.Confidence)
	assert.Equal(t, "Thorn", result.Character)
}

func TestParseResponse_UnparseableTextDefaultsToInCharacter(t *testing.T) {
	t.Parallel()
	result := ParseResponse("garbage response with no fields", 0)
	assert.Equal(t, model.InCharacter, result.Classification)
	assert.Equal(t, DefaultConfidence, result.Confidence)
	assert.Equal(t, "Could not parse response", result.Reasoning)
	assert.Empty(t, result.Character)
}

func TestParseResponse_NAPersonageLeavesCharacterEmpty(t *testing.T) {
	t.Parallel()
	result := ParseResponse("Classificatie: OOC\nPersonage: N/A", 0)
	assert.Equal(t, model.OutOfCharacter, result.Classification)
	assert.Empty(t, result.Character)
}

func TestParseResponse_MixedClassification(t *testing.T) {
	t.Parallel()
	result := ParseResponse("Classificatie: MIXED", 0)
	assert.Equal(t, model.Mixed, result.Classification)
}

func TestParseResponse_UnknownClassificationWordDefaultsToInCharacter(t *testing.T) {
	t.Parallel()
	result := ParseResponse("Classificatie: BANANA", 0)
	assert.Equal(t, model.InCharacter, result.Classification)
}

func TestParseResponse_ConfidenceOutOfRangeIsClamped(t *testing.T) {
	t.Parallel()
	result := ParseResponse("Classificatie: IC\nVertrouwen: 1.4", 0)
	assert.Equal(t, 1.0, result.Confidence)
}

func TestFactory_BuildsEachKnownBackend(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		want string
	}{
		{"", "ollama"},
		{"ollama", "ollama"},
		{"remote", "remote"},
		{"groq", "remote"},
		{"offloaded", "offloaded"},
		{"colab", "offloaded"},
	}
	for _, tt := range cases {
		b, err := Factory(tt.name, Options{})
		require.NoError(t, err)
		assert.Equal(t, tt.want, b.Name())
	}
}

func TestFactory_UnknownBackendReturnsError(t *testing.T) {
	t.Parallel()
	_, err := Factory("nonexistent", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nonexistent")
}
