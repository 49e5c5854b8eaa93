package generator

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/thepurplechild/manthan-creator-suite-v0.1/internal/errors"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/llm"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/models"
)

func TestGeneratePitchTemplate(t *testing.T) {
	g := newTestGenerator(t, Options{}, nil)

	pack, err := g.GeneratePitch(context.Background(), models.PitchRequest{
		Title:   " Dhundh ",
		Logline: "A Mumbai cop hunts a killer who only strikes during monsoon fog.",
	})
	require.NoError(t, err)
	assert.Equal(t, "Dhundh", pack.Title)
	assert.Equal(t, models.SourceTemplate, pack.Source)
	assert.Len(t, pack.BeatSheet, 10)
	assert.Len(t, pack.DeckOutline, 8)
	assert.Contains(t, pack.Synopsis, "drama told with a grounded, character-driven tone")
	assert.True(t, strings.HasPrefix(pack.BeatSheet[0], "Opening Image"))
	assert.True(t, strings.HasPrefix(pack.DeckOutline[7], "Team & Next Steps"))
}

func TestGeneratePitchModel(t *testing.T) {
	p := &fakeProvider{respond: func(int32, llm.CompletionRequest) (string, error) {
		beats := `"b1","b2","b3","b4","b5","b6","b7","b8","b9","b10","b11"`
		return "Sure! ```json\n{\"synopsis\":\"Fog and blood.\",\"beat_sheet\":[" + beats +
			"],\"deck_outline\":[\"Cover\",\"\",\"Story\"]}\n```", nil
	}}
	g := newTestGenerator(t, Options{UseModel: true}, p)

	pack, err := g.GeneratePitch(context.Background(), models.PitchRequest{Title: "Dhundh", Logline: "Fog kills in Mumbai."})
	require.NoError(t, err)
	assert.Equal(t, models.SourceModel, pack.Source)
	assert.Equal(t, "Dhundh", pack.Title)
	assert.Equal(t, "Fog and blood.", pack.Synopsis)
	assert.Len(t, pack.BeatSheet, 10)
	assert.Equal(t, []string{"Cover", "Story"}, pack.DeckOutline)
}

func TestGeneratePitchMalformedFallsBack(t *testing.T) {
	p := &fakeProvider{respond: func(int32, llm.CompletionRequest) (string, error) {
		return `{"synopsis": ""}`, nil
	}}
	g := newTestGenerator(t, Options{UseModel: true}, p)

	pack, err := g.GeneratePitch(context.Background(), models.PitchRequest{Title: "Dhundh", Logline: "Fog kills in Mumbai."})
	require.NoError(t, err)
	assert.Equal(t, models.SourceTemplate, pack.Source)
}

func TestValidatePitch(t *testing.T) {
	cases := []models.PitchRequest{
		{Title: "D", Logline: "Fog kills in Mumbai."},
		{Title: strings.Repeat("t", 121), Logline: "Fog kills in Mumbai."},
		{Title: "Dhundh", Logline: "Fog"},
		{Title: "Dhundh", Logline: strings.Repeat("l", 401)},
	}
	for _, req := range cases {
		assert.True(t, apperrors.IsValidationError(ValidatePitch(req)))
	}
	assert.NoError(t, ValidatePitch(models.PitchRequest{Title: "Dh", Logline: "Fog k"}))
}
