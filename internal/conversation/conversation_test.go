package conversation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPrompt_NoHistory(t *testing.T) {
	prompt := BuildPrompt("PERSONA", nil, "What makes stars shine?")

	assert.Equal(t, "PERSONA\n\nChild: What makes stars shine?\nSpace Guide:", prompt)
	assert.NotContains(t, prompt, "Previous conversation")
}

func TestBuildPrompt_EmptySliceHistory(t *testing.T) {
	prompt := BuildPrompt("PERSONA", []Turn{}, "Hi")
	assert.NotContains(t, prompt, "Previous conversation")
}

func TestBuildPrompt_KeepsLastThreeInOrder(t *testing.T) {
	turns := []Turn{
		{Question: "q1", Response: "r1"},
		{Question: "q2", Response: "r2"},
		{Question: "q3", Response: "r3"},
		{Question: "q4", Response: "r4"},
		{Question: "q5", Response: "r5"},
	}

	prompt := BuildPrompt("PERSONA", turns, "q6")

	want := "PERSONA\n\nPrevious conversation:\n" +
		"Child: q3\nSpace Guide: r3\n" +
		"Child: q4\nSpace Guide: r4\n" +
		"Child: q5\nSpace Guide: r5\n" +
		"\nChild: q6\nSpace Guide:"
	assert.Equal(t, want, prompt)
	assert.NotContains(t, prompt, "q1")
	assert.NotContains(t, prompt, "q2")
}

func TestBuildPrompt_Deterministic(t *testing.T) {
	turns := []Turn{{Question: "How far is the Moon?", Response: "About 384,400 km."}}
	a := BuildPrompt(Persona, turns, "And Mars?")
	b := BuildPrompt(Persona, turns, "And Mars?")

	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, Persona))
	assert.True(t, strings.HasSuffix(a, "Child: And Mars?\nSpace Guide:"))
}

func TestRecent(t *testing.T) {
	turns := []Turn{{Question: "a"}, {Question: "b"}}
	assert.Equal(t, turns, Recent(turns))

	long := []Turn{{Question: "a"}, {Question: "b"}, {Question: "c"}, {Question: "d"}}
	got := Recent(long)
	require.Len(t, got, MaxTurns)
	assert.Equal(t, "b", got[0].Question)
	assert.Equal(t, "d", got[2].Question)
	assert.Len(t, long, 4, "input must not be modified")
}
