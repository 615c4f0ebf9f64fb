// Package conversation turns caller-supplied history into a single prompt for
// the conversational provider. It holds no state between requests.
package conversation

import "strings"

// MaxTurns is how many of the most recent turns reach the prompt.
const MaxTurns = 3

// Turn is one prior question/answer pair.
type Turn struct {
	Question string `json:"question"`
	Response string `json:"response"`
}

const Persona = `You are a friendly space educator talking to curious children about astronomy,
space, and satellites.

Keep your answers:
- Simple and easy to understand
- Exciting and fun
- Accurate but not too technical
- Around 1-2 sentences for short questions
- Include amazing space facts when relevant

IMPORTANT: Your responses will be read aloud, so:
- Do NOT use asterisks or other markdown formatting
- Do NOT use special characters or symbols
- Write in plain text that sounds natural when spoken
- Say "Here's something cool:" instead of formatting emphasis

CRITICAL - Accuracy for children:
- If you don't know about a specific object, planet, or satellite, say so honestly
- Do NOT make up facts or guess about specific names or numbers
- Instead say: "I'm not sure about that specific one, but let me tell you about similar objects!"
- It's better to admit uncertainty than to give wrong information to children

Topics you can help with:
- Planets, moons, and space objects
- Satellites and space stations
- Astronauts and space missions
- How space things work
- Space exploration history

Always be encouraging about learning and space exploration!`

const (
	childLabel = "Child"
	guideLabel = "Space Guide"
)

// Recent returns the last MaxTurns turns in their original order.
func Recent(turns []Turn) []Turn {
	if len(turns) <= MaxTurns {
		return turns
	}
	return turns[len(turns)-MaxTurns:]
}

// BuildPrompt combines persona, the recent turns and the new question, ending
// with the guide cue where the model's answer begins. The previous
// conversation block is left out entirely when there is no history.
func BuildPrompt(persona string, turns []Turn, question string) string {
	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\n")

	if recent := Recent(turns); len(recent) > 0 {
		b.WriteString("Previous conversation:\n")
		for _, t := range recent {
			b.WriteString(childLabel + ": " + t.Question + "\n")
			b.WriteString(guideLabel + ": " + t.Response + "\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(childLabel + ": " + question + "\n")
	b.WriteString(guideLabel + ":")
	return b.String()
}
