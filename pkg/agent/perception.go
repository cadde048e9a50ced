package agent

import (
	"strings"

	"ampere/pkg/proto"
)

// Idea is one candidate approach produced during perception.
type Idea struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// Perception is the agent's read of the current situation: a state summary
// and the ideas it generated. Empty ideas abort the loop with no side
// effects beyond a logged perception.
type Perception struct {
	ID           string `json:"id"`
	CurrentState string `json:"current_state"`
	Ideas        []Idea `json:"ideas"`
}

// parseIdeas extracts one idea per non-empty response line, stripping common
// list markers. Numbered and bulleted lists both parse.
func parseIdeas(response string) []Idea {
	var ideas []Idea
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*0123456789.) ")
		if line == "" {
			continue
		}
		ideas = append(ideas, Idea{ID: proto.NewID(), Description: line})
	}
	return ideas
}
