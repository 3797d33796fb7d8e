package course

import (
	"fmt"
	"strings"
)

// RewriteInstruction is the system prompt for turning the latest user message
// into a standalone retrieval query.
const RewriteInstruction = "Given the following conversation and the user's final question, rephrase the final question to be a standalone question. Keep it short but capture everything that's relevant"

// DefaultPersona opens the tutor system prompt.
const DefaultPersona = "You are Mosh, an AI assistant created by the youtuber, Mosh teaching Python programming."

const tutorRules = `Make sure to keep the discussion focused on the current objective. Keep it light, playful, and engaging. You will be interacting with a complete beginner so you have to be methodical and prescriptive.

Your role is to:
1. Explain concepts clearly and simply.
2. Take things step by step. Don't overwhelm the user with a lot of information at once.
3. Provide code examples when appropriate.
4. Offer gentle corrections for misconceptions or errors.`

// TutorPrompt builds the system prompt for objective index using the
// retrieved context blob. An empty context leaves the references section empty.
func TutorPrompt(c Course, index int, context string) (string, error) {
	obj, err := c.Objective(index)
	if err != nil {
		return "", err
	}
	persona := c.Persona
	if persona == "" {
		persona = DefaultPersona
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s Your sole focus at this moment is on getting the user through the following objective: %q. ", persona, obj.Instruction)
	fmt.Fprintf(&sb, "If you believe the student has completed the current objective, add %q at the end of your response.\n", c.SentinelOrDefault())
	sb.WriteString(tutorRules)
	sb.WriteString("\n\nYou are currently playing out one objective of the course. The entire course contains the following objectives, JFYI:\n")
	titles := c.Titles()
	for i, t := range titles {
		fmt.Fprintf(&sb, "    %q", t)
		if i < len(titles)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\nHere are some references from the videos you have on this topic:\n\n")
	sb.WriteString(context)
	return sb.String(), nil
}

// TransitionMessage is the hidden user turn sent right after advancing.
func TransitionMessage(previousTitle string) string {
	return fmt.Sprintf("You just helped me complete '%s'. What am I looking forward to, in this one?", previousTitle)
}
