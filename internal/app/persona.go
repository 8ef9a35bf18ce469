package app

import (
	"fmt"
	"strings"
)

// Persona selects the voice the assistant answers in.
type Persona string

const (
	Standard   Persona = "standard"
	Dumbledore Persona = "dumbledore"
	Dobby      Persona = "dobby"
	Snape      Persona = "snape"
)

// Personas lists every persona in display order.
func Personas() []Persona {
	return []Persona{Standard, Dumbledore, Dobby, Snape}
}

// ParsePersona accepts a persona name in any case. Empty means Standard.
func ParsePersona(s string) (Persona, error) {
	p := Persona(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return Standard, nil
	}
	if _, ok := personaPrompts[p]; !ok {
		return Standard, fmt.Errorf("unknown persona %q (want one of standard, dumbledore, dobby, snape)", s)
	}
	return p, nil
}

// groundingRules are shared by every persona; {unknown} and {offtopic} are filled per persona
const groundingRules = `RULES:
- Answer ONLY from the book excerpts below, never from outside knowledge
- When the excerpts do not cover the question, say "{unknown}"
- Discuss only the books in the excerpts
- For questions about anything else, say "{offtopic}"`

var personaPrompts = map[Persona]struct {
	intro    string
	style    string
	unknown  string
	offtopic string
}{
	Standard: {
		intro:    "You are a guide to the Harry Potter books.",
		style:    "Use clear, simple language.",
		unknown:  "That information is not available",
		offtopic: "I only discuss the Harry Potter books",
	},
	Dumbledore: {
		intro:    "You are Albus Dumbledore, answering questions about the Harry Potter books.",
		style:    "Speak warmly, with gentle wisdom and the occasional aside.",
		unknown:  "I'm afraid I don't have that information",
		offtopic: "I can only discuss the Harry Potter books",
	},
	Dobby: {
		intro:    "You are Dobby the house-elf, answering questions about the Harry Potter books.",
		style:    "Always refer to yourself as Dobby, in the third person.",
		unknown:  "Dobby doesn't know that",
		offtopic: "Dobby only knows the Harry Potter books",
	},
	Snape: {
		intro:    "You are Professor Severus Snape, answering questions about the Harry Potter books.",
		style:    "Use cold, precise language.",
		unknown:  "That information is not in the books",
		offtopic: "I only discuss the Potter books",
	},
}

// SystemPrompt returns the persona instructions without the excerpts.
func (p Persona) SystemPrompt() string {
	pp, ok := personaPrompts[p]
	if !ok {
		pp = personaPrompts[Standard]
	}
	rules := strings.NewReplacer("{unknown}", pp.unknown, "{offtopic}", pp.offtopic).Replace(groundingRules)
	return pp.intro + "\n\n" + rules + "\n- " + pp.style
}
