// ABOUTME: Labelled routing queries used to benchmark classifier accuracy
// ABOUTME: Grouped into named suites so a single suite can be run on its own

package routing

import (
	"fmt"
	"sort"

	"github.com/harper/twin/internal/models"
)

// Case is one query with the label a correct router should pick
type Case struct {
	Query    string       `json:"query"`
	Expected models.Label `json:"expected"`
}

// Suite is a named group of cases
type Suite struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Cases []Case `json:"cases"`
}

func cases(label models.Label, queries ...string) []Case {
	out := make([]Case, len(queries))
	for i, q := range queries {
		out[i] = Case{Query: q, Expected: label}
	}
	return out
}

// Keywords covers queries that carry an explicit trigger word
func Keywords() Suite {
	var c []Case
	c = append(c, cases(models.LabelProfessional,
		"I need help with Python code",
		"Can you help me debug this python code?",
		"Debug this error in my Java code",
		"Review this code for performance issues",
		"HELP ME WITH PYTHON CODE",
	)...)
	c = append(c, cases(models.LabelCommunication,
		"Help me write an email",
		"Write a professional email response",
		"Help me phrase this message better",
		"Draft a letter with a formal tone",
		"Draft a response to this client inquiry",
	)...)
	c = append(c, cases(models.LabelKnowledge,
		"What do I prefer for breakfast?",
		"Tell me about my background",
		"What do I usually prefer for database technologies?",
		"Tell me about my experience with React",
	)...)
	c = append(c, cases(models.LabelDecision,
		"Should I learn Rust or Go?",
		"Help me decide between MongoDB and PostgreSQL",
		"What are the pros and cons of microservices vs monolith?",
		"Should I choose option A or option B?",
	)...)
	c = append(c, cases(models.LabelGeneral,
		"Hello there!",
		"Hi!",
		"Good morning",
		"Thanks for your help!",
		"Tell me a joke",
	)...)
	return Suite{ID: "keywords", Name: "Explicit trigger words", Cases: c}
}

// Paraphrases covers queries whose intent is clear but whose wording avoids
// the trigger words. Keyword routing is expected to miss many of these.
func Paraphrases() Suite {
	var c []Case
	c = append(c, cases(models.LabelProfessional,
		"How do I implement a design pattern in JavaScript?",
		"What's the best data structure for this algorithm?",
		"Explain how async/await works in JavaScript",
	)...)
	c = append(c, cases(models.LabelCommunication,
		"How should I phrase this to sound more polite?",
		"Can you make this letter sound friendlier?",
	)...)
	c = append(c, cases(models.LabelKnowledge,
		"What is my favorite tech stack?",
		"Remember my preferences",
		"Who am I and what do I like?",
	)...)
	c = append(c, cases(models.LabelDecision,
		"Help me evaluate the trade-offs",
		"Give me advice on this decision",
		"Which laptop is the better buy for me?",
	)...)
	c = append(c, cases(models.LabelGeneral,
		"How are you?",
		"What's the weather like?",
	)...)
	return Suite{ID: "paraphrases", Name: "Paraphrased intent", Cases: c}
}

// Ambiguous covers queries that trigger more than one label. Ties resolve by
// label priority, so the expected label follows that order.
func Ambiguous() Suite {
	return Suite{ID: "ambiguous", Name: "Competing triggers", Cases: []Case{
		{Query: "Should I write this in python?", Expected: models.LabelProfessional},
		{Query: "Draft an email about the API outage", Expected: models.LabelCommunication},
		{Query: "Should I learn Rust or Go for systems programming?", Expected: models.LabelProfessional},
		{Query: "Should I decide now or choose later?", Expected: models.LabelDecision},
		{Query: "What do I usually write in my emails?", Expected: models.LabelCommunication},
	}}
}

// Suites returns every suite keyed by ID
func Suites() map[string]Suite {
	all := []Suite{Keywords(), Paraphrases(), Ambiguous()}
	out := make(map[string]Suite, len(all))
	for _, s := range all {
		out[s.ID] = s
	}
	return out
}

// SuiteIDs returns the suite IDs in sorted order
func SuiteIDs() []string {
	ids := make([]string, 0, 3)
	for id := range Suites() {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Lookup finds a suite by ID
func Lookup(id string) (Suite, error) {
	s, ok := Suites()[id]
	if !ok {
		return Suite{}, fmt.Errorf("unknown suite %q (valid options: %v)", id, SuiteIDs())
	}
	return s, nil
}
