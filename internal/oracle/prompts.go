package oracle

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/firi-app/firi/internal/research"
)

// IdeaCount is how many project ideas one ideation run produces.
const IdeaCount = 5

// FieldAnalysisPrompt asks for a grounded overview of the research field
// around a topic. The reply is markdown and is copied verbatim onto every
// idea generated from it.
func FieldAnalysisPrompt(topic string) string {
	return fmt.Sprintf(`You are a science-fair research mentor. Using current web sources, write a concise analysis of the research field around the topic %q for a student planning a science-fair project. Cover: the state of the field, open questions a student could realistically tackle, and common pitfalls. Answer in markdown with short sections.`, topic)
}

// IdeaListPrompt asks for the structured idea list. The schema constrains
// the shape; the prompt carries the topic and the already-computed analysis
// for grounding.
func IdeaListPrompt(topic, analysis string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Propose exactly %d distinct science-fair project ideas for the topic %q.\n", IdeaCount, topic)
	b.WriteString("Score each idea 0-10 for impact, rigor, novelty and wowFactor. ")
	b.WriteString("resourcesHtml is a short HTML list of materials and references.\n")
	if analysis != "" {
		b.WriteString("\nField analysis for context:\n")
		b.WriteString(analysis)
	}
	return b.String()
}

// IdeaListSchema is the Gemini response schema for the idea list: an array
// of exactly IdeaCount objects with bounded integer scores.
func IdeaListSchema() json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
		"type": "ARRAY",
		"minItems": "%[1]d",
		"maxItems": "%[1]d",
		"items": {
			"type": "OBJECT",
			"properties": {
				"title": {"type": "STRING"},
				"description": {"type": "STRING"},
				"category": {"type": "STRING"},
				"impact": {"type": "INTEGER", "minimum": 0, "maximum": 10},
				"rigor": {"type": "INTEGER", "minimum": 0, "maximum": 10},
				"novelty": {"type": "INTEGER", "minimum": 0, "maximum": 10},
				"wowFactor": {"type": "INTEGER", "minimum": 0, "maximum": 10},
				"resourcesHtml": {"type": "STRING"}
			},
			"required": ["title", "description", "category", "impact", "rigor", "novelty", "wowFactor", "resourcesHtml"]
		}
	}`, IdeaCount))
}

// TimelinePrompt asks for a week-by-week project plan in markdown.
func TimelinePrompt(idea research.ProjectIdea) string {
	return fmt.Sprintf(`Create a week-by-week timeline (8 weeks) for the science-fair project %q in the category %q. Project summary: %s

Answer in markdown: one heading per week, with 2-4 concrete tasks each, ending with fair-day preparation.`, idea.Title, idea.Category, idea.Description)
}

// CoachSystemInstruction primes the workspace coaching chat.
func CoachSystemInstruction(idea research.ProjectIdea) string {
	return fmt.Sprintf(`You are a supportive science-fair research coach. The student is working on the project %q (%s): %s

Answer questions about methodology, experiment design and presentation. Be concrete and encouraging; keep answers short unless asked to elaborate.`, idea.Title, idea.Category, idea.Description)
}

// JudgeSystemInstruction primes the AI-judge tool persona.
const JudgeSystemInstruction = `You are a seasoned science-fair judge. The student will describe or show you their project. Evaluate it the way a real judge would: scientific thought, thoroughness, skill, clarity. Ask probing questions, point out weaknesses directly but kindly, and finish each reply with one concrete improvement.`

// AbstractPrompt asks for a competition-style abstract from raw notes.
func AbstractPrompt(input string) string {
	return "Write a 250-word science-fair abstract (purpose, procedure, results, conclusion) from these project notes:\n\n" + input
}

// FeedbackPrompt asks for quick actionable feedback on a plan or writeup.
func FeedbackPrompt(input string) string {
	return "Give brief, actionable feedback on this science-fair project plan or writeup. List the three most important improvements first:\n\n" + input
}

type rawIdea struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	Category      string `json:"category"`
	Impact        int    `json:"impact"`
	Rigor         int    `json:"rigor"`
	Novelty       int    `json:"novelty"`
	WowFactor     int    `json:"wowFactor"`
	ResourcesHTML string `json:"resourcesHtml"`
}

// ParseIdeas decodes a schema-bound generation reply, clamps scores into
// range, and stamps every idea with the rendered field analysis.
func ParseIdeas(text, analysis string) ([]research.ProjectIdea, error) {
	var raw []rawIdea
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &raw); err != nil {
		return nil, errors.Wrap(err, "decode idea list")
	}
	if len(raw) != IdeaCount {
		return nil, errors.Errorf("expected %d ideas, got %d", IdeaCount, len(raw))
	}
	ideas := make([]research.ProjectIdea, 0, IdeaCount)
	for _, r := range raw {
		idea := research.ProjectIdea{
			LocalID:       research.NewLocalID(),
			Title:         r.Title,
			Description:   r.Description,
			Analysis:      analysis,
			Category:      r.Category,
			Impact:        r.Impact,
			Rigor:         r.Rigor,
			Novelty:       r.Novelty,
			WowFactor:     r.WowFactor,
			ResourcesHTML: r.ResourcesHTML,
		}
		idea.ClampScores()
		ideas = append(ideas, idea)
	}
	return ideas, nil
}
