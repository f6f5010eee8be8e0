package ui

// Static reference material for the guides view. Rendered through glamour
// like every other markdown surface.

type guide struct {
	Title string
	Body  string
}

var guides = []guide{
	{
		Title: "The Scientific Method",
		Body: `# The Scientific Method

A fair-ready project follows a loop, not a checklist:

1. **Observe** something that genuinely puzzles you.
2. **Question** it precisely. "Why is the pond greener in July?" beats "algae?"
3. **Hypothesize** with a measurable prediction.
4. **Experiment** with one changing variable and everything else held still.
5. **Analyze** honestly. A disproven hypothesis is a result, not a failure.
6. **Conclude and share.** Judges reward clarity about what you would do next.

## Variables

- *Independent*: the one thing you change.
- *Dependent*: the thing you measure.
- *Controlled*: everything you keep the same. List them explicitly on your board.`,
	},
	{
		Title: "Picking a Winning Topic",
		Body: `# Picking a Winning Topic

The best projects sit at the intersection of three circles: you care about it,
you can actually measure it, and it hasn't been done a thousand times.

- Prefer a narrow question you can answer over a broad one you can only describe.
- Baking-soda volcanoes demonstrate; experiments *compare*. Always compare.
- If your materials list needs a lab you don't have, shrink the question.
- Run the experiment at least three times. Means with error bars beat single runs.`,
	},
	{
		Title: "Surviving the Judging Interview",
		Body: `# Surviving the Judging Interview

Judges spend five minutes with your board and fifteen with you.

- Open with your question, not your procedure.
- Know your numbers cold: sample size, biggest source of error, what you'd change.
- "I don't know, but here's how I'd find out" is a strong answer.
- Practice aloud. Twice. To a person, not a mirror.`,
	},
	{
		Title: "Writing the Abstract",
		Body: `# Writing the Abstract

One paragraph, ~250 words, written last:

1. Purpose: the question, one sentence.
2. Procedure: what you varied and what you measured.
3. Data: the headline numbers.
4. Conclusion: what the data says about the hypothesis.

No citations, no future tense, no "very". The abstract tool in this app drafts
one from your summary; treat the draft as a starting point and make it yours.`,
	},
}
