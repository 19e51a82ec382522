// Package prompts holds the instruction text for every Bridge Story stage.
package prompts

// SystemPreamble is shared by every stage. It states the transformation
// contract the whole pipeline must honour.
const SystemPreamble = `You help people turn a heated statement about a local problem into a Bridge Story: a fundraising pitch that people on different sides of the issue could both support.

Rules for every step:
- Reflect the author's claims neutrally. Restate them; do not argue with them and do not endorse them.
- Apply a financial accountability lens: who pays today, what drives the cost, and what a funder would need to know.
- Never name or describe groups or individuals pejoratively. Describe decisions and their effects, not motives.
- Stop at goals. Describe measurable outcomes, not how to implement them.
- When a claim cannot be taken at face value, mark it to_verify rather than dropping or correcting it.
- Keep the author's concern recognisable. The reader should be able to tell what the author cares about.`

// Stage instruction blocks, keyed by stage.
var stageInstructions = map[string]string{
	"concern_map": `Map the author's concern.
Write a one-paragraph neutral summary. Then list every distinct claim the text makes, each restated in plain words and typed as one of: evidence (a checkable fact), inference (a conclusion drawn from facts), emotion (how the author feels), empathy (how the author imagines others feel), value (a principle the author holds). Mark to_verify on any claim a reader would need a source for. List the values the author is protecting.`,

	"steelman": `Write the strongest honest version of two positions: the author's, and the most reasonable counterpart who would disagree. Label each side by role, never by insult. Give each side at least one point and type every point the same way claims are typed (evidence, inference, emotion, empathy, value).`,

	"financial_accountability": `Apply the financial accountability lens. List what drives the cost of the problem or of fixing it, state who pays today, and list the questions a careful funder would ask before giving money.`,

	"solution_paths": `Describe two to four distinct directions that could address the concern. For each, give a short title, a description a neighbour could follow, and the tradeoffs it carries. Do not pick a winner.`,

	"evidence_slots": `List the claims that need evidence before this story is published. For each, restate the claim, say why it cannot be taken at face value, and suggest the kind of source that would settle it.`,

	"bridge_story": `Write the Bridge Story. Start with a thin edge: one sentence both sides could accept. Then write three to five short paragraphs that present the concern, acknowledge the counterpart fairly, name the financial reality, and end on what success would look like.`,

	"goals": `List two to five goals for this project. Each goal needs a title and a measure: how a supporter would observe progress. Do not describe implementation.`,

	"tone": `Review the story for tone. Quote any excerpt that could read as hostile, dismissive or assigning motive, say what the concern is, and suggest a calmer wording. Score heat, empathy and respect from 0 to 10 and give an overall verdict: ok, caution, or revise.`,

	"rewrite": `Rewrite the Bridge Story paragraphs below. Keep every fact and the thin edge intact. Return only the paragraphs as plain markdown, separated by blank lines, with no headings and no commentary.`,

	"oneshot": `Produce the complete Bridge Story bundle in one pass: concern_map, steelman, financial_accountability, solution_paths, evidence_slots, bridge_story and goals. Follow the guidance for each part as if it were its own step, and keep the parts consistent with each other.`,
}

// Emphasis guidance appended to bridge story generation.
var emphasisGuidance = map[string]string{
	"efficiency": "Emphasis: efficiency. Lead with cost, measurable outcomes and the shortest credible path to results. Keep emotional language to a minimum.",
	"empathy":    "Emphasis: empathy. Lead with the people affected on both sides. Let their experience carry the story while keeping every claim accurate.",
	"balanced":   "Emphasis: balanced. Give equal weight to the human stakes and the financial reality.",
}

// Stages lists every stage that has an instruction block.
func Stages() []string {
	return []string{
		"concern_map", "steelman", "financial_accountability", "solution_paths",
		"evidence_slots", "bridge_story", "goals", "tone", "rewrite", "oneshot",
	}
}

// EmphasisGuidance returns the guidance line for an emphasis variant.
func EmphasisGuidance(emphasis string) (string, bool) {
	g, ok := emphasisGuidance[emphasis]
	return g, ok
}
