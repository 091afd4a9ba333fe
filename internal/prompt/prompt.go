// Package prompt builds the model prompts. Prompts are opaque to the rest of
// the pipeline: callers only rely on the model answering in the
// "KEYWORD=Reason: ... Link: ..." layout the parser understands.
package prompt

import (
	"fmt"
	"strings"
)

// Output budgets for the on-device model.
const (
	PreprocessTokens      = 128
	LocalTextTokens       = 60
	LocalMultimodalTokens = 256
	CredentialProbeTokens = 10
)

// CredentialProbe is the trivial prompt used to test a cloud API key.
const CredentialProbe = "Test: Is 2+2=4? Respond ONLY with the keyword FACT."

const categories = `Categories:
A. FACT: the claim is substantially true and confirmed by several reputable, independent sources without relying on speculation.
B. MISINFORMATION: the claim contains material errors or falsehoods, or is misleading as a whole. Prefer this over FACT whenever it applies.
C. CAUTION: the claim is only partly true and missing important context, or the evidence is thin, conflicting or unverified.`

const outputRules = `Answer format (follow exactly):
1. Start with one keyword, FACT, MISINFORMATION or CAUTION, followed by "=".
2. Then write "Reason:" and exactly three short bullet points, each starting with "-".
3. Do not repeat a point, do not add extra bullets and do not put links inside the bullets.
4. Answer in English.`

func quote(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), `"`, `'`)
}

// CloudText asks the grounded cloud model to verify a text claim.
func CloudText(claim string) string {
	return fmt.Sprintf(`You are Veritas, a fact-checking assistant that favours highly reputable sources.
Verify this claim: "%s".
Use live Google Search results to check the most recent facts. Reason deductively and cross-check the sources against each other.

%s

%s`, quote(claim), categories, outputRules)
}

// CloudMultimodal asks the grounded cloud model to verify a claim against
// the attached image.
func CloudMultimodal(claim string) string {
	return fmt.Sprintf(`You are Veritas, a fact-checking assistant that favours highly reputable sources.
Verify the claim "%s" by comparing it with the attached image and with live Google Search results.
Reason deductively and cross-check the image, the claim and the search results.

%s

%s`, quote(claim), categories, outputRules)
}

// CloudPage asks the cloud model to verify a claim using only the supplied
// page content.
func CloudPage(claim, content, pageURL string) string {
	return fmt.Sprintf(`You are Veritas, a fact-checking assistant.
Verify the claim "%s" USING ONLY THE PAGE CONTENT BELOW.
If the page does not mention the claim, answer CAUTION. If the page contradicts it, answer MISINFORMATION. Do not use outside search results to overrule the page.

--- PAGE CONTEXT ---
URL: %s
Content Snippet: %s
--- END CONTEXT ---

%s

%s`, quote(claim), pageURL, content, categories, outputRules)
}

// Preprocess asks the on-device model to reduce a claim to one checkable
// sentence.
func Preprocess(claim string) string {
	return fmt.Sprintf(`Rewrite the following text as a single, short sentence stating the one core fact that can be verified. Reply with that sentence only.
Text: "%s"`, quote(claim))
}

// LocalText asks the on-device model for a verdict from its own knowledge.
func LocalText(claim string) string {
	return fmt.Sprintf(`You are Veritas, a fact-checking assistant.
Verify this claim from your own knowledge: "%s".
Start with one keyword, FACT, MISINFORMATION or CAUTION, followed by "=", then give one short sentence of reasoning as a bullet starting with "-".
Keep the whole answer under 60 words and in English.`, quote(claim))
}

// LocalMultimodal asks the on-device model for a verdict from the image and
// its own knowledge.
func LocalMultimodal(claim string) string {
	return fmt.Sprintf(`You are Veritas, a fact-checking assistant.
Verify the claim "%s" using only the attached image and your own knowledge. You cannot search the web.
Start with one keyword, FACT, MISINFORMATION or CAUTION, followed by "=", then give your reasoning as short bullets starting with "-".
Be concise and answer in English.`, quote(claim))
}
