package anthropic

import "fmt"

// buildAnalysisPrompt creates the prompt for analyzing construction site
// photographs for safety violations.
func buildAnalysisPrompt(context string) string {
	prompt := `You are an expert OSHA construction safety inspector analyzing a construction site photograph for safety violations.

Focus on these four categories:
1. **Missing PPE** - hard hats, safety vests, eye protection, gloves, steel-toed boots
2. **Fall Protection** - missing harnesses, guardrails, improper ladder use, unprotected edges
3. **Scaffolding Safety** - missing planks, improper setup, unstable structures
4. **Equipment Safety** - unsecured tools, missing guards, improper equipment operation

For each violation you identify, produce an object with:
- violation_type: one of the four categories above
- description: a detailed description of what you observe
- severity: "CRITICAL", "MODERATE", or "LOW"
- osha_code: the relevant OSHA regulation code if known (e.g. "29 CFR 1926.95")
- corrective_action: the specific action needed to fix the violation
- fine_estimate: estimated OSHA fine in USD, between 1000 and 50000
- location: where in the image the violation appears
- confidence: your confidence level from 0.0 to 1.0

**Important Guidelines:**
- Only report violations you can reasonably identify from visible evidence
- Be conservative with severity ratings and prioritize worker safety
- If the image quality prevents confident assessment, lower the confidence score`

	if context != "" {
		prompt += fmt.Sprintf("\n\n**Additional Context from Inspector:**\n%s", context)
	}

	prompt += `

**Response Format:**
Return ONLY a valid JSON array of violation objects. If no violations are found, return an empty array [].`

	return prompt
}
