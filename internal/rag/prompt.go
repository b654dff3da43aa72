package rag

import (
	"strings"

	"notebook-rag/internal/vectorstore"
)

// RefusalMessage is returned when nothing in the notebook matches the question.
const RefusalMessage = "I don't have enough information in the uploaded files to answer that."

const systemPrompt = `You are a helpful assistant.

IMPORTANT RULES:
1. You MUST answer using ONLY the provided context.
2. If the context does not contain the answer, respond EXACTLY with:
   '` + RefusalMessage + `'
3. Do NOT make up information.
4. You MUST answer in the SAME language as the user's question.
5. The language rule has priority over all stylistic preferences.`

// buildPrompt renders the question followed by one block per retrieved chunk.
func buildPrompt(question string, results []vectorstore.SearchResult) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\nContext:\n\n")

	for _, r := range results {
		b.WriteString("----\nFILE_PATH: ")
		b.WriteString(r.Path)
		b.WriteString("\nCONTENT: ")
		b.WriteString(r.Text)
		b.WriteString("\n\n")
	}

	return b.String()
}
