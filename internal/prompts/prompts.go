package prompts

import (
	"fmt"
	"strings"

	"github.com/mweber/stocklens/internal/domain"
)

// answerTemplate is the fixed prompt for answer generation. The retrieved
// posts are rendered verbatim; the model sees exactly what the index
// returned.
const answerTemplate = `You are a financial analyst. Answer the following question based on Reddit posts:

Question: %s

Reddit context:
%s

Answer:`

// ContextBlock renders retrieved payloads into the context section of the
// answer prompt: one "title\nbody" paragraph per post, blank-line
// separated, in retrieval order.
func ContextBlock(posts []domain.PostPayload) string {
	blocks := make([]string, 0, len(posts))
	for _, p := range posts {
		block := p.Title
		if p.Body != "" {
			block += "\n" + p.Body
		}
		blocks = append(blocks, block)
	}
	return strings.Join(blocks, "\n\n")
}

// AnswerPrompt builds the full prompt submitted to the language model.
func AnswerPrompt(question string, posts []domain.PostPayload) string {
	return fmt.Sprintf(answerTemplate, question, ContextBlock(posts))
}
