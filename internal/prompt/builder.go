package prompt

import (
	"context"
	"fmt"
	"strings"

	"folio/internal/apperr"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const (
	contextSeparator = "\n\n---\n\n"
	noContext        = "No relevant context found."
)

// Message is one entry of a chat-completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Retriever interface {
	Query(ctx context.Context, text string, topK int) ([]string, error)
}

type Config struct {
	OwnerName  string
	OwnerEmail string
	TopK       int
	MaxHistory int
}

// Builder assembles the grounded message list for one question.
type Builder struct {
	retriever Retriever
	cfg       Config
	system    string
}

func NewBuilder(r Retriever, cfg Config) *Builder {
	return &Builder{retriever: r, cfg: cfg, system: SystemPrompt(cfg.OwnerName, cfg.OwnerEmail)}
}

// SystemPrompt renders the fixed grounding instruction for owner.
func SystemPrompt(owner, email string) string {
	return fmt.Sprintf(`You are a portfolio assistant for %[1]s. Your ONLY job is to answer questions using the CONTEXT provided in each user message.

STRICT RULES — you MUST follow these without exception:
1. NEVER use your training data to answer. ONLY use information from the CONTEXT block.
2. If the CONTEXT does not contain the answer, say exactly: "I don't have that information. Feel free to reach out to %[1]s directly at %[2]s"
3. Do NOT mention any projects, skills, companies, names, or facts that are not explicitly stated in the CONTEXT.
4. Do NOT make assumptions or fill gaps with plausible-sounding information.
5. If asked about projects: ONLY list projects that appear in the CONTEXT. Never invent project names.
6. Keep answers concise and factual. Use bullet points for lists.
7. For greetings, respond briefly and invite the visitor to ask about %[1]s's work.
8. If asked something unrelated to %[1]s, say: "I'm here to help you learn about %[1]s's work!"

REMEMBER: Every single thing you say must be traceable to the CONTEXT block. If it's not in the CONTEXT, it doesn't exist.`, owner, email)
}

// Build returns the system instruction, the admitted history window and a
// final user turn carrying the retrieved context. topK <= 0 uses the
// configured default.
func (b *Builder) Build(ctx context.Context, query string, history []Message, topK int) ([]Message, error) {
	if topK <= 0 {
		topK = b.cfg.TopK
	}

	chunks, err := b.retriever.Query(ctx, query, topK)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "Failed to process your question.", err)
	}

	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, Message{Role: RoleSystem, Content: b.system})
	messages = append(messages, window(history, b.cfg.MaxHistory)...)
	messages = append(messages, Message{Role: RoleUser, Content: groundedQuestion(query, chunks)})
	return messages, nil
}

func window(history []Message, limit int) []Message {
	if limit <= 0 {
		return nil
	}
	if len(history) > limit {
		history = history[len(history)-limit:]
	}

	kept := make([]Message, 0, len(history))
	for _, m := range history {
		if (m.Role == RoleUser || m.Role == RoleAssistant) && m.Content != "" {
			kept = append(kept, m)
		}
	}
	return kept
}

func groundedQuestion(query string, chunks []string) string {
	body := noContext
	if len(chunks) > 0 {
		body = strings.Join(chunks, contextSeparator)
	}

	var sb strings.Builder
	sb.WriteString("[CONTEXT — use ONLY this to answer. Do NOT use your training knowledge.]\n")
	sb.WriteString(body)
	sb.WriteString("\n[END CONTEXT]\n\nQuestion: ")
	sb.WriteString(query)
	return sb.String()
}
