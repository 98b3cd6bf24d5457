package index

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/vivoassist/vivoassist-go/internal/logging"
	"github.com/vivoassist/vivoassist-go/internal/rag"
)

// systemPrompt restricts the answer model to retrieved manual content and
// mandates the exact NotFound refusal. Sent as the first message of every
// answer call.
const systemPrompt = `You are a technical assistant for VivoAssist.

Rules:
- Answer ONLY using the provided PDF manual content.
- If the answer is not explicitly found in the manual, say:
  "` + NotFound + `"
- Do NOT guess or use external knowledge.
- Keep answers clear, concise, and technical.
- When possible, support answers with page numbers.`

// EinoIndex implements Client on top of a rag.Retriever and an eino chat
// model. It performs condense-then-retrieve-then-answer: follow-up questions
// are first rewritten into standalone questions using the conversation
// history, then answered against freshly retrieved context.
type EinoIndex struct {
	// retriever fetches ranked manual fragments, optionally scope-filtered.
	retriever rag.Retriever

	// chatModel generates the condensed question and the final answer.
	chatModel model.BaseChatModel

	// topK is the number of fragments retrieved per question.
	topK int
}

// Config holds the dependencies for constructing an EinoIndex.
type Config struct {
	// Retriever fetches ranked manual fragments. Required.
	Retriever rag.Retriever

	// ChatModel is the LLM backend constructed by the provider factory. Required.
	ChatModel model.BaseChatModel

	// TopK is the number of fragments retrieved per question.
	// Defaults to 8 if zero.
	TopK int
}

// New constructs an EinoIndex from the provided Config.
func New(cfg *Config) (*EinoIndex, error) {
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("index: retriever must not be nil")
	}
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("index: chat model must not be nil")
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = 8
	}
	return &EinoIndex{
		retriever: cfg.Retriever,
		chatModel: cfg.ChatModel,
		topK:      topK,
	}, nil
}

// Retrieve returns the top-k ranked fragments for query, restricted to
// manual when non-empty.
func (x *EinoIndex) Retrieve(ctx context.Context, query string, topK int, manual string) ([]Fragment, error) {
	if topK <= 0 {
		topK = x.topK
	}
	docs, err := x.retriever.Retrieve(ctx, query, topK, manual)
	if err != nil {
		return nil, fmt.Errorf("index: retrieve: %w", err)
	}
	return toFragments(docs), nil
}

// Answer condenses question against history, retrieves supporting fragments,
// and generates a grounded answer. The retrieved fragments are returned as
// the answer's evidence.
func (x *EinoIndex) Answer(ctx context.Context, question string, history []*schema.Message, manual string) (Answer, error) {
	retrievalQuery := question
	if len(history) > 0 {
		condensed, err := x.condense(ctx, question, history, manual)
		if err != nil {
			// Condensation failure is non-fatal: retrieve with the raw question.
			logging.FromContext(ctx).Warn("index: condense failed, using raw question",
				slog.Any("error", err))
		} else if condensed != "" {
			retrievalQuery = condensed
		}
	}

	fragments, err := x.Retrieve(ctx, retrievalQuery, x.topK, manual)
	if err != nil {
		return Answer{}, err
	}

	messages := make([]*schema.Message, 0, len(history)+3)
	messages = append(messages, schema.SystemMessage(systemPrompt))
	messages = append(messages, schema.SystemMessage(buildContext(fragments)))
	messages = append(messages, history...)
	messages = append(messages, schema.UserMessage(question))

	resp, err := x.chatModel.Generate(ctx, messages)
	if err != nil {
		return Answer{}, fmt.Errorf("index: answer generation failed: %w", err)
	}

	return Answer{Text: strings.TrimSpace(resp.Content), Fragments: fragments}, nil
}

// condense rewrites a follow-up question into a standalone question using
// the conversation history. When a manual is locked, the prompt names it so
// anaphoric follow-ups ("explain more about it") resolve against the right
// document.
func (x *EinoIndex) condense(ctx context.Context, question string, history []*schema.Message, manual string) (string, error) {
	var prompt strings.Builder
	prompt.WriteString("Given the conversation below, rewrite the follow-up question ")
	prompt.WriteString("into a single standalone question that preserves its meaning. ")
	if manual != "" {
		fmt.Fprintf(&prompt, "The conversation is about the manual %q; resolve pronouns and references against it. ", manual)
	}
	prompt.WriteString("Return ONLY the rewritten question.\n\nConversation:\n")
	for _, m := range history {
		fmt.Fprintf(&prompt, "%s: %s\n", m.Role, m.Content)
	}
	fmt.Fprintf(&prompt, "\nFollow-up question: %s", question)

	resp, err := x.chatModel.Generate(ctx, []*schema.Message{
		schema.UserMessage(prompt.String()),
	})
	if err != nil {
		return "", fmt.Errorf("index: condense: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// buildContext formats retrieved fragments into the context system message
// the answer is grounded in.
func buildContext(fragments []Fragment) string {
	var b strings.Builder
	b.WriteString("## Retrieved Manual Content\n\n")
	b.WriteString("Answer strictly from the excerpts below.\n\n")
	for i, f := range fragments {
		label := f.Manual
		if f.Page != "" {
			label += ", page " + f.Page
		}
		fmt.Fprintf(&b, "### Excerpt %d (%s)\n%s\n\n", i+1, label, f.Text)
	}
	return b.String()
}

// toFragments maps rag documents onto the collaborator-facing fragment type.
func toFragments(docs []rag.Document) []Fragment {
	fragments := make([]Fragment, 0, len(docs))
	for _, d := range docs {
		fragments = append(fragments, Fragment{
			Manual: d.Manual,
			Page:   d.Page,
			Text:   d.Content,
			Score:  d.Score,
		})
	}
	return fragments
}
