package rag

import (
	"context"
	"strings"

	"github.com/spherical/scan-ocr/internal/llm"
)

// Generator answers a question given retrieved context.
type Generator interface {
	Generate(ctx context.Context, passages, question string) (string, error)
	Model() string
}

// stuffPrompt places all retrieved chunks into a single prompt.
const stuffPrompt = `Use the following pieces of context to answer the question at the end. If you don't know the answer, just say that you don't know, don't try to make up an answer.

{context}

Question: {question}
Helpful Answer:`

// BuildPrompt renders the prompt sent to the model.
func BuildPrompt(passages, question string) string {
	return strings.NewReplacer("{context}", passages, "{question}", question).Replace(stuffPrompt)
}

// ChatGenerator generates answers with a chat model.
type ChatGenerator struct {
	client *llm.ChatClient
}

// NewChatGenerator creates a generator backed by client.
func NewChatGenerator(client *llm.ChatClient) *ChatGenerator {
	return &ChatGenerator{client: client}
}

func (g *ChatGenerator) Model() string { return g.client.Model() }

func (g *ChatGenerator) Generate(ctx context.Context, passages, question string) (string, error) {
	return g.client.Complete(ctx, BuildPrompt(passages, question))
}

var _ Generator = (*ChatGenerator)(nil)
