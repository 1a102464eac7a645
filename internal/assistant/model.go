package assistant

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// ModelTurn is one raw model response: the generated text plus any tool
// requests the model wants executed before it can answer.
type ModelTurn struct {
	Text         string
	ToolRequests []*ai.ToolRequest
}

// ModelClient produces model turns for a prepared conversation. The loop owns
// tool execution, so implementations must return tool requests to the caller
// instead of dispatching them.
type ModelClient interface {
	Generate(ctx context.Context, system string, msgs []*ai.Message) (*ModelTurn, error)
}

// GenkitModel is the production ModelClient backed by a configured Genkit
// instance.
type GenkitModel struct {
	g           *genkit.Genkit
	modelName   string
	tools       []ai.ToolRef
	temperature float64
	maxTokens   int
}

// NewGenkitModel creates a model client. modelName is the fully qualified
// provider/model name; tools is the declared tool set the model may request.
func NewGenkitModel(g *genkit.Genkit, modelName string, tools []ai.ToolRef, temperature float64, maxTokens int) *GenkitModel {
	return &GenkitModel{
		g:           g,
		modelName:   modelName,
		tools:       tools,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

// Generate runs one model call with tool requests returned, not auto-executed.
func (m *GenkitModel) Generate(ctx context.Context, system string, msgs []*ai.Message) (*ModelTurn, error) {
	opts := []ai.GenerateOption{
		ai.WithModelName(m.modelName),
		ai.WithSystem(system),
		ai.WithMessages(msgs...),
		ai.WithReturnToolRequests(true),
	}
	if len(m.tools) > 0 {
		opts = append(opts, ai.WithTools(m.tools...))
	}
	if m.temperature > 0 || m.maxTokens > 0 {
		opts = append(opts, ai.WithConfig(&ai.GenerationCommonConfig{
			Temperature:     m.temperature,
			MaxOutputTokens: m.maxTokens,
		}))
	}

	resp, err := genkit.Generate(ctx, m.g, opts...)
	if err != nil {
		return nil, fmt.Errorf("generating model turn: %w", err)
	}
	return &ModelTurn{
		Text:         resp.Text(),
		ToolRequests: resp.ToolRequests(),
	}, nil
}
