package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

// openAIGenerator calls the OpenAI Responses API, requesting strict JSON
// schema output when the request carries a schema.
type openAIGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates a generator for OpenAI or a compatible endpoint.
func NewOpenAI(cfg Config) Generator {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	client := openai.NewClient(opts...)
	return &openAIGenerator{client: &client, model: model}
}

func (g *openAIGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if g.client == nil {
		return "", &PermanentError{Err: errors.New("openai generator: client is nil")}
	}

	params := responses.ResponseNewParams{
		Model:       g.model,
		Temperature: openai.Float(req.Temperature),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(req.Prompt, responses.EasyInputMessageRoleUser),
			},
		},
	}
	if req.MaxTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Schema != nil {
		name := req.SchemaName
		if name == "" {
			name = "Narrative"
		}
		params.Text = responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Name:        name,
					Schema:      req.Schema,
					Strict:      openai.Bool(true),
					Description: openai.String("Narrative JSON"),
					Type:        "json_schema",
				},
			},
		}
	}

	resp, err := g.client.Responses.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 && apiErr.StatusCode != 429 {
			return "", &PermanentError{Err: err}
		}
		return "", fmt.Errorf("openai responses request failed: %w", err)
	}
	return resp.OutputText(), nil
}
