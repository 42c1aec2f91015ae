package vectorstore

import (
	"context"
	"errors"
	"strings"

	openaisdk "github.com/openai/openai-go"
)

type OpenAIEmbedder struct {
	client *openaisdk.Client
	model  string
}

func NewOpenAIEmbedder(client *openaisdk.Client, model string) (*OpenAIEmbedder, error) {
	if client == nil {
		return nil, errors.New("vectorstore: nil openai client")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = string(openaisdk.EmbeddingModelTextEmbedding3Small)
	}
	return &OpenAIEmbedder{client: client, model: model}, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{OfString: openaisdk.String(text)},
		Model: openaisdk.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("empty embedding response")
	}
	src := resp.Data[0].Embedding
	out := make([]float32, len(src))
	for i, f := range src {
		out[i] = float32(f)
	}
	return out, nil
}
