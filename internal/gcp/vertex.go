package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"
)

// OCRSystemPrompt sets the model up as a plain text extractor.
const OCRSystemPrompt = "You are a professional OCR tool. You extract text from scanned shipping documents, invoices and payment slips."

// OCRUserPrompt is sent alongside every image.
const OCRUserPrompt = `Extract all of the text contained in this image.

Keep the original layout and line breaks where they matter. Keep Vietnamese diacritics exactly as printed.
Return ONLY the extracted text. Do not add any preamble, explanation or markdown fences.`

// VertexClient holds the generative model used by the OCR function.
type VertexClient struct {
	OCRModel   *genai.GenerativeModel
	baseClient *genai.Client
}

// NewVertexClient creates a client for the given project and region. A non-empty apiKey
// authenticates with that key instead of application default credentials.
func NewVertexClient(ctx context.Context, projectID, region, modelName, apiKey string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}
	if modelName == "" {
		return nil, fmt.Errorf("NewVertexClient: modelName cannot be empty")
	}

	var opts []option.ClientOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	baseClient, err := genai.NewClient(ctx, projectID, region, opts...)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	ocrModel := baseClient.GenerativeModel(modelName)
	ocrModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(OCRSystemPrompt)},
	}
	ocrModel.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.0),
	}

	return &VertexClient{
		OCRModel:   ocrModel,
		baseClient: baseClient,
	}, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
