package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/opsportal/internal/gcp"
	"github.com/Lllllllleong/opsportal/internal/models"
)

// emptyOCRText is returned when the model answers without any text.
const emptyOCRText = "No text could be extracted (the model returned an empty response)."

// maxOCRRequestBytes bounds the JSON body; a 4MB image grows by a third once base64 encoded.
const maxOCRRequestBytes = 6 << 20

// TextExtractor turns an image into plain text.
type TextExtractor interface {
	ExtractText(ctx context.Context, mimeType string, image []byte) (string, error)
}

// OCRConfig holds configuration for the OCR service.
type OCRConfig struct {
	ProjectID string
	Region    string
	Model     string
	APIKey    string
}

// OCRFunction extracts text from scanned documents with a Gemini model.
type OCRFunction struct {
	config OCRConfig
	// extractorFor returns the extractor to use for a request carrying apiKey.
	extractorFor func(ctx context.Context, apiKey string) (TextExtractor, func(), error)
}

func loadOCRConfig() OCRConfig {
	return OCRConfig{
		ProjectID: gcp.GetEnv("PROJECT_ID", ""),
		Region:    gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		Model:     gcp.GetEnv("OCR_MODEL", "gemini-2.5-flash"),
		APIKey:    gcp.GetEnv("API_KEY", ""),
	}
}

// NewOCR creates an OCRFunction backed by Vertex AI. The default client is built once;
// requests that bring their own API key get a short-lived client.
func NewOCR(ctx context.Context) (*OCRFunction, error) {
	config := loadOCRConfig()
	if config.ProjectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}

	defaultClient, err := gcp.NewVertexClient(ctx, config.ProjectID, config.Region, config.Model, config.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex client: %w", err)
	}
	defaultExtractor := &vertexExtractor{client: defaultClient}

	f := &OCRFunction{
		config: config,
		extractorFor: func(ctx context.Context, apiKey string) (TextExtractor, func(), error) {
			if apiKey == "" || apiKey == config.APIKey {
				return defaultExtractor, func() {}, nil
			}
			client, err := gcp.NewVertexClient(ctx, config.ProjectID, config.Region, config.Model, apiKey)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to create vertex client: %w", err)
			}
			return &vertexExtractor{client: client}, func() { _ = client.Close() }, nil
		},
	}
	slog.Info("OCR function initialized.", "model", config.Model, "region", config.Region)
	return f, nil
}

// NewOCRWithExtractor creates an OCRFunction that always uses extractor.
func NewOCRWithExtractor(extractor TextExtractor) *OCRFunction {
	return &OCRFunction{
		extractorFor: func(context.Context, string) (TextExtractor, func(), error) {
			return extractor, func() {}, nil
		},
	}
}

// Process decodes the image and runs it through the extractor.
func (f *OCRFunction) Process(ctx context.Context, req *models.OCRRequest) (*models.OCRResponse, error) {
	if req.ImageBase64 == "" || req.MimeType == "" {
		return nil, badRequest("Missing image data.")
	}
	// Data URLs are accepted as pasted from the browser.
	encoded := req.ImageBase64
	if i := strings.Index(encoded, ";base64,"); i >= 0 {
		encoded = encoded[i+len(";base64,"):]
	}
	image, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, badRequest("Image data is not valid base64.")
	}

	logCtx := slog.With("mimeType", req.MimeType, "bytes", len(image))
	extractor, release, err := f.extractorFor(ctx, req.APIKey)
	if err != nil {
		logCtx.Error("Failed to prepare extractor", "error", err)
		return nil, internalError("Configuration Error", err)
	}
	defer release()

	text, err := extractor.ExtractText(ctx, req.MimeType, image)
	if err != nil {
		logCtx.Error("Text extraction failed", "error", err)
		return nil, internalError("Failed to process image.", err)
	}
	if strings.TrimSpace(text) == "" {
		text = emptyOCRText
	}
	logCtx.Info("Text extracted", "chars", len(text))
	return &models.OCRResponse{Text: text}, nil
}

// ServeHTTP handles POST /ocr.
func (f *OCRFunction) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORS(w, "POST,OPTIONS")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "POST")
		return
	}

	var req models.OCRRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxOCRRequestBytes)).Decode(&req); err != nil {
		slog.Warn("Could not decode request body", "error", err)
		writeError(w, badRequest("Bad Request: could not parse JSON"))
		return
	}
	res, err := f.Process(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type vertexExtractor struct {
	client *gcp.VertexClient
}

func (e *vertexExtractor) ExtractText(ctx context.Context, mimeType string, image []byte) (string, error) {
	resp, err := e.client.OCRModel.GenerateContent(ctx,
		genai.Blob{MIMEType: mimeType, Data: image},
		genai.Text(gcp.OCRUserPrompt),
	)
	if err != nil {
		return "", fmt.Errorf("gemini API call failed: %w", err)
	}
	return extractText(resp), nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String()
}
