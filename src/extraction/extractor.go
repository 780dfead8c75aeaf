package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/bherila/k1flow/src/config"
	"github.com/bherila/k1flow/src/logger"
	"github.com/bherila/k1flow/src/parsers/aiextract"
)

var ErrNoAPIKey = errors.New("extraction is not configured: missing API key")

const extractionPrompt = "You are a financial statement parser for PDF bank and brokerage statements.\n\n" +
	"Task:\n" +
	"- Parse ALL transactions in the attached statement.\n" +
	"- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n" +
	"- Output a single JSON object with one key, \"transactions\", whose value is an array of objects.\n\n" +
	"Each transaction object must have these fields:\n" +
	"- \"date\": string, ISO format \"YYYY-MM-DD\"\n" +
	"- \"description\": string\n" +
	"- \"amount\": number (positive for money IN, negative for money OUT)\n" +
	"- \"type\": string or null (e.g. \"buy\", \"sell\", \"dividend\", \"transfer\")\n" +
	"- \"symbol\": string or null (ticker symbol if this is a security transaction)\n" +
	"- \"quantity\": number or null\n" +
	"- \"price\": number or null\n" +
	"- \"memo\": string or null\n\n" +
	"Rules:\n" +
	"- If the statement has separate debit / credit columns, convert to a single signed \"amount\".\n" +
	"- If a field cannot be determined, set it to null.\n" +
	"- Return ONLY valid raw JSON.\n" +
	"- Do NOT wrap the response in code fences.\n" +
	"- Do NOT use ```json or any Markdown.\n"

// Extractor turns statement PDFs into the line-oriented JSON envelope the
// aiextract parser consumes.
type Extractor struct {
	client *genai.Client
	model  string
}

// NewExtractor creates a Gemini-backed extractor from the loaded app
// configuration. It returns ErrNoAPIKey when no key is configured, so the
// rest of the import pipeline can run without the feature.
func NewExtractor(ctx context.Context) (*Extractor, error) {
	if config.Cfg.GeminiAPIKey == "" {
		return nil, ErrNoAPIKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      config.Cfg.GeminiAPIKey,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &Extractor{client: client, model: config.Cfg.GeminiModelName}, nil
}

// ExtractPDF sends the PDF to the model and returns the raw envelope JSON,
// cleaned of Markdown fences. The caller feeds the result through the
// aiextract parser and the normal preview/dedup pipeline.
func (e *Extractor) ExtractPDF(ctx context.Context, pdfBytes []byte) ([]byte, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: extractionPrompt},
				{
					InlineData: &genai.Blob{
						MIMEType: "application/pdf",
						Data:     pdfBytes,
					},
				},
			},
		},
	}

	resp, err := e.client.Models.GenerateContent(ctx, e.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("generating extraction: %w", err)
	}
	rawText := resp.Text()
	if rawText == "" {
		return nil, errors.New("empty response from model")
	}

	clean := aiextract.CleanModelJSON(rawText)

	// Validate before handing the payload downstream so a malformed model
	// response fails here with the raw text logged.
	var envelope aiextract.Envelope
	if err := json.Unmarshal([]byte(clean), &envelope); err != nil {
		logger.FromContext(ctx).Error("model returned invalid envelope JSON", "error", err)
		return nil, fmt.Errorf("unmarshaling model response: %w", err)
	}
	logger.FromContext(ctx).Info("extracted transactions from pdf", "count", len(envelope.Transactions))

	return []byte(clean), nil
}
