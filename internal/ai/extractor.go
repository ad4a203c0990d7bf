// Package ai extracts structured invoice data from bill documents using
// the OpenAI Responses API with a strict JSON schema.
package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
	"github.com/openai/openai-go/shared/constant"
	"github.com/rs/zerolog"

	"billflow/internal/core"
)

// Extractor calls the vision model to read bill documents. Satisfies
// core.Extractor.
type Extractor struct {
	client *openai.Client
	model  shared.ChatModel
	log    zerolog.Logger
}

// NewExtractor builds an Extractor. model may be empty to use the default.
func NewExtractor(apiKey, model string, log zerolog.Logger) *Extractor {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	m := shared.ChatModelGPT4o
	if model != "" {
		m = shared.ChatModel(model)
	}
	return &Extractor{client: &client, model: m, log: log.With().Str("component", "extractor").Logger()}
}

const extractionPrompt = `You are an expert accountant reading an Indian vendor bill.
Extract the bill into the provided JSON schema.
Rules:
1. Copy the invoice number, date, and vendor name exactly as printed.
2. List every line item in printed order.
3. Report IGST, CGST, and SGST totals separately. A bill carries either IGST or CGST+SGST, never both.
4. Amounts are plain numbers without currency symbols or thousands separators.
5. Use 0 or an empty string for anything the bill does not show.`

// ExtractInvoice reads the document and returns the structured extraction.
// A positive page narrows the model's attention to that page.
func (e *Extractor) ExtractInvoice(ctx context.Context, up core.FileUpload, page int) (*core.ExtractedInvoice, error) {
	prompt := extractionPrompt
	if page > 0 {
		prompt += fmt.Sprintf("\n6. The document holds several bills, one per page. Extract ONLY the bill on page %d.", page)
	}

	schemaMap, err := invoiceSchema()
	if err != nil {
		return nil, &core.AnalysisError{Op: "schema", Err: err, Transient: false}
	}

	content := responses.ResponseInputMessageContentListParam{
		responses.ResponseInputContentUnionParam{
			OfInputText: &responses.ResponseInputTextParam{Text: prompt},
		},
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", up.MimeType, base64.StdEncoding.EncodeToString(up.Data))
	if up.MimeType == "application/pdf" {
		content = append(content, responses.ResponseInputContentUnionParam{
			OfInputFile: &responses.ResponseInputFileParam{
				FileData: param.NewOpt(dataURL),
				Filename: param.NewOpt(up.Filename),
			},
		})
	} else {
		content = append(content, responses.ResponseInputContentUnionParam{
			OfInputImage: &responses.ResponseInputImageParam{
				ImageURL: param.NewOpt(dataURL),
				Detail:   responses.ResponseInputImageDetailAuto,
			},
		})
	}

	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(e.model),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: responses.ResponseInputParam{
				responses.ResponseInputItemUnionParam{
					OfMessage: &responses.EasyInputMessageParam{
						Role:    responses.EasyInputMessageRoleUser,
						Content: responses.EasyInputMessageContentUnionParam{OfInputItemContentList: content},
					},
				},
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Type:        constant.JSONSchema("json_schema"),
					Name:        "invoice_extraction",
					Strict:      param.NewOpt(true),
					Schema:      schemaMap,
					Description: param.NewOpt("Structured data extracted from a vendor or expense bill"),
				},
			},
		},
	}

	resp, err := e.client.Responses.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}
	out := resp.OutputText()
	if out == "" {
		return nil, &core.AnalysisError{Op: "extract", Err: errors.New("empty response content"), Transient: true}
	}
	var inv core.ExtractedInvoice
	if err := json.Unmarshal([]byte(out), &inv); err != nil {
		return nil, &core.AnalysisError{Op: "parse", Err: err, Transient: false}
	}
	e.log.Debug().Str("vendor", inv.VendorName).Str("bill_no", inv.InvoiceNumber).
		Int("items", len(inv.Items)).Msg("extraction complete")
	return &inv, nil
}

// classify sorts upstream failures into transient and permanent ones.
// Rate limits and server errors are worth retrying; bad credentials and
// malformed requests are not. Anything without a status code is a network
// failure and counts as transient.
func classify(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		transient := apierr.StatusCode == http.StatusTooManyRequests || apierr.StatusCode >= 500
		return &core.AnalysisError{Op: "extract", Err: err, Transient: transient}
	}
	return &core.AnalysisError{Op: "extract", Err: err, Transient: true}
}

func invoiceSchema() (map[string]any, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v core.ExtractedInvoice
	raw, err := json.Marshal(reflector.Reflect(v))
	if err != nil {
		return nil, err
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(raw, &schemaMap); err != nil {
		return nil, err
	}
	return schemaMap, nil
}
