package classifier

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"text/template"

	"github.com/m-mizutani/dashchat/pkg/adapter"
	"github.com/m-mizutani/dashchat/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// ErrInvalidIntent is returned when the model answers with an intent that
// does not exist.
var ErrInvalidIntent = goerr.New("invalid intent from gemini")

//go:embed prompt/classify.md
var classifyPromptRaw string

var classifyPromptTmpl = template.Must(template.New("classify").Parse(classifyPromptRaw))

// maxPromptMessages bounds how much conversation is sent with a query.
const maxPromptMessages = 4

// Gemini classifies with a structured-output LLM call.
type Gemini struct {
	gemini adapter.Gemini
}

func NewGemini(gemini adapter.Gemini) *Gemini {
	return &Gemini{gemini: gemini}
}

func (g *Gemini) Classify(ctx context.Context, query string, convCtx *model.ConversationContext) (*model.IntentResult, error) {
	params := map[string]any{"Query": query}
	if convCtx != nil {
		params["Merchant"] = convCtx.MerchantName
		params["LastIntent"] = string(convCtx.LastIntent)
		msgs := convCtx.Messages
		if len(msgs) > maxPromptMessages {
			msgs = msgs[len(msgs)-maxPromptMessages:]
		}
		params["Messages"] = msgs
	}

	var buf bytes.Buffer
	if err := classifyPromptTmpl.Execute(&buf, params); err != nil {
		return nil, goerr.Wrap(err, "failed to execute classify prompt template")
	}

	intents := make([]string, 0, len(model.Intents))
	for _, i := range model.Intents {
		intents = append(intents, string(i))
	}

	temperature := float32(0)
	thinkingBudget := int32(0)
	config := &genai.GenerateContentConfig{
		Temperature:      &temperature,
		ResponseMIMEType: "application/json",
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  &thinkingBudget,
		},
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"intent": {
					Type:        genai.TypeString,
					Description: "Intent of the question",
					Enum:        intents,
				},
				"confidence": {
					Type:        genai.TypeNumber,
					Description: "Confidence between 0 and 1",
				},
				"from_context": {
					Type:        genai.TypeBoolean,
					Description: "True when the intent follows from the conversation, not the question alone",
				},
			},
			Required: []string{"intent", "confidence"},
		},
	}

	contents := []*genai.Content{genai.NewContentFromText(buf.String(), genai.RoleUser)}
	resp, err := g.gemini.GenerateContent(ctx, contents, config)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to classify intent")
	}

	rawJSON, err := adapter.ResponseText(resp)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to classify intent")
	}

	var out struct {
		Intent      string  `json:"intent"`
		Confidence  float64 `json:"confidence"`
		FromContext bool    `json:"from_context"`
	}
	if err := json.Unmarshal([]byte(rawJSON), &out); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal classification JSON", goerr.V("json", rawJSON))
	}

	intent := model.Intent(out.Intent)
	if !intent.Valid() {
		return nil, goerr.Wrap(ErrInvalidIntent, "unknown intent", goerr.V("intent", out.Intent))
	}
	result := model.NewIntentResult(intent, out.Confidence)
	result.FromContext = out.FromContext
	return result, nil
}
