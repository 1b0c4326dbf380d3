package flashcards

import (
	"github.com/google/jsonschema-go/jsonschema"
)

// SchemaName names the structured output requested from the provider.
const SchemaName = "flashcard_proposals"

const systemPrompt = `You generate flashcard proposals from the text supplied by the user.
Return exactly 3 proposals. Each proposal has a "front" with a short question or term (at most 200 characters)
and a "back" with the answer or explanation (at most 500 characters).
Write the proposals in the language of the source text and do not add any text outside the JSON document.`

// ProposalSchema is the JSON Schema sent with every generation request:
// {"proposals": [{front, back}, x3]} with no additional properties anywhere.
func ProposalSchema() *jsonschema.Schema {
	count := ProposalCount
	return &jsonschema.Schema{
		Type:                 "object",
		Required:             []string{"proposals"},
		AdditionalProperties: falseSchema(),
		Properties: map[string]*jsonschema.Schema{
			"proposals": {
				Type:     "array",
				MinItems: &count,
				MaxItems: &count,
				Items: &jsonschema.Schema{
					Type:                 "object",
					Required:             []string{"front", "back"},
					AdditionalProperties: falseSchema(),
					Properties: map[string]*jsonschema.Schema{
						"front": {Type: "string", Description: "Question or term shown on the front of the card."},
						"back":  {Type: "string", Description: "Answer shown on the back of the card."},
					},
				},
			},
		},
	}
}

// falseSchema marshals as the boolean schema false.
func falseSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Not: &jsonschema.Schema{}}
}
