package quizforge

import (
	"github.com/sashabaranov/go-openai/jsonschema"
)

// QuizSchemaName is the name of the structured-output schema sent to the model
const QuizSchemaName = "Quiz"

var answerSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"id": {
			Type:        jsonschema.String,
			Description: "The unique identifier for the answer",
		},
		"text": {
			Type:        jsonschema.String,
			Description: "Text of the answer",
		},
		"message": {
			Type:        jsonschema.String,
			Description: "Explanation message for the answer, indicating why it is correct or incorrect.",
		},
	},
	Required:             []string{"id", "text", "message"},
	AdditionalProperties: false,
}

var questionSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"text": {
			Type:        jsonschema.String,
			Description: "The text of the question",
		},
		"previewTime": {
			Type:        jsonschema.Integer,
			Description: "Preview time for the question if it overrides the default",
		},
		"answerTime": {
			Type:        jsonschema.Integer,
			Description: "Answer time for the question if it overrides the default",
		},
		"maxPoints": {
			Type:        jsonschema.Integer,
			Description: "Maximum points for the question if it overrides the default",
		},
		"correctAnswerId": {
			Type:        jsonschema.String,
			Description: "The id of the correct answer",
		},
		"explanation": {
			Type:        jsonschema.String,
			Description: "Explanation of the answer",
		},
		"answers": {
			Type:        jsonschema.Array,
			Description: "List of possible answers for the question",
			Items:       &answerSchema,
		},
	},
	Required:             []string{"text", "previewTime", "answerTime", "maxPoints", "correctAnswerId", "explanation", "answers"},
	AdditionalProperties: false,
}

// QuizSchema is the strict schema the model's reply must satisfy
var QuizSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"title": {
			Type:        jsonschema.String,
			Description: "The title of the quiz",
		},
		"description": {
			Type:        jsonschema.String,
			Description: "A description of the quiz",
		},
		"previewTime": {
			Type:        jsonschema.Integer,
			Description: "The default preview time for the quiz",
		},
		"answerTime": {
			Type:        jsonschema.Integer,
			Description: "The default answer time for the quiz",
		},
		"maxPoints": {
			Type:        jsonschema.Integer,
			Description: "Maximum points available per question",
		},
		"questions": {
			Type:        jsonschema.Array,
			Description: "List of questions in the quiz",
			Items:       &questionSchema,
		},
	},
	Required:             []string{"title", "description", "previewTime", "answerTime", "maxPoints", "questions"},
	AdditionalProperties: false,
}
