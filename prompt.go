package quizforge

import (
	"fmt"
	"strings"
)

// BuildPrompt assembles the instruction sent to the model as its only system message.
// knowledge may be empty.
func BuildPrompt(knowledge, description string, numQuestions int) string {
	var sb strings.Builder

	sb.WriteString("You are a quiz generator. Given the following knowledge:\n")
	sb.WriteString(knowledge)
	sb.WriteString("\n\n")

	sb.WriteString("Generate a quiz with the following description:\n")
	sb.WriteString(description)
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("The quiz should have %d questions. Each question should include:\n", numQuestions))
	sb.WriteString("- text: the question text\n")
	sb.WriteString("- previewTime: time in seconds to preview the question (if it overrides the default)\n")
	sb.WriteString("- answerTime: time in seconds for answering the question (if it overrides the default)\n")
	sb.WriteString("- maxPoints: maximum points for a correct answer (if it overrides the default)\n")
	sb.WriteString("- answers: an array of 4 answers, each with an id, a text and a message\n")
	sb.WriteString("- correctAnswerId: the id of the correct answer\n")
	sb.WriteString("- explanation: an explanation for the answer\n\n")

	sb.WriteString("Use the following defaults:\n")
	sb.WriteString(fmt.Sprintf("- previewTime: %d\n", DefaultPreviewTime))
	sb.WriteString(fmt.Sprintf("- answerTime: %d\n", DefaultAnswerTime))
	sb.WriteString(fmt.Sprintf("- maxPoints: %d\n\n", DefaultMaxPoints))

	sb.WriteString("Respond with valid JSON.\n")

	return sb.String()
}
