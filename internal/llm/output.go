package llm

import (
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Gemma-style turn delimiters that leak into string-shaped chat output.
const (
	turnStartModel = "<start_of_turn>model\n"
	turnStart      = "<start_of_turn>"
	turnEnd        = "<end_of_turn>"
)

// output is the raw result of a generation call. Each shape has a single
// extraction rule.
type output interface {
	extract(prompt string) string
}

// chatOutput is the result of a chat-template model. Either messages holds
// the structured conversation or text holds a flattened transcript.
type chatOutput struct {
	messages []openai.ChatCompletionMessage
	text     string
}

func newChatOutput(prompt []openai.ChatCompletionMessage, reply openai.ChatCompletionMessage) chatOutput {
	if strings.Contains(reply.Content, turnStart) {
		return chatOutput{text: reply.Content}
	}
	msgs := make([]openai.ChatCompletionMessage, 0, len(prompt)+1)
	msgs = append(msgs, prompt...)
	msgs = append(msgs, reply)
	return chatOutput{messages: msgs}
}

func (o chatOutput) extract(prompt string) string {
	if len(o.messages) > 0 {
		last := o.messages[len(o.messages)-1]
		if last.Role != openai.ChatMessageRoleAssistant {
			return ""
		}
		return strings.TrimSpace(last.Content)
	}

	text := o.text
	if i := strings.Index(text, prompt); i >= 0 {
		text = text[i+len(prompt):]
	}
	if i := strings.LastIndex(text, turnStartModel); i >= 0 {
		text = text[i+len(turnStartModel):]
	}
	text = strings.ReplaceAll(text, turnEnd, "")
	text = strings.ReplaceAll(text, turnStart, "")
	return strings.TrimSpace(text)
}

// plainOutput is the echoed continuation of a plain-text model.
type plainOutput struct {
	text string
}

func (o plainOutput) extract(prompt string) string {
	text := strings.TrimSpace(o.text)
	text = strings.TrimPrefix(text, strings.TrimSpace(prompt))
	return strings.TrimSpace(text)
}
