package prompt

import (
	"strings"

	"github.com/wasmchat/edgechat/internal/chaterrors"
	"github.com/wasmchat/edgechat/internal/message"
)

// groqLlama3ToolTemplate is Groq's tool-augmented Llama3 dialect: like
// ChatMLTool it wraps tool calls in a tagged block rather than Llama3Tool's
// bare object, but keeps Llama3's header-delimited turn syntax (spec.md
// §4.3: GroqLlama3Tool extracts tag-delimited JSON between
// "<tool_call>" and "</tool_call>").
type groqLlama3ToolTemplate struct{}

func (t groqLlama3ToolTemplate) Capabilities() Capabilities {
	return Capabilities{IsToolVariant: true}
}

func (t groqLlama3ToolTemplate) PostProcess(raw string) string {
	return stripSuffixes(raw, "<|eot_id|>")
}

func (t groqLlama3ToolTemplate) Build(in BuildInput) (BuildOutput, error) {
	if err := requireNonEmpty(in.Messages); err != nil {
		return BuildOutput{}, err
	}

	messages := in.Messages
	sysText, hasSystem := firstSystemText(messages)
	if hasSystem {
		messages = messages[1:]
	}

	var b strings.Builder
	b.WriteString("<|start_header_id|>system<|end_header_id|>\n\n")
	if sysText != "" {
		b.WriteString(sysText)
		b.WriteString("\n\n")
	}
	if len(in.Tools) > 0 {
		b.WriteString("You have access to the following tools. Use <tool_call></tool_call> tags to call them:\n")
		b.WriteString(toolsJSON(in.Tools))
	}
	b.WriteString("<|eot_id|>")

	var imageURL string
	for _, m := range messages {
		switch m.Role {
		case message.RoleUser:
			text, url, err := linearizeUser(m, Capabilities{}, "")
			if err != nil {
				return BuildOutput{}, err
			}
			if url != "" {
				imageURL = url
			}
			b.WriteString("<|start_header_id|>user<|end_header_id|>\n\n")
			b.WriteString(text)
			b.WriteString("<|eot_id|>")
		case message.RoleAssistant:
			text, err := assistantContentOrErr(m)
			if err != nil {
				return BuildOutput{}, err
			}
			b.WriteString("<|start_header_id|>assistant<|end_header_id|>\n\n")
			if text != "" {
				b.WriteString(text)
			}
			for _, tc := range m.ToolCalls {
				b.WriteString("<tool_call>\n")
				b.WriteString(`{"name": "`)
				b.WriteString(tc.Name)
				b.WriteString(`", "arguments": `)
				b.WriteString(tc.Arguments)
				b.WriteString("}\n</tool_call>")
			}
			b.WriteString("<|eot_id|>")
		case message.RoleTool:
			b.WriteString("<|start_header_id|>ipython<|end_header_id|>\n\n")
			b.WriteString(m.Content)
			b.WriteString("<|eot_id|>")
		case message.RoleSystem:
			b.WriteString("<|start_header_id|>system<|end_header_id|>\n\n")
			b.WriteString(m.Content)
			b.WriteString("<|eot_id|>")
		default:
			return BuildOutput{}, &chaterrors.UnknownRoleError{Role: string(m.Role)}
		}
	}
	b.WriteString("<|start_header_id|>assistant<|end_header_id|>\n\n")

	return BuildOutput{Prompt: b.String(), ImageURL: imageURL}, nil
}

func registerGroqLlama3(r *Registry) {
	r.register(GroqLlama3Tool, groqLlama3ToolTemplate{})
}
