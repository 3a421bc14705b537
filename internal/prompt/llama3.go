package prompt

import (
	"strings"

	"github.com/wasmchat/edgechat/internal/chaterrors"
	"github.com/wasmchat/edgechat/internal/message"
)

// llama3ToolTemplate is Llama3Chat's header-delimited turn shape with a
// tool-definition preamble folded into the system turn and a bare top-level
// JSON object as the model's tool-call syntax (spec.md §4.3: Llama3Tool
// parses "a bare top-level JSON object" from the raw generation and renames
// its "parameters" field to "arguments").
type llama3ToolTemplate struct{}

func (t llama3ToolTemplate) Capabilities() Capabilities {
	return Capabilities{IsToolVariant: true}
}

func (t llama3ToolTemplate) PostProcess(raw string) string {
	return stripSuffixes(raw, "<|eot_id|>")
}

func (t llama3ToolTemplate) Build(in BuildInput) (BuildOutput, error) {
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
		b.WriteString("You have access to the following functions. To call a function, respond with a JSON object ")
		b.WriteString("of the form {\"name\": function name, \"parameters\": dictionary of argument name and its value}.\n\n")
		b.WriteString("Available functions:\n")
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
				b.WriteString(`{"name": "`)
				b.WriteString(tc.Name)
				b.WriteString(`", "parameters": `)
				b.WriteString(tc.Arguments)
				b.WriteString("}")
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

func registerLlama3(r *Registry) {
	r.register(Llama3Tool, llama3ToolTemplate{})
}
