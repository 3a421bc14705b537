package prompt

import (
	"strings"

	"github.com/wasmchat/edgechat/internal/chaterrors"
	"github.com/wasmchat/edgechat/internal/message"
)

// chatmlTemplate implements ChatML and its tool-augmented sibling
// ChatMLTool: both use <|im_start|>role\n...<|im_end|>\n turns; the tool
// variant additionally injects a <tools>...</tools> JSON block into the
// system turn and documents the <tool_call>{...}</tool_call> response
// syntax, matching spec.md §4.2/§4.3's ChatML family description.
type chatmlTemplate struct {
	withTools bool
}

func (t chatmlTemplate) Capabilities() Capabilities {
	return Capabilities{IsToolVariant: t.withTools}
}

func (t chatmlTemplate) PostProcess(raw string) string {
	return stripSuffixes(raw, "<|im_end|>")
}

const chatmlDefaultSystem = "You are a helpful assistant."

const chatmlToolInstructions = "\n\nYou are provided with function signatures within <tools></tools> XML tags. " +
	"You may call one or more functions to assist with the user query. For each function call, return a json " +
	"object with function name and arguments within <tool_call></tool_call> XML tags:\n<tool_call>\n" +
	`{"name": <function-name>, "arguments": <args-json-object>}` + "\n</tool_call>"

func (t chatmlTemplate) Build(in BuildInput) (BuildOutput, error) {
	if err := requireNonEmpty(in.Messages); err != nil {
		return BuildOutput{}, err
	}

	messages := in.Messages
	sysText, hasSystem := firstSystemText(messages)
	if hasSystem {
		messages = messages[1:]
	} else {
		sysText = chatmlDefaultSystem
	}

	var b strings.Builder
	b.WriteString("<|im_start|>system\n")
	b.WriteString(sysText)
	if t.withTools && len(in.Tools) > 0 {
		b.WriteString(chatmlToolInstructions)
		b.WriteString("\n\n<tools>\n")
		b.WriteString(toolsJSON(in.Tools))
		b.WriteString("\n</tools>")
	}
	b.WriteString("<|im_end|>\n")

	var imageURL string
	for _, m := range messages {
		switch m.Role {
		case message.RoleSystem:
			b.WriteString("<|im_start|>system\n")
			b.WriteString(m.Content)
			b.WriteString("<|im_end|>\n")
		case message.RoleUser:
			text, url, err := linearizeUser(m, Capabilities{}, "")
			if err != nil {
				return BuildOutput{}, err
			}
			if url != "" {
				imageURL = url
			}
			b.WriteString("<|im_start|>user\n")
			b.WriteString(text)
			b.WriteString("<|im_end|>\n")
		case message.RoleAssistant:
			text, err := assistantContentOrErr(m)
			if err != nil {
				return BuildOutput{}, err
			}
			b.WriteString("<|im_start|>assistant\n")
			if text != "" {
				b.WriteString(text)
			}
			for _, tc := range m.ToolCalls {
				b.WriteString("\n<tool_call>\n")
				b.WriteString(`{"name": "`)
				b.WriteString(tc.Name)
				b.WriteString(`", "arguments": `)
				b.WriteString(tc.Arguments)
				b.WriteString("}\n</tool_call>")
			}
			b.WriteString("<|im_end|>\n")
		case message.RoleTool:
			b.WriteString("<|im_start|>user\n<tool_response>\n")
			b.WriteString(m.Content)
			b.WriteString("\n</tool_response><|im_end|>\n")
		default:
			return BuildOutput{}, &chaterrors.UnknownRoleError{Role: string(m.Role)}
		}
	}
	b.WriteString("<|im_start|>assistant\n")

	return BuildOutput{Prompt: b.String(), ImageURL: imageURL}, nil
}

func registerChatML(r *Registry) {
	r.register(ChatML, chatmlTemplate{withTools: false})
	r.register(ChatMLTool, chatmlTemplate{withTools: true})
}
