package prompt

import (
	"strings"

	"github.com/wasmchat/edgechat/internal/chaterrors"
	"github.com/wasmchat/edgechat/internal/message"
)

// nemotronTemplate covers NemotronChat and its tool-augmented sibling.
// Both use ChatML-shaped <|im_start|>/<|im_end|> turns; the tool variant's
// extractor (spec.md §4.3) looks for a tag-delimited JSON object between
// "<toolcall>" and "</toolcall>" (no underscore, distinct from ChatML's
// "<tool_call>").
type nemotronTemplate struct {
	withTools bool
}

func (t nemotronTemplate) Capabilities() Capabilities {
	return Capabilities{IsToolVariant: t.withTools}
}

func (t nemotronTemplate) PostProcess(raw string) string {
	return stripSuffixes(raw, "<|im_end|>")
}

func (t nemotronTemplate) Build(in BuildInput) (BuildOutput, error) {
	if err := requireNonEmpty(in.Messages); err != nil {
		return BuildOutput{}, err
	}

	messages := in.Messages
	sysText, hasSystem := firstSystemText(messages)
	if hasSystem {
		messages = messages[1:]
	}

	var b strings.Builder
	if sysText != "" || (t.withTools && len(in.Tools) > 0) {
		b.WriteString("<|im_start|>system\n")
		b.WriteString(sysText)
		if t.withTools && len(in.Tools) > 0 {
			b.WriteString("\n\n<tools>\n")
			b.WriteString(toolsJSON(in.Tools))
			b.WriteString("\n</tools>")
		}
		b.WriteString("<|im_end|>\n")
	}

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
				b.WriteString("<toolcall>\n")
				b.WriteString(`{"name": "`)
				b.WriteString(tc.Name)
				b.WriteString(`", "arguments": `)
				b.WriteString(tc.Arguments)
				b.WriteString("}\n</toolcall>")
			}
			b.WriteString("<|im_end|>\n")
		case message.RoleTool:
			b.WriteString("<|im_start|>tool\n")
			b.WriteString(m.Content)
			b.WriteString("<|im_end|>\n")
		case message.RoleSystem:
			b.WriteString("<|im_start|>system\n")
			b.WriteString(m.Content)
			b.WriteString("<|im_end|>\n")
		default:
			return BuildOutput{}, &chaterrors.UnknownRoleError{Role: string(m.Role)}
		}
	}
	b.WriteString("<|im_start|>assistant\n")

	return BuildOutput{Prompt: b.String(), ImageURL: imageURL}, nil
}

func registerNemotron(r *Registry) {
	r.register(NemotronChat, nemotronTemplate{withTools: false})
	r.register(NemotronTool, nemotronTemplate{withTools: true})
}
