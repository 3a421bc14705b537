package prompt

import (
	"strings"

	"github.com/wasmchat/edgechat/internal/chaterrors"
	"github.com/wasmchat/edgechat/internal/message"
)

// internLM2ToolTemplate models InternLM2's "interpreter"/"plugin" turn
// roles: tool results come back tagged with an environment role, and an
// assistant turn may interleave free text with a tool call introduced by
// an action sentinel. Extraction (internal/toolcall) later splits on that
// same sentinel (spec.md §4.3).
type internLM2ToolTemplate struct{}

const internLM2ActionSentinel = "<|action_start|><|plugin|>"
const internLM2ActionEnd = "<|action_end|>"

func (t internLM2ToolTemplate) Capabilities() Capabilities {
	return Capabilities{IsToolVariant: true}
}

func (t internLM2ToolTemplate) PostProcess(raw string) string {
	return stripSuffixes(raw, "<|im_end|>")
}

func (t internLM2ToolTemplate) Build(in BuildInput) (BuildOutput, error) {
	if err := requireNonEmpty(in.Messages); err != nil {
		return BuildOutput{}, err
	}

	messages := in.Messages
	sysText, hasSystem := firstSystemText(messages)
	if !hasSystem {
		sysText = "You are InternLM2-Chat, a harmless AI assistant."
	} else {
		messages = messages[1:]
	}

	var b strings.Builder
	b.WriteString("<|im_start|>system\n")
	b.WriteString(sysText)
	if len(in.Tools) > 0 {
		b.WriteString("\n\nYou have access to the following plugins:\n")
		b.WriteString(toolsJSON(in.Tools))
	}
	b.WriteString("<|im_end|>\n")

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
				b.WriteString(internLM2ActionSentinel)
				b.WriteString(`{"name": "`)
				b.WriteString(tc.Name)
				b.WriteString(`", "parameters": `)
				b.WriteString(tc.Arguments)
				b.WriteString("}")
				b.WriteString(internLM2ActionEnd)
			}
			b.WriteString("<|im_end|>\n")
		case message.RoleTool:
			b.WriteString("<|im_start|>environment name=<|plugin|>\n")
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

func registerInternLM2(r *Registry) {
	r.register(InternLM2Tool, internLM2ToolTemplate{})
}
