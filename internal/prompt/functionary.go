package prompt

import (
	"strings"

	"github.com/wasmchat/edgechat/internal/chaterrors"
	"github.com/wasmchat/edgechat/internal/message"
)

// functionaryTemplate covers FunctionaryV31 and FunctionaryV32. Both wrap
// turns in Llama3-style headers, but the two versions disagree on tool-call
// syntax: V31 wraps each call in "<function=name>{args}</function>" tags,
// V32 emits a bare ">>>name\n{args}" line. The extractor (spec.md §4.3)
// recovers them with a matching per-version regex, since the tool name
// lives outside the JSON payload either way.
type functionaryTemplate struct {
	v32 bool
}

func (t functionaryTemplate) Capabilities() Capabilities {
	return Capabilities{IsToolVariant: true}
}

func (t functionaryTemplate) PostProcess(raw string) string {
	return stripSuffixes(raw, "<|eot_id|>")
}

func (t functionaryTemplate) Build(in BuildInput) (BuildOutput, error) {
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
		b.WriteString("You have access to the following functions:\n\n")
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
				if t.v32 {
					b.WriteString(">>>")
					b.WriteString(tc.Name)
					b.WriteString("\n")
					b.WriteString(tc.Arguments)
				} else {
					b.WriteString("<function=")
					b.WriteString(tc.Name)
					b.WriteString(">")
					b.WriteString(tc.Arguments)
					b.WriteString("</function>")
				}
			}
			b.WriteString("<|eot_id|>")
		case message.RoleTool:
			b.WriteString("<|start_header_id|>tool<|end_header_id|>\n\nname=")
			b.WriteString(m.Name)
			b.WriteString("\n")
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

func registerFunctionary(r *Registry) {
	r.register(FunctionaryV31, functionaryTemplate{v32: false})
	r.register(FunctionaryV32, functionaryTemplate{v32: true})
}
