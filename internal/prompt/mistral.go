package prompt

import (
	"strings"

	"github.com/wasmchat/edgechat/internal/chaterrors"
	"github.com/wasmchat/edgechat/internal/message"
)

// mistralTemplate covers the five Mistral-family dialects. They share the
// [INST] ... [/INST] turn wrapper but diverge on: whether a system message
// is folded into the first user turn (plain Mistral has no system role) or
// kept standalone (the "small" chat models), and whether tool definitions
// and [TOOL_CALLS] syntax are produced at all.
type mistralTemplate struct {
	kind Kind
	// standaloneSystem: "small" variants emit "[SYSTEM_PROMPT] ... [/SYSTEM_PROMPT]"
	// ahead of the turn loop instead of folding system text into the first
	// user turn.
	standaloneSystem bool
	lite             bool // marks MistralLite; Build does not read it
	tools            bool
	smallToolSyntax  bool // MistralSmallTool's "[TOOL_CALLS]" + array-of-objects shape
}

func (t mistralTemplate) Capabilities() Capabilities {
	return Capabilities{IsToolVariant: t.tools}
}

func (t mistralTemplate) PostProcess(raw string) string {
	return stripSuffixes(raw, "</s>")
}

func (t mistralTemplate) Build(in BuildInput) (BuildOutput, error) {
	if err := requireNonEmpty(in.Messages); err != nil {
		return BuildOutput{}, err
	}

	messages := in.Messages
	sysText, hasSystem := firstSystemText(messages)
	if hasSystem {
		messages = messages[1:]
	}

	var b strings.Builder
	var imageURL string
	toolPreamble := ""
	if t.tools && len(in.Tools) > 0 {
		toolPreamble = "\n\n[AVAILABLE_TOOLS] " + toolsJSON(in.Tools) + "[/AVAILABLE_TOOLS]"
	}

	if t.standaloneSystem && sysText != "" {
		b.WriteString("[SYSTEM_PROMPT] ")
		b.WriteString(sysText)
		b.WriteString("[/SYSTEM_PROMPT]")
	}

	firstUser := true
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
			b.WriteString("[INST] ")
			if !t.standaloneSystem && firstUser && sysText != "" {
				b.WriteString(sysText)
				b.WriteString("\n\n")
			}
			b.WriteString(text)
			if firstUser {
				b.WriteString(toolPreamble)
			}
			b.WriteString(" [/INST]")
			firstUser = false
		case message.RoleAssistant:
			text, err := assistantContentOrErr(m)
			if err != nil {
				return BuildOutput{}, err
			}
			b.WriteString(" ")
			b.WriteString(text)
			if len(m.ToolCalls) > 0 {
				if t.smallToolSyntax {
					b.WriteString("[TOOL_CALLS] [")
					for i, tc := range m.ToolCalls {
						if i > 0 {
							b.WriteString(", ")
						}
						b.WriteString(`{"name": "`)
						b.WriteString(tc.Name)
						b.WriteString(`", "arguments": `)
						b.WriteString(tc.Arguments)
						b.WriteString(`, "id": "`)
						b.WriteString(tc.ID)
						b.WriteString(`"}`)
					}
					b.WriteString("]")
				} else {
					b.WriteString("[TOOL_CALLS] [")
					for i, tc := range m.ToolCalls {
						if i > 0 {
							b.WriteString(", ")
						}
						b.WriteString(`{"name": "`)
						b.WriteString(tc.Name)
						b.WriteString(`", "arguments": `)
						b.WriteString(tc.Arguments)
						b.WriteString("}")
					}
					b.WriteString("]")
				}
			}
			b.WriteString("</s>")
		case message.RoleTool:
			b.WriteString("[TOOL_RESULTS] {\"call_id\": \"")
			b.WriteString(m.ToolCallID)
			b.WriteString("\", \"content\": ")
			b.WriteString(m.Content)
			b.WriteString("}[/TOOL_RESULTS]")
		case message.RoleSystem:
			b.WriteString("[SYSTEM_PROMPT] ")
			b.WriteString(m.Content)
			b.WriteString("[/SYSTEM_PROMPT]")
		default:
			return BuildOutput{}, &chaterrors.UnknownRoleError{Role: string(m.Role)}
		}
	}

	return BuildOutput{Prompt: b.String(), ImageURL: imageURL}, nil
}

func registerMistral(r *Registry) {
	r.register(MistralInstruct, mistralTemplate{kind: MistralInstruct})
	r.register(MistralLite, mistralTemplate{kind: MistralLite, lite: true})
	r.register(MistralTool, mistralTemplate{kind: MistralTool, tools: true})
	r.register(MistralSmallChat, mistralTemplate{kind: MistralSmallChat, standaloneSystem: true})
	r.register(MistralSmallTool, mistralTemplate{kind: MistralSmallTool, standaloneSystem: true, tools: true, smallToolSyntax: true})
}
