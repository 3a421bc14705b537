package prompt

import (
	"strings"

	"github.com/wasmchat/edgechat/internal/chaterrors"
	"github.com/wasmchat/edgechat/internal/message"
)

// exaoneTemplate covers Exaone and its reasoning sibling ExaoneDeep.
// ExaoneDeep strips any "<thought>...</thought>" block from a prior
// assistant turn before re-emitting it (keeping only the text after the
// last closing tag) and opens its own turn with "<thought>\n" so the model
// continues directly into a reasoning trace; plain Exaone does neither.
type exaoneTemplate struct {
	deep bool
}

func (t exaoneTemplate) Capabilities() Capabilities { return Capabilities{} }

func (t exaoneTemplate) PostProcess(raw string) string {
	return stripSuffixes(raw, "[|endofturn|]")
}

const exaoneDefaultSystem = "You are a helpful AI assistant. Answer questions as concisely and accurately as possible."

func (t exaoneTemplate) Build(in BuildInput) (BuildOutput, error) {
	if err := requireNonEmpty(in.Messages); err != nil {
		return BuildOutput{}, err
	}

	messages := in.Messages
	sysText, hasSystem := firstSystemText(messages)
	if hasSystem {
		messages = messages[1:]
	} else {
		sysText = exaoneDefaultSystem
	}

	var b strings.Builder
	b.WriteString("[|system|]")
	b.WriteString(sysText)
	b.WriteString("[|endofturn|]\n")

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
			b.WriteString("[|user|]")
			b.WriteString(text)
			b.WriteString("\n")
		case message.RoleAssistant:
			text, err := assistantContentOrErr(m)
			if err != nil {
				return BuildOutput{}, err
			}
			if t.deep {
				text = removeThoughtTags(text)
			}
			b.WriteString("[|assistant|]")
			b.WriteString(text)
			b.WriteString("[|endofturn|]\n")
		case message.RoleSystem:
			b.WriteString("[|system|]")
			b.WriteString(m.Content)
			b.WriteString("[|endofturn|]\n")
		case message.RoleTool:
			return BuildOutput{}, chaterrors.Operation("tool messages are not supported by this template", nil)
		default:
			return BuildOutput{}, &chaterrors.UnknownRoleError{Role: string(m.Role)}
		}
	}

	if t.deep {
		b.WriteString("\n[|assistant|]<thought>\n")
	} else {
		b.WriteString("\n[|assistant|]")
	}

	return BuildOutput{Prompt: b.String(), ImageURL: imageURL}, nil
}

// removeThoughtTags keeps only the text after the last "</thought>" in a
// prior assistant turn, trimmed of surrounding whitespace. A turn with no
// closing tag is passed through unchanged.
func removeThoughtTags(text string) string {
	idx := strings.LastIndex(text, "</thought>")
	if idx < 0 {
		return text
	}
	return strings.TrimSpace(text[idx+len("</thought>"):])
}

func registerExaone(r *Registry) {
	r.register(Exaone, exaoneTemplate{deep: false})
	r.register(ExaoneDeep, exaoneTemplate{deep: true})
}
