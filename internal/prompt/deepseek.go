package prompt

import (
	"strings"

	"github.com/wasmchat/edgechat/internal/chaterrors"
	"github.com/wasmchat/edgechat/internal/message"
)

// deepseekTemplate covers DeepseekChat and DeepseekCoder: both fold the
// system turn into a bare preamble (no delimiter pair) and use
// "User:"/"Assistant:" turn markers with an end-of-sentence token closing
// each assistant turn. Both kinds use the same default system preamble
// (deepseekCoderDefault equals deepseekChatDefault).
type deepseekTemplate struct {
	coder bool
}

func (t deepseekTemplate) Capabilities() Capabilities { return Capabilities{} }

func (t deepseekTemplate) PostProcess(raw string) string {
	return stripSuffixes(raw, "<|end▁of▁sentence|>")
}

const deepseekChatDefault = "You are an AI programming assistant, utilizing the Deepseek Coder model, developed by Deepseek Company, and you only answer questions related to computer science. For politically sensitive questions, security and privacy issues, and other non-computer science questions, you will refuse to answer."

const deepseekCoderDefault = deepseekChatDefault

func (t deepseekTemplate) Build(in BuildInput) (BuildOutput, error) {
	if err := requireNonEmpty(in.Messages); err != nil {
		return BuildOutput{}, err
	}

	messages := in.Messages
	sysText, hasSystem := firstSystemText(messages)
	if hasSystem {
		messages = messages[1:]
	} else if t.coder {
		sysText = deepseekCoderDefault
	} else {
		sysText = deepseekChatDefault
	}

	var b strings.Builder
	b.WriteString(sysText)

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
			b.WriteString("\nUser: ")
			b.WriteString(text)
		case message.RoleAssistant:
			text, err := assistantContentOrErr(m)
			if err != nil {
				return BuildOutput{}, err
			}
			b.WriteString("\nAssistant: ")
			b.WriteString(text)
			b.WriteString("<|end▁of▁sentence|>")
		case message.RoleSystem:
			b.WriteString("\n")
			b.WriteString(m.Content)
		case message.RoleTool:
			return BuildOutput{}, chaterrors.Operation("tool messages are not supported by this template", nil)
		default:
			return BuildOutput{}, &chaterrors.UnknownRoleError{Role: string(m.Role)}
		}
	}
	b.WriteString("\nAssistant:")

	return BuildOutput{Prompt: b.String(), ImageURL: imageURL}, nil
}

func registerDeepseek(r *Registry) {
	r.register(DeepseekChat, deepseekTemplate{coder: false})
	r.register(DeepseekCoder, deepseekTemplate{coder: true})
}
