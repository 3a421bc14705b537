package prompt

import (
	"strings"

	"github.com/wasmchat/edgechat/internal/chaterrors"
	"github.com/wasmchat/edgechat/internal/message"
)

// genericConfig parameterizes the delimited-turn template shape shared by
// most of the catalog: a fixed system preamble, then prefix+text+suffix per
// turn, ending with an open assistant marker the model continues from.
// Bespoke builders exist only where a family's algorithm genuinely diverges
// from this shape (tool-call syntax, thought-tag stripping, interleaved
// content parsing, and so on).
type genericConfig struct {
	kind Kind

	systemPrefix, systemSuffix string
	userPrefix, userSuffix     string
	assistantPrefix            string
	assistantSuffix            string
	// assistantOpen is appended once at the very end, open for the model
	// to continue (no matching suffix is written by the builder).
	assistantOpen string

	defaultSystemPrompt string
	// noSystemSupport templates (Phi2Chat) write no system preamble, neither
	// the default nor a leading system message; a system message in the
	// list is still written by the turn loop.
	noSystemSupport bool

	imageSentinel string
	caps          Capabilities

	// postProcessMarkers are end-of-turn / role markers to strip from a
	// raw generation (spec.md §4.9).
	postProcessMarkers []string
	// postProcessOverride replaces the default suffix-stripping PostProcess
	// entirely, for families whose cleanup rule isn't a plain suffix trim
	// (Qwen2vl's leading-colon drop, SolarInstruct's "### Answer:" prefix
	// normalization, Baichuan2's trailing-":" strip).
	postProcessOverride func(raw string) string
}

type genericTemplate struct {
	cfg genericConfig
}

func (t genericTemplate) Capabilities() Capabilities { return t.cfg.caps }

func (t genericTemplate) PostProcess(raw string) string {
	if t.cfg.postProcessOverride != nil {
		return t.cfg.postProcessOverride(raw)
	}
	return stripSuffixes(raw, t.cfg.postProcessMarkers...)
}

// postProcessQwen2vl drops any leading run of ":" (with surrounding
// whitespace) before the usual trailing "<|im_end|>" strip.
func postProcessQwen2vl(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, ":") {
		s = strings.TrimSpace(strings.TrimLeft(s, ":"))
	}
	if strings.HasSuffix(s, "<|im_end|>") {
		s = strings.TrimSpace(strings.TrimSuffix(s, "<|im_end|>"))
	}
	return s
}

// postProcessSolarInstruct strips the leading "###" and normalizes an
// "Answer:\n" prefix into "Answer: ", leaving anything else untouched.
func postProcessSolarInstruct(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "### Answer") {
		return s
	}
	s = strings.TrimSpace(strings.TrimPrefix(s, "###"))
	if strings.HasPrefix(s, "Answer:\n") {
		return strings.ReplaceAll(s, "Answer:\n", "Answer: ")
	}
	return s
}

// postProcessBaichuan2 strips a trailing run of ":" characters when the raw
// output contains one at all, else just trims whitespace.
func postProcessBaichuan2(raw string) string {
	if strings.Contains(raw, ":") {
		return strings.TrimSpace(strings.TrimRight(raw, ":"))
	}
	return strings.TrimSpace(raw)
}

func (t genericTemplate) Build(in BuildInput) (BuildOutput, error) {
	cfg := t.cfg
	if err := requireNonEmpty(in.Messages); err != nil {
		return BuildOutput{}, err
	}

	var b strings.Builder
	var imageURL string

	messages := in.Messages
	if !cfg.noSystemSupport {
		sysText, hasSystem := firstSystemText(messages)
		if !hasSystem {
			sysText = cfg.defaultSystemPrompt
		} else {
			messages = messages[1:]
		}
		if sysText != "" {
			b.WriteString(cfg.systemPrefix)
			b.WriteString(sysText)
			b.WriteString(cfg.systemSuffix)
		}
	}

	for _, m := range messages {
		switch m.Role {
		case message.RoleSystem:
			// A system message still in the list (any but the first, or
			// every one when noSystemSupport is set) is written in place
			// with the system delimiters.
			b.WriteString(cfg.systemPrefix)
			b.WriteString(m.Content)
			b.WriteString(cfg.systemSuffix)
		case message.RoleUser:
			text, url, err := linearizeUser(m, cfg.caps, cfg.imageSentinel)
			if err != nil {
				return BuildOutput{}, err
			}
			if url != "" {
				imageURL = url
			}
			b.WriteString(cfg.userPrefix)
			b.WriteString(text)
			b.WriteString(cfg.userSuffix)
		case message.RoleAssistant:
			text, err := assistantContentOrErr(m)
			if err != nil {
				return BuildOutput{}, err
			}
			b.WriteString(cfg.assistantPrefix)
			b.WriteString(text)
			b.WriteString(cfg.assistantSuffix)
		case message.RoleTool:
			// None of the generic-shape families support tool turns; a
			// tool message here means the caller picked the wrong kind.
			return BuildOutput{}, chaterrors.Operation("tool messages are not supported by this template", nil)
		default:
			return BuildOutput{}, &chaterrors.UnknownRoleError{Role: string(m.Role)}
		}
	}

	b.WriteString(cfg.assistantOpen)
	return BuildOutput{Prompt: b.String(), ImageURL: imageURL}, nil
}

func registerGeneric(r *Registry) {
	families := []genericConfig{
		{
			kind:                Llama2Chat,
			systemPrefix:        "[INST] <<SYS>>\n",
			systemSuffix:        "\n<</SYS>>\n\n",
			userPrefix:          "",
			userSuffix:          " [/INST]",
			assistantPrefix:     " ",
			assistantSuffix:     " </s><s>[INST] ",
			assistantOpen:       "",
			defaultSystemPrompt: "",
			postProcessMarkers:  []string{"</s>"},
		},
		{
			kind:                Llama3Chat,
			systemPrefix:        "<|start_header_id|>system<|end_header_id|>\n\n",
			systemSuffix:        "<|eot_id|>",
			userPrefix:          "<|start_header_id|>user<|end_header_id|>\n\n",
			userSuffix:          "<|eot_id|>",
			assistantPrefix:     "<|start_header_id|>assistant<|end_header_id|>\n\n",
			assistantSuffix:     "<|eot_id|>",
			assistantOpen:       "<|start_header_id|>assistant<|end_header_id|>\n\n",
			defaultSystemPrompt: "",
			postProcessMarkers:  []string{"<|eot_id|>"},
		},
		{
			kind:                Phi2Chat,
			systemPrefix:        "",
			systemSuffix:        "",
			userPrefix:          "Instruct: ",
			userSuffix:          "\n",
			assistantPrefix:     "Output: ",
			assistantSuffix:     "\n",
			assistantOpen:       "Output:",
			noSystemSupport:     true,
		},
		{
			kind:                Phi3Chat,
			systemPrefix:        "<|system|>\n",
			systemSuffix:        "<|end|>\n",
			userPrefix:          "<|user|>\n",
			userSuffix:          "<|end|>\n",
			assistantPrefix:     "<|assistant|>\n",
			assistantSuffix:     "<|end|>\n",
			assistantOpen:       "<|assistant|>\n",
			postProcessMarkers:  []string{"<|end|>"},
		},
		{
			kind:                Phi4Chat,
			systemPrefix:        "<|im_start|>system<|im_sep|>\n",
			systemSuffix:        "<|im_end|>\n",
			userPrefix:          "<|im_start|>user<|im_sep|>\n",
			userSuffix:          "<|im_end|>\n",
			assistantPrefix:     "<|im_start|>assistant<|im_sep|>\n",
			assistantSuffix:     "<|im_end|>\n",
			assistantOpen:       "<|im_start|>assistant<|im_sep|>\n",
			postProcessMarkers:  []string{"<|im_end|>"},
		},
		{
			kind:                Zephyr,
			systemPrefix:        "<|system|>\n",
			systemSuffix:        "</s>\n",
			userPrefix:          "<|user|>\n",
			userSuffix:          "</s>\n",
			assistantPrefix:     "<|assistant|>\n",
			assistantSuffix:     "</s>\n",
			assistantOpen:       "<|assistant|>\n",
			defaultSystemPrompt: "",
			postProcessMarkers:  []string{"</s>"},
		},
		{
			kind:                StableLMZephyr,
			systemPrefix:        "<|system|>\n",
			systemSuffix:        "<|endoftext|>\n",
			userPrefix:          "<|user|>\n",
			userSuffix:          "<|endoftext|>\n",
			assistantPrefix:     "<|assistant|>\n",
			assistantSuffix:     "<|endoftext|>\n",
			assistantOpen:       "<|assistant|>\n",
			postProcessMarkers:  []string{"<|endoftext|>"},
		},
		{
			kind:                HumanAssistant,
			systemPrefix:        "",
			systemSuffix:        "\n",
			userPrefix:          "Human: ",
			userSuffix:          "\n",
			assistantPrefix:     "Assistant: ",
			assistantSuffix:     "\n",
			assistantOpen:       "Assistant:",
			defaultSystemPrompt: "",
		},
		{
			kind:                OpenChat,
			systemPrefix:        "",
			systemSuffix:        "<|end_of_turn|>",
			userPrefix:          "GPT4 Correct User: ",
			userSuffix:          "<|end_of_turn|>",
			assistantPrefix:     "GPT4 Correct Assistant: ",
			assistantSuffix:     "<|end_of_turn|>",
			assistantOpen:       "GPT4 Correct Assistant:",
			postProcessMarkers:  []string{"<|end_of_turn|>"},
		},
		{
			kind:                SolarInstruct,
			systemPrefix:        "",
			systemSuffix:        "\n\n",
			userPrefix:          "### User:\n",
			userSuffix:          "\n\n",
			assistantPrefix:     "### Assistant:\n",
			assistantSuffix:     "\n\n",
			assistantOpen:       "### Assistant:\n",
			defaultSystemPrompt: "",
			postProcessOverride: postProcessSolarInstruct,
		},
		{
			kind:                WizardCoder,
			systemPrefix:        "",
			systemSuffix:        "\n\n",
			userPrefix:          "### Instruction:\n",
			userSuffix:          "\n\n",
			assistantPrefix:     "### Response:\n",
			assistantSuffix:     "\n\n",
			assistantOpen:       "### Response:\n",
			defaultSystemPrompt: "",
		},
		{
			kind:                MoxinChat,
			systemPrefix:        "<s>",
			systemSuffix:        "\n",
			userPrefix:          "[INST] ",
			userSuffix:          " [/INST]",
			assistantPrefix:     " ",
			assistantSuffix:     "</s>",
			assistantOpen:       "",
			defaultSystemPrompt: "",
			postProcessMarkers:  []string{"</s>"},
		},
		{
			kind:                Falcon3,
			systemPrefix:        "<|system|>\n",
			systemSuffix:        "\n",
			userPrefix:          "<|user|>\n",
			userSuffix:          "\n",
			assistantPrefix:     "<|assistant|>\n",
			assistantSuffix:     "\n",
			assistantOpen:       "<|assistant|>\n",
			defaultSystemPrompt: "",
		},
		{
			kind:                Megrez,
			systemPrefix:        "<|role_start|>system<|role_end|>",
			systemSuffix:        "<|turn_end|>",
			userPrefix:          "<|role_start|>user<|role_end|>",
			userSuffix:          "<|turn_end|>",
			assistantPrefix:     "<|role_start|>assistant<|role_end|>",
			assistantSuffix:     "<|turn_end|>",
			assistantOpen:       "<|role_start|>assistant<|role_end|>",
			postProcessMarkers:  []string{"<|turn_end|>"},
		},
		{
			kind:                GemmaInstruct,
			systemPrefix:        "",
			systemSuffix:        "\n\n",
			userPrefix:          "<start_of_turn>user\n",
			userSuffix:          "<end_of_turn>\n",
			assistantPrefix:     "<start_of_turn>model\n",
			assistantSuffix:     "<end_of_turn>\n",
			assistantOpen:       "<start_of_turn>model\n",
			noSystemSupport:     false,
			postProcessMarkers:  []string{"<end_of_turn>"},
		},
		{
			kind:                Baichuan2,
			systemPrefix:        "",
			systemSuffix:        "",
			userPrefix:          "<reserved_106>",
			userSuffix:          "",
			assistantPrefix:     "<reserved_107>",
			assistantSuffix:     "",
			assistantOpen:       "<reserved_107>",
			defaultSystemPrompt: "",
			postProcessOverride: postProcessBaichuan2,
		},
		{
			kind:                IntelNeural,
			systemPrefix:        "### System:\n",
			systemSuffix:        "\n",
			userPrefix:          "### User:\n",
			userSuffix:          "\n",
			assistantPrefix:     "### Assistant:\n",
			assistantSuffix:     "\n",
			assistantOpen:       "### Assistant:\n",
			defaultSystemPrompt: "",
		},
		{
			kind:                BreezeInstruct,
			systemPrefix:        "",
			systemSuffix:        " ",
			userPrefix:          "[INST] ",
			userSuffix:          " [/INST] ",
			assistantPrefix:     "",
			assistantSuffix:     " </s>",
			assistantOpen:       "",
			defaultSystemPrompt: "You are a helpful AI assistant built by MediaTek Research. The user you are helping speaks Traditional Chinese and comes from Taiwan.",
			postProcessMarkers:  []string{"</s>"},
		},
		{
			kind:                CodeLlama,
			systemPrefix:        "[INST] <<SYS>>\n",
			systemSuffix:        "\n<</SYS>>\n\n",
			userPrefix:          "",
			userSuffix:          " [/INST]",
			assistantPrefix:     " ",
			assistantSuffix:     " </s><s>[INST] ",
			assistantOpen:       "",
			postProcessMarkers:  []string{"</s>"},
		},
		{
			kind:                CodeLlamaSuper,
			systemPrefix:        "Source: system\n\n ",
			systemSuffix:        " <step>",
			userPrefix:          "Source: user\n\n ",
			userSuffix:          " <step>",
			assistantPrefix:     "Source: assistant\n\n ",
			assistantSuffix:     " <step>",
			assistantOpen:       "Source: assistant\nDestination: user\n\n ",
			postProcessMarkers:  []string{"<step>"},
		},
		{
			kind:                Vicuna11Chat,
			systemPrefix:        "",
			systemSuffix:        "\n\n",
			userPrefix:          "USER: ",
			userSuffix:          "\n",
			assistantPrefix:     "ASSISTANT: ",
			assistantSuffix:     "</s>\n",
			assistantOpen:       "ASSISTANT:",
			defaultSystemPrompt: "A chat between a curious user and an artificial intelligence assistant. The assistant gives helpful, detailed, and polite answers to the user's questions.",
			postProcessMarkers:  []string{"</s>"},
		},
		{
			kind:                VicunaChat,
			systemPrefix:        "",
			systemSuffix:        "\n\n",
			userPrefix:          "### Human: ",
			userSuffix:          "\n",
			assistantPrefix:     "### Assistant: ",
			assistantSuffix:     "\n",
			assistantOpen:       "### Assistant:",
			defaultSystemPrompt: "A chat between a curious human and an artificial intelligence assistant. The assistant gives helpful, detailed, and polite answers to the human's questions.",
		},
		{
			kind:                VicunaLlava,
			systemPrefix:        "",
			systemSuffix:        "\n\n",
			userPrefix:          "USER: ",
			userSuffix:          "\n",
			assistantPrefix:     "ASSISTANT: ",
			assistantSuffix:     "</s>\n",
			assistantOpen:       "ASSISTANT:",
			defaultSystemPrompt: "A chat between a curious human and an artificial intelligence assistant. The assistant gives helpful, detailed, and polite answers to the human's questions.",
			imageSentinel:       "<image>",
			caps:                Capabilities{SupportsImages: true},
			postProcessMarkers:  []string{"</s>"},
		},
		{
			kind:                MiniCPMV,
			systemPrefix:        "",
			systemSuffix:        "\n",
			userPrefix:          "<用户>",
			userSuffix:          "",
			assistantPrefix:     "<AI>",
			assistantSuffix:     "",
			assistantOpen:       "<AI>",
			imageSentinel:       "<image>./</image>",
			caps:                Capabilities{SupportsImages: true},
		},
		{
			kind:                Qwen2vl,
			systemPrefix:        "<|im_start|>system\n",
			systemSuffix:        "<|im_end|>\n",
			userPrefix:          "<|im_start|>user\n",
			userSuffix:          "<|im_end|>\n",
			assistantPrefix:     "<|im_start|>assistant\n",
			assistantSuffix:     "<|im_end|>\n",
			assistantOpen:       "<|im_start|>assistant\n",
			defaultSystemPrompt: "You are a helpful assistant.",
			imageSentinel:       "<|vision_start|><|image_pad|><|vision_end|>",
			caps:                Capabilities{SupportsImages: true, ImageURLOnly: true},
			postProcessOverride: postProcessQwen2vl,
		},
	}

	for _, cfg := range families {
		r.register(cfg.kind, genericTemplate{cfg: cfg})
	}
}
