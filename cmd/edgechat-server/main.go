// Command edgechat-server is a minimal demonstration of wiring
// internal/chatengine up to net/http (spec.md §1 excludes the HTTP framing
// layer itself, so this binary is illustrative, not the module's product).
// It registers one model backed by a scripted backendtest.Mock handle in
// place of a real inference runtime; swap in a real backend.Handle
// implementation of the wasmedge-ggml tensor ABI to serve real models.
package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"

	"github.com/wasmchat/edgechat/internal/backend"
	"github.com/wasmchat/edgechat/internal/backend/backendtest"
	"github.com/wasmchat/edgechat/internal/chatengine"
	"github.com/wasmchat/edgechat/internal/httpapi"
	"github.com/wasmchat/edgechat/internal/prompt"
	"github.com/wasmchat/edgechat/internal/sessionmeta"
)

func main() {
	addr := flag.String("addr", ":8000", "listen address")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	backends := backend.NewRegistry()
	backends.Register("demo-chatml", demoHandle())

	engine := chatengine.NewEngine(backends, chatengine.WithLogger(logger))
	engine.RegisterModel("demo-chatml", prompt.ChatML, sessionmeta.Metadata{
		ContextSize:      4096,
		NPredict:         -1,
		Temperature:      0.8,
		TopP:             0.95,
		FrequencyPenalty: 0,
		PresencePenalty:  0,
	})

	server := httpapi.NewServer(engine, logger)

	logger.Info("listening", "addr", *addr)
	if err := http.ListenAndServe(*addr, server.Routes()); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// demoHandle returns a canned backend.Handle that always answers with a
// short fixed reply, so the binary is runnable without a real model.
func demoHandle() backend.Handle {
	m := backendtest.NewMock()
	m.Output = []byte("Hello! This is a demonstration response.")
	m.ComputeResult = backend.ComputeResult{Kind: backend.EndOfSequence}
	m.TokensIn = 12
	m.TokensOut = 8
	m.Steps = []backendtest.Step{
		{Output: []byte("Hello"), Result: backend.ComputeResult{Kind: backend.StepOK}},
		{Output: []byte("! This is a demo."), Result: backend.ComputeResult{Kind: backend.StepOK}},
	}
	return m
}
