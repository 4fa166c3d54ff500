// Command selfhealctl drives one self-healing session from the command
// line: it reads an original/patched code pair and a reported error, wires
// an Engine and Session over a sandbox (mock by default, HTTP or real
// otherwise) and an optional advisor, runs run_session to completion or
// cancellation, and prints the resulting envelope as JSON. Grounded on
// examples/orchestrator/main.go's env/flag-driven wiring and
// examples/agent-with-async/main.go's signal.Notify-based graceful
// shutdown.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/itsneelabh/selfheal/internal/logging"
	"github.com/itsneelabh/selfheal/pkg/engine"
	"github.com/itsneelabh/selfheal/pkg/errclass"
	"github.com/itsneelabh/selfheal/pkg/memory"
	"github.com/itsneelabh/selfheal/pkg/policy"
	"github.com/itsneelabh/selfheal/pkg/ports"
	"github.com/itsneelabh/selfheal/pkg/session"
)

func main() {
	var (
		policyFile    string
		patchID       string
		class         string
		message       string
		language      string
		originalFile  string
		patchFile     string
		maxAttempts   int
		useMock       bool
		sandboxURL    string
		advisorKind   string
		openaiKey     string
		openaiModel   string
		redisURL      string
		logLevel      string
		forcedFailure string
		logitsCSV     string
	)

	flag.StringVar(&policyFile, "policy-file", "", "YAML policy file overriding the built-in defaults")
	flag.StringVar(&patchID, "patch-id", "", "Identifier for this session's envelope (auto-generated UUID if unset)")
	flag.StringVar(&class, "class", "syntax", "Error class: syntax, logic, runtime, performance, security")
	flag.StringVar(&message, "message", "", "Reported error message (required)")
	flag.StringVar(&language, "language", "javascript", "Patch language tag")
	flag.StringVar(&originalFile, "original-code-file", "", "Path to the original (broken) code (required)")
	flag.StringVar(&patchFile, "patch-file", "", "Path to the first candidate patch (required)")
	flag.IntVar(&maxAttempts, "max-attempts", 5, "Maximum session attempts")
	flag.BoolVar(&useMock, "mock", true, "Use the deterministic mock sandbox instead of -sandbox-url")
	flag.StringVar(&sandboxURL, "sandbox-url", "", "HTTP sandbox execution endpoint (overrides -mock)")
	flag.StringVar(&advisorKind, "advisor", "none", "Advisor to consult on retry: none, openai")
	flag.StringVar(&openaiKey, "openai-key", "", "OpenAI API key (falls back to OPENAI_API_KEY)")
	flag.StringVar(&openaiModel, "openai-model", "gpt-4", "OpenAI chat model")
	flag.StringVar(&redisURL, "redis-url", "", "Redis URL for durable memory (in-process ring if unset)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&forcedFailure, "mock-fail-on", "", "Mock sandbox forces failure when the patch contains this substring")
	flag.StringVar(&logitsCSV, "logits", "6,0,0", "Comma-separated raw model logits backing the confidence score")
	flag.Parse()

	logger := logging.NewStdLogger(logLevel)

	if patchID == "" {
		patchID = uuid.New().String()
	}

	if message == "" || originalFile == "" || patchFile == "" {
		log.Fatal("-message, -original-code-file, and -patch-file are all required")
	}

	errClass, err := errclass.Parse(class)
	if err != nil {
		log.Fatalf("invalid -class: %v", err)
	}

	logits, err := parseLogits(logitsCSV)
	if err != nil {
		log.Fatalf("invalid -logits: %v", err)
	}

	originalCode, err := os.ReadFile(originalFile)
	if err != nil {
		log.Fatalf("reading -original-code-file: %v", err)
	}
	patchCode, err := os.ReadFile(patchFile)
	if err != nil {
		log.Fatalf("reading -patch-file: %v", err)
	}

	policyOpts := []policy.Option{}
	if policyFile != "" {
		policyOpts = append(policyOpts, policy.WithYAMLFile(policyFile))
	}
	p, err := policy.New(policyOpts...)
	if err != nil {
		log.Fatalf("building policy: %v", err)
	}

	var sandbox ports.Sandbox
	switch {
	case sandboxURL != "":
		sandbox = ports.NewHTTPSandbox(sandboxURL)
	case useMock:
		var failOn []string
		if forcedFailure != "" {
			failOn = []string{forcedFailure}
		}
		sandbox = &ports.MockSandbox{FailSubstrings: failOn}
	default:
		log.Fatal("no sandbox configured: set -sandbox-url or leave -mock=true")
	}

	engineOpts := []engine.Option{engine.WithLogger(logger)}
	if redisURL != "" {
		mem, err := memory.NewRedisBackedMemory(redisURL, patchID, p.MemoryMax, time.Duration(p.MemoryTTLMS)*time.Millisecond)
		if err != nil {
			log.Fatalf("connecting redis memory: %v", err)
		}
		engineOpts = append(engineOpts, engine.WithMemory(mem))
	}

	eng := engine.New(patchID, sandbox, p, engineOpts...)

	sessOpts := []session.Option{session.WithLogger(logger)}
	switch advisorKind {
	case "none":
	case "openai":
		sessOpts = append(sessOpts, session.WithAdvisor(ports.NewOpenAIAdvisor(openaiKey, ports.WithAdvisorModel(openaiModel), ports.WithAdvisorLogger(logger))))
	default:
		log.Fatalf("unknown -advisor: %s", advisorKind)
	}
	sess := session.New(eng, sessOpts...)

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutting down session gracefully", nil)
		cancel()
	}()
	defer cancel()

	result, err := sess.Run(ctx, session.Initial{
		Class:        errClass,
		Message:      message,
		PatchCode:    string(patchCode),
		OriginalCode: string(originalCode),
		Language:     language,
		Logits:       logits,
	}, maxAttempts)
	if err != nil && result.Envelope == nil {
		log.Fatalf("session failed: %v", err)
	}

	out, marshalErr := json.MarshalIndent(result.Envelope, "", "  ")
	if marshalErr != nil {
		log.Fatalf("marshaling envelope: %v", marshalErr)
	}
	fmt.Println(string(out))
	fmt.Fprintf(os.Stderr, "patch_id=%s verdict=%s attempts=%d cancelled=%v\n", patchID, result.Verdict, result.Attempts, result.Cancelled)

	if result.Verdict != "" && !result.Verdict.IsTerminal() {
		os.Exit(2)
	}
}

// parseLogits turns a comma-separated flag value into a raw logit vector.
func parseLogits(csv string) ([]float64, error) {
	parts := strings.Split(csv, ",")
	out := make([]float64, 0, len(parts))
	for _, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", part, err)
		}
		out = append(out, f)
	}
	return out, nil
}

