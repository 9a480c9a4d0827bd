package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/csic-platform/forensic-evidence-platform/internal/core/domain"
)

// FakeProvider is a deterministic in-memory ports.AIProvider used for the
// Reproducibility testable property (identical store bytes + deterministic
// fake => byte-identical correlate output across runs) and for exercising
// C4/C5/C6/C7 without network access. Responses are registered by the
// caller keyed on a label the test controls; GetCallCount/GetLastPrompt
// mirror the sdek-cli Provider interface's introspection methods.
type FakeProvider struct {
	mu          sync.Mutex
	responses   map[string]json.RawMessage
	defaultResp json.RawMessage
	callCount   int
	lastPrompt  string
	failWith    error
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{responses: make(map[string]json.RawMessage)}
}

// RegisterResponse maps a label (matched against a substring of the user
// context passed to GenerateStructured, or of the prompt passed to
// GenerateVision) to a canned JSON response.
func (f *FakeProvider) RegisterResponse(label string, response interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, _ := json.Marshal(response)
	f.responses[label] = raw
}

func (f *FakeProvider) SetDefaultResponse(response interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, _ := json.Marshal(response)
	f.defaultResp = raw
}

// FailNextWith makes the next call return err, simulating
// ConfigMissing/AIRefusal/etc degradation paths; later calls respond
// normally again.
func (f *FakeProvider) FailNextWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWith = err
}

func (f *FakeProvider) GetCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callCount
}

func (f *FakeProvider) GetLastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastPrompt
}

func (f *FakeProvider) GenerateStructured(ctx context.Context, systemPrompt, userContext string, into interface{}) error {
	return f.respond(userContext, into)
}

func (f *FakeProvider) GenerateVision(ctx context.Context, imageBytes []byte, prompt string, into interface{}) error {
	return f.respond(prompt, into)
}

func (f *FakeProvider) respond(context string, into interface{}) error {
	f.mu.Lock()
	f.callCount++
	f.lastPrompt = context
	if f.failWith != nil {
		err := f.failWith
		f.failWith = nil
		f.mu.Unlock()
		return err
	}
	var raw json.RawMessage
	for label, resp := range f.responses {
		if containsSubstring(context, label) {
			raw = resp
			break
		}
	}
	if raw == nil {
		raw = f.defaultResp
	}
	f.mu.Unlock()

	if raw == nil {
		return domain.NewAIIncompleteError("ai.fake", fmt.Errorf("no registered fake response matched context"))
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return domain.NewAIIncompleteError("ai.fake", err)
	}
	if v, ok := into.(interface{ Validate() error }); ok {
		if verr := v.Validate(); verr != nil {
			return domain.NewAIIncompleteError("ai.fake", verr)
		}
	}
	return nil
}

func (f *FakeProvider) Provider() string { return "fake" }

func (f *FakeProvider) Health(ctx context.Context) error { return nil }

func containsSubstring(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
