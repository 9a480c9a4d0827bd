package ai

import (
	"context"
	"fmt"

	"github.com/csic-platform/forensic-evidence-platform/internal/core/domain"
)

// UnavailableProvider is used when no AI API key is configured. Every call
// returns a ConfigMissing error so C4 reports per-item analyze failures and
// C5/C6/C7 take their documented graceful-degradation paths instead of a
// nil-interface panic.
type UnavailableProvider struct{}

func NewUnavailableProvider() UnavailableProvider { return UnavailableProvider{} }

func (UnavailableProvider) GenerateStructured(ctx context.Context, systemPrompt, userContext string, into interface{}) error {
	return domain.NewConfigMissingError("ai.unavailable", fmt.Errorf("no AI provider configured"))
}

func (UnavailableProvider) GenerateVision(ctx context.Context, imageBytes []byte, prompt string, into interface{}) error {
	return domain.NewConfigMissingError("ai.unavailable", fmt.Errorf("no AI provider configured"))
}

func (UnavailableProvider) Provider() string { return "unavailable" }

func (UnavailableProvider) Health(ctx context.Context) error {
	return domain.NewConfigMissingError("ai.unavailable", fmt.Errorf("no AI provider configured"))
}
