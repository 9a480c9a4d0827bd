package analyze

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// PromptConfig is one versioned prompt template, keyed by (component,
// case_type?) per the design notes' "centralized prompt registry... versioned
// with the schema" guidance. Prompts are loaded from YAML so they can be
// edited and versioned without a recompile.
type PromptConfig struct {
	Version      int    `yaml:"version"`
	SystemPrompt string `yaml:"system_prompt"`
}

// Registry holds prompts keyed by "component" or "component.case_type".
type Registry struct {
	prompts map[string]PromptConfig
}

func NewRegistry() *Registry {
	r := &Registry{prompts: make(map[string]PromptConfig)}
	r.loadBuiltins()
	return r
}

// LoadYAML merges additional/overriding prompt definitions from a YAML
// document of the form {"key": {"version": N, "system_prompt": "..."}}.
func (r *Registry) LoadYAML(data []byte) error {
	var raw map[string]PromptConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse prompt registry yaml: %w", err)
	}
	for k, v := range raw {
		r.prompts[k] = v
	}
	return nil
}

func (r *Registry) Get(component, caseType string) PromptConfig {
	if caseType != "" {
		if caseType == "workplace" {
			caseType = "employment"
		}
		if p, ok := r.prompts[component+"."+caseType]; ok {
			return p
		}
	}
	return r.prompts[component]
}

func (r *Registry) loadBuiltins() {
	r.prompts["document"] = PromptConfig{Version: 1, SystemPrompt: `You are a forensic document analyst for a legal case.
Extract entities (person, organization, date, legal_term, other) with
conservative confidence: reserve confidence above 0.9 for extremely clear
cases only. Classify document_type, sentiment, legal_significance and any
risk_flags. Respond with strict JSON matching the DocumentAnalysis schema.`}

	r.prompts["image"] = PromptConfig{Version: 1, SystemPrompt: `You are a forensic image analyst. Describe the
scene, extract any visible text (OCR), list detected objects, note whether
people are present, and flag any timestamps visible in the image. Assess
potential_evidence_value and any risk_flags. Respond with strict JSON
matching the ImageAnalysis schema.`}

	r.prompts["email"] = PromptConfig{Version: 1, SystemPrompt: `You are a forensic communications analyst.
Analyze this email thread's participants, authority levels, and
deference_score (0=dominant, 1=deferential) per participant. Identify the
communication_pattern (professional, escalating, hostile, retaliatory), a
per-message sentiment_progression, and any escalation_events. Respond with
strict JSON matching the EmailThreadAnalysis schema.`}

	r.prompts["pattern"] = PromptConfig{Version: 1, SystemPrompt: `You are a legal pattern analyst reviewing
correlated evidence from a single case. Identify contradictions between
statements, corroboration across independent evidence, and evidence gaps.
Only reference evidence sha256 identifiers present in the provided context.
Respond with strict JSON matching the LegalPatternAnalysis schema.`}

	r.prompts["summary"] = PromptConfig{Version: 1, SystemPrompt: `You are preparing an executive summary for
legal counsel. Produce 3-5 key_findings, legal_implications, recommended
actions, and an overall risk_assessment (low/medium/high/critical). Respond
with strict JSON matching the ExecutiveSummaryResponse schema.`}

	r.prompts["summary.employment"] = PromptConfig{Version: 1, SystemPrompt: r.prompts["summary"].SystemPrompt + `
This is a workplace/employment dispute: pay particular attention to
retaliation, harassment, discrimination, and power-dynamics signals.`}

	r.prompts["summary.contract"] = PromptConfig{Version: 1, SystemPrompt: r.prompts["summary"].SystemPrompt + `
This is a contract dispute: pay particular attention to obligations,
breach timing, and any conflicting commitments across evidence.`}

	r.prompts["chunk"] = PromptConfig{Version: 1, SystemPrompt: `Summarize this batch of evidence summaries into a
concise chunk summary with key_points, to be combined with other chunks
into a final executive summary. Respond with strict JSON matching the
ChunkSummary schema.`}

	r.prompts["entity_resolution"] = PromptConfig{Version: 1, SystemPrompt: `Given two candidate entity mentions,
decide whether they refer to the same real-world person. Be conservative:
prefer false negatives. A common-first-name-only match requires a unique
identifier (email, organization, role) among the supporting signals.
Respond with strict JSON: {is_same_entity, confidence, reasoning,
supporting_signals, conflicting_signals}.`}
}
