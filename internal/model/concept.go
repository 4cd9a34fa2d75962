package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind names one of the three ambiguity families.
type Kind string

const (
	KindAttachment Kind = "attachment"
	KindScope      Kind = "scope"
	KindVague      Kind = "vague"
)

// Configuration names the structural pattern a concept is embedded with.
type Configuration string

const (
	Attachment1TabVal Configuration = "1tab_val"
	Attachment1TabRef Configuration = "1tab_ref"
	Attachment2TabVal Configuration = "2tab_val"
	Attachment2TabRef Configuration = "2tab_ref"
	ScopeDefault      Configuration = "scope"
	Vague2Cols        Configuration = "2cols"
	Vague2Tabs        Configuration = "2tabs"
)

// Kind returns the concept family the configuration belongs to.
func (c Configuration) Kind() Kind {
	switch c {
	case Attachment1TabVal, Attachment1TabRef, Attachment2TabVal, Attachment2TabRef:
		return KindAttachment
	case ScopeDefault:
		return KindScope
	case Vague2Cols, Vague2Tabs:
		return KindVague
	default:
		return ""
	}
}

// ParseConfiguration converts a configuration name into a Configuration.
func ParseConfiguration(s string) (Configuration, error) {
	c := Configuration(strings.ToLower(strings.TrimSpace(s)))
	if c.Kind() == "" {
		return "", fmt.Errorf("unknown configuration %q (want one of 1tab_val, 1tab_ref, 2tab_val, 2tab_ref, scope, 2cols, 2tabs)", s)
	}
	return c, nil
}

// AttachmentConcept: Class1 and Class2 are subclasses of GeneralClass. Entities
// of both classes have CommonProperty, and there might be one of each that share
// CommonProperty equal to CommonValue.
type AttachmentConcept struct {
	GeneralClass   string `json:"general_class,omitempty"`
	Class1         string `json:"class1,omitempty"`
	Class2         string `json:"class2,omitempty"`
	CommonProperty string `json:"common_property,omitempty"`
	CommonValue    string `json:"common_value,omitempty"`
	Template       string `json:"template,omitempty"`
}

// ScopeConcept: each of Entities has many Components, and SpecificComponent
// is common to many Entities.
type ScopeConcept struct {
	Entities          string `json:"entities,omitempty"`
	Components        string `json:"components,omitempty"`
	SpecificComponent string `json:"specific_component,omitempty"`
	Template          string `json:"template,omitempty"`
}

// TemplateText returns the concept template, falling back to the canonical
// sentence when none was supplied.
func (c ScopeConcept) TemplateText() string {
	if c.Template != "" {
		return c.Template
	}
	return fmt.Sprintf("Each %s has many different %s. Among them, %s is common to many %s.",
		c.Entities, c.Components, c.SpecificComponent, c.Entities)
}

// VagueConcept: a question about Subject with the given Focus may be answered
// with either GeneralCategory1 or GeneralCategory2.
type VagueConcept struct {
	Subject          string `json:"subject,omitempty"`
	GeneralCategory1 string `json:"general_category1,omitempty"`
	GeneralCategory2 string `json:"general_category2,omitempty"`
	Focus            string `json:"focus,omitempty"`
	Template         string `json:"template,omitempty"`
}

// ConceptSpec is the caller-facing envelope selecting a configuration and
// carrying exactly one concept shape.
type ConceptSpec struct {
	Configuration Configuration      `json:"configuration"`
	Attachment    *AttachmentConcept `json:"-"`
	Scope         *ScopeConcept      `json:"-"`
	Vague         *VagueConcept      `json:"-"`
}

type conceptEnvelope struct {
	Kind          Kind            `json:"kind,omitempty"`
	Configuration string          `json:"configuration"`
	Concept       json.RawMessage `json:"concept"`
}

// Kind returns the family of the selected configuration.
func (s ConceptSpec) Kind() Kind { return s.Configuration.Kind() }

// UnmarshalJSON decodes {"configuration": ..., "concept": {...}}. An optional
// "kind" must agree with the configuration.
func (s *ConceptSpec) UnmarshalJSON(data []byte) error {
	var env conceptEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	cfg := env.Configuration
	if cfg == "" && env.Kind == KindScope {
		cfg = string(ScopeDefault)
	}
	parsed, err := ParseConfiguration(cfg)
	if err != nil {
		return err
	}
	if env.Kind != "" && env.Kind != parsed.Kind() {
		return fmt.Errorf("kind %q does not match configuration %q", env.Kind, parsed)
	}
	if len(env.Concept) == 0 {
		env.Concept = []byte("{}")
	}

	out := ConceptSpec{Configuration: parsed}
	switch parsed.Kind() {
	case KindAttachment:
		out.Attachment = &AttachmentConcept{}
		err = json.Unmarshal(env.Concept, out.Attachment)
	case KindScope:
		out.Scope = &ScopeConcept{}
		err = json.Unmarshal(env.Concept, out.Scope)
	case KindVague:
		out.Vague = &VagueConcept{}
		err = json.Unmarshal(env.Concept, out.Vague)
	}
	if err != nil {
		return fmt.Errorf("decode %s concept: %w", parsed.Kind(), err)
	}
	*s = out
	return nil
}

// MarshalJSON encodes the spec in the same envelope UnmarshalJSON accepts.
func (s ConceptSpec) MarshalJSON() ([]byte, error) {
	var concept interface{}
	switch {
	case s.Attachment != nil:
		concept = s.Attachment
	case s.Scope != nil:
		concept = s.Scope
	case s.Vague != nil:
		concept = s.Vague
	default:
		concept = struct{}{}
	}
	raw, err := json.Marshal(concept)
	if err != nil {
		return nil, err
	}
	return json.Marshal(conceptEnvelope{
		Kind:          s.Kind(),
		Configuration: string(s.Configuration),
		Concept:       raw,
	})
}

// Validate checks that the concept fields required by the configuration are
// present.
func (s ConceptSpec) Validate() error {
	var missing []string
	need := func(name, val string) {
		if strings.TrimSpace(val) == "" {
			missing = append(missing, name)
		}
	}

	switch s.Kind() {
	case KindAttachment:
		if s.Attachment == nil {
			return fmt.Errorf("configuration %s requires an attachment concept", s.Configuration)
		}
		need("class1", s.Attachment.Class1)
		need("class2", s.Attachment.Class2)
		need("common_property", s.Attachment.CommonProperty)
	case KindScope:
		if s.Scope == nil {
			return fmt.Errorf("configuration %s requires a scope concept", s.Configuration)
		}
		need("entities", s.Scope.Entities)
		need("components", s.Scope.Components)
		need("specific_component", s.Scope.SpecificComponent)
	case KindVague:
		if s.Vague == nil {
			return fmt.Errorf("configuration %s requires a vague concept", s.Configuration)
		}
		need("subject", s.Vague.Subject)
		need("general_category1", s.Vague.GeneralCategory1)
		need("general_category2", s.Vague.GeneralCategory2)
	default:
		return fmt.Errorf("unknown configuration %q", s.Configuration)
	}

	if len(missing) > 0 {
		return fmt.Errorf("%s concept is missing required fields: %s", s.Kind(), strings.Join(missing, ", "))
	}
	return nil
}
