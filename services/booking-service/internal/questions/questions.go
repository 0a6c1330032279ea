// Package questions defines the closed set of booking-form question kinds
// and validates guest answers against an event type's question list.
package questions

import "fmt"

type Kind string

const (
	KindText     Kind = "TEXT"
	KindTextArea Kind = "TEXTAREA"
	KindSelect   Kind = "SELECT"
	KindRadio    Kind = "RADIO"
	KindCheckbox Kind = "CHECKBOX"
)

func (k Kind) Valid() bool {
	switch k {
	case KindText, KindTextArea, KindSelect, KindRadio, KindCheckbox:
		return true
	}
	return false
}

// Question is one entry on an event type's booking form. Options is used by
// SELECT, RADIO and CHECKBOX kinds and must be empty for the text kinds.
type Question struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Kind     Kind     `json:"kind"`
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"`
}

// Answer is a validated guest response. Text kinds fill Text; SELECT and
// RADIO fill Selections with exactly one option; CHECKBOX fills Selections
// with zero or more options.
type Answer struct {
	QuestionID string   `json:"question_id"`
	Kind       Kind     `json:"kind"`
	Text       string   `json:"text,omitempty"`
	Selections []string `json:"selections,omitempty"`
}

const maxTextLen = 1000

// Validate checks one question definition; used when hosts create or update
// event types.
func (q Question) Validate() error {
	if q.ID == "" {
		return fmt.Errorf("question id is required")
	}
	if q.Label == "" {
		return fmt.Errorf("question %s: label is required", q.ID)
	}
	if !q.Kind.Valid() {
		return fmt.Errorf("question %s: unknown kind %q", q.ID, q.Kind)
	}
	switch q.Kind {
	case KindSelect, KindRadio, KindCheckbox:
		if len(q.Options) == 0 {
			return fmt.Errorf("question %s: kind %s requires options", q.ID, q.Kind)
		}
		seen := make(map[string]bool, len(q.Options))
		for _, opt := range q.Options {
			if opt == "" {
				return fmt.Errorf("question %s: empty option", q.ID)
			}
			if seen[opt] {
				return fmt.Errorf("question %s: duplicate option %q", q.ID, opt)
			}
			seen[opt] = true
		}
	default:
		if len(q.Options) > 0 {
			return fmt.Errorf("question %s: kind %s does not take options", q.ID, q.Kind)
		}
	}
	return nil
}

// RawAnswer is a guest-submitted answer before validation. Text kinds use
// Text; option kinds use Selections.
type RawAnswer struct {
	Text       string   `json:"text"`
	Selections []string `json:"selections"`
}

// ValidateAnswers checks raw guest answers against the question list and
// returns the validated answers keyed by question ID. On failure the second
// return carries one message per offending question, keyed the same way, for
// the field-error section of a validation error.
func ValidateAnswers(qs []Question, raw map[string]RawAnswer) (map[string]Answer, map[string]string) {
	answers := make(map[string]Answer, len(raw))
	fieldErrs := make(map[string]string)

	byID := make(map[string]Question, len(qs))
	for _, q := range qs {
		byID[q.ID] = q
	}
	for id := range raw {
		if _, ok := byID[id]; !ok {
			fieldErrs[id] = "unknown question"
		}
	}

	for _, q := range qs {
		in, ok := raw[q.ID]
		if !ok || isEmpty(q.Kind, in) {
			if q.Required {
				fieldErrs[q.ID] = "answer is required"
			}
			continue
		}
		ans, err := validateOne(q, in)
		if err != nil {
			fieldErrs[q.ID] = err.Error()
			continue
		}
		answers[q.ID] = ans
	}

	if len(fieldErrs) > 0 {
		return nil, fieldErrs
	}
	return answers, nil
}

func isEmpty(k Kind, in RawAnswer) bool {
	switch k {
	case KindText, KindTextArea:
		return in.Text == ""
	default:
		return len(in.Selections) == 0
	}
}

func validateOne(q Question, in RawAnswer) (Answer, error) {
	switch q.Kind {
	case KindText, KindTextArea:
		if len(in.Selections) > 0 {
			return Answer{}, fmt.Errorf("expected text, got selections")
		}
		if len(in.Text) > maxTextLen {
			return Answer{}, fmt.Errorf("answer exceeds %d characters", maxTextLen)
		}
		return Answer{QuestionID: q.ID, Kind: q.Kind, Text: in.Text}, nil
	case KindSelect, KindRadio:
		if len(in.Selections) != 1 {
			return Answer{}, fmt.Errorf("expected exactly one selection")
		}
		if !hasOption(q.Options, in.Selections[0]) {
			return Answer{}, fmt.Errorf("%q is not an option", in.Selections[0])
		}
		return Answer{QuestionID: q.ID, Kind: q.Kind, Selections: in.Selections}, nil
	case KindCheckbox:
		seen := make(map[string]bool, len(in.Selections))
		for _, sel := range in.Selections {
			if !hasOption(q.Options, sel) {
				return Answer{}, fmt.Errorf("%q is not an option", sel)
			}
			if seen[sel] {
				return Answer{}, fmt.Errorf("duplicate selection %q", sel)
			}
			seen[sel] = true
		}
		return Answer{QuestionID: q.ID, Kind: q.Kind, Selections: in.Selections}, nil
	}
	return Answer{}, fmt.Errorf("unknown kind %q", q.Kind)
}

func hasOption(options []string, v string) bool {
	for _, opt := range options {
		if opt == v {
			return true
		}
	}
	return false
}
