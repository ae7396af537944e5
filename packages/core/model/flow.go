package model

import (
	"encoding/json"
	"fmt"
)

// Trigger is the pipeline phase a flow runs in
type Trigger string

const (
	TriggerRequest  Trigger = "request"
	TriggerResponse Trigger = "response"
)

// Flow is a named list of actions attached to a request
type Flow struct {
	Key     string   `json:"key,omitempty"`
	Name    string   `json:"name,omitempty"`
	Trigger Trigger  `json:"trigger"`
	Enabled *bool    `json:"enabled,omitempty"`
	Actions []Action `json:"actions"`
}

func (f Flow) IsEnabled() bool {
	return getBool(f.Enabled, true)
}

// Action is a condition gated list of steps
type Action struct {
	Name      string     `json:"name,omitempty"`
	Enabled   *bool      `json:"enabled,omitempty"`
	Condition *Condition `json:"condition,omitempty"`
	Steps     Steps      `json:"steps"`
}

func (a Action) IsEnabled() bool {
	return getBool(a.Enabled, true)
}

// Operator compares an extracted value with a condition value
type Operator string

const (
	OpEqual            Operator = "equal"
	OpNotEqual         Operator = "notEqual"
	OpContains         Operator = "contains"
	OpRegex            Operator = "regex"
	OpGreaterThan      Operator = "greaterThan"
	OpGreaterThanEqual Operator = "greaterThanEqual"
	OpLessThan         Operator = "lessThan"
	OpLessThanEqual    Operator = "lessThanEqual"
)

// DataType selects how a SetData literal is coerced
type DataType string

const (
	DataString  DataType = "string"
	DataNumber  DataType = "number"
	DataBoolean DataType = "boolean"
	DataNull    DataType = "null"
)

// Source names the part of a request or response a value is read from
type Source string

const (
	SourceURL     Source = "url"
	SourceMethod  Source = "method"
	SourceHeaders Source = "headers"
	SourceBody    Source = "body"
	SourceStatus  Source = "status"
)

// DataSourceType names where ReadData reads from
type DataSourceType string

const (
	FromRequest   DataSourceType = "request"
	FromResponse  DataSourceType = "response"
	FromVariables DataSourceType = "variables"
)

// Condition gates an action. Type selects the request or response side.
type Condition struct {
	Type       DataSourceType `json:"type,omitempty"`
	Source     Source         `json:"source"`
	Path       string         `json:"path,omitempty"`
	Operator   Operator       `json:"operator"`
	Value      string         `json:"value"`
	AlwaysPass bool           `json:"alwaysPass,omitempty"`
}

// DataSource addresses a value. For the variables type Path is the variable name.
type DataSource struct {
	Type   DataSourceType `json:"type"`
	Source Source         `json:"source,omitempty"`
	Path   string         `json:"path,omitempty"`
}

// StepKind discriminates the Step variants
type StepKind string

const (
	StepReadData     StepKind = "read-data"
	StepSetData      StepKind = "set-data"
	StepSetVariable  StepKind = "set-variable"
	StepSetCookie    StepKind = "set-cookie"
	StepDeleteCookie StepKind = "delete-cookie"
)

// Step is one unit of an action. The variants are the *Step types of this
// package; UnknownStep stands in for kinds this version does not know.
type Step interface {
	Kind() StepKind
	IsEnabled() bool
}

// StepBase holds the fields shared by every step
type StepBase struct {
	Enabled *bool `json:"enabled,omitempty"`
}

func (b StepBase) IsEnabled() bool {
	return getBool(b.Enabled, true)
}

type ReadDataStep struct {
	StepBase
	Source DataSource `json:"source"`
}

func (*ReadDataStep) Kind() StepKind { return StepReadData }

type SetDataStep struct {
	StepBase
	Value    string   `json:"value"`
	DataType DataType `json:"dataType,omitempty"`
}

func (*SetDataStep) Kind() StepKind { return StepSetData }

type SetVariableStep struct {
	StepBase
	Name string `json:"name"`
}

func (*SetVariableStep) Kind() StepKind { return StepSetVariable }

type SetCookieStep struct {
	StepBase
	Name     string `json:"name"`
	URL      string `json:"url,omitempty"`
	Domain   string `json:"domain,omitempty"`
	Path     string `json:"path,omitempty"`
	Expires  string `json:"expires,omitempty"` // RFC 3339 or HTTP date
	HostOnly bool   `json:"hostOnly,omitempty"`
	HTTPOnly bool   `json:"httpOnly,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
	SameSite string `json:"sameSite,omitempty"`
	Session  bool   `json:"session,omitempty"`
}

func (*SetCookieStep) Kind() StepKind { return StepSetCookie }

type DeleteCookieStep struct {
	StepBase
	Name string `json:"name,omitempty"`
	URL  string `json:"url,omitempty"`
}

func (*DeleteCookieStep) Kind() StepKind { return StepDeleteCookie }

// UnknownStep keeps a step of an unrecognised kind. It never runs.
type UnknownStep struct {
	Type string
	Raw  json.RawMessage
}

func (s *UnknownStep) Kind() StepKind  { return StepKind(s.Type) }
func (s *UnknownStep) IsEnabled() bool { return false }

// Steps is an ordered list of steps encoded with a "kind" discriminator
type Steps []Step

func (s *Steps) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	steps := make(Steps, 0, len(raw))
	for i, item := range raw {
		step, err := decodeStep(item)
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		steps = append(steps, step)
	}
	*s = steps
	return nil
}

func (s Steps) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, 0, len(s))
	for _, step := range s {
		if u, ok := step.(*UnknownStep); ok {
			out = append(out, u.Raw)
			continue
		}
		body, err := json.Marshal(step)
		if err != nil {
			return nil, err
		}
		fields := map[string]json.RawMessage{}
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, err
		}
		kind, _ := json.Marshal(step.Kind())
		fields["kind"] = kind
		encoded, err := json.Marshal(fields)
		if err != nil {
			return nil, err
		}
		out = append(out, encoded)
	}
	return json.Marshal(out)
}

func decodeStep(data []byte) (Step, error) {
	var head struct {
		Kind StepKind `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}

	var step Step
	switch head.Kind {
	case StepReadData:
		step = &ReadDataStep{}
	case StepSetData:
		step = &SetDataStep{}
	case StepSetVariable:
		step = &SetVariableStep{}
	case StepSetCookie:
		step = &SetCookieStep{}
	case StepDeleteCookie:
		step = &DeleteCookieStep{}
	default:
		return &UnknownStep{Type: string(head.Kind), Raw: append(json.RawMessage(nil), data...)}, nil
	}

	if err := json.Unmarshal(data, step); err != nil {
		return nil, err
	}
	return step, nil
}
