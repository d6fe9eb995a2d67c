package flow

import (
	"context"
	"errors"
	"strings"

	"github.com/berfenger/virtualdevices/internal/core/domain"
	"github.com/berfenger/virtualdevices/internal/core/schema"
)

type ResultType string

const (
	RESULT_FORM         ResultType = "form"
	RESULT_MENU         ResultType = "menu"
	RESULT_CREATE_ENTRY ResultType = "create_entry"
	RESULT_ABORT        ResultType = "abort"
)

const (
	STEP_USER          = "user"
	STEP_INIT          = "init"
	STEP_ENTITY_ADD    = "entity_add"
	STEP_ENTITY_COPY   = "entity_copy"
	STEP_ENTITY_EDIT   = "entity_edit"
	STEP_ENTITY_REMOVE = "entity_remove"
	STEP_ENTITY_EDITOR = "entity_editor"

	// MENU_SELECTION is the input key carrying the chosen menu option.
	MENU_SELECTION = "next_step_id"
	// ERROR_BASE keys errors not tied to a single field.
	ERROR_BASE = "base"
)

var DeviceOptionsMenu = []string{
	STEP_ENTITY_ADD,
	STEP_ENTITY_COPY,
	STEP_ENTITY_EDIT,
	STEP_ENTITY_REMOVE,
}

var (
	ErrUnknownStep  = errors.New("unknown step")
	ErrFlowNotFound = errors.New("flow not found")
)

// Result is what a flow step asks the presentation layer to render.
type Result struct {
	Type         ResultType        `json:"type"`
	FlowId       string            `json:"flow_id,omitempty"`
	Handler      string            `json:"handler,omitempty"`
	StepId       string            `json:"step_id,omitempty"`
	Schema       []schema.Field    `json:"data_schema,omitempty"`
	MenuOptions  []string          `json:"menu_options,omitempty"`
	Errors       map[string]string `json:"errors,omitempty"`
	Placeholders map[string]string `json:"description_placeholders,omitempty"`
	LastStep     bool              `json:"last_step,omitempty"`
	Title        string            `json:"title,omitempty"`
	EntryId      string            `json:"entry_id,omitempty"`
	Data         *domain.EntryData `json:"data,omitempty"`
	Reason       string            `json:"reason,omitempty"`
}

func (r *Result) Terminal() bool {
	return r.Type == RESULT_CREATE_ENTRY || r.Type == RESULT_ABORT
}

// Flow is one interactive configuration session. Submit feeds the input of
// the step last returned.
type Flow interface {
	Start(ctx context.Context) (*Result, error)
	Submit(ctx context.Context, input map[string]any) (*Result, error)
}

func showForm(stepId string, fields []schema.Field, errs map[string]string) *Result {
	r := &Result{Type: RESULT_FORM, StepId: stepId, Schema: fields}
	if len(errs) > 0 {
		r.Errors = errs
	}
	return r
}

func showMenu(stepId string, options []string) *Result {
	return &Result{Type: RESULT_MENU, StepId: stepId, MenuOptions: append([]string(nil), options...)}
}

func abort(reason string) *Result {
	return &Result{Type: RESULT_ABORT, Reason: reason}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
