// Package tools holds the assistant's tool contract: the read tools the model
// may call freely, the propose tools that draft ledger mutations, and the
// internal apply tools the confirmation flow executes. Propose tools never
// touch the ledger; every mutation goes through a confirmed proposal.
package tools

import (
	"encoding/json"
	"errors"
	"fmt"

	"example.com/dompy/backend/internal/models"
)

type Kind string

const (
	KindRead  Kind = "read"
	KindWrite Kind = "write"
)

// ProposalDraft is a pending mutation a propose tool produced. The caller is
// responsible for persisting it as a proposal.
type ProposalDraft struct {
	Kind    models.ProposalKind `json:"kind"`
	Payload json.RawMessage     `json:"payload"`
}

// Result is the outcome of one tool execution. Data is what the model sees.
// Drafts is set only by propose tools, ResultID only by apply tools.
type Result struct {
	Data     any             `json:"data,omitempty"`
	Drafts   []ProposalDraft `json:"drafts,omitempty"`
	ResultID string          `json:"result_id,omitempty"`
}

var ErrUnknownTool = errors.New("unknown tool")

// InvalidArgumentsError reports arguments that failed decoding or validation.
// It is fed back to the model as a tool error rather than failing the turn.
type InvalidArgumentsError struct {
	Tool string
	Err  error
}

func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %v", e.Tool, e.Err)
}

func (e *InvalidArgumentsError) Unwrap() error { return e.Err }

// ExecutionError reports a tool handler that accepted its arguments but
// failed while running, typically on a ledger call.
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
