package model

import (
	"encoding/json"
	"time"
)

// Run is one recorded validation of a candidate database.
type Run struct {
	ID            string          `json:"id" db:"id"`
	DBID          string          `json:"db_id" db:"db_id"`
	Driver        string          `json:"driver" db:"driver"`
	Configuration Configuration   `json:"configuration" db:"configuration"`
	Accepted      bool            `json:"accepted" db:"accepted"`
	FailureKind   string          `json:"failure_kind,omitempty" db:"failure_kind"`
	FailureRole   string          `json:"failure_role,omitempty" db:"failure_role"`
	NextAction    string          `json:"next_action" db:"next_action"`
	Error         string          `json:"error,omitempty" db:"error"`
	Binding       json.RawMessage `json:"binding,omitempty" db:"-"`
	Statements    []string        `json:"statements,omitempty" db:"-"`
	AttemptIndex  int             `json:"attempt_index" db:"attempt_index"`
	AttemptBudget int             `json:"attempt_budget" db:"attempt_budget"`
	StartedAt     time.Time       `json:"started_at" db:"started_at"`
	FinishedAt    time.Time       `json:"finished_at" db:"finished_at"`
}

// RunFilter narrows a run listing. Zero fields match everything.
type RunFilter struct {
	DBID          string
	Configuration Configuration
	Accepted      *bool
	Limit         int
	Offset        int
}
