package nl2sql

import (
	"context"
	"errors"
)

// ErrNoTranslation signals that the provider responded but produced nothing
// usable. Callers treat it as "try the next resolution step", not as an
// infrastructure failure.
var ErrNoTranslation = errors.New("nl2sql: no translation produced")

// CorrectionExample is a past mistake shown to the model so it does not
// repeat it.
type CorrectionExample struct {
	Question     string `json:"question"`
	WrongSQL     string `json:"wrong_sql"`
	CorrectedSQL string `json:"corrected_sql"`
}

type Request struct {
	Question            string              `json:"question"`
	SchemaDescription   string              `json:"schema_description,omitempty"`
	PreviousCorrections []CorrectionExample `json:"previous_corrections,omitempty"`
}

type Result struct {
	SQL        string  `json:"sql"`
	Confidence float64 `json:"confidence"`
	Provider   string  `json:"provider"`
	Model      string  `json:"model"`
}

type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}
