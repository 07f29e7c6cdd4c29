package model

import (
	"time"

	"github.com/google/uuid"
)

type HistoryID string

// NewHistoryID generates a new unique HistoryID
func NewHistoryID() HistoryID {
	return HistoryID(uuid.New().String())
}

type TurnID string

func NewTurnID() TurnID {
	return TurnID(uuid.New().String())
}

// History is a conversation transcript exported when a session closes.
type History struct {
	ID         HistoryID  `json:"id" firestore:"id"`
	MerchantID MerchantID `json:"merchant_id,omitempty" firestore:"merchant_id"`
	CreatedAt  time.Time  `json:"created_at" firestore:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" firestore:"updated_at"`

	// Turns live in object storage; repositories keep only the metadata.
	Turns []HistoryTurn `json:"turns" firestore:"-"`
}

// HistoryTurn records one user input and what the pipeline answered.
type HistoryTurn struct {
	TurnID            TurnID    `json:"turn_id"`
	Input             string    `json:"input"`
	Normalized        string    `json:"normalized,omitempty"`
	Response          string    `json:"response"`
	Intent            Intent    `json:"intent,omitempty"`
	Confidence        float64   `json:"confidence"`
	NeedsConfirmation bool      `json:"needs_confirmation"`
	Blocked           bool      `json:"blocked"`
	At                time.Time `json:"at"`
}
