package model

import (
	"time"
)

// TimestampLayout is the canonical wire form for commit timestamps. Both
// storage backends normalize to it (UTC, second precision) so renderers
// never see backend-native time types.
const TimestampLayout = time.RFC3339

const PayerKey = "payer"

// Message is a committed, publicly visible wall entry. Body and Author are
// stored already escaped; Payer comes from the verified payment payload and
// is never client-supplied.
type Message struct {
	ID        int64     `db:"id" json:"id"`
	Body      string    `db:"body" json:"body"`
	Author    string    `db:"author" json:"author"`
	Payer     string    `db:"payer" json:"payer,omitempty"`
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
}

// PendingMessage is a submitted-but-unpaid message, addressed only by its
// single-use token. CreatedAt exists for TTL sweeps and is never exposed.
type PendingMessage struct {
	Token     string    `db:"token" json:"token"`
	Body      string    `db:"body" json:"body"`
	Author    string    `db:"author" json:"author"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// SubmitRequest is the POST /wall payload (form or JSON).
type SubmitRequest struct {
	Message string `form:"message" json:"message"`
	Author  string `form:"author" json:"author"`
}
