package checker

import "github.com/brane-run/brane/wir"

// CheckRequest is the body of POST /v1/check (spec.md §4.9, "Request
// carries the checker workflow"). Authorization travels in the HTTP
// Authorization header as a bearer JWT, not in the body.
type CheckRequest struct {
	Workflow *CheckerWorkflow `json:"workflow"`
}

// CheckReply is the body of a checker's response (spec.md §4.9, "Reply:
// {verdict: bool, reasons: [string]}"). On deny, Reasons may be empty: a
// checker is permitted to withhold its rationale even from the requester.
type CheckReply struct {
	Verdict bool     `json:"verdict"`
	Reasons []string `json:"reasons,omitempty"`
}

// Claims is the JWT payload minted by a caller and validated by a checker
// (spec.md §4.9, "Claims include exp, username, system").
type Claims struct {
	Username string `json:"username"`
	System   string `json:"system"`
}

// Location identifies which domain's checker a request targets, reusing
// wir.Location since a checker is addressed by its administrative domain.
type Location = wir.Location
