// Package models defines the persisted entities of the deliberation domain:
// participants, deliberations, and the per-round submissions that drive the
// deliberation state machine.
package models

import "time"

// Stage is a deliberation's position in its lifecycle.
type Stage string

const (
	StageOpinion   Stage = "OPINION"
	StageRanking   Stage = "RANKING"
	StageCritique  Stage = "CRITIQUE"
	StageConcluded Stage = "CONCLUDED"
	StageFinalized Stage = "FINALIZED"
)

// MockRank is the sentinel rank marking an abstaining participant row in a
// ranking matrix handed to the Schulze aggregator.
const MockRank = -1

// Deliberation is one instance of the full mediation process over one question.
type Deliberation struct {
	ID                string                 `json:"id"`
	Question          string                 `json:"question"`
	Stage             Stage                  `json:"stage"`
	CreatedByID       string                 `json:"created_by"`
	ParticipantCount  int                    `json:"participant_count"`
	MaxParticipants   *int                   `json:"max_participants,omitempty"`
	NumCritiqueRounds int                    `json:"num_critique_rounds"`
	CurrentRound      int                    `json:"current_round"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
	StartedAt         *time.Time             `json:"started_at,omitempty"`
	ConcludedAt       *time.Time             `json:"concluded_at,omitempty"`
	FinalizedAt       *time.Time             `json:"finalized_at,omitempty"`
	LastFailureAt     *time.Time             `json:"last_failure_at,omitempty"`
	LastFailureReason string                 `json:"last_failure_reason,omitempty"`
}

// IsAcceptingOpinions reports whether the deliberation can still take opinions,
// mirroring the reference implementation's participation gate.
func (d *Deliberation) IsAcceptingOpinions() bool {
	if d.Stage != StageOpinion {
		return false
	}
	if d.MaxParticipants != nil && d.ParticipantCount >= *d.MaxParticipants {
		return false
	}
	return true
}

// Participant is an authenticated agent acting on behalf of a human.
type Participant struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	HumanName    string    `json:"human_name"`
	TokenHash    string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// Opinion is a participant's free-text position, accepted only during OPINION.
type Opinion struct {
	ID             string    `json:"id"`
	DeliberationID string    `json:"deliberation_id"`
	ParticipantID  string    `json:"participant_id"`
	Text           string    `json:"text"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

// Statement is one of the N candidate consensus statements produced by the
// Mediation Engine for a round. Immutable once written.
type Statement struct {
	ID             string                 `json:"id"`
	DeliberationID string                 `json:"deliberation_id"`
	RoundNumber    int                    `json:"round_number"`
	Text           string                 `json:"text"`
	SocialRank     int                    `json:"social_rank"` // 1 = winner
	GeneratedAt    time.Time              `json:"generated_at"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// RankedStatement is one entry of a participant-submitted ranking.
type RankedStatement struct {
	StatementID string `json:"statement_id"`
	Rank        int    `json:"rank"` // 1..K, strict permutation
}

// Ranking is one participant's ordering of a round's candidates.
type Ranking struct {
	ID             string            `json:"id"`
	DeliberationID string            `json:"deliberation_id"`
	ParticipantID  string            `json:"participant_id"`
	RoundNumber    int               `json:"round_number"`
	Rankings       []RankedStatement `json:"rankings"`
	SubmittedAt    time.Time         `json:"submitted_at"`
}

// Critique is a participant's critique of the current round's winning statement.
type Critique struct {
	ID               string    `json:"id"`
	DeliberationID   string    `json:"deliberation_id"`
	ParticipantID    string    `json:"participant_id"`
	RoundNumber      int       `json:"round_number"`
	WinningStatement string    `json:"winning_statement"`
	Text             string    `json:"text"`
	SubmittedAt      time.Time `json:"submitted_at"`
}

// HumanFeedback is a participant's agreement rating on the finalized statement.
type HumanFeedback struct {
	ID             string    `json:"id"`
	DeliberationID string    `json:"deliberation_id"`
	ParticipantID  string    `json:"participant_id"`
	FinalStatement string    `json:"final_statement"`
	Agreement      int       `json:"agreement"` // 1..5
	Text           string    `json:"text,omitempty"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

// Validation bounds from spec.md §4.5.
const (
	MinMaxParticipants  = 2
	MaxMaxParticipants  = 100
	MinCritiqueRounds   = 1
	MaxCritiqueRounds   = 5
	MinOpinionTextLen   = 10
	MaxOpinionTextLen   = 5000
	MinCritiqueTextLen  = 10
	MaxCritiqueTextLen  = 5000
	MinQuestionTextLen  = 10
	MaxQuestionTextLen  = 1000
	MinFeedbackAgree    = 1
	MaxFeedbackAgree    = 5
	DefaultNumCandidates = 16
)
