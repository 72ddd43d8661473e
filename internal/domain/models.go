package domain

import "time"

// Difficulty buckets questions for draw specs.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Question is an MCQ with exactly one correct option, supplied by the bank.
type Question struct {
	ID            int64      `json:"id"`
	Text          string     `json:"text"`
	Options       []string   `json:"options"`
	CorrectAnswer string     `json:"correctAnswer"`
	Difficulty    Difficulty `json:"difficulty"`
}

// DrawSpec requests count questions of a single difficulty tier.
type DrawSpec struct {
	Difficulty Difficulty
	Count      int
}

// Round1Mix and FinalMix are the fixed draw specs per round.
var (
	Round1Mix = []DrawSpec{
		{Difficulty: DifficultyEasy, Count: 3},
		{Difficulty: DifficultyMedium, Count: 4},
		{Difficulty: DifficultyHard, Count: 3},
	}
	FinalMix = []DrawSpec{
		{Difficulty: DifficultyMedium, Count: 3},
		{Difficulty: DifficultyHard, Count: 7},
	}
)

// RoomState is the match coordinator's lifecycle phase.
type RoomState string

const (
	StateWaiting         RoomState = "WAITING"
	StateRound1          RoomState = "ROUND1_IN_PROGRESS"
	StateRound1Done      RoomState = "ROUND1_DONE"
	StateFinalReadyCheck RoomState = "FINAL_READY_CHECK"
	StateFinal           RoomState = "FINAL_IN_PROGRESS"
	StateFinished        RoomState = "FINISHED"
)

// Round identifies which score bucket an answer feeds.
type Round string

const (
	RoundOne   Round = "round1"
	RoundFinal Round = "final"
)

// Player is a roster entry. Name is the identity key within a room; the
// connection id is rebound on reconnect and the session token authorizes it.
type Player struct {
	ConnectionID      string `json:"connectionId"`
	Name              string `json:"name"`
	SessionToken      string `json:"-"`
	Ready             bool   `json:"ready"`
	ScoreRound1       int    `json:"scoreRound1"`
	ScoreFinal        int    `json:"scoreFinal"`
	ScoreTotal        int    `json:"scoreTotal"`
	QualifiedForFinal bool   `json:"qualifiedForFinal"`
}

// RoomSnapshot is the wire-friendly view of a room's public state.
type RoomSnapshot struct {
	Code       string    `json:"code"`
	Creator    string    `json:"creator"`
	MaxPlayers int       `json:"maxPlayers"`
	State      RoomState `json:"state"`
	Players    []Player  `json:"players"`
}

// AnswerSubmission carries a player's answer to a drawn question.
type AnswerSubmission struct {
	QuestionID    int64
	Answer        string
	TimeRemaining float64
	Round         Round
}

// AnswerResult summarizes scoring of one submission.
type AnswerResult struct {
	Correct    bool `json:"correct"`
	Points     int  `json:"points"`
	TotalScore int  `json:"totalScore"`
}

// MatchRecord is the fire-and-forget analytics row written when a match ends.
type MatchRecord struct {
	RoomCode   string
	Creator    string
	Winner     string
	Ranking    []Player
	FinishedAt time.Time
}
