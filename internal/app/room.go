package app

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"duelazo-match-service/internal/domain"

	"github.com/google/uuid"
)

// finalistCount is how many round-1 leaders advance to the head-to-head.
const finalistCount = 2

// Room owns one match: roster, drawn question sets, and phase state. All
// mutation happens under its mutex; automatic transitions (round start, round
// close, match close) are evaluated by advanceLocked at the end of every
// mutating operation, so guards live in exactly one place.
type Room struct {
	mu sync.Mutex

	code       string
	creator    string
	maxPlayers int
	state      domain.RoomState

	players []*domain.Player // insertion order = join order

	round1Questions []domain.Question
	finalQuestions  []domain.Question
	finalists       []*domain.Player

	// Transient per-phase trackers keyed by connection id; reset on transition.
	round1Finishers map[string]struct{}
	finalFinishers  map[string]struct{}
	finalistsReady  map[string]struct{}

	roundSeconds float64
	rnd          *rand.Rand
	newToken     func() string
}

// RoomOption tweaks room construction.
type RoomOption func(*Room)

// WithRoundSeconds overrides the answer window used for speed-bonus scoring.
func WithRoundSeconds(seconds float64) RoomOption {
	return func(r *Room) { r.roundSeconds = seconds }
}

// WithShuffleSource makes question shuffling deterministic in tests.
func WithShuffleSource(src rand.Source) RoomOption {
	return func(r *Room) { r.rnd = rand.New(src) }
}

// WithTokenFunc overrides session token generation in tests.
func WithTokenFunc(fn func() string) RoomOption {
	return func(r *Room) { r.newToken = fn }
}

// NewRoom builds an empty room in WAITING. The registry adds the creator as
// the first player via Join.
func NewRoom(code, creator string, maxPlayers int, opts ...RoomOption) *Room {
	r := &Room{
		code:            code,
		creator:         creator,
		maxPlayers:      maxPlayers,
		state:           domain.StateWaiting,
		round1Finishers: make(map[string]struct{}),
		finalFinishers:  make(map[string]struct{}),
		finalistsReady:  make(map[string]struct{}),
		roundSeconds:    DefaultRoundSeconds,
		rnd:             rand.New(rand.NewSource(time.Now().UnixNano())),
		newToken:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Code returns the room's registry key.
func (r *Room) Code() string { return r.code }

// State returns the current phase.
func (r *Room) State() domain.RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Removable reports whether the registry may delete the room: empty and not
// finished. Finished-but-empty rooms are kept so a rejoin can reset them.
func (r *Room) Removable() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players) == 0 && r.state != domain.StateFinished
}

// Snapshot returns a copy of the room's public state for the wire.
func (r *Room) Snapshot() domain.RoomSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Room) snapshotLocked() domain.RoomSnapshot {
	return domain.RoomSnapshot{
		Code:       r.code,
		Creator:    r.creator,
		MaxPlayers: r.maxPlayers,
		State:      r.state,
		Players:    copyPlayers(r.players),
	}
}

// AutoAdvance reports which automatic transition, if any, an operation
// triggered. The dispatcher turns these into room broadcasts.
type AutoAdvance struct {
	Round1Started bool
	Round1Closed  bool
	FinalStarted  bool
	MatchClosed   bool

	Questions []domain.Question // set when a round started
	Ranking   []domain.Player   // round-1 or final ranking
	Finalists []domain.Player
	Winner    *domain.Player
}

// JoinOutcome describes a successful join or reconnect.
type JoinOutcome struct {
	Player       domain.Player
	SessionToken string
	Rejoined     bool
	Snapshot     domain.RoomSnapshot
}

// Join adds a new player or rebinds a known name to a fresh connection.
// Joining a FINISHED room resets it to WAITING for a rematch. A session token,
// when presented, must match the roster entry's token; a tokenless rejoin
// keeps the historical rebind-by-name behavior.
func (r *Room) Join(name, connID, token string) (JoinOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != domain.StateWaiting && r.state != domain.StateFinished {
		return JoinOutcome{}, domain.ErrMatchStarted
	}

	existing := r.findByNameLocked(name)
	if existing == nil && len(r.players) >= r.maxPlayers {
		return JoinOutcome{}, domain.ErrRoomFull
	}
	if existing != nil && token != "" && token != existing.SessionToken {
		return JoinOutcome{}, domain.ErrNameTaken
	}

	if r.state == domain.StateFinished {
		r.resetForRematchLocked()
	}

	var player *domain.Player
	rejoined := false
	if existing != nil {
		existing.ConnectionID = connID
		existing.Ready = false
		player = existing
		rejoined = true
	} else {
		player = &domain.Player{
			ConnectionID: connID,
			Name:         name,
			SessionToken: r.newToken(),
		}
		r.players = append(r.players, player)
	}

	return JoinOutcome{
		Player:       *player,
		SessionToken: player.SessionToken,
		Rejoined:     rejoined,
		Snapshot:     r.snapshotLocked(),
	}, nil
}

func (r *Room) resetForRematchLocked() {
	r.state = domain.StateWaiting
	for _, p := range r.players {
		p.Ready = false
	}
	r.finalists = nil
	r.round1Finishers = make(map[string]struct{})
	r.finalFinishers = make(map[string]struct{})
	r.finalistsReady = make(map[string]struct{})
}

// ReadyOutcome carries the roster's readiness after a set/unset.
type ReadyOutcome struct {
	ReadyCount int
	Total      int
	Players    []domain.Player
	Auto       AutoAdvance
}

// SetReady marks a player's readiness and starts round 1 once every player of
// a roster of at least two is ready. A failed question draw aborts the
// transition and leaves the room in WAITING.
func (r *Room) SetReady(ctx context.Context, connID string, ready bool, bank QuestionBank) (ReadyOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	player := r.findByConnLocked(connID)
	if player == nil {
		return ReadyOutcome{}, domain.ErrPlayerNotFound
	}
	player.Ready = ready

	auto, err := r.advanceLocked(ctx, bank)
	if err != nil {
		return ReadyOutcome{}, err
	}
	return ReadyOutcome{
		ReadyCount: r.readyCountLocked(),
		Total:      len(r.players),
		Players:    copyPlayers(r.players),
		Auto:       auto,
	}, nil
}

// SubmitAnswer scores an answer against the active round's question set and
// credits the round-specific bucket. Unknown question ids score as incorrect,
// matching how a stale submission is treated rather than rejected.
func (r *Room) SubmitAnswer(connID string, sub domain.AnswerSubmission) (domain.AnswerResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != domain.StateRound1 && r.state != domain.StateFinal {
		return domain.AnswerResult{}, domain.ErrMatchNotInProgress
	}
	player := r.findByConnLocked(connID)
	if player == nil {
		return domain.AnswerResult{}, domain.ErrPlayerNotFound
	}

	questions := r.round1Questions
	if r.state == domain.StateFinal {
		questions = r.finalQuestions
	}
	correct := false
	for i := range questions {
		if questions[i].ID == sub.QuestionID {
			correct = AnswerCorrect(sub.Answer, questions[i].CorrectAnswer)
			break
		}
	}

	points := Score(correct, sub.TimeRemaining, r.roundSeconds)
	if r.state == domain.StateRound1 {
		player.ScoreRound1 += points
	} else {
		player.ScoreFinal += points
	}
	player.ScoreTotal = player.ScoreRound1 + player.ScoreFinal

	return domain.AnswerResult{
		Correct:    correct,
		Points:     points,
		TotalScore: player.ScoreTotal,
	}, nil
}

// RoundFinished records that a player completed round 1; once every roster
// member has, the round closes and finalists are selected.
func (r *Room) RoundFinished(ctx context.Context, connID string, bank QuestionBank) (AutoAdvance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != domain.StateRound1 {
		return AutoAdvance{}, domain.ErrMatchNotInProgress
	}
	if r.findByConnLocked(connID) == nil {
		return AutoAdvance{}, domain.ErrPlayerNotFound
	}
	r.round1Finishers[connID] = struct{}{}
	return r.advanceLocked(ctx, bank)
}

// FinalistReadyOutcome reports finalist readiness progress.
type FinalistReadyOutcome struct {
	ReadyNames     []string
	TotalFinalists int
	Auto           AutoAdvance
}

// FinalistReady records a finalist's readiness for the head-to-head; once all
// finalists are ready the final question set is drawn and the final starts.
func (r *Room) FinalistReady(ctx context.Context, connID string, bank QuestionBank) (FinalistReadyOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != domain.StateRound1Done && r.state != domain.StateFinalReadyCheck {
		return FinalistReadyOutcome{}, domain.ErrMatchNotInProgress
	}
	if !r.isFinalistLocked(connID) {
		return FinalistReadyOutcome{}, domain.ErrNotFinalist
	}

	r.state = domain.StateFinalReadyCheck
	r.finalistsReady[connID] = struct{}{}

	auto, err := r.advanceLocked(ctx, bank)
	if err != nil {
		return FinalistReadyOutcome{}, err
	}

	names := make([]string, 0, len(r.finalists))
	for _, f := range r.finalists {
		if _, ok := r.finalistsReady[f.ConnectionID]; ok {
			names = append(names, f.Name)
		}
	}
	return FinalistReadyOutcome{
		ReadyNames:     names,
		TotalFinalists: len(r.finalists),
		Auto:           auto,
	}, nil
}

// FinalFinished records that a finalist completed the final; once all have,
// the match closes and the winner is declared.
func (r *Room) FinalFinished(ctx context.Context, connID string, bank QuestionBank) (AutoAdvance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != domain.StateFinal {
		return AutoAdvance{}, domain.ErrMatchNotInProgress
	}
	if !r.isFinalistLocked(connID) {
		return AutoAdvance{}, domain.ErrNotFinalist
	}
	r.finalFinishers[connID] = struct{}{}
	return r.advanceLocked(ctx, bank)
}

// LeaveOutcome describes the roster after a departure.
type LeaveOutcome struct {
	PlayerName string
	Players    []domain.Player
	Total      int
	Empty      bool
	Auto       AutoAdvance
}

// Leave removes a player from the roster. Removing a straggler can satisfy a
// pending all-finished guard, so the state machine advances afterwards.
func (r *Room) Leave(ctx context.Context, connID string, bank QuestionBank) (LeaveOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	for i, p := range r.players {
		if p.ConnectionID == connID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return LeaveOutcome{}, domain.ErrPlayerNotFound
	}

	name := r.players[idx].Name
	r.players = append(r.players[:idx], r.players[idx+1:]...)
	delete(r.round1Finishers, connID)
	delete(r.finalFinishers, connID)
	delete(r.finalistsReady, connID)
	for i, f := range r.finalists {
		if f.ConnectionID == connID {
			r.finalists = append(r.finalists[:i], r.finalists[i+1:]...)
			break
		}
	}

	var auto AutoAdvance
	if len(r.players) > 0 {
		var err error
		auto, err = r.advanceLocked(ctx, bank)
		if err != nil {
			return LeaveOutcome{}, err
		}
	}

	return LeaveOutcome{
		PlayerName: name,
		Players:    copyPlayers(r.players),
		Total:      len(r.players),
		Empty:      len(r.players) == 0,
		Auto:       auto,
	}, nil
}

// Close force-removes every player. Only the host (first-joined player) may
// close the room.
func (r *Room) Close(connID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.players) == 0 || r.players[0].ConnectionID != connID {
		return nil, domain.ErrNotHost
	}
	conns := make([]string, 0, len(r.players))
	for _, p := range r.players {
		conns = append(conns, p.ConnectionID)
	}
	r.players = nil
	return conns, nil
}

// advanceLocked evaluates automatic transition guards until none fires.
// Question draws happen synchronously under the room lock; a draw failure
// aborts the transition without touching the prior state.
func (r *Room) advanceLocked(ctx context.Context, bank QuestionBank) (AutoAdvance, error) {
	var adv AutoAdvance

	switch r.state {
	case domain.StateWaiting:
		if len(r.players) >= 2 && r.readyCountLocked() == len(r.players) {
			questions, err := drawShuffled(ctx, bank, domain.Round1Mix, r.rnd)
			if err != nil {
				return adv, err
			}
			r.round1Questions = questions
			r.round1Finishers = make(map[string]struct{})
			r.state = domain.StateRound1
			adv.Round1Started = true
			adv.Questions = questions
		}
	case domain.StateRound1:
		if len(r.players) > 0 && len(r.round1Finishers) >= len(r.players) {
			r.closeRound1Locked()
			adv.Round1Closed = true
			adv.Ranking = r.rankingLocked(func(p *domain.Player) int { return p.ScoreRound1 })
			adv.Finalists = copyPlayers(r.finalists)
		}
	case domain.StateFinalReadyCheck:
		if len(r.finalists) > 0 && len(r.finalistsReady) >= len(r.finalists) {
			questions, err := drawShuffled(ctx, bank, domain.FinalMix, r.rnd)
			if err != nil {
				return adv, err
			}
			r.finalQuestions = questions
			r.finalFinishers = make(map[string]struct{})
			r.state = domain.StateFinal
			adv.FinalStarted = true
			adv.Questions = questions
		}
	case domain.StateFinal:
		if len(r.finalists) > 0 && len(r.finalFinishers) >= len(r.finalists) {
			r.state = domain.StateFinished
			adv.MatchClosed = true
			adv.Ranking = r.rankingLocked(func(p *domain.Player) int { return p.ScoreTotal })
			winner := adv.Ranking[0]
			adv.Winner = &winner
		}
	}
	return adv, nil
}

// closeRound1Locked selects the finalists: top two by round-1 score, stable on
// join order for ties; everyone qualifies when the roster is smaller than two.
func (r *Room) closeRound1Locked() {
	ranked := make([]*domain.Player, len(r.players))
	copy(ranked, r.players)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].ScoreRound1 > ranked[j].ScoreRound1
	})

	cut := finalistCount
	if len(ranked) < cut {
		cut = len(ranked)
	}
	r.finalists = ranked[:cut]
	for _, f := range r.finalists {
		f.QualifiedForFinal = true
	}
	r.finalistsReady = make(map[string]struct{})
	r.state = domain.StateRound1Done
}

// rankingLocked returns a join-order-stable descending ranking by score.
func (r *Room) rankingLocked(score func(*domain.Player) int) []domain.Player {
	ranked := make([]*domain.Player, len(r.players))
	copy(ranked, r.players)
	sort.SliceStable(ranked, func(i, j int) bool {
		return score(ranked[i]) > score(ranked[j])
	})
	return copyPlayers(ranked)
}

func (r *Room) readyCountLocked() int {
	count := 0
	for _, p := range r.players {
		if p.Ready {
			count++
		}
	}
	return count
}

func (r *Room) findByNameLocked(name string) *domain.Player {
	for _, p := range r.players {
		if p.Name == name {
			return p
		}
	}
	return nil
}

func (r *Room) findByConnLocked(connID string) *domain.Player {
	for _, p := range r.players {
		if p.ConnectionID == connID {
			return p
		}
	}
	return nil
}

func (r *Room) isFinalistLocked(connID string) bool {
	for _, f := range r.finalists {
		if f.ConnectionID == connID {
			return true
		}
	}
	return false
}

func copyPlayers(players []*domain.Player) []domain.Player {
	out := make([]domain.Player, len(players))
	for i, p := range players {
		out[i] = *p
	}
	return out
}

// drawShuffled pulls the per-tier sets from the bank and gives the
// concatenated sequence one final shuffle before it is fixed on the room.
func drawShuffled(ctx context.Context, bank QuestionBank, mix []domain.DrawSpec, rnd *rand.Rand) ([]domain.Question, error) {
	questions, err := bank.Draw(ctx, mix)
	if err != nil {
		return nil, err
	}
	rnd.Shuffle(len(questions), func(i, j int) {
		questions[i], questions[j] = questions[j], questions[i]
	})
	return questions, nil
}
