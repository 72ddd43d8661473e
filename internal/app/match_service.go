package app

import (
	"context"
	"log"
	"time"

	"duelazo-match-service/internal/domain"
)

// RoomRegistry abstracts how rooms are stored and keyed (in-memory, Redis-backed).
type RoomRegistry interface {
	// Create registers a new room under a freshly generated unique code.
	Create(creator string, maxPlayers int) (*Room, error)
	Get(code string) (*Room, bool)
	// DeleteIfRemovable drops the room when it is empty and not finished.
	DeleteIfRemovable(code string)
	// Delete drops the room unconditionally (host close).
	Delete(code string)
}

// QuestionBank draws randomized question sets per difficulty tier. It must
// fail instead of returning a short set when a tier cannot satisfy its count.
type QuestionBank interface {
	Draw(ctx context.Context, mix []domain.DrawSpec) ([]domain.Question, error)
}

// MatchArchive persists room/match records for analytics. Writes are
// fire-and-forget from the coordinator's perspective.
type MatchArchive interface {
	RoomCreated(ctx context.Context, code, creator string, maxPlayers int) error
	MatchFinished(ctx context.Context, record domain.MatchRecord) error
}

// MatchService contains the coordinator use cases the dispatcher invokes.
type MatchService struct {
	rooms      RoomRegistry
	bank       QuestionBank
	archive    MatchArchive
	defaultCap int
}

// ServiceOption tweaks service construction.
type ServiceOption func(*MatchService)

// WithDefaultMaxPlayers overrides the roster cap applied when a creator does
// not specify one.
func WithDefaultMaxPlayers(n int) ServiceOption {
	return func(s *MatchService) {
		if n > 0 {
			s.defaultCap = n
		}
	}
}

func NewMatchService(rooms RoomRegistry, bank QuestionBank, archive MatchArchive, opts ...ServiceOption) *MatchService {
	s := &MatchService{rooms: rooms, bank: bank, archive: archive, defaultCap: DefaultMaxPlayers}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultMaxPlayers caps the roster when a creator does not specify one.
const DefaultMaxPlayers = 10

// CreateRoom registers a room with the creator as its first player.
func (s *MatchService) CreateRoom(ctx context.Context, name, connID string, maxPlayers int) (JoinOutcome, error) {
	if maxPlayers <= 0 {
		maxPlayers = s.defaultCap
	}
	room, err := s.rooms.Create(name, maxPlayers)
	if err != nil {
		return JoinOutcome{}, err
	}
	outcome, err := room.Join(name, connID, "")
	if err != nil {
		s.rooms.DeleteIfRemovable(room.Code())
		return JoinOutcome{}, err
	}
	s.archiveAsync(func(ctx context.Context) error {
		return s.archive.RoomCreated(ctx, room.Code(), name, maxPlayers)
	})
	return outcome, nil
}

// JoinRoom adds or rebinds a player in an existing room.
func (s *MatchService) JoinRoom(ctx context.Context, code, name, connID, token string) (JoinOutcome, error) {
	room, ok := s.rooms.Get(code)
	if !ok {
		return JoinOutcome{}, domain.ErrRoomNotFound
	}
	return room.Join(name, connID, token)
}

// SetReady toggles readiness; when the last player readies up, round 1 starts.
func (s *MatchService) SetReady(ctx context.Context, code, connID string, ready bool) (ReadyOutcome, error) {
	room, ok := s.rooms.Get(code)
	if !ok {
		return ReadyOutcome{}, domain.ErrRoomNotFound
	}
	return room.SetReady(ctx, connID, ready, s.bank)
}

// SubmitAnswer scores one answer within the active round.
func (s *MatchService) SubmitAnswer(ctx context.Context, code, connID string, sub domain.AnswerSubmission) (domain.AnswerResult, error) {
	room, ok := s.rooms.Get(code)
	if !ok {
		return domain.AnswerResult{}, domain.ErrRoomNotFound
	}
	return room.SubmitAnswer(connID, sub)
}

// RoundFinished marks a player done with round 1.
func (s *MatchService) RoundFinished(ctx context.Context, code, connID string) (AutoAdvance, error) {
	room, ok := s.rooms.Get(code)
	if !ok {
		return AutoAdvance{}, domain.ErrRoomNotFound
	}
	return room.RoundFinished(ctx, connID, s.bank)
}

// FinalistReady marks a finalist ready for the head-to-head.
func (s *MatchService) FinalistReady(ctx context.Context, code, connID string) (FinalistReadyOutcome, error) {
	room, ok := s.rooms.Get(code)
	if !ok {
		return FinalistReadyOutcome{}, domain.ErrRoomNotFound
	}
	return room.FinalistReady(ctx, connID, s.bank)
}

// FinalFinished marks a finalist done with the final; on match close the
// result is archived.
func (s *MatchService) FinalFinished(ctx context.Context, code, connID string) (AutoAdvance, error) {
	room, ok := s.rooms.Get(code)
	if !ok {
		return AutoAdvance{}, domain.ErrRoomNotFound
	}
	auto, err := room.FinalFinished(ctx, connID, s.bank)
	if err != nil {
		return AutoAdvance{}, err
	}
	if auto.MatchClosed && auto.Winner != nil {
		snapshot := room.Snapshot()
		record := domain.MatchRecord{
			RoomCode:   code,
			Creator:    snapshot.Creator,
			Winner:     auto.Winner.Name,
			Ranking:    auto.Ranking,
			FinishedAt: time.Now(),
		}
		s.archiveAsync(func(ctx context.Context) error {
			return s.archive.MatchFinished(ctx, record)
		})
	}
	return auto, nil
}

// LeaveRoom removes a player; rooms left empty mid-match are deleted, while
// finished rooms linger for a rematch.
func (s *MatchService) LeaveRoom(ctx context.Context, code, connID string) (LeaveOutcome, error) {
	room, ok := s.rooms.Get(code)
	if !ok {
		return LeaveOutcome{}, domain.ErrRoomNotFound
	}
	outcome, err := room.Leave(ctx, connID, s.bank)
	if err != nil {
		return LeaveOutcome{}, err
	}
	if outcome.Empty {
		s.rooms.DeleteIfRemovable(code)
	}
	return outcome, nil
}

// CloseRoom lets the host tear the room down for everyone.
func (s *MatchService) CloseRoom(ctx context.Context, code, connID string) ([]string, error) {
	room, ok := s.rooms.Get(code)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	conns, err := room.Close(connID)
	if err != nil {
		return nil, err
	}
	s.rooms.Delete(code)
	return conns, nil
}

// RoomState returns the room's current public snapshot.
func (s *MatchService) RoomState(code string) (domain.RoomSnapshot, error) {
	room, ok := s.rooms.Get(code)
	if !ok {
		return domain.RoomSnapshot{}, domain.ErrRoomNotFound
	}
	return room.Snapshot(), nil
}

// archiveAsync runs a durable-store write off the hot path. Failures are
// logged and never surfaced to players.
func (s *MatchService) archiveAsync(write func(context.Context) error) {
	if s.archive == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := write(ctx); err != nil {
			log.Printf("match archive write failed: %v", err)
		}
	}()
}
