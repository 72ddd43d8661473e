package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"duelazo-match-service/internal/app"
	"duelazo-match-service/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WSHandler is the event dispatcher: it decodes inbound events, invokes the
// match service, and emits the resulting events to the requester or the room.
type WSHandler struct {
	service  *app.MatchService
	hub      *Hub
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.MatchService, hub *Hub) *WSHandler {
	return &WSHandler{
		service: service,
		hub:     hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type createRoomPayload struct {
	Name       string `json:"name"`
	MaxPlayers int    `json:"maxPlayers"`
}

type joinRoomPayload struct {
	Code         string `json:"code"`
	Name         string `json:"name"`
	SessionToken string `json:"sessionToken"`
}

type roomPayload struct {
	Code string `json:"code"`
}

type answerPayload struct {
	Code          string  `json:"code"`
	QuestionID    int64   `json:"questionId"`
	Answer        string  `json:"answer"`
	TimeRemaining float64 `json:"timeRemaining"`
	Round         string  `json:"round"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type messagePayload struct {
	Message string `json:"message"`
}

type roomCreatedPayload struct {
	Code         string              `json:"code"`
	SessionToken string              `json:"sessionToken"`
	Room         domain.RoomSnapshot `json:"room"`
}

type playerJoinedPayload struct {
	Player  domain.Player   `json:"player"`
	Players []domain.Player `json:"players"`
	Total   int             `json:"total"`
}

type readyStatePayload struct {
	Ready   int             `json:"ready"`
	Total   int             `json:"total"`
	Players []domain.Player `json:"players"`
}

type questionsPayload struct {
	Questions []domain.Question `json:"questions"`
	Total     int               `json:"total"`
}

type round1ResultsPayload struct {
	Players   []domain.Player `json:"players"`
	Finalists []domain.Player `json:"finalists"`
}

type finalistsReadyPayload struct {
	ReadyFinalists []string `json:"readyFinalists"`
	TotalFinalists int      `json:"totalFinalists"`
}

type finalResultsPayload struct {
	Winner  domain.Player   `json:"winner"`
	Ranking []domain.Player `json:"ranking"`
}

type playerLeftPayload struct {
	Players []domain.Player `json:"players"`
	Total   int             `json:"total"`
}

type roomStatePayload struct {
	Room    domain.RoomSnapshot `json:"room"`
	Players []domain.Player     `json:"players"`
	Total   int                 `json:"total"`
}

// ServeWS upgrades the connection and runs its read loop. Each connection
// gets a generated id; a writer goroutine owns all outbound frames.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 32),
	}
	h.hub.register(c)

	go func() {
		for frame := range c.send {
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	h.hub.SendTo(c.id, "connected", messagePayload{Message: "connected to server"})

	ctx := r.Context()
	for {
		var inbound envelope
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.dispatch(ctx, c, inbound)
	}

	h.disconnect(ctx, c)
}

// disconnect treats a dropped connection as an implicit leave.
func (h *WSHandler) disconnect(ctx context.Context, c *client) {
	code := h.hub.unregister(c.id)
	if code == "" {
		return
	}
	outcome, err := h.service.LeaveRoom(ctx, code, c.id)
	if err != nil {
		return
	}
	h.hub.BroadcastToRoom(code, "player_left", playerLeftPayload{
		Players: outcome.Players,
		Total:   outcome.Total,
	})
	h.broadcastAuto(code, outcome.Auto)
}

func (h *WSHandler) dispatch(ctx context.Context, c *client, inbound envelope) {
	switch inbound.Type {
	case "create_room":
		h.handleCreateRoom(ctx, c, inbound.Payload)
	case "join_room":
		h.handleJoinRoom(ctx, c, inbound.Payload)
	case "set_ready":
		h.handleSetReady(ctx, c, inbound.Payload, true)
	case "unset_ready":
		h.handleSetReady(ctx, c, inbound.Payload, false)
	case "submit_answer":
		h.handleSubmitAnswer(ctx, c, inbound.Payload)
	case "round1_finished":
		h.handleRoundFinished(ctx, c, inbound.Payload)
	case "finalist_ready":
		h.handleFinalistReady(ctx, c, inbound.Payload)
	case "final_finished":
		h.handleFinalFinished(ctx, c, inbound.Payload)
	case "leave_room":
		h.handleLeaveRoom(ctx, c, inbound.Payload)
	case "close_room":
		h.handleCloseRoom(ctx, c, inbound.Payload)
	case "get_room_state":
		h.handleRoomState(c, inbound.Payload)
	default:
		h.sendError(c, "unsupported message type")
	}
}

func (h *WSHandler) handleCreateRoom(ctx context.Context, c *client, raw json.RawMessage) {
	var payload createRoomPayload
	if err := json.Unmarshal(raw, &payload); err != nil || strings.TrimSpace(payload.Name) == "" {
		h.sendError(c, "invalid create_room payload: name is required")
		return
	}
	outcome, err := h.service.CreateRoom(ctx, payload.Name, c.id, payload.MaxPlayers)
	if err != nil {
		h.sendError(c, err.Error())
		return
	}
	h.hub.joinRoom(c.id, outcome.Snapshot.Code)
	h.hub.SendTo(c.id, "room_created", roomCreatedPayload{
		Code:         outcome.Snapshot.Code,
		SessionToken: outcome.SessionToken,
		Room:         outcome.Snapshot,
	})
}

func (h *WSHandler) handleJoinRoom(ctx context.Context, c *client, raw json.RawMessage) {
	var payload joinRoomPayload
	if err := json.Unmarshal(raw, &payload); err != nil ||
		payload.Code == "" || strings.TrimSpace(payload.Name) == "" {
		h.sendError(c, "invalid join_room payload: code and name are required")
		return
	}
	code := strings.ToUpper(payload.Code)
	outcome, err := h.service.JoinRoom(ctx, code, payload.Name, c.id, payload.SessionToken)
	if err != nil {
		h.sendError(c, err.Error())
		return
	}
	h.hub.joinRoom(c.id, code)
	h.hub.SendTo(c.id, "joined_room", roomCreatedPayload{
		Code:         code,
		SessionToken: outcome.SessionToken,
		Room:         outcome.Snapshot,
	})
	h.hub.BroadcastToRoom(code, "player_joined", playerJoinedPayload{
		Player:  outcome.Player,
		Players: outcome.Snapshot.Players,
		Total:   len(outcome.Snapshot.Players),
	})
}

func (h *WSHandler) handleSetReady(ctx context.Context, c *client, raw json.RawMessage, ready bool) {
	payload, ok := h.decodeRoomPayload(c, raw)
	if !ok {
		return
	}
	outcome, err := h.service.SetReady(ctx, payload.Code, c.id, ready)
	if err != nil {
		h.sendError(c, err.Error())
		return
	}
	h.hub.BroadcastToRoom(payload.Code, "ready_state", readyStatePayload{
		Ready:   outcome.ReadyCount,
		Total:   outcome.Total,
		Players: outcome.Players,
	})
	h.broadcastAuto(payload.Code, outcome.Auto)
}

func (h *WSHandler) handleSubmitAnswer(ctx context.Context, c *client, raw json.RawMessage) {
	var payload answerPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Code == "" {
		h.sendError(c, "invalid submit_answer payload")
		return
	}
	if payload.TimeRemaining < 0 {
		h.sendError(c, "invalid submit_answer payload: timeRemaining must not be negative")
		return
	}
	result, err := h.service.SubmitAnswer(ctx, strings.ToUpper(payload.Code), c.id, domain.AnswerSubmission{
		QuestionID:    payload.QuestionID,
		Answer:        payload.Answer,
		TimeRemaining: payload.TimeRemaining,
		Round:         domain.Round(payload.Round),
	})
	if err != nil {
		h.sendError(c, err.Error())
		return
	}
	h.hub.SendTo(c.id, "answer_result", result)
}

func (h *WSHandler) handleRoundFinished(ctx context.Context, c *client, raw json.RawMessage) {
	payload, ok := h.decodeRoomPayload(c, raw)
	if !ok {
		return
	}
	auto, err := h.service.RoundFinished(ctx, payload.Code, c.id)
	if err != nil {
		h.sendError(c, err.Error())
		return
	}
	h.broadcastAuto(payload.Code, auto)
}

func (h *WSHandler) handleFinalistReady(ctx context.Context, c *client, raw json.RawMessage) {
	payload, ok := h.decodeRoomPayload(c, raw)
	if !ok {
		return
	}
	outcome, err := h.service.FinalistReady(ctx, payload.Code, c.id)
	if err != nil {
		h.sendError(c, err.Error())
		return
	}
	h.hub.BroadcastToRoom(payload.Code, "finalists_ready_update", finalistsReadyPayload{
		ReadyFinalists: outcome.ReadyNames,
		TotalFinalists: outcome.TotalFinalists,
	})
	h.broadcastAuto(payload.Code, outcome.Auto)
}

func (h *WSHandler) handleFinalFinished(ctx context.Context, c *client, raw json.RawMessage) {
	payload, ok := h.decodeRoomPayload(c, raw)
	if !ok {
		return
	}
	auto, err := h.service.FinalFinished(ctx, payload.Code, c.id)
	if err != nil {
		h.sendError(c, err.Error())
		return
	}
	h.broadcastAuto(payload.Code, auto)
}

func (h *WSHandler) handleLeaveRoom(ctx context.Context, c *client, raw json.RawMessage) {
	payload, ok := h.decodeRoomPayload(c, raw)
	if !ok {
		return
	}
	outcome, err := h.service.LeaveRoom(ctx, payload.Code, c.id)
	if err != nil {
		h.sendError(c, err.Error())
		return
	}
	h.hub.leaveRoom(c.id)
	h.hub.BroadcastToRoom(payload.Code, "player_left", playerLeftPayload{
		Players: outcome.Players,
		Total:   outcome.Total,
	})
	h.broadcastAuto(payload.Code, outcome.Auto)
}

func (h *WSHandler) handleCloseRoom(ctx context.Context, c *client, raw json.RawMessage) {
	payload, ok := h.decodeRoomPayload(c, raw)
	if !ok {
		return
	}
	if _, err := h.service.CloseRoom(ctx, payload.Code, c.id); err != nil {
		h.sendError(c, err.Error())
		return
	}
	h.hub.BroadcastToRoom(payload.Code, "room_closed", messagePayload{
		Message: "the room has been closed by the host",
	})
	h.hub.clearRoom(payload.Code)
}

func (h *WSHandler) handleRoomState(c *client, raw json.RawMessage) {
	payload, ok := h.decodeRoomPayload(c, raw)
	if !ok {
		return
	}
	snapshot, err := h.service.RoomState(payload.Code)
	if err != nil {
		h.sendError(c, err.Error())
		return
	}
	h.hub.SendTo(c.id, "room_state", roomStatePayload{
		Room:    snapshot,
		Players: snapshot.Players,
		Total:   len(snapshot.Players),
	})
}

// broadcastAuto emits the events for any automatic transition an operation
// triggered. Broadcasts happen after the room lock was released.
func (h *WSHandler) broadcastAuto(code string, auto app.AutoAdvance) {
	switch {
	case auto.Round1Started:
		h.hub.BroadcastToRoom(code, "round1_starting", questionsPayload{
			Questions: auto.Questions,
			Total:     len(auto.Questions),
		})
	case auto.Round1Closed:
		h.hub.BroadcastToRoom(code, "round1_results", round1ResultsPayload{
			Players:   auto.Ranking,
			Finalists: auto.Finalists,
		})
	case auto.FinalStarted:
		h.hub.BroadcastToRoom(code, "final_starting", questionsPayload{
			Questions: auto.Questions,
			Total:     len(auto.Questions),
		})
	case auto.MatchClosed:
		h.hub.BroadcastToRoom(code, "final_results", finalResultsPayload{
			Winner:  *auto.Winner,
			Ranking: auto.Ranking,
		})
	}
}

func (h *WSHandler) decodeRoomPayload(c *client, raw json.RawMessage) (roomPayload, bool) {
	var payload roomPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Code == "" {
		h.sendError(c, "invalid payload: room code is required")
		return roomPayload{}, false
	}
	payload.Code = strings.ToUpper(payload.Code)
	return payload, true
}

func (h *WSHandler) sendError(c *client, message string) {
	h.hub.SendTo(c.id, "error", errorPayload{Message: message})
}
