package collaboration

import (
	"context"
	"fmt"
	"log"

	"whiteboard-sync/internal/middleware"
	"whiteboard-sync/internal/models"

	"github.com/segmentio/ksuid"
	"go.opentelemetry.io/otel/attribute"
)

/*
LEARNING: ONE MESSAGE IN, DELIVERIES OUT

Every inbound event goes through Handle. It returns the deliveries it sent,
which keeps the gateway testable without sockets:

  board:join           → board:sync to sender, user:join to others
  draw:* (accepted)    → echo to the whole room, sender included
  draw:undo / redo     → rebuilt objects + history index to the room
  cursor:* / speaking  → presence update to others, never enters history
  board:request-sync   → board:sync to sender

Dropped operations (unknown target, nothing to undo) produce no deliveries.
*/

// Handle processes one inbound event from s
func (sm *SessionManager) Handle(ctx context.Context, s *Session, msg InboundMessage) ([]Delivery, error) {
	ctx, span := middleware.StartSpan(ctx, "SessionGateway.Handle",
		attribute.String("session.id", s.ID),
		attribute.String("event", msg.Event),
	)
	defer span.End()

	deliveries, err := sm.dispatch(ctx, s, msg)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("deliveries", len(deliveries)))
	return deliveries, nil
}

func (sm *SessionManager) dispatch(ctx context.Context, s *Session, msg InboundMessage) ([]Delivery, error) {
	switch msg.Event {
	case EventJoin:
		return sm.join(ctx, s, msg)

	case EventRequestSync:
		return sm.requestSync(ctx, s)

	case EventStroke, EventShape, EventText, EventSticky, EventMedia:
		payload, err := drawingPayload(msg.Event, msg.Data)
		if err != nil {
			return nil, err
		}
		objectID := payload.TargetID()
		if objectID == "" {
			objectID = ksuid.New().String()
		}
		middleware.AddSpanEvent(ctx, "drawing.decoded",
			attribute.String("object.kind", string(payload.Kind())),
			attribute.String("object.id", objectID),
		)
		return sm.mutate(ctx, s, msg.Event, models.Operation{
			Type:     models.OpInsert,
			ObjectID: objectID,
			Data:     payload.Fields(),
		})

	case EventUpdate:
		var p updatePayload
		if err := decodeData(msg.Event, msg.Data, &p); err != nil {
			return nil, err
		}
		return sm.mutate(ctx, s, msg.Event, models.Operation{
			Type:     models.OpUpdate,
			ObjectID: p.ObjectID,
			Data:     p.Changes.Clone(),
		})

	case EventDelete:
		var p deletePayload
		if err := decodeData(msg.Event, msg.Data, &p); err != nil {
			return nil, err
		}
		return sm.mutate(ctx, s, msg.Event, models.Operation{
			Type:     models.OpDelete,
			ObjectID: p.ObjectID,
		})

	case EventUndo, EventRedo:
		return sm.moveHistory(ctx, s, msg.Event)

	case EventCursorMove:
		var p cursorMovePayload
		if err := decodeData(msg.Event, msg.Data, &p); err != nil {
			return nil, err
		}
		return sm.presence(s, msg.Event, func(pt *models.Participant) {
			pt.Cursor = models.Cursor{X: p.X, Y: p.Y}
		}, map[string]any{"x": p.X, "y": p.Y})

	case EventCursorUpdate:
		var p cursorUpdatePayload
		if err := decodeData(msg.Event, msg.Data, &p); err != nil {
			return nil, err
		}
		return sm.presence(s, msg.Event, func(pt *models.Participant) {
			pt.Cursor = models.Cursor{X: p.X, Y: p.Y}
			pt.Viewport = models.Viewport{X: p.Pan.X, Y: p.Pan.Y, Zoom: p.Zoom}
		}, map[string]any{"x": p.X, "y": p.Y, "pan": p.Pan, "zoom": p.Zoom})

	case EventSpeaking:
		var p speakingPayload
		if err := decodeData(msg.Event, msg.Data, &p); err != nil {
			return nil, err
		}
		return sm.presence(s, msg.Event, func(pt *models.Participant) {
			pt.Speaking = p.Speaking
		}, map[string]any{"speaking": p.Speaking})

	default:
		log.Printf("⚠️  Session %s: unknown event %q ignored", s.ID, msg.Event)
		return nil, nil
	}
}

// join moves s into the room of msg.BoardID and sends it the full board
func (sm *SessionManager) join(ctx context.Context, s *Session, msg InboundMessage) ([]Delivery, error) {
	if msg.BoardID == "" {
		return nil, fmt.Errorf("%s requires a boardId", EventJoin)
	}

	var p joinPayload
	if err := decodeData(msg.Event, msg.Data, &p); err != nil {
		return nil, err
	}
	userID := firstNonEmpty(p.UserID, msg.UserID, s.UserID, "anonymous")
	name := firstNonEmpty(p.UserName, s.UserName, "Anonymous")

	board, err := sm.registry.Get(msg.BoardID)
	if err != nil {
		return nil, err
	}

	// Leave any previous room before touching the new board's worker
	sm.leaveRoom(s)

	participant := models.NewParticipant(s.ID, userID, name, p.UserColor)

	var deliveries []Delivery
	var joinErr error
	err = board.Do(ctx, func(state *models.BoardState) bool {
		room, roster, err := sm.addParticipant(board.ID(), s, participant)
		if err != nil {
			joinErr = err
			return false
		}

		deliveries = []Delivery{
			{
				Scope: ToSender,
				Message: OutboundMessage{Event: EventSync, Data: syncData{
					BoardID:      board.ID(),
					RoomID:       room.ID,
					State:        state.Snapshot(),
					Participants: roster,
				}},
			},
			{
				Scope: ToOthers,
				Message: OutboundMessage{Event: EventUserJoin, Data: map[string]any{
					"userId":    participant.UserID,
					"name":      participant.Name,
					"color":     participant.Color,
					"timestamp": sm.now().UnixMilli(),
				}},
			},
		}
		sm.deliver(board.ID(), s, deliveries)
		return false
	})
	if err != nil {
		return nil, err
	}
	if joinErr != nil {
		return nil, joinErr
	}
	return deliveries, nil
}

// requestSync resends the current board to the sender
func (sm *SessionManager) requestSync(ctx context.Context, s *Session) ([]Delivery, error) {
	boardID, _, err := sm.membership(s)
	if err != nil {
		return nil, err
	}
	board, err := sm.registry.Get(boardID)
	if err != nil {
		return nil, err
	}

	var deliveries []Delivery
	err = board.Do(ctx, func(state *models.BoardState) bool {
		sm.mu.RLock()
		roomID := ""
		if room := sm.rooms[boardID]; room != nil {
			roomID = room.ID
		}
		roster := sm.rosterLocked(boardID)
		sm.mu.RUnlock()

		deliveries = []Delivery{{
			Scope: ToSender,
			Message: OutboundMessage{Event: EventSync, Data: syncData{
				BoardID:      boardID,
				RoomID:       roomID,
				State:        state.Snapshot(),
				Participants: roster,
			}},
		}}
		sm.deliver(boardID, s, deliveries)
		return false
	})
	if err != nil {
		return nil, err
	}
	return deliveries, nil
}

// mutate applies op on the sender's board and echoes the result to the room
func (sm *SessionManager) mutate(ctx context.Context, s *Session, event string, op models.Operation) ([]Delivery, error) {
	boardID, participant, err := sm.membership(s)
	if err != nil {
		return nil, err
	}
	board, err := sm.registry.Get(boardID)
	if err != nil {
		return nil, err
	}

	timestamp := sm.now().UnixMilli()
	if op.Type != models.OpDelete {
		if op.Data == nil {
			op.Data = models.Fields{}
		}
		op.Data[models.FieldTimestamp] = timestamp
		op.Data[models.FieldUserID] = participant.UserID
	}

	processor := sm.registry.Processor()
	var deliveries []Delivery
	err = board.Do(ctx, func(state *models.BoardState) bool {
		applied := processor.Apply(state, op)
		if applied == nil {
			return false
		}

		var data map[string]any
		if op.Type == models.OpDelete {
			data = map[string]any{"objectId": applied.ID}
		} else {
			data = applied.Flatten()
		}
		data[models.FieldUserID] = participant.UserID
		data[models.FieldTimestamp] = timestamp

		deliveries = []Delivery{{
			Scope:   ToRoom,
			Message: OutboundMessage{Event: event, Data: data},
		}}
		sm.deliver(boardID, s, deliveries)
		return true
	})
	if err != nil {
		return nil, err
	}
	if deliveries == nil {
		middleware.AddSpanEvent(ctx, "operation.dropped",
			attribute.String("operation.type", string(op.Type)),
			attribute.String("object.id", op.ObjectID),
		)
	}
	return deliveries, nil
}

// moveHistory runs undo or redo and broadcasts the rebuilt objects
func (sm *SessionManager) moveHistory(ctx context.Context, s *Session, event string) ([]Delivery, error) {
	boardID, participant, err := sm.membership(s)
	if err != nil {
		return nil, err
	}
	board, err := sm.registry.Get(boardID)
	if err != nil {
		return nil, err
	}

	processor := sm.registry.Processor()
	var deliveries []Delivery
	err = board.Do(ctx, func(state *models.BoardState) bool {
		move := processor.Undo
		if event == EventRedo {
			move = processor.Redo
		}
		result := move(state)
		if result == nil {
			return false
		}

		deliveries = []Delivery{{
			Scope: ToRoom,
			Message: OutboundMessage{Event: event, Data: historyData{
				UserID:    participant.UserID,
				State:     result,
				Timestamp: sm.now().UnixMilli(),
			}},
		}}
		sm.deliver(boardID, s, deliveries)
		return true
	})
	if err != nil {
		return nil, err
	}
	if deliveries == nil {
		middleware.AddSpanEvent(ctx, "history.boundary")
	}
	return deliveries, nil
}

// presence updates ephemeral participant fields and tells the other members
func (sm *SessionManager) presence(s *Session, event string, update func(*models.Participant), data map[string]any) ([]Delivery, error) {
	boardID, participant, err := sm.updateParticipant(s, update)
	if err != nil {
		return nil, err
	}

	data[models.FieldUserID] = participant.UserID
	data[models.FieldTimestamp] = sm.now().UnixMilli()

	deliveries := []Delivery{{
		Scope:   ToOthers,
		Message: OutboundMessage{Event: event, Data: data},
	}}
	sm.deliver(boardID, s, deliveries)
	return deliveries, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
