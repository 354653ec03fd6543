package http

import (
	"encoding/json"
	"time"

	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/proto"
	"github.com/vovakirdan/roomchat/internal/store"
)

// ErrCodeRateLimited is returned when a connection exceeds its inbound budget.
const ErrCodeRateLimited = "rate_limited"

func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	switch inbound.Type {
	case proto.InboundTypeSendMessage:
		var msg proto.SendMessageData
		if err := json.Unmarshal(inbound.Data, &msg); err != nil {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Message: "invalid send_message payload"}
		}
		if msg.RoomID <= 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Message: "roomId is required"}
		}
		return &core.Command{Kind: core.CommandSendMessage, RoomID: msg.RoomID, Text: msg.Text}, nil
	case proto.InboundTypeJoinRoom:
		return membershipCommand(core.CommandJoinRoom, inbound)
	case proto.InboundTypeLeaveRoom:
		return membershipCommand(core.CommandLeaveRoom, inbound)
	case proto.InboundTypeTyping:
		return roomCommand(core.CommandTyping, inbound)
	case proto.InboundTypeStopTyping:
		return roomCommand(core.CommandStopTyping, inbound)
	default:
		return nil, &proto.Error{Code: core.ErrCodeBadRequest, Message: "unknown message type"}
	}
}

// membershipCommand reads the bare room id carried by join_room and leave_room,
// falling back to the {roomId} object form.
func membershipCommand(kind core.CommandKind, inbound proto.Inbound) (*core.Command, *proto.Error) {
	var roomID int64
	if err := json.Unmarshal(inbound.Data, &roomID); err != nil {
		return roomCommand(kind, inbound)
	}
	if roomID <= 0 {
		return nil, &proto.Error{Code: core.ErrCodeBadRequest, Message: "roomId is required"}
	}
	return &core.Command{Kind: kind, RoomID: roomID}, nil
}

func roomCommand(kind core.CommandKind, inbound proto.Inbound) (*core.Command, *proto.Error) {
	var data proto.RoomData
	if err := json.Unmarshal(inbound.Data, &data); err != nil {
		return nil, &proto.Error{Code: core.ErrCodeBadRequest, Message: "invalid " + inbound.Type + " payload"}
	}
	if data.RoomID <= 0 {
		return nil, &proto.Error{Code: core.ErrCodeBadRequest, Message: "roomId is required"}
	}
	return &core.Command{Kind: kind, RoomID: data.RoomID}, nil
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Message: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Message: event.Error.Message},
		}
	case core.EventUsersOnline:
		ids := event.OnlineUserIDs
		if ids == nil {
			ids = []int64{}
		}
		return eventOutbound(event, ids)
	case core.EventNewMessage:
		return eventOutbound(event, messagePayload(event.Message))
	case core.EventNotification:
		return eventOutbound(event, proto.NotificationPayload{
			Message: event.Notice.Text,
			RoomID:  event.Notice.RoomID,
			From:    event.Notice.From,
		})
	case core.EventUserJoined, core.EventUserLeft, core.EventUserTyping, core.EventUserStopTyping:
		return eventOutbound(event, proto.RoomUserPayload{RoomID: event.RoomID, User: userPayload(event.User)})
	case core.EventRoomJoined, core.EventRoomLeft:
		return eventOutbound(event, proto.RoomIDPayload{RoomID: event.RoomID})
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent, Event: event.Kind.String()}
	}
}

func eventOutbound(event *core.Event, data any) proto.Outbound {
	return proto.Outbound{Type: proto.OutboundTypeEvent, Event: event.Kind.String(), Data: data}
}

func userPayload(u store.UserRef) proto.UserPayload {
	return proto.UserPayload{ID: u.ID, Username: u.Username}
}

func messagePayload(msg *store.Message) proto.MessagePayload {
	mentions := make([]proto.UserPayload, 0, len(msg.Mentions))
	for _, m := range msg.Mentions {
		mentions = append(mentions, userPayload(m))
	}
	return proto.MessagePayload{
		ID:        msg.ID,
		RoomID:    msg.RoomID,
		Text:      msg.Text,
		Sender:    proto.UserPayload{ID: msg.UserID, Username: msg.Username},
		Mentions:  mentions,
		CreatedAt: msg.CreatedAt.UTC().Format(time.RFC3339),
	}
}
