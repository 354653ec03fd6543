package http

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/proto"
	"github.com/vovakirdan/roomchat/internal/store"
)

func marshalOutbound(t *testing.T, ev *core.Event) map[string]json.RawMessage {
	t.Helper()

	raw, err := json.Marshal(outboundFromEvent(ev))
	if err != nil {
		t.Fatalf("marshal outbound: %v", err)
	}
	var frame map[string]json.RawMessage
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("unmarshal outbound: %v", err)
	}
	return frame
}

func dataKeys(t *testing.T, frame map[string]json.RawMessage) map[string]json.RawMessage {
	t.Helper()

	var data map[string]json.RawMessage
	if err := json.Unmarshal(frame["data"], &data); err != nil {
		t.Fatalf("data is not an object: %s", frame["data"])
	}
	return data
}

func TestOutboundRoomUserEventsUseRoomKey(t *testing.T) {
	user := store.UserRef{ID: 3, Username: "bob"}
	kinds := []core.EventKind{core.EventUserJoined, core.EventUserLeft, core.EventUserTyping, core.EventUserStopTyping}

	for _, kind := range kinds {
		t.Run(kind.String(), func(t *testing.T) {
			frame := marshalOutbound(t, &core.Event{Kind: kind, RoomID: 7, User: user})
			if got := string(frame["event"]); got != `"`+kind.String()+`"` {
				t.Fatalf("unexpected event name %s", got)
			}

			data := dataKeys(t, frame)
			if string(data["room"]) != "7" {
				t.Errorf("expected room 7, got %s", data)
			}
			if _, ok := data["roomId"]; ok {
				t.Errorf("unexpected roomId key in %s", frame["data"])
			}
			if string(data["user"]) != `{"id":3,"username":"bob"}` {
				t.Errorf("unexpected user %s", data["user"])
			}
		})
	}
}

func TestOutboundNotificationShape(t *testing.T) {
	frame := marshalOutbound(t, &core.Event{
		Kind:   core.EventNotification,
		RoomID: 7,
		Notice: &core.Notice{Text: "You were mentioned by alice in general", RoomID: 7, From: "alice"},
	})

	data := dataKeys(t, frame)
	if len(data) != 3 {
		t.Fatalf("expected message, room and from only, got %s", frame["data"])
	}
	if string(data["message"]) != `"You were mentioned by alice in general"` ||
		string(data["room"]) != "7" ||
		string(data["from"]) != `"alice"` {
		t.Errorf("unexpected notification payload %s", frame["data"])
	}
}

func TestOutboundUsersOnlineIsBareList(t *testing.T) {
	frame := marshalOutbound(t, &core.Event{Kind: core.EventUsersOnline, OnlineUserIDs: []int64{1, 4}})
	if got := string(frame["data"]); got != "[1,4]" {
		t.Errorf("expected [1,4], got %s", got)
	}

	frame = marshalOutbound(t, &core.Event{Kind: core.EventUsersOnline})
	if got := string(frame["data"]); got != "[]" {
		t.Errorf("expected empty list, got %s", got)
	}
}

func TestOutboundRoomConfirmationsUseRoomIDKey(t *testing.T) {
	for _, kind := range []core.EventKind{core.EventRoomJoined, core.EventRoomLeft} {
		data := dataKeys(t, marshalOutbound(t, &core.Event{Kind: kind, RoomID: 7}))
		if string(data["roomId"]) != "7" {
			t.Errorf("%s: expected roomId 7, got %v", kind, data)
		}
	}
}

func TestOutboundNewMessageShape(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	frame := marshalOutbound(t, &core.Event{
		Kind:   core.EventNewMessage,
		RoomID: 7,
		Message: &store.Message{
			ID:        11,
			RoomID:    7,
			UserID:    1,
			Username:  "alice",
			Text:      "hi @bob",
			Mentions:  []store.UserRef{{ID: 3, Username: "bob"}},
			CreatedAt: created,
		},
	})

	data := dataKeys(t, frame)
	if string(data["sender"]) != `{"id":1,"username":"alice"}` {
		t.Errorf("unexpected sender %s", data["sender"])
	}
	if string(data["mentions"]) != `[{"id":3,"username":"bob"}]` {
		t.Errorf("unexpected mentions %s", data["mentions"])
	}
	if string(data["createdAt"]) != `"2024-05-01T12:00:00Z"` {
		t.Errorf("unexpected createdAt %s", data["createdAt"])
	}
}

func TestInboundMembershipAcceptsBareRoomID(t *testing.T) {
	tests := []struct {
		name    string
		typ     string
		data    string
		kind    core.CommandKind
		roomID  int64
		wantErr bool
	}{
		{name: "join bare", typ: proto.InboundTypeJoinRoom, data: `7`, kind: core.CommandJoinRoom, roomID: 7},
		{name: "leave bare", typ: proto.InboundTypeLeaveRoom, data: `7`, kind: core.CommandLeaveRoom, roomID: 7},
		{name: "join object", typ: proto.InboundTypeJoinRoom, data: `{"roomId":7}`, kind: core.CommandJoinRoom, roomID: 7},
		{name: "join zero", typ: proto.InboundTypeJoinRoom, data: `0`, wantErr: true},
		{name: "join negative", typ: proto.InboundTypeJoinRoom, data: `-2`, wantErr: true},
		{name: "join string", typ: proto.InboundTypeJoinRoom, data: `"7"`, wantErr: true},
		{name: "leave missing", typ: proto.InboundTypeLeaveRoom, data: `{}`, wantErr: true},
		{name: "typing bare", typ: proto.InboundTypeTyping, data: `7`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, perr := inboundToCommand(proto.Inbound{Type: tt.typ, Data: json.RawMessage(tt.data)})
			if tt.wantErr {
				if perr == nil || perr.Code != core.ErrCodeBadRequest {
					t.Fatalf("expected bad_request, got %+v %+v", cmd, perr)
				}
				return
			}
			if perr != nil {
				t.Fatalf("unexpected error %+v", perr)
			}
			if cmd.Kind != tt.kind || cmd.RoomID != tt.roomID {
				t.Errorf("unexpected command %+v", cmd)
			}
		})
	}
}
