// Command wschat is an interactive terminal client for a roomchat server.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/vovakirdan/roomchat/internal/log"
	"github.com/vovakirdan/roomchat/internal/proto"
)

func main() {
	logger := log.New("info")
	if err := run(logger); err != nil {
		logger.Error().Err(err).Msg("wschat failed")
		os.Exit(1)
	}
}

func run(logger *zerolog.Logger) error {
	addr := pflag.StringP("addr", "a", "ws://localhost:3001/ws", "WebSocket address")
	token := pflag.StringP("token", "t", os.Getenv("ROOMCHAT_TOKEN"), "JWT obtained from /api/auth/login")
	room := pflag.Int64P("room", "r", 0, "room id to post into")
	pflag.Parse()

	if *token == "" {
		return errors.New("a token is required (--token or ROOMCHAT_TOKEN)")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + *token}},
	})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	fmt.Printf("Connected to %s, posting into room %d\n", *addr, *room)
	fmt.Println("Commands: /join <id>, /leave <id>, /room <id>. Anything else is sent as a message.")

	go func() {
		defer cancel()
		readLoop(ctx, conn, logger)
	}()

	writeLoop(ctx, conn, *room, logger)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

type frame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func readLoop(ctx context.Context, conn *websocket.Conn, logger *zerolog.Logger) {
	for {
		var in frame
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			logger.Warn().Err(err).Msg("read error")
			return
		}

		if in.Type == proto.OutboundTypeError && in.Error != nil {
			fmt.Printf("! %s: %s\n", in.Error.Code, in.Error.Message)
			continue
		}
		printEvent(in, logger)
	}
}

func printEvent(in frame, logger *zerolog.Logger) {
	switch in.Event {
	case "new_message":
		var msg proto.MessagePayload
		if err := json.Unmarshal(in.Data, &msg); err != nil {
			logger.Warn().Err(err).Msg("unmarshal new_message")
			return
		}
		fmt.Printf("[room %d] %s: %s\n", msg.RoomID, msg.Sender.Username, msg.Text)
	case "notification":
		var note proto.NotificationPayload
		if err := json.Unmarshal(in.Data, &note); err != nil {
			logger.Warn().Err(err).Msg("unmarshal notification")
			return
		}
		fmt.Printf("* %s\n", note.Message)
	case "user_joined", "user_left", "user_typing", "user_stop_typing":
		var evt proto.RoomUserPayload
		if err := json.Unmarshal(in.Data, &evt); err != nil {
			logger.Warn().Err(err).Msg("unmarshal room event")
			return
		}
		fmt.Printf("[room %d] %s %s\n", evt.RoomID, evt.User.Username, strings.TrimPrefix(in.Event, "user_"))
	case "users_online":
		var online []int64
		if err := json.Unmarshal(in.Data, &online); err != nil {
			logger.Warn().Err(err).Msg("unmarshal users_online")
			return
		}
		fmt.Printf("online: %v\n", online)
	default:
		fmt.Printf("event=%s data=%s\n", in.Event, in.Data)
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, room int64, logger *zerolog.Logger) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			typ, data := proto.InboundTypeSendMessage, any(proto.SendMessageData{Text: text, RoomID: room})
			if cmd, arg, found := strings.Cut(text, " "); found && strings.HasPrefix(cmd, "/") {
				id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
				if err != nil {
					fmt.Println("! room id must be a number")
					continue
				}
				switch cmd {
				case "/join":
					typ, data = proto.InboundTypeJoinRoom, id
				case "/leave":
					typ, data = proto.InboundTypeLeaveRoom, id
				case "/room":
					room = id
					fmt.Printf("posting into room %d\n", room)
					continue
				default:
					fmt.Println("! unknown command")
					continue
				}
			}

			payload, err := json.Marshal(data)
			if err != nil {
				logger.Error().Err(err).Msg("marshal inbound")
				return
			}
			if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
				logger.Error().Err(err).Msg("send error")
				return
			}
		}
	}
}
