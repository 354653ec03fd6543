// Command wssmoke checks a running roomchat server end to end: it logs in over
// REST, makes sure it is a member of a room, connects the websocket and waits
// for its own message to be fanned back.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

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
		logger.Error().Err(err).Msg("smoke test failed")
		os.Exit(1)
	}
	logger.Info().Msg("smoke test passed")
}

type options struct {
	baseURL  string
	username string
	password string
	room     string
	text     string
}

func run(logger *zerolog.Logger) error {
	var opts options
	pflag.StringVar(&opts.baseURL, "url", "http://localhost:3001", "server base URL")
	pflag.StringVar(&opts.username, "user", "smoketest", "username (registered if missing)")
	pflag.StringVar(&opts.password, "password", "smoketest-password", "password")
	pflag.StringVar(&opts.room, "room", "smoke", "room name (created if missing)")
	pflag.StringVar(&opts.text, "text", "hello from smoke test", "message text to send")
	timeout := pflag.Duration("timeout", 10*time.Second, "total timeout for the run")
	pflag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	api := &apiClient{base: strings.TrimRight(opts.baseURL, "/"), http: &http.Client{Timeout: *timeout}}

	token, err := api.login(ctx, opts.username, opts.password)
	if err != nil {
		return err
	}
	api.token = token
	logger.Info().Str("user", opts.username).Msg("logged in")

	roomID, err := api.ensureRoom(ctx, opts.room)
	if err != nil {
		return err
	}
	logger.Info().Str("room", opts.room).Int64("room_id", roomID).Msg("room ready")

	wsURL := "ws" + strings.TrimPrefix(api.base, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + token}},
	})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	payload, err := json.Marshal(proto.SendMessageData{Text: opts.text, RoomID: roomID})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeSendMessage, Data: payload}); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	for {
		var out struct {
			Type  string          `json:"type"`
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
			Error *proto.Error    `json:"error"`
		}
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		logger.Debug().Str("type", out.Type).Str("event", out.Event).Msg("received")

		if out.Type == proto.OutboundTypeError && out.Error != nil {
			return fmt.Errorf("server error %s: %s", out.Error.Code, out.Error.Message)
		}
		if out.Event != "new_message" {
			continue
		}

		var msg proto.MessagePayload
		if err := json.Unmarshal(out.Data, &msg); err != nil {
			return fmt.Errorf("unmarshal message: %w", err)
		}
		if msg.Sender.Username == opts.username && msg.Text == strings.TrimSpace(opts.text) {
			logger.Info().Int64("message_id", msg.ID).Msg("message fanned out")
			return nil
		}
	}
}

type apiClient struct {
	base  string
	token string
	http  *http.Client
}

var errStatus = errors.New("unexpected status")

func (c *apiClient) call(ctx context.Context, method, path string, body, out any) (int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return resp.StatusCode, nil
}

func (c *apiClient) login(ctx context.Context, username, password string) (string, error) {
	creds := map[string]string{"username": username, "password": password}
	var auth struct {
		Token string `json:"token"`
	}

	status, err := c.call(ctx, http.MethodPost, "/api/auth/login", creds, &auth)
	if err != nil {
		return "", err
	}
	if status == http.StatusUnauthorized {
		status, err = c.call(ctx, http.MethodPost, "/api/auth/register", creds, &auth)
		if err != nil {
			return "", err
		}
	}
	if status >= 300 {
		return "", fmt.Errorf("login: %w %d", errStatus, status)
	}
	return auth.Token, nil
}

func (c *apiClient) ensureRoom(ctx context.Context, name string) (int64, error) {
	var rooms []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	if _, err := c.call(ctx, http.MethodGet, "/api/rooms", nil, &rooms); err != nil {
		return 0, err
	}

	for _, r := range rooms {
		if r.Name != name {
			continue
		}
		status, err := c.call(ctx, http.MethodPost, fmt.Sprintf("/api/rooms/%d/join", r.ID), nil, nil)
		if err != nil {
			return 0, err
		}
		// 409 means we already are a member.
		if status >= 300 && status != http.StatusConflict {
			return 0, fmt.Errorf("join room: %w %d", errStatus, status)
		}
		return r.ID, nil
	}

	var created struct {
		ID int64 `json:"id"`
	}
	status, err := c.call(ctx, http.MethodPost, "/api/rooms", map[string]string{"name": name}, &created)
	if err != nil {
		return 0, err
	}
	if status >= 300 {
		return 0, fmt.Errorf("create room: %w %d", errStatus, status)
	}
	return created.ID, nil
}
