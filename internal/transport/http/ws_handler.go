package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/roomchat/internal/auth"
	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/proto"
)

var errConnectionDone = errors.New("connection done")

// WSOptions bounds what a single websocket connection may send.
type WSOptions struct {
	MaxMessageBytes int64
	RatePerMinute   int
}

// WSHandler authenticates, upgrades and bridges websocket connections to the hub.
type WSHandler struct {
	hub  *core.Hub
	opts WSOptions
	log  *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, opts WSOptions, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{hub: hub, opts: opts, log: logger}
}

// Handle serves GET /ws. The credential comes from the Authorization header or
// the token query parameter and is checked before the upgrade.
func (h *WSHandler) Handle(c *gin.Context) {
	credential := c.Query("token")
	if header := c.GetHeader("Authorization"); header != "" {
		if token, err := auth.BearerToken(header); err == nil {
			credential = token
		}
	}

	client, err := h.hub.Authenticate(c.Request.Context(), credential)
	if err != nil {
		ce := core.AsCoreError(err)
		status := http.StatusUnauthorized
		if ce.Code == core.ErrCodeStorageFailure {
			status = http.StatusInternalServerError
		}
		h.log.Debug().Str("code", ce.Code).Msg("ws connection refused")
		abortWithError(c, status, ce)
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()
	if h.opts.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.opts.MaxMessageBytes)
	}

	ctx := c.Request.Context()
	if err := h.hub.Activate(ctx, client); err != nil {
		conn.Close(websocket.StatusTryAgainLater, "connection closed")
		return
	}
	defer h.hub.Disconnect(client)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return h.readLoop(gctx, conn, client)
	})
	g.Go(func() error {
		return h.writeLoop(gctx, conn, client)
	})
	g.Go(func() error {
		h.hub.Serve(gctx, client)
		return errConnectionDone
	})

	err = g.Wait()

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, errConnectionDone) && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = "internal error"
			h.log.Warn().Err(err).Str("conn_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	limiter := newRateLimiter(h.opts.RatePerMinute)
	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			h.log.Debug().Err(err).Str("conn_id", client.ID).Msg("read ws inbound")
			return err
		}

		if !limiter.allow() {
			client.Send(&core.Event{Kind: core.EventError, Error: &core.CoreError{
				Code:    ErrCodeRateLimited,
				Message: "too many messages, slow down",
			}})
			continue
		}

		var inbound proto.Inbound
		if err := json.Unmarshal(raw, &inbound); err != nil {
			client.Send(&core.Event{Kind: core.EventError, Error: &core.CoreError{
				Code:    core.ErrCodeBadRequest,
				Message: "malformed frame",
			}})
			continue
		}

		cmd, protoErr := inboundToCommand(inbound)
		if protoErr != nil {
			client.Send(&core.Event{Kind: core.EventError, Error: &core.CoreError{
				Code:    protoErr.Code,
				Message: protoErr.Message,
			}})
			continue
		}
		if err := client.Submit(ctx, cmd); err != nil {
			if errors.Is(err, core.ErrConnectionClosed) {
				return errConnectionDone
			}
			return err
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event := <-client.Events:
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Debug().Err(err).Str("conn_id", client.ID).Msg("write ws event")
				return err
			}
		case <-client.Done():
			return errConnectionDone
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
