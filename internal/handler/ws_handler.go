package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/ieltsmock-backend/internal/apperr"
	"github.com/stemsi/ieltsmock-backend/internal/config"
	"github.com/stemsi/ieltsmock-backend/internal/response"
	"github.com/stemsi/ieltsmock-backend/internal/service"
	"github.com/stemsi/ieltsmock-backend/internal/session"
	ws "github.com/stemsi/ieltsmock-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler runs the live exam session over a WebSocket: the countdown,
// the anti-cheat gate, autosave and (auto-)submit.
type WSHandler struct {
	attemptService *service.AttemptService
	log            zerolog.Logger
	upgrader       websocket.Upgrader

	tick        time.Duration
	submitDelay time.Duration
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attemptService *service.AttemptService, cfg *config.Config, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		attemptService: attemptService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(cfg.AllowedOrigins),
		tick:           time.Second,
		submitDelay:    cfg.AutoSubmitDelay,
	}
}

// ExamStream godoc
// WS /ws/v1/exam/stream?token=
// Upgrades to WebSocket for a candidate's attempt.
func (h *WSHandler) ExamStream(c *gin.Context) {
	attemptID, ok := candidateAttempt(c)
	if !ok {
		return
	}

	reqCtx := c.Request.Context()
	attempt, err := h.attemptService.Get(reqCtx, attemptID)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	if attempt.IsSubmitted {
		response.FailErr(c, apperr.AlreadySubmitted("attempt has already been submitted"))
		return
	}
	remaining, err := h.attemptService.Remaining(reqCtx, attemptID)
	if err != nil {
		response.FailErr(c, err)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(raw)
	defer conn.Close()

	wsLog := h.log.With().
		Str("attempt_id", attemptID.String()).
		Str("test_id", attempt.TestID.String()).
		Logger()

	ctx, cancel := context.WithCancel(reqCtx)
	defer cancel()

	sess := session.New(ctx, attempt, remaining, h.attemptService, session.Options{
		Tick:        h.tick,
		SubmitDelay: h.submitDelay,
		Hooks: session.Hooks{
			Tick: func(left int, warning bool) {
				_ = conn.WriteJSON(ws.EventTick, ws.TickData{Remaining: left, Warning: warning})
			},
			TimeUp: func() {
				_ = conn.WriteJSON(ws.EventTimeUp, nil)
			},
			GateChanged: func(blocked bool) {
				if blocked {
					_ = conn.WriteJSON(ws.EventBlocked, nil)
				} else {
					_ = conn.WriteJSON(ws.EventUnblocked, nil)
				}
			},
			Submitted: func(res *service.SubmitResult) {
				_ = conn.WriteJSON(ws.EventSubmitted, ws.SubmittedData{
					Duration:         res.Attempt.Duration,
					AlreadySubmitted: res.AlreadySubmitted,
				})
			},
		},
	}, wsLog)
	defer sess.Close()

	go sess.Run(ctx)
	go conn.KeepAlive(ctx.Done())

	wsLog.Info().Int("remaining", remaining).Msg("Candidate connected")
	_ = conn.WriteJSON(ws.EventReady, ws.ReadyData{
		AttemptID: attemptID.String(),
		Remaining: remaining,
		Blocked:   sess.Gate().Blocked(),
		Section:   sess.Section(),
	})

	for {
		var msg ws.RequestEnvelope
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}
		h.dispatch(ctx, conn, sess, &msg, wsLog)
	}
}

func (h *WSHandler) dispatch(ctx context.Context, conn *ws.Conn, sess *session.Session, msg *ws.RequestEnvelope, log zerolog.Logger) {
	switch msg.Action {
	case ws.ActionPing:
		_ = conn.WriteJSON(ws.EventPong, nil)

	case ws.ActionFullscreenEnter:
		sess.Gate().EnterFullscreen()
	case ws.ActionFullscreenExit:
		sess.Gate().ExitFullscreen()
	case ws.ActionBlur:
		sess.Gate().Blur()
	case ws.ActionHidden:
		sess.Gate().Hidden()
	case ws.ActionFocus, ws.ActionVisible:
		// Only re-entering fullscreen lifts the lock.

	case ws.ActionNavigate:
		var req ws.NavigateRequest
		if !decode(conn, msg.Data, &req) {
			return
		}
		if err := sess.Navigate(req.Section); err != nil {
			writeErr(conn, err)
			return
		}
		_ = conn.WriteJSON(ws.EventNavigated, ws.NavigateRequest{Section: req.Section})

	case ws.ActionAutosave:
		var req ws.AutosaveRequest
		if !decode(conn, msg.Data, &req) {
			return
		}
		if !req.Section.Valid() {
			writeErr(conn, apperr.Validation(map[string]string{"section": "section must be one of reading, listening, writing"}))
			return
		}
		a, err := sess.SaveSection(ctx, req.Section, req.Answers)
		if err != nil {
			writeErr(conn, err)
			return
		}
		_ = conn.WriteJSON(ws.EventSaved, ws.SavedData{Section: req.Section, LastSaved: a.LastSaved})

	case ws.ActionHighlights:
		var req ws.HighlightsRequest
		if !decode(conn, msg.Data, &req) {
			return
		}
		a, err := sess.SaveHighlights(ctx, req.Highlights)
		if err != nil {
			writeErr(conn, err)
			return
		}
		_ = conn.WriteJSON(ws.EventSaved, ws.SavedData{LastSaved: a.LastSaved})

	case ws.ActionSubmit:
		res, err := sess.Submit(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Submit failed")
			writeErr(conn, err)
			return
		}
		if res.AlreadySubmitted {
			_ = conn.WriteJSON(ws.EventSubmitted, ws.SubmittedData{Duration: res.Attempt.Duration, AlreadySubmitted: true})
		}

	default:
		log.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		_ = conn.WriteError(string(response.ErrValidation), "unknown action: "+string(msg.Action))
	}
}

func decode(conn *ws.Conn, data json.RawMessage, dst interface{}) bool {
	if len(data) == 0 {
		_ = conn.WriteError(string(response.ErrValidation), "data is required")
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		_ = conn.WriteError(string(response.ErrValidation), "malformed data")
		return false
	}
	return true
}

func writeErr(conn *ws.Conn, err error) {
	switch {
	case errors.Is(err, session.ErrBlocked):
		_ = conn.WriteError("BLOCKED", err.Error())
	case errors.Is(err, session.ErrClosed):
		_ = conn.WriteError("CLOSED", err.Error())
	default:
		status, code := response.Classify(err)
		msg := apperr.MessageOf(err)
		if status == http.StatusInternalServerError {
			msg = response.GetMessage(code)
		}
		_ = conn.WriteError(string(code), msg)
	}
}

var _ session.Attempts = (*service.AttemptService)(nil)
