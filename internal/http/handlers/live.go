package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"pulsethread/internal/domain"
	"pulsethread/internal/realtime"
)

const (
	liveWriteWait  = 10 * time.Second
	livePongWait   = 60 * time.Second
	livePingPeriod = livePongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// origins are already filtered by the CORS middleware and the bearer token
	CheckOrigin: func(*http.Request) bool { return true },
}

type requestSnapshot struct {
	Request   requestDTO    `json:"request"`
	Responses []donationDTO `json:"responses"`
}

type donationSnapshot struct {
	Donation        donationDTO `json:"donation"`
	ExpectedActions any         `json:"expected_actions"`
}

// Live streams JSON snapshots over a WebSocket: one request (?request_id=), one donation
// (?donation_id=), or the caller's own active state (?scope=me, the same payload as
// /v1/me/active). Every change notification triggers a fresh read.
func (a *App) Live(w http.ResponseWriter, r *http.Request) {
	fetch, topics, err := a.liveTarget(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	// authorize and 404 before upgrading
	if _, err := fetch(r.Context()); err != nil {
		a.fail(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.liveReader(conn, cancel)

	var sub *realtime.Subscription
	if a.Hub != nil {
		sub = a.Hub.Subscribe(topics...)
		defer sub.Close()
	}

	pings := time.NewTicker(livePingPeriod)
	defer pings.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-pings.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteWait)); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	push := func(snapshot []byte) error {
		_ = conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
		return conn.WriteMessage(websocket.TextMessage, snapshot)
	}
	err = realtime.Watch(ctx, sub, a.PollInterval, fetch, push)
	switch {
	case err == nil:
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(liveWriteWait))
	case errors.Is(err, domain.ErrAuthorization), errors.Is(err, domain.ErrNotFound):
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()), time.Now().Add(liveWriteWait))
	default:
		a.Logger.Debug().Err(err).Strs("topics", topics).Msg("live view ended")
	}
}

// liveReader drains client frames so pongs and close frames are processed.
func (a *App) liveReader(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(livePongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(livePongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				a.Logger.Debug().Err(err).Msg("websocket closed unexpectedly")
			}
			return
		}
	}
}

func (a *App) liveTarget(r *http.Request) (realtime.Fetch, []string, error) {
	userID := a.currentUserID(r)
	q := r.URL.Query()
	requestID := strings.TrimSpace(q.Get("request_id"))
	donationID := strings.TrimSpace(q.Get("donation_id"))
	scope := strings.TrimSpace(q.Get("scope"))

	targets := 0
	for _, v := range []string{requestID, donationID, scope} {
		if v != "" {
			targets++
		}
	}
	if targets > 1 {
		return nil, nil, domain.Validationf("watch one of request_id, donation_id or scope")
	}

	switch {
	case scope != "":
		if scope != "me" {
			return nil, nil, domain.Validationf("unknown scope %q", scope)
		}
		fetch := func(ctx context.Context) (any, error) {
			return a.activeView(ctx, userID)
		}
		return fetch, []string{realtime.DonorTopic(userID), realtime.RequesterTopic(userID)}, nil
	case requestID != "":
		fetch := func(ctx context.Context) (any, error) {
			req, err := a.Requests.GetRequest(ctx, requestID)
			if err != nil {
				return nil, err
			}
			responses, err := a.Requests.Responses(ctx, requestID, userID)
			if err != nil {
				return nil, err
			}
			return requestSnapshot{Request: toRequestDTO(req), Responses: toDonationDTOs(responses)}, nil
		}
		return fetch, []string{realtime.RequestTopic(requestID)}, nil
	case donationID != "":
		fetch := func(ctx context.Context) (any, error) {
			d, err := a.Donations.ViewDonation(ctx, donationID, userID)
			if err != nil {
				return nil, err
			}
			return donationSnapshot{Donation: toDonationDTO(d), ExpectedActions: a.Verification.ExpectedActions(d.Status)}, nil
		}
		return fetch, []string{realtime.DonationTopic(donationID)}, nil
	default:
		return nil, nil, domain.Validationf("request_id, donation_id or scope is required")
	}
}
