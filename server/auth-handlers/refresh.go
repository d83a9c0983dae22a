package auth

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/jrschumacher/folio/components"
	"github.com/jrschumacher/folio/internal/httputil"
	"github.com/jrschumacher/folio/internal/jwtutil"
	"github.com/jrschumacher/folio/internal/logger"
	"github.com/jrschumacher/folio/internal/refresher"
	"github.com/jrschumacher/folio/internal/tokenpolicy"
	datastar "github.com/starfederation/datastar/sdk/go"
)

// SessionSignals is the datastar signal payload under "session".
type SessionSignals struct {
	ExpiresIn  int64 `json:"expires_in"`
	NextPollMS int64 `json:"next_poll_ms"`
	OK         bool  `json:"ok"`
}

// RefreshResult is the JSON payload under "data".
type RefreshResult struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	NextPollMS  int64  `json:"next_poll_ms"`
}

// Now is the clock used for poll intervals; tests replace it.
var Now = time.Now

func isDatastar(r *http.Request) bool {
	return r.Header.Get("Datastar-Request") == "true"
}

// SessionRefreshHandler renews the access credential for page script and
// keepalive clients. The renewal credential comes from its cookie, or from a
// JSON body {"refresh_token": ...} for non-browser clients.
func (rt *AuthRouter) SessionRefreshHandler(w http.ResponseWriter, r *http.Request) {
	creds := rt.cookies.CredentialsFromRequest(r)
	if creds.Renewal == "" && !isDatastar(r) {
		var body refresher.Request
		if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&body); err == nil {
			creds.Renewal = body.RefreshToken
		}
	}

	access, err := rt.sessions.Refresh(r.Context(), creds.Renewal)
	now := Now().Unix()

	if err != nil {
		status := http.StatusBadGateway
		if !errors.Is(err, refresher.ErrRefreshFailed) {
			status = http.StatusUnauthorized
			rt.cookies.Clear(w)
		}
		logger.Info("Session refresh failed", "status", status, "error", err)

		if isDatastar(r) {
			// Keep polling after a transient failure, at the cadence of the
			// credential the page still holds.
			stale, _ := jwtutil.Decode(creds.Access)
			next := tokenpolicy.RefreshPollIntervalMS(stale, now)
			rt.sendSignals(w, r, SessionSignals{
				ExpiresIn:  tokenpolicy.TimeRemaining(stale, now),
				NextPollMS: next,
			}, status == http.StatusBadGateway)
			return
		}
		msg := "session refresh unavailable"
		if status == http.StatusUnauthorized {
			msg = "session expired"
		}
		httputil.WriteError(w, status, msg)
		return
	}

	rt.cookies.SetAccess(w, access)
	claims, _ := jwtutil.Decode(access)
	result := RefreshResult{
		AccessToken: access,
		ExpiresIn:   tokenpolicy.TimeRemaining(claims, now),
		NextPollMS:  tokenpolicy.RefreshPollIntervalMS(claims, now),
	}

	if isDatastar(r) {
		rt.sendSignals(w, r, SessionSignals{ExpiresIn: result.ExpiresIn, NextPollMS: result.NextPollMS, OK: true}, true)
		return
	}
	httputil.WriteData(w, http.StatusOK, result)
}

// sendSignals answers a datastar request. Cookies must already be set: the
// SSE stream commits the headers. When keepPolling is false the keepalive
// element is replaced with an inert one.
func (rt *AuthRouter) sendSignals(w http.ResponseWriter, r *http.Request, s SessionSignals, keepPolling bool) {
	sse := datastar.NewSSE(w, r)

	payload, err := json.Marshal(map[string]SessionSignals{"session": s})
	if err != nil {
		logger.Error("Failed to encode session signals", "error", err)
		return
	}
	if err := sse.MergeSignals(payload); err != nil {
		logger.Error("Failed to send session signals", "error", err)
		return
	}

	if keepPolling {
		err = sse.MergeFragmentTempl(components.SessionKeepalive(s.NextPollMS))
	} else {
		err = sse.MergeFragments(`<div id="` + components.KeepaliveID + `"></div>`)
	}
	if err != nil {
		logger.Error("Failed to send keepalive fragment", "error", err)
	}
}
