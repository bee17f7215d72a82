package openapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/autom8ter/querylens/errors"
	"github.com/autom8ter/querylens/transport/openapi/httpError"
	"github.com/gorilla/websocket"
	"github.com/spf13/cast"
)

// feedInterval parses a duration such as "30s" or a number of seconds, clamped to MinFeedInterval
func feedInterval(value string, fallback time.Duration) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return clampInterval(fallback), nil
	}
	if d, err := time.ParseDuration(value); err == nil {
		return clampInterval(d), nil
	}
	seconds, err := cast.ToFloat64E(value)
	if err != nil {
		return 0, errors.WrapKind(err, errors.ErrInvalidArgument, "invalid interval: %q", value)
	}
	return clampInterval(time.Duration(seconds * float64(time.Second))), nil
}

func clampInterval(d time.Duration) time.Duration {
	if d < MinFeedInterval {
		return MinFeedInterval
	}
	return d
}

// feedHandler upgrades to a websocket and pushes a query stats snapshot on every tick
// until the client disconnects or the server closes
func (o *Server) feedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		interval, err := feedInterval(r.URL.Query().Get("interval"), o.params.FeedInterval)
		if err != nil {
			httpError.Error(w, err)
			return
		}
		conn, err := o.upgrader.Upgrade(w, r, nil)
		if err != nil {
			o.logger.Warn(r.Context(), "failed to upgrade query stats feed", map[string]any{"error": err})
			return
		}
		defer conn.Close()
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
		o.logger.Debug(ctx, "query stats feed opened", map[string]any{"interval": interval.String()})
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			var msg any
			result, err := o.svc.QueryStats(ctx, nil)
			if err != nil {
				msg = httpError.NewResponse(err)
			} else {
				msg = queryStatsResponse{Success: true, QueryStatsResult: result}
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-o.done:
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			case <-ticker.C:
			}
		}
	}
}
