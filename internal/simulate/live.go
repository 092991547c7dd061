package simulate

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/okian/rally/internal/domain/types"
	"github.com/okian/rally/pkg/logger"
)

// liveWatcher counts result messages on the service's /live feed.
type liveWatcher struct {
	conn    *websocket.Conn
	results atomic.Int64
	done    chan struct{}
}

// watchLive connects to /live and waits for the initial status message, so
// every submission made afterwards is observed.
func watchLive(ctx context.Context, baseURL string) (*liveWatcher, error) {
	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/live"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial live feed: %w", err)
	}

	var first types.LiveMessage
	if err := conn.ReadJSON(&first); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read live status: %w", err)
	}
	if first.Type != types.MessageStatus {
		_ = conn.Close()
		return nil, fmt.Errorf("unexpected first live message %q", first.Type)
	}

	w := &liveWatcher{conn: conn, done: make(chan struct{})}
	go w.listen(ctx)
	return w, nil
}

func (w *liveWatcher) listen(ctx context.Context) {
	defer close(w.done)
	for {
		var msg types.LiveMessage
		if err := w.conn.ReadJSON(&msg); err != nil {
			logger.Get().Debug(ctx, "live feed ended", logger.Error(err))
			return
		}
		if msg.Type == types.MessageResult {
			w.results.Add(1)
		}
	}
}

// Results returns how many result messages have arrived.
func (w *liveWatcher) Results() int { return int(w.results.Load()) }

// waitFor blocks until n results arrived, the feed ended or ctx is done.
func (w *liveWatcher) waitFor(ctx context.Context, n int) {
	ticker := time.NewTicker(livePollInterval)
	defer ticker.Stop()

	for w.Results() < n {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-ticker.C:
		}
	}
}

// Close disconnects from the feed.
func (w *liveWatcher) Close() {
	_ = w.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = w.conn.Close()
	<-w.done
}
