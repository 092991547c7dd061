package service_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/okian/rally/internal/adapters/analytics/htevents"
	"github.com/okian/rally/internal/adapters/analytics/snippet"
	service "github.com/okian/rally/internal/app"
	"github.com/okian/rally/internal/domain/model"
	"github.com/okian/rally/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

type collector struct {
	mu     sync.Mutex
	events []htevents.TrackMessage
	pages  []htevents.TrackMessage
}

func (c *collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var msg htevents.TrackMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	c.mu.Lock()
	if r.URL.Path == "/v1/page" {
		c.pages = append(c.pages, msg)
	} else {
		c.events = append(c.events, msg)
	}
	c.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (c *collector) gameIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.events))
	for _, e := range c.events {
		ids = append(ids, e.Properties["game_id"])
	}
	return ids
}

func (c *collector) pageViews() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pages)
}

func TestServiceIntegration(t *testing.T) {
	Convey("Given a service using the module client against a collector", t, func() {
		col := &collector{}
		srv := httptest.NewServer(col)
		defer srv.Close()

		svc := service.New(
			service.WithClient(htevents.New(htevents.WithLogger(logger.Nop()))),
			service.WithClientMode("module"),
			service.WithWriteKey("wk"),
			service.WithAPIHost(srv.URL),
			service.WithLogger(logger.Nop()),
		)
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)

		Convey("When several matches are submitted", func() {
			var want []string
			for i := 0; i < 5; i++ {
				ev, _, err := svc.SubmitMatch(ctx, tableTennis())
				So(err, ShouldBeNil)
				want = append(want, ev.GameID)
			}
			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then the collector received them in order with the wire properties", func() {
				So(col.gameIDs(), ShouldResemble, want)
				col.mu.Lock()
				defer col.mu.Unlock()
				first := col.events[0]
				So(first.Event, ShouldEqual, model.EventMatchCompleted)
				So(first.Properties["sport_type"], ShouldEqual, "table_tennis")
				So(first.Properties["winner_email"], ShouldEqual, "a@x.com")
				So(first.Properties["loser_email"], ShouldEqual, "b@x.com")
				So(col.pages, ShouldHaveLength, 1)
				So(col.pages[0].Type, ShouldEqual, "page")
			})
		})
	})

	Convey("Given a service using the snippet client with a slow library load", t, func() {
		col := &collector{}
		srv := httptest.NewServer(col)
		defer srv.Close()

		svc := service.New(
			service.WithClient(snippet.New(
				snippet.WithLogger(logger.Nop()),
				snippet.WithLoadDelay(50*time.Millisecond),
			)),
			service.WithClientMode("snippet"),
			service.WithWriteKey("wk"),
			service.WithAPIHost(srv.URL),
			service.WithLogger(logger.Nop()),
		)
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)

		Convey("When a match is submitted before the library loads", func() {
			So(svc.Ready(), ShouldBeFalse)
			ev, pending, err := svc.SubmitMatch(ctx, tableTennis())
			So(err, ShouldBeNil)
			out, err := pending.Wait(ctx)
			So(err, ShouldBeNil)

			Convey("Then it is accepted, replayed after load and the service turns ready", func() {
				So(out.Status, ShouldEqual, model.StatusDelivered)
				deadline := time.Now().Add(2 * time.Second)
				for !svc.Ready() && time.Now().Before(deadline) {
					time.Sleep(5 * time.Millisecond)
				}
				So(svc.Ready(), ShouldBeTrue)
				So(svc.Stop(ctx), ShouldBeNil)
				So(col.gameIDs(), ShouldResemble, []string{ev.GameID})
				So(col.pageViews(), ShouldEqual, 1)
			})
		})
	})
}
