package simulate_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/okian/rally/internal/adapters/http/api"
	service "github.com/okian/rally/internal/app"
	"github.com/okian/rally/internal/simulate"
	"github.com/okian/rally/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.InitWithWriter(io.Discard); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// newTarget starts a match tracker with no analytics client behind httptest.
func newTarget(ctx context.Context) (*httptest.Server, func()) {
	svc := service.New(service.WithLogger(logger.Nop()))
	if err := svc.Start(ctx); err != nil {
		panic(err)
	}
	mux := http.NewServeMux()
	hub := api.NewHub(api.WithHubLogger(logger.Nop()))
	api.NewServer(svc, svc, api.WithHub(hub)).Register(ctx, mux)
	srv := httptest.NewServer(mux)
	return srv, func() {
		srv.Close()
		_ = svc.Stop(context.Background())
	}
}

func TestRun(t *testing.T) {
	Convey("Given a running service", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		srv, stop := newTarget(ctx)
		defer stop()

		var out bytes.Buffer
		cfg := &simulate.Config{
			BaseURL: srv.URL,
			Matches: 40,
			Workers: 4,
			Timeout: 5 * time.Second,
			Out:     &out,
		}

		Convey("When every match is valid", func() {
			stats, err := simulate.Run(ctx, cfg)

			Convey("Then all are accepted and verified", func() {
				So(err, ShouldBeNil)
				So(stats.MatchesGenerated, ShouldEqual, 40)
				So(stats.Submitted, ShouldEqual, 40)
				So(stats.Accepted, ShouldEqual, 40)
				So(stats.Rejected, ShouldEqual, 0)
				So(stats.LastGameID, ShouldStartWith, "game_")
				So(stats.Ready, ShouldBeFalse)
				So(out.String(), ShouldContainSubstring, "Accepted:          40")
			})
		})

		Convey("When every fourth match is invalid", func() {
			cfg.InvalidEvery = 4
			stats, err := simulate.Run(ctx, cfg)

			Convey("Then those are rejected", func() {
				So(err, ShouldBeNil)
				So(stats.Accepted, ShouldEqual, 30)
				So(stats.Rejected, ShouldEqual, 10)
				So(stats.Failed, ShouldEqual, 0)
			})
		})

		Convey("When every match is invalid", func() {
			cfg.InvalidEvery = 1
			_, err := simulate.Run(ctx, cfg)

			Convey("Then verification fails", func() {
				So(errors.Is(err, simulate.ErrNothingAccepted), ShouldBeTrue)
			})
		})

		Convey("When the live feed is watched", func() {
			cfg.Watch = true
			stats, err := simulate.Run(ctx, cfg)

			Convey("Then a result message arrives for every accepted match", func() {
				So(err, ShouldBeNil)
				So(stats.LiveResults, ShouldEqual, stats.Accepted)
				So(out.String(), ShouldContainSubstring, "Live results:")
			})
		})
	})

	Convey("Given no service at the address", t, func() {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := simulate.Run(context.Background(), &simulate.Config{
			BaseURL: url, Matches: 1, Workers: 1, Timeout: time.Second,
		})

		Convey("Then the health check fails", func() {
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "health check")
		})
	})
}

func TestShowHelp(t *testing.T) {
	Convey("Given the help text", t, func() {
		var buf bytes.Buffer
		simulate.ShowHelp(&buf)

		Convey("Then every flag is documented", func() {
			for _, flag := range []string{"-url", "-matches", "-workers", "-timeout", "-invalid-every", "-watch", "-verbose", "-help"} {
				So(strings.Contains(buf.String(), flag), ShouldBeTrue)
			}
		})
	})
}
