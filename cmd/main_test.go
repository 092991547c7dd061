package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/rally/internal/adapters/analytics/htevents"
	"github.com/okian/rally/internal/adapters/analytics/snippet"
	app "github.com/okian/rally/internal/app"
	"github.com/okian/rally/internal/config"
	"github.com/okian/rally/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	return addr
}

func TestConfigFromEnvironment(t *testing.T) {
	t.Setenv("RALLY_ADDR", ":8181")
	t.Setenv("RALLY_CLIENT_MODE", "snippet")
	t.Setenv("RALLY_WRITE_KEY", "wk")
	t.Setenv("RALLY_DELIVERY_QUEUE_SIZE", "16")

	convey.Convey("Given environment overrides", t, func() {
		cfg, err := config.Load(context.Background())

		convey.Convey("Then configuration should reflect them", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":8181")
			convey.So(cfg.ClientMode, convey.ShouldEqual, config.ClientSnippet)
			convey.So(cfg.WriteKey, convey.ShouldEqual, "wk")
			convey.So(cfg.DeliveryQueueSize, convey.ShouldEqual, 16)
		})
	})
}

func TestNewClient(t *testing.T) {
	log := logger.Nop()

	convey.Convey("Given a config per client mode", t, func() {
		cfg := config.New()

		convey.Convey("Then module mode builds the direct client", func() {
			cfg.ClientMode = config.ClientModule
			_, ok := newClient(cfg, log).(*htevents.Client)
			convey.So(ok, convey.ShouldBeTrue)
		})

		convey.Convey("Then snippet mode builds the buffering stub", func() {
			cfg.ClientMode = config.ClientSnippet
			_, ok := newClient(cfg, log).(*snippet.Stub)
			convey.So(ok, convey.ShouldBeTrue)
		})

		convey.Convey("Then none mode has no client", func() {
			cfg.ClientMode = config.ClientNone
			convey.So(newClient(cfg, log), convey.ShouldBeNil)
		})
	})
}

func TestNewMux(t *testing.T) {
	convey.Convey("Given a started service and its mux", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		svc := newService(config.New(), logger.Nop())
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer func() { _ = svc.Stop(context.Background()) }()
		mux := newMux(ctx, svc, logger.Nop())

		convey.Convey("Then every route is registered", func() {
			for _, path := range []string{"/", "/status", "/stats", "/healthz", "/api-docs", "/openapi.yaml"} {
				rec := httptest.NewRecorder()
				mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
			}
		})

		convey.Convey("Then the last result starts empty", func() {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/matches/last", nil))
			convey.So(rec.Code, convey.ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestRun(t *testing.T) {
	if err := logger.InitWithWriter(io.Discard); err != nil {
		t.Fatalf("logger: %v", err)
	}

	convey.Convey("Given a config on a free port", t, func() {
		cfg := config.New()
		cfg.Addr = freeAddr(t)
		ctx, cancel := context.WithCancel(context.Background())
		convey.Reset(cancel)

		done := make(chan error, 1)
		go func() { done <- run(ctx, cfg, logger.Nop()) }()

		convey.Convey("When the server is up", func() {
			var resp *http.Response
			var err error
			for i := 0; i < 50; i++ {
				resp, err = http.Get("http://" + cfg.Addr + "/status")
				if err == nil {
					break
				}
				time.Sleep(20 * time.Millisecond)
			}
			convey.So(err, convey.ShouldBeNil)
			_ = resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)

			convey.Convey("Then canceling the context shuts it down cleanly", func() {
				cancel()
				select {
				case err := <-done:
					convey.So(err, convey.ShouldBeNil)
				case <-time.After(5 * time.Second):
					convey.So("run did not return", convey.ShouldBeEmpty)
				}
			})
		})
	})
}

func TestUpdateMetrics(t *testing.T) {
	convey.Convey("Given the metrics updaters", t, func() {
		svc := app.New(app.WithLogger(logger.Nop()))

		convey.Convey("Then a single update does not panic", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
			convey.So(func() { updateServiceMetrics(svc) }, convey.ShouldNotPanic)
		})

		convey.Convey("Then updaters stop with their context", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			done := make(chan struct{})
			go func() {
				startSystemMetricsUpdater(ctx)
				startServiceMetricsUpdater(ctx, svc)
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(time.Second):
				convey.So("updaters did not stop", convey.ShouldBeEmpty)
			}
		})
	})
}
