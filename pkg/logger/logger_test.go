package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	Convey("Given the global logger", t, func() {
		So(Init(), ShouldBeNil)

		Convey("Then Get returns a usable logger", func() {
			l := Get()
			So(l, ShouldNotBeNil)
			So(func() { l.Info(context.Background(), "test message", String("k", "v")) }, ShouldNotPanic)
		})

		Convey("And Named returns a child logger", func() {
			So(Named("test"), ShouldNotBeNil)
		})

		Convey("And Sync never fails", func() {
			So(Sync(), ShouldBeNil)
		})

		Convey("And a nil writer is rejected", func() {
			So(InitWithWriter(nil), ShouldNotBeNil)
		})
	})
}

func TestLoggerOutput(t *testing.T) {
	Convey("Given a logger writing to a buffer", t, func() {
		var buf bytes.Buffer
		l := NewWithWriter(&buf, slog.LevelDebug).Named("dispatch")
		ctx := context.Background()

		Convey("When logging with fields", func() {
			l.Info(ctx, "event sent",
				String("game_id", "game_1_abc"),
				Int("n", 3),
				Bool("ready", true),
				Duration("took", 2*time.Millisecond),
				Error(errors.New("boom")),
			)
			out := buf.String()

			Convey("Then the record carries message, fields, logger name and source", func() {
				So(out, ShouldContainSubstring, "event sent")
				So(out, ShouldContainSubstring, "game_id=game_1_abc")
				So(out, ShouldContainSubstring, "n=3")
				So(out, ShouldContainSubstring, "ready=true")
				So(out, ShouldContainSubstring, "error=boom")
				So(out, ShouldContainSubstring, "logger=dispatch")
				So(out, ShouldContainSubstring, "logger_test.go:")
			})
		})
	})

	Convey("Given a logger at info level", t, func() {
		var buf bytes.Buffer
		l := NewWithWriter(&buf, slog.LevelInfo)
		l.Debug(context.Background(), "hidden")
		So(buf.Len(), ShouldEqual, 0)
	})

	Convey("Given the no-op logger", t, func() {
		l := Nop()
		So(func() {
			l.Error(context.Background(), "dropped")
			l.Named("x").Warn(context.Background(), "dropped")
		}, ShouldNotPanic)
	})
}

func TestSetLevelString(t *testing.T) {
	Convey("Given level strings", t, func() {
		for _, lvl := range []string{"debug", "info", "", "warn", "WARNING", " error "} {
			So(SetLevelString(lvl), ShouldBeNil)
		}
		So(SetLevelString("verbose"), ShouldNotBeNil)
		So(SetLevelString("info"), ShouldBeNil)
	})
}
