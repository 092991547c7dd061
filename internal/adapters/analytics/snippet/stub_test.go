package snippet_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/okian/rally/internal/adapters/analytics/snippet"
	"github.com/okian/rally/internal/analytics"
	"github.com/okian/rally/internal/analytics/mocks"
	"github.com/okian/rally/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func loaderFor(inner analytics.Client, gate <-chan struct{}) snippet.Loader {
	return func(ctx context.Context, writeKey string, opts analytics.Options) (analytics.Client, error) {
		if gate != nil {
			<-gate
		}
		return inner, nil
	}
}

func waitInitialized(s *snippet.Stub) bool {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if s.Initialized() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return false
}

func trackedGameIDs(m *mocks.Client) []string {
	var ids []string
	for _, c := range m.Calls {
		if c.Method == "Track" {
			ids = append(ids, c.Arguments.Get(2).(map[string]string)["game_id"])
		}
	}
	return ids
}

func TestStubBuffersUntilLoaded(t *testing.T) {
	Convey("Given a stub whose library has not loaded yet", t, func() {
		inner := &mocks.Client{}
		inner.On("Track", mock.Anything, "Match Completed", mock.Anything).Return(nil)

		gate := make(chan struct{})
		s := snippet.New(
			snippet.WithLogger(logger.Nop()),
			snippet.WithLoader(loaderFor(inner, gate)),
		)
		defer s.Close()

		ctx := context.Background()
		So(s.Initialized(), ShouldBeFalse)
		So(s.Track(ctx, "Match Completed", map[string]string{"game_id": "g1"}), ShouldBeNil)
		So(s.Track(ctx, "Match Completed", map[string]string{"game_id": "g2"}), ShouldBeNil)
		So(s.Buffered(), ShouldEqual, 2)

		readyFired := make(chan struct{})
		s.Ready(func() { close(readyFired) })

		Convey("When load completes", func() {
			So(s.Load(ctx, "wk", analytics.Options{}), ShouldBeNil)
			So(s.Track(ctx, "Match Completed", map[string]string{"game_id": "g3"}), ShouldBeNil)
			close(gate)
			So(waitInitialized(s), ShouldBeTrue)
			So(s.Track(ctx, "Match Completed", map[string]string{"game_id": "g4"}), ShouldBeNil)

			Convey("Then buffered calls are replayed in order before live ones", func() {
				So(trackedGameIDs(inner), ShouldResemble, []string{"g1", "g2", "g3", "g4"})
				So(s.Buffered(), ShouldEqual, 0)
			})

			Convey("Then ready callbacks fire", func() {
				select {
				case <-readyFired:
					So(true, ShouldBeTrue)
				case <-time.After(time.Second):
					So("ready never fired", ShouldBeEmpty)
				}
			})
		})
	})
}

func TestStubReplaysPageViewsInOrder(t *testing.T) {
	Convey("Given page and track calls buffered before load", t, func() {
		inner := &mocks.Client{}
		inner.On("Page", mock.Anything, mock.Anything, mock.Anything).Return(nil)
		inner.On("Track", mock.Anything, "Match Completed", mock.Anything).Return(nil)

		gate := make(chan struct{})
		s := snippet.New(
			snippet.WithLogger(logger.Nop()),
			snippet.WithLoader(loaderFor(inner, gate)),
		)
		defer s.Close()

		ctx := context.Background()
		So(s.Track(ctx, "Match Completed", map[string]string{"game_id": "g1"}), ShouldBeNil)
		So(s.Page(ctx, "", nil), ShouldBeNil)
		So(s.Track(ctx, "Match Completed", map[string]string{"game_id": "g2"}), ShouldBeNil)
		So(s.Buffered(), ShouldEqual, 3)

		Convey("When load completes", func() {
			So(s.Load(ctx, "wk", analytics.Options{}), ShouldBeNil)
			close(gate)
			So(waitInitialized(s), ShouldBeTrue)
			So(s.Page(ctx, "Results", nil), ShouldBeNil)

			Convey("Then the calls reach the library in the order they were made", func() {
				var methods []string
				for _, c := range inner.Calls {
					methods = append(methods, c.Method)
				}
				So(methods, ShouldResemble, []string{"Track", "Page", "Track", "Page"})
				So(inner.Calls[1].Arguments.String(1), ShouldEqual, "")
				So(inner.Calls[3].Arguments.String(1), ShouldEqual, "Results")
			})
		})
	})
}

func TestStubBufferBound(t *testing.T) {
	Convey("Given a stub with a two call buffer", t, func() {
		s := snippet.New(snippet.WithLogger(logger.Nop()), snippet.WithBufferSize(2))
		ctx := context.Background()
		So(s.Track(ctx, "Match Completed", nil), ShouldBeNil)
		So(s.Track(ctx, "Match Completed", nil), ShouldBeNil)

		Convey("Then the third call is refused", func() {
			err := s.Track(ctx, "Match Completed", nil)
			So(errors.Is(err, analytics.ErrBufferFull), ShouldBeTrue)
		})
	})
}

func TestStubLoadedTwice(t *testing.T) {
	Convey("Given a stub that was already loaded", t, func() {
		var buf bytes.Buffer
		inner := &mocks.Client{}
		loads := 0
		s := snippet.New(
			snippet.WithLogger(logger.NewWithWriter(&buf, slog.LevelInfo)),
			snippet.WithLoader(func(ctx context.Context, writeKey string, opts analytics.Options) (analytics.Client, error) {
				loads++
				return inner, nil
			}),
		)
		ctx := context.Background()
		So(s.Load(ctx, "wk", analytics.Options{}), ShouldBeNil)
		So(waitInitialized(s), ShouldBeTrue)

		Convey("When Load runs again", func() {
			So(s.Load(ctx, "wk", analytics.Options{}), ShouldBeNil)
			s.Close()

			Convey("Then it warns and does not reload", func() {
				So(loads, ShouldEqual, 1)
				So(buf.String(), ShouldContainSubstring, "snippet included twice")
			})
		})
	})

	Convey("Given a missing write key", t, func() {
		s := snippet.New(snippet.WithLogger(logger.Nop()))
		So(errors.Is(s.Load(context.Background(), "", analytics.Options{}), analytics.ErrMissingWriteKey), ShouldBeTrue)
		So(s.Initialized(), ShouldBeFalse)
	})
}

func TestStubFailedLoad(t *testing.T) {
	Convey("Given a loader that fails", t, func() {
		s := snippet.New(
			snippet.WithLogger(logger.Nop()),
			snippet.WithLoader(func(ctx context.Context, writeKey string, opts analytics.Options) (analytics.Client, error) {
				return nil, errors.New("cdn unreachable")
			}),
		)
		So(s.Load(context.Background(), "wk", analytics.Options{}), ShouldBeNil)
		s.Close()

		Convey("Then the stub never becomes initialized", func() {
			So(s.Initialized(), ShouldBeFalse)
		})
	})

	Convey("Given calls buffered before a load that fails", t, func() {
		var buf bytes.Buffer
		s := snippet.New(
			snippet.WithLogger(logger.NewWithWriter(&buf, slog.LevelInfo)),
			snippet.WithLoader(func(ctx context.Context, writeKey string, opts analytics.Options) (analytics.Client, error) {
				return nil, errors.New("cdn unreachable")
			}),
		)
		ctx := context.Background()
		So(s.Track(ctx, "Match Completed", map[string]string{"game_id": "g1"}), ShouldBeNil)
		So(s.Track(ctx, "Match Completed", map[string]string{"game_id": "g2"}), ShouldBeNil)
		So(s.Load(ctx, "wk", analytics.Options{}), ShouldBeNil)
		s.Close()

		Convey("Then the buffer is dropped and the loss is logged", func() {
			So(s.Buffered(), ShouldEqual, 0)
			So(buf.String(), ShouldContainSubstring, "analytics library failed to load")
			So(buf.String(), ShouldContainSubstring, "dropped_calls=2")
		})
	})

	Convey("Given a delayed load that is abandoned", t, func() {
		loads := 0
		s := snippet.New(
			snippet.WithLogger(logger.Nop()),
			snippet.WithLoadDelay(time.Hour),
			snippet.WithLoader(func(ctx context.Context, writeKey string, opts analytics.Options) (analytics.Client, error) {
				loads++
				return &mocks.Client{}, nil
			}),
		)
		So(s.Load(context.Background(), "wk", analytics.Options{}), ShouldBeNil)
		s.Close()
		So(loads, ShouldEqual, 0)
		So(s.Initialized(), ShouldBeFalse)
	})
}
