// Package gameid issues match identifiers of the form game_<epoch-millis>_<suffix>.
//
// Uniqueness is probabilistic: the millisecond clock plus a random base36
// suffix. A bounded window of recently issued ids is kept and a suffix that
// collides inside the window is redrawn.
package gameid

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"time"

	"github.com/okian/rally/internal/domain/dedupe"
	"github.com/okian/rally/pkg/metrics"
)

// Defaults for generated ids.
const (
	Prefix            = "game_"
	DefaultSuffixLen  = 9
	defaultWindowSize = 4096
	maxRedraws        = 8
	alphabet          = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// ErrExhausted is returned when every redraw collided.
var ErrExhausted = errors.New("game id redraws exhausted")

// Generator issues ids. The zero value is not usable; call New.
type Generator struct {
	now       func() time.Time
	random    io.Reader
	suffixLen int
	window    dedupe.Deduper
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// WithRandom overrides the entropy source used for suffixes.
func WithRandom(r io.Reader) Option {
	return func(g *Generator) {
		if r != nil {
			g.random = r
		}
	}
}

// WithSuffixLength sets the number of base36 characters after the timestamp.
func WithSuffixLength(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.suffixLen = n
		}
	}
}

// WithWindow sets how many recent ids are checked for collisions.
// Zero or negative keeps every id issued by the process.
func WithWindow(size int) Option {
	return func(g *Generator) {
		g.window = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(size))
	}
}

// New builds a Generator.
func New(opts ...Option) *Generator {
	g := &Generator{
		now:       time.Now,
		random:    rand.Reader,
		suffixLen: DefaultSuffixLen,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.window == nil {
		g.window = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(defaultWindowSize))
	}
	return g
}

// Next returns a fresh id together with the instant it was stamped with.
func (g *Generator) Next(ctx context.Context) (string, time.Time, error) {
	at := g.now()
	millis := strconv.FormatInt(at.UnixMilli(), 10)

	for i := 0; i < maxRedraws; i++ {
		suffix, err := g.suffix()
		if err != nil {
			return "", at, fmt.Errorf("game id suffix: %w", err)
		}
		id := Prefix + millis + "_" + suffix
		if !g.window.SeenAndRecord(ctx, id) {
			return id, at, nil
		}
		metrics.RecordIDCollision()
	}
	return "", at, ErrExhausted
}

func (g *Generator) suffix() (string, error) {
	buf := make([]byte, g.suffixLen)
	limit := big.NewInt(int64(len(alphabet)))
	for i := range buf {
		n, err := rand.Int(g.random, limit)
		if err != nil {
			return "", err
		}
		buf[i] = alphabet[n.Int64()]
	}
	return string(buf), nil
}
