// Package gateway implements domain.Store against a REST and websocket
// trading gateway.
package gateway

import (
	"context"
	"sync/atomic"
	"time"

	"quantbroker/internal/domain"
)

// Options configures a Gateway.
type Options struct {
	RestURL     string
	WSURL       string // empty disables push, the broker polls instead
	AccessKey   string
	SecretKey   string
	Passphrase  string
	Instruments []string
	Timeout     time.Duration
}

// Gateway is a domain.Store. Requests go over REST and reports arrive
// over the websocket stream when one is configured.
type Gateway struct {
	*Client
	stream *stream
	up     atomic.Bool
}

var _ domain.Store = (*Gateway)(nil)

// New creates a gateway store. Nothing is dialed until Connect.
func New(opts Options) *Gateway {
	signer := NewSigner(opts.AccessKey, opts.SecretKey, opts.Passphrase)
	g := &Gateway{Client: NewClient(opts.RestURL, signer, opts.Timeout)}
	if opts.WSURL != "" {
		g.stream = newStream(opts.WSURL, opts.Instruments, signer)
	}
	return g
}

// Connect checks the REST side and opens a fresh stream session.
func (g *Gateway) Connect(ctx context.Context) error {
	if err := g.Ping(ctx); err != nil {
		g.up.Store(false)
		return err
	}
	if g.stream != nil {
		if err := g.stream.connect(ctx); err != nil {
			g.up.Store(false)
			return err
		}
	}
	g.up.Store(true)
	return nil
}

// Close ends the stream session.
func (g *Gateway) Close() error {
	g.up.Store(false)
	if g.stream != nil {
		g.stream.close()
	}
	return nil
}

// Connected reports a live session. With a stream the session follows
// the websocket, otherwise the last Connect result.
func (g *Gateway) Connected() bool {
	if !g.up.Load() {
		return false
	}
	if g.stream != nil {
		return g.stream.isConnected()
	}
	return true
}

// Events returns pushed reports, nil without a stream.
func (g *Gateway) Events() <-chan domain.Payload {
	if g.stream == nil {
		return nil
	}
	return g.stream.events
}

// Bars returns pushed bars, nil without a stream.
func (g *Gateway) Bars() <-chan BarEvent {
	if g.stream == nil {
		return nil
	}
	return g.stream.bars
}
