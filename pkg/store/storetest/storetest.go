// Package storetest provides an in-process Redis server for tests of
// packages that talk to the shared store.
package storetest

import (
	"context"
	"net"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// Server is a miniredis instance with a connected client.
type Server struct {
	*miniredis.Miniredis
	Client   *redis.Client
	Commands *CommandCounter
}

// New starts a server and a client that are closed with the test.
func New(t testing.TB) *Server {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr:            mr.Addr(),
		MaxRetries:      -1,
		DisableIdentity: true,
	})
	counter := &CommandCounter{}
	client.AddHook(counter)
	t.Cleanup(func() { _ = client.Close() })

	return &Server{Miniredis: mr, Client: client, Commands: counter}
}

// Fail makes every subsequent command fail until Recover is called.
func (s *Server) Fail() {
	s.SetError("ERR injected failure")
}

// Recover clears an injected failure.
func (s *Server) Recover() {
	s.SetError("")
}

// CommandCounter is a go-redis hook that counts processed commands,
// including commands sent in pipelines.
type CommandCounter struct {
	n atomic.Int64
}

// Count returns the number of commands seen.
func (c *CommandCounter) Count() int64 {
	return c.n.Load()
}

// Reset sets the count to zero.
func (c *CommandCounter) Reset() {
	c.n.Store(0)
}

// DialHook implements redis.Hook.
func (c *CommandCounter) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

// ProcessHook implements redis.Hook.
func (c *CommandCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		c.n.Add(1)
		return next(ctx, cmd)
	}
}

// ProcessPipelineHook implements redis.Hook.
func (c *CommandCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		c.n.Add(int64(len(cmds)))
		return next(ctx, cmds)
	}
}
