// Package resourcetest provides in-memory connection and persistence context
// fakes for tests of packages built on package resource.
package resourcetest

import (
	"context"
	"sync/atomic"
)

// Conn is a fake resource.Conn that counts Close calls.
type Conn struct {
	name     string
	closed   atomic.Int32
	CloseErr error
	PingErr  error
}

// NewConn creates a fake connection with the given unique name.
func NewConn(name string) *Conn {
	return &Conn{name: name}
}

func (c *Conn) Name() string { return c.name }

func (c *Conn) Ping(context.Context) error { return c.PingErr }

func (c *Conn) Close() error {
	c.closed.Add(1)
	return c.CloseErr
}

// Closed reports how many times Close was called.
func (c *Conn) Closed() int { return int(c.closed.Load()) }

// Context is a fake resource.PersistenceContext bound to a Conn.
type Context struct {
	name     string
	Conn     *Conn
	closed   atomic.Int32
	CloseErr error
}

// NewContext creates a fake persistence context.
func NewContext(name string, conn *Conn) *Context {
	return &Context{name: name, Conn: conn}
}

func (c *Context) Name() string { return c.name }

func (c *Context) Close() error {
	c.closed.Add(1)
	return c.CloseErr
}

// Closed reports how many times Close was called.
func (c *Context) Closed() int { return int(c.closed.Load()) }
