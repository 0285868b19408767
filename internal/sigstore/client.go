package sigstore

import (
	"context"
	"encoding/gob"
	"errors"
	"net"
	"sync"
	"time"
)

// Client is a Store that talks to a remote Service. Writes go over the push
// channel fire-and-forget (the worker never blocks on a signature write);
// reads and lock operations use the req channel and wait for the reply.
type Client struct {
	pushMu  sync.Mutex
	pushEnc *gob.Encoder
	push    net.Conn

	reqMu  sync.Mutex
	reqEnc *gob.Encoder
	reqDec *gob.Decoder
	req    net.Conn
}

// Ensure Client implements Store.
var _ Store = (*Client)(nil)

// Dial connects to a signature-store service at the given push and req
// addresses. network is e.g. "tcp" or "unix".
func Dial(network, pushAddr, reqAddr string) (*Client, error) {
	push, err := net.Dial(network, pushAddr)
	if err != nil {
		return nil, err
	}
	req, err := net.Dial(network, reqAddr)
	if err != nil {
		_ = push.Close()
		return nil, err
	}
	return &Client{
		push:    push,
		pushEnc: gob.NewEncoder(push),
		req:     req,
		reqEnc:  gob.NewEncoder(req),
		reqDec:  gob.NewDecoder(req),
	}, nil
}

// roundTrip sends a request on the req channel and waits for its reply.
func (c *Client) roundTrip(r request) (response, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	if err := c.reqEnc.Encode(r); err != nil {
		return response{}, err
	}
	var resp response
	if err := c.reqDec.Decode(&resp); err != nil {
		return response{}, err
	}
	if resp.Err != "" {
		return resp, errors.New(resp.Err)
	}
	return resp, nil
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := c.roundTrip(request{Op: opGet, Key: key})
	if err != nil {
		return nil, err
	}
	if resp.NotFound {
		return nil, ErrNotFound
	}
	return resp.Sig, nil
}

func (c *Client) Put(ctx context.Context, key string, sig []byte) error {
	c.pushMu.Lock()
	defer c.pushMu.Unlock()
	return c.pushEnc.Encode(request{Op: opPut, Key: key, Sig: sig})
}

func (c *Client) Keys(ctx context.Context) ([]string, error) {
	resp, err := c.roundTrip(request{Op: opKeys})
	if err != nil {
		return nil, err
	}
	return resp.Keys, nil
}

func (c *Client) Remove(ctx context.Context, keys ...string) (int, error) {
	resp, err := c.roundTrip(request{Op: opRemove, Keys: keys})
	if err != nil {
		return 0, err
	}
	return resp.N, nil
}

func (c *Client) Clear(ctx context.Context) error {
	_, err := c.roundTrip(request{Op: opClear})
	return err
}

func (c *Client) TryAcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	resp, err := c.roundTrip(request{Op: opLock, Key: key, Owner: owner, TTL: ttl})
	if err != nil {
		return false, err
	}
	return resp.Acquired, nil
}

func (c *Client) RenewLock(ctx context.Context, key, owner string, ttl time.Duration) error {
	_, err := c.roundTrip(request{Op: opRenew, Key: key, Owner: owner, TTL: ttl})
	return err
}

func (c *Client) ReleaseLock(ctx context.Context, key, owner string) error {
	_, err := c.roundTrip(request{Op: opUnlock, Key: key, Owner: owner})
	return err
}

func (c *Client) Close() error {
	perr := c.push.Close()
	rerr := c.req.Close()
	if perr != nil {
		return perr
	}
	return rerr
}
