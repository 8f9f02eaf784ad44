package collector

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/kolo/xmlrpc"

	"github.com/pkeller/hostwatch/internal/wire"
)

const defaultCallTimeout = 10 * time.Second

// Client manages the XML-RPC connection to a single agent.
//
// The connection is established lazily and verified with a ping before the
// first real call. After any failure the underlying proxy is dropped so the
// next poll re-dials; there is no retry within a call. Consecutive failures
// are counted until the next successful call resets the counter.
//
// Client is safe for concurrent use, though the scheduler only ever polls a
// given agent from one worker at a time.
type Client struct {
	addr    string
	timeout time.Duration

	mu       sync.Mutex
	proxy    *xmlrpc.Client
	failures int
	lastOK   time.Time
}

// NewClient creates a client for the agent at addr ("host:port").
// A non-positive timeout falls back to 10 seconds.
func NewClient(addr string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &Client{addr: addr, timeout: timeout}
}

// Addr returns the agent address this client talks to.
func (c *Client) Addr() string {
	return c.addr
}

// Failures returns the number of consecutive failed calls.
func (c *Client) Failures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures
}

// Ping checks connectivity to the agent.
func (c *Client) Ping(ctx context.Context) error {
	var pong string
	if err := c.call(ctx, wire.MethodPing, &pong); err != nil {
		return err
	}
	if pong != wire.PongMessage {
		return fmt.Errorf("agent %s: unexpected ping reply %q", c.addr, pong)
	}
	return nil
}

// Metrics fetches a full metrics report from the agent.
func (c *Client) Metrics(ctx context.Context) (*wire.Report, error) {
	var report wire.Report
	if err := c.call(ctx, wire.MethodGetMetrics, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// CPU fetches the current CPU usage percentage.
func (c *Client) CPU(ctx context.Context) (float64, error) {
	var usage float64
	if err := c.call(ctx, wire.MethodGetCPU, &usage); err != nil {
		return 0, err
	}
	return usage, nil
}

// Temperature fetches the current CPU temperature reading.
func (c *Client) Temperature(ctx context.Context) (wire.TemperatureInfo, error) {
	var temp wire.TemperatureInfo
	if err := c.call(ctx, wire.MethodGetTemperature, &temp); err != nil {
		return wire.TemperatureInfo{}, err
	}
	return temp, nil
}

// SecurityStatus fetches the agent's current security findings.
func (c *Client) SecurityStatus(ctx context.Context) ([]wire.Threat, error) {
	var threats []wire.Threat
	if err := c.call(ctx, wire.MethodGetSecurity, &threats); err != nil {
		return nil, err
	}
	return threats, nil
}

// Status fetches the agent's identity block.
func (c *Client) Status(ctx context.Context) (wire.AgentInfo, error) {
	var info wire.AgentInfo
	if err := c.call(ctx, wire.MethodGetStatus, &info); err != nil {
		return wire.AgentInfo{}, err
	}
	return info, nil
}

// Close releases the underlying connection, if any.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.proxy != nil {
		_ = c.proxy.Close()
		c.proxy = nil
	}
}

// call invokes method with the client's timeout, connecting first if needed.
// Replies carry no arguments; every agent method is parameterless.
func (c *Client) call(ctx context.Context, method string, reply any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	proxy, err := c.acquire(ctx, method)
	if err != nil {
		c.recordFailure()
		return err
	}

	if err := callWithContext(ctx, proxy, method, reply); err != nil {
		c.recordFailure()
		c.Close()
		return fmt.Errorf("agent %s: %s: %w", c.addr, method, err)
	}

	c.mu.Lock()
	c.failures = 0
	c.lastOK = time.Now()
	c.mu.Unlock()
	return nil
}

// acquire returns the current proxy, dialing and ping-verifying a new one
// if the previous connection was dropped. The ping is skipped when the call
// itself is a ping.
func (c *Client) acquire(ctx context.Context, method string) (*xmlrpc.Client, error) {
	c.mu.Lock()
	proxy := c.proxy
	c.mu.Unlock()
	if proxy != nil {
		return proxy, nil
	}

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: c.timeout}).DialContext,
		ResponseHeaderTimeout: c.timeout,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       60 * time.Second,
	}
	proxy, err := xmlrpc.NewClient("http://"+c.addr+wire.RPCPath, transport)
	if err != nil {
		return nil, fmt.Errorf("agent %s: create client: %w", c.addr, err)
	}

	if method != wire.MethodPing {
		var pong string
		if err := callWithContext(ctx, proxy, wire.MethodPing, &pong); err != nil {
			_ = proxy.Close()
			return nil, fmt.Errorf("agent %s: ping: %w", c.addr, err)
		}
		if pong != wire.PongMessage {
			_ = proxy.Close()
			return nil, fmt.Errorf("agent %s: unexpected ping reply %q", c.addr, pong)
		}
	}

	c.mu.Lock()
	c.proxy = proxy
	c.mu.Unlock()
	return proxy, nil
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	c.failures++
	c.mu.Unlock()
}

// callWithContext bridges the xmlrpc client's async API to context
// cancellation. If the context expires mid-call the HTTP request is
// abandoned; the transport's own timeouts reap the connection.
func callWithContext(ctx context.Context, proxy *xmlrpc.Client, method string, reply any) error {
	call := proxy.Go(method, nil, reply, nil)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case done := <-call.Done:
		return done.Error
	}
}
