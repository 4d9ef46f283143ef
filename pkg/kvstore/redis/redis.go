// Package redis implements kvstore.Store against a Redis-compatible server
// using the RESP protocol directly over a small connection pool. Atomicity
// for the check-and-update operations comes from server-side Lua scripts,
// so each check is a single round trip with no observable intermediate
// state.
package redis

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/gatehouse/pkg/kvstore"
)

// Store implements kvstore.Store over RESP.
type Store struct {
	opts   Options
	dialFn dialFunc
	pool   chan *clientConn
}

var _ kvstore.Store = (*Store)(nil)

type dialFunc func(context.Context, Options) (net.Conn, error)

// NewStore builds a Redis-backed shared store.
func NewStore(opts Options) *Store {
	cfg := opts.withDefaults()
	return &Store{opts: cfg, dialFn: defaultDial, pool: make(chan *clientConn, cfg.PoolSize)}
}

// WithDial overrides the dialer (useful for tests/mocks).
func (s *Store) WithDial(fn dialFunc) {
	if fn != nil {
		s.dialFn = fn
	}
}

func (s *Store) ClaimNonce(ctx context.Context, key, nonce string, now time.Time, lifetime time.Duration) (bool, error) {
	resp, err := s.eval(ctx, claimNonceScript, key,
		nonce,
		strconv.FormatInt(now.UnixMilli(), 10),
		strconv.FormatInt(lifetime.Milliseconds(), 10),
	)
	if err != nil {
		return false, err
	}
	n, err := respInt(resp)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) IncrWindow(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	resp, err := s.eval(ctx, incrWindowScript, key,
		strconv.FormatInt(ttl.Milliseconds(), 10),
	)
	if err != nil {
		return 0, err
	}
	return respInt(resp)
}

func (s *Store) SlidingClaim(ctx context.Context, key, member string, now time.Time, window time.Duration, capacity int64) (int64, bool, error) {
	resp, err := s.eval(ctx, slidingClaimScript, key,
		member,
		strconv.FormatInt(now.UnixMilli(), 10),
		strconv.FormatInt(window.Milliseconds(), 10),
		strconv.FormatInt(capacity, 10),
	)
	if err != nil {
		return 0, false, err
	}
	return respPair(resp)
}

func (s *Store) BucketTake(ctx context.Context, key string, capacity, refillRate int64, now time.Time, ttl time.Duration) (int64, bool, error) {
	resp, err := s.eval(ctx, bucketTakeScript, key,
		strconv.FormatInt(capacity, 10),
		strconv.FormatInt(refillRate, 10),
		strconv.FormatInt(now.UnixMilli(), 10),
		strconv.FormatInt(ttl.Milliseconds(), 10),
	)
	if err != nil {
		return 0, false, err
	}
	return respPair(resp)
}

func (s *Store) SetBlock(ctx context.Context, key string, until time.Time) error {
	ttl := time.Until(until).Milliseconds()
	if ttl <= 0 {
		ttl = 1
	}
	resp, err := s.do(ctx, "SET", key,
		strconv.FormatInt(until.UnixMilli(), 10),
		"PX", strconv.FormatInt(ttl, 10),
	)
	if err != nil {
		return err
	}
	if msg, ok := resp.(string); ok && strings.EqualFold(msg, "OK") {
		return nil
	}
	return fmt.Errorf("%w: SET block failed: %v", kvstore.ErrUnavailable, resp)
}

func (s *Store) BlockedUntil(ctx context.Context, key string) (time.Time, bool, error) {
	resp, err := s.do(ctx, "GET", key)
	if err != nil {
		return time.Time{}, false, err
	}
	if resp == nil {
		return time.Time{}, false, nil
	}
	raw, ok := resp.([]byte)
	if !ok {
		return time.Time{}, false, fmt.Errorf("redis: unexpected GET response %T", resp)
	}
	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}

func (s *Store) Ping(ctx context.Context) error {
	resp, err := s.do(ctx, "PING")
	if err != nil {
		return err
	}
	if msg, ok := resp.(string); ok && strings.EqualFold(msg, "PONG") {
		return nil
	}
	return fmt.Errorf("%w: unexpected PING response %v", kvstore.ErrUnavailable, resp)
}

// Close drains and closes pooled connections.
func (s *Store) Close() error {
	for {
		select {
		case conn := <-s.pool:
			_ = conn.Close()
		default:
			return nil
		}
	}
}

// eval runs a one-key script in a single round trip.
func (s *Store) eval(ctx context.Context, script, key string, args ...string) (any, error) {
	parts := append([]string{"EVAL", script, "1", key}, args...)
	return s.do(ctx, parts...)
}

func (s *Store) do(ctx context.Context, parts ...string) (any, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	var resp any
	err := s.withConn(ctx, func(conn *clientConn) error {
		if err := s.send(conn, parts...); err != nil {
			return err
		}
		var err error
		resp, err = s.read(conn)
		return err
	})
	return resp, err
}

// respPair unpacks the {count, allowed} reply shape shared by the sliding
// window and bucket scripts.
func respPair(v any) (int64, bool, error) {
	arr, ok := v.([]any)
	if !ok || len(arr) != 2 {
		return 0, false, fmt.Errorf("redis: expected two-element reply, got %v", v)
	}
	count, err := respInt(arr[0])
	if err != nil {
		return 0, false, err
	}
	allowed, err := respInt(arr[1])
	if err != nil {
		return 0, false, err
	}
	return count, allowed == 1, nil
}

func (s *Store) withConn(ctx context.Context, fn func(*clientConn) error) error {
	conn, err := s.acquireConn(ctx)
	if err != nil {
		return err
	}
	broken := false
	defer func() {
		s.releaseConn(conn, broken)
	}()
	if err := fn(conn); err != nil {
		if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
			broken = true
			return fmt.Errorf("%w: %v", kvstore.ErrUnavailable, err)
		}
		return err
	}
	return nil
}

func (s *Store) acquireConn(ctx context.Context) (*clientConn, error) {
	select {
	case conn := <-s.pool:
		return conn, nil
	default:
		return s.newConn(ctx)
	}
}

func (s *Store) releaseConn(conn *clientConn, broken bool) {
	if conn == nil {
		return
	}
	if broken {
		_ = conn.Close()
		return
	}
	select {
	case s.pool <- conn:
	default:
		_ = conn.Close()
	}
}

func (s *Store) newConn(ctx context.Context) (*clientConn, error) {
	nc, err := s.dialFn(ctx, s.opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kvstore.ErrUnavailable, err)
	}
	reader := bufio.NewReader(nc)
	if err := s.handshake(nc, reader); err != nil {
		_ = nc.Close()
		return nil, err
	}
	return &clientConn{Conn: nc, reader: reader}, nil
}

func (s *Store) handshake(conn net.Conn, reader *bufio.Reader) error {
	if s.opts.Password != "" {
		if err := s.sendRaw(conn, "AUTH", s.opts.Password); err != nil {
			return err
		}
		if err := s.expectOK(reader); err != nil {
			return err
		}
	}
	if s.opts.DB > 0 {
		if err := s.sendRaw(conn, "SELECT", strconv.Itoa(s.opts.DB)); err != nil {
			return err
		}
		if err := s.expectOK(reader); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) expectOK(reader *bufio.Reader) error {
	resp, err := decodeRESP(reader)
	if err != nil {
		return err
	}
	if msg, ok := resp.(string); ok && strings.EqualFold(msg, "OK") {
		return nil
	}
	return fmt.Errorf("redis: expected OK, got %v", resp)
}

func (s *Store) send(conn *clientConn, parts ...string) error {
	if err := applyDeadline(conn.SetWriteDeadline, s.opts.WriteTimeout); err != nil {
		return err
	}
	_, err := conn.Write(buildCommand(parts...))
	return err
}

// sendRaw is used during handshake before the buffered reader is wrapped.
func (s *Store) sendRaw(conn net.Conn, parts ...string) error {
	if err := applyDeadline(conn.SetWriteDeadline, s.opts.WriteTimeout); err != nil {
		return err
	}
	_, err := conn.Write(buildCommand(parts...))
	return err
}

func (s *Store) read(conn *clientConn) (any, error) {
	if err := applyDeadline(conn.SetReadDeadline, s.opts.ReadTimeout); err != nil {
		return nil, err
	}
	return decodeRESP(conn.reader)
}

type clientConn struct {
	net.Conn
	reader *bufio.Reader
}

func defaultDial(ctx context.Context, opts Options) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: opts.DialTimeout}
	return dialer.DialContext(ctx, "tcp", opts.Addr)
}

func applyDeadline(setter func(time.Time) error, timeout time.Duration) error {
	if timeout <= 0 {
		return nil
	}
	return setter(time.Now().Add(timeout))
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
