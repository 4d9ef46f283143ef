package redis

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBuildCommand(t *testing.T) {
	got := buildCommand("SET", "k", "v")
	require.Equal(t, "*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n", string(got))
}

func TestDecodeRESP(t *testing.T) {
	decode := func(raw string) (any, error) {
		return decodeRESP(bufio.NewReader(bytes.NewReader([]byte(raw))))
	}

	t.Run("simple string", func(t *testing.T) {
		v, err := decode("+OK\r\n")
		require.NoError(t, err)
		require.Equal(t, "OK", v)
	})

	t.Run("integer", func(t *testing.T) {
		v, err := decode(":42\r\n")
		require.NoError(t, err)
		require.Equal(t, int64(42), v)
	})

	t.Run("bulk string", func(t *testing.T) {
		v, err := decode("$5\r\nhello\r\n")
		require.NoError(t, err)
		require.Equal(t, []byte("hello"), v)
	})

	t.Run("nil bulk", func(t *testing.T) {
		v, err := decode("$-1\r\n")
		require.NoError(t, err)
		require.Nil(t, v)
	})

	t.Run("array", func(t *testing.T) {
		v, err := decode("*2\r\n:3\r\n:1\r\n")
		require.NoError(t, err)
		require.Equal(t, []any{int64(3), int64(1)}, v)
	})

	t.Run("error reply", func(t *testing.T) {
		_, err := decode("-ERR boom\r\n")
		require.EqualError(t, err, "ERR boom")
	})
}

// fakeServer pipes canned RESP replies back for each received command.
func fakeServer(t *testing.T, replies ...string) *Store {
	t.Helper()

	s := NewStore(Options{ReadTimeout: 0, WriteTimeout: 0})
	s.WithDial(func(ctx context.Context, _ Options) (net.Conn, error) {
		client, server := net.Pipe()
		go func() {
			reader := bufio.NewReader(server)
			for _, reply := range replies {
				if _, err := decodeRESP(reader); err != nil {
					return
				}
				if _, err := server.Write([]byte(reply)); err != nil {
					return
				}
			}
		}()
		return client, nil
	})
	return s
}

func TestClaimNonceReplies(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("claimed", func(t *testing.T) {
		s := fakeServer(t, ":1\r\n")
		ok, err := s.ClaimNonce(ctx, "XR:bob", "n", now, time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("replayed", func(t *testing.T) {
		s := fakeServer(t, ":0\r\n")
		ok, err := s.ClaimNonce(ctx, "XR:bob", "n", now, time.Minute)
		require.NoError(t, err)
		require.False(t, ok)
	})
}

func TestSlidingClaimReply(t *testing.T) {
	s := fakeServer(t, "*2\r\n:3\r\n:0\r\n")

	count, allowed, err := s.SlidingClaim(context.Background(), "k", "m", time.Now(), time.Minute, 3)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Equal(t, int64(3), count)
}

func TestBucketTakeReply(t *testing.T) {
	s := fakeServer(t, "*2\r\n:4\r\n:1\r\n")

	remaining, allowed, err := s.BucketTake(context.Background(), "k", 5, 60, time.Now(), time.Minute)
	require.NoError(t, err)
	require.True(t, allowed)
	require.Equal(t, int64(4), remaining)
}

func TestSetBlock(t *testing.T) {
	until := time.Now().Add(time.Minute)

	s := fakeServer(t, "+OK\r\n")
	require.NoError(t, s.SetBlock(context.Background(), "block:k", until))
}

func TestBlockedUntilPresent(t *testing.T) {
	until := time.Now().Add(time.Minute).Truncate(time.Millisecond)
	payload := strconv.FormatInt(until.UnixMilli(), 10)
	reply := "$" + strconv.Itoa(len(payload)) + "\r\n" + payload + "\r\n"

	s := fakeServer(t, reply)

	got, blocked, err := s.BlockedUntil(context.Background(), "block:k")
	require.NoError(t, err)
	require.True(t, blocked)
	require.Equal(t, until.UnixMilli(), got.UnixMilli())
}

func TestBlockedUntilAbsent(t *testing.T) {
	s := fakeServer(t, "$-1\r\n")

	_, blocked, err := s.BlockedUntil(context.Background(), "block:k")
	require.NoError(t, err)
	require.False(t, blocked)
}

func TestContextCancelled(t *testing.T) {
	s := fakeServer(t, "+PONG\r\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, s.Ping(ctx), context.Canceled)
}
