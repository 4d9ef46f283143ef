package canonical_test

import (
	"testing"

	"github.com/aussiebroadwan/gatehouse/pkg/canonical"
	"github.com/stretchr/testify/require"
)

func TestPayloadString(t *testing.T) {
	t.Run("minimal payload", func(t *testing.T) {
		p := canonical.Payload{
			Method:    "GET",
			Path:      "/api/v1/users",
			UserID:    "bob",
			Timestamp: 1700000000,
			Nonce:     "0123456789abcdef",
		}
		require.Equal(t, "GET,/api/v1/users,{bob,1700000000,0123456789abcdef}", p.String())
	})

	t.Run("lowercase method is uppercased", func(t *testing.T) {
		p := canonical.Payload{
			Method:    "post",
			Path:      "/x",
			UserID:    "u",
			Timestamp: 1,
			Nonce:     "n",
		}
		require.Equal(t, "POST,/x,{u,1,n}", p.String())
	})

	t.Run("queries sorted by key", func(t *testing.T) {
		p := canonical.Payload{
			Method:    "GET",
			Path:      "/q",
			UserID:    "u",
			Timestamp: 1,
			Nonce:     "n",
			Queries:   map[string]string{"zeta": "1", "alpha": "2", "mid": "3"},
		}
		require.Equal(t, "GET,/q,{u,1,n},{alpha=2,mid=3,zeta=1}", p.String())
	})

	t.Run("body appended after queries", func(t *testing.T) {
		body, err := canonical.ParseBody([]byte(`{"name":"a"}`))
		require.NoError(t, err)

		p := canonical.Payload{
			Method:    "POST",
			Path:      "/api/v1/users/42",
			UserID:    "bob",
			Timestamp: 1700000000,
			Nonce:     "0123456789abcdef",
			Body:      body,
		}
		require.Equal(t,
			"POST,/api/v1/users/42,{bob,1700000000,0123456789abcdef},{name=a}",
			p.String())
	})
}

func TestCanonicalJSON(t *testing.T) {
	render := func(t *testing.T, raw string) string {
		t.Helper()
		body, err := canonical.ParseBody([]byte(raw))
		require.NoError(t, err)
		p := canonical.Payload{Method: "POST", Path: "/", UserID: "u", Timestamp: 1, Nonce: "n", Body: body}
		return p.String()
	}

	t.Run("object key order is irrelevant", func(t *testing.T) {
		require.Equal(t, render(t, `{"b":1,"a":2}`), render(t, `{"a":2,"b":1}`))
	})

	t.Run("keys sorted at every nesting level", func(t *testing.T) {
		got := render(t, `{"outer":{"z":1,"a":{"y":2,"b":3}}}`)
		require.Equal(t, "POST,/,{u,1,n},{outer={a={b=3,y=2},z=1}}", got)
	})

	t.Run("arrays keep original order", func(t *testing.T) {
		got := render(t, `{"items":[3,1,2]}`)
		require.Equal(t, "POST,/,{u,1,n},{items=[3,1,2]}", got)
	})

	t.Run("scalar forms", func(t *testing.T) {
		got := render(t, `{"b":true,"f":false,"n":null,"s":"hi","i":42,"x":1.5}`)
		require.Equal(t, "POST,/,{u,1,n},{b=true,f=false,i=42,n=null,s=hi,x=1.5}", got)
	})

	t.Run("number text survives verbatim", func(t *testing.T) {
		// A float64 round trip would mangle this.
		got := render(t, `{"big":9007199254740993}`)
		require.Equal(t, "POST,/,{u,1,n},{big=9007199254740993}", got)
	})

	t.Run("invalid JSON rejected", func(t *testing.T) {
		_, err := canonical.ParseBody([]byte(`{"name":`))
		require.Error(t, err)
	})
}

func TestSignVerify(t *testing.T) {
	const secret = "s3cret"
	const msg = "POST,/api/v1/users/42,{bob,1700000000,0123456789abcdef},{name=a}"

	t.Run("round trip", func(t *testing.T) {
		sig := canonical.Sign(msg, secret)
		require.Len(t, sig, canonical.SignatureHexLen)
		require.True(t, canonical.Verify(msg, secret, sig))
	})

	t.Run("any flipped byte rejects", func(t *testing.T) {
		sig := canonical.Sign(msg, secret)
		for i := range sig {
			mutated := []byte(sig)
			if mutated[i] == 'a' {
				mutated[i] = 'b'
			} else {
				mutated[i] = 'a'
			}
			require.False(t, canonical.Verify(msg, secret, string(mutated)),
				"flipped byte %d should invalidate signature", i)
		}
	})

	t.Run("wrong secret rejects", func(t *testing.T) {
		sig := canonical.Sign(msg, secret)
		require.False(t, canonical.Verify(msg, "other", sig))
	})
}
