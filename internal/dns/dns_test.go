package dns

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupIPLiteral(t *testing.T) {
	r := NewResolver()
	ip, err := r.Lookup(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", ip)
}

func TestLookupFallsBackToRace(t *testing.T) {
	var calls atomic.Int32
	r := &Resolver{
		Servers: []string{"a", "b"},
		lookup: func(_ context.Context, nr *net.Resolver, host string) ([]string, error) {
			calls.Add(1)
			if nr.Dial == nil {
				return nil, errors.New("system resolver down")
			}
			return []string{"2001:db8::1", "192.0.2.10"}, nil
		},
	}

	ip, err := r.Lookup(context.Background(), "relay.example")
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.10", ip, "IPv4 preferred")
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestLookupAllFail(t *testing.T) {
	r := &Resolver{
		Servers: []string{"a", "b", "c"},
		lookup: func(context.Context, *net.Resolver, string) ([]string, error) {
			return nil, errors.New("nope")
		},
	}
	_, err := r.Lookup(context.Background(), "relay.example")
	assert.ErrorContains(t, err, "all 3 public DNS servers failed")
}

func TestPickIP(t *testing.T) {
	_, err := pickIP(nil)
	assert.Error(t, err)

	ip, err := pickIP([]string{"2001:db8::2"})
	require.NoError(t, err)
	assert.Equal(t, "2001:db8::2", ip)

	assert.Equal(t, "2606:4700:4700::1111", trimBrackets("[2606:4700:4700::1111]"))
}
