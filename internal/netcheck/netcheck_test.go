package netcheck

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"dairy-billing/internal/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTCPProbeReachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	assert.NoError(t, NewTCPProbe(ln.Addr().String(), time.Second).Check(context.Background()))
}

func TestTCPProbeUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	err = NewTCPProbe(addr, 200*time.Millisecond).Check(context.Background())
	assert.True(t, errors.Is(err, apperr.ErrConnectivity))
}
