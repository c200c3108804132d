package signaling

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startWSListener(t *testing.T) (*WSTransport, string, <-chan error) {
	t.Helper()
	tr := NewWSListener("127.0.0.1:0", "/signal", zap.NewNop())
	errCh := make(chan error, 1)
	go func() { errCh <- tr.Connect(context.Background()) }()

	for i := 0; i < 100; i++ {
		if addr := tr.BoundAddr(); addr != "" {
			return tr, addr, errCh
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("websocket listener never bound")
	return nil, "", nil
}

func TestWSTransport_Exchange(t *testing.T) {
	listener, addr, acceptErr := startWSListener(t)
	defer listener.Close()

	dialer := NewWSDialer("ws://"+addr+"/signal", zap.NewNop())
	defer dialer.Close()

	ctx := context.Background()
	require.NoError(t, dialer.Connect(ctx))
	waitForConnect(t, acceptErr)

	offer := SessionDescription{Kind: KindOffer, Payload: "v=0\r\n"}
	require.NoError(t, listener.Send(ctx, offer))

	got, err := dialer.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, offer, got)

	answer := SessionDescription{Kind: KindAnswer, Payload: "v=0\r\na=sendrecv\r\n"}
	cand := IceCandidate{Candidate: "candidate:1 1 UDP 1 10.0.0.1 9 typ host", SDPMid: "0", SDPMLineIndex: intPtr(0)}
	require.NoError(t, dialer.Send(ctx, answer))
	require.NoError(t, dialer.Send(ctx, cand))

	got, err = listener.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, answer, got)

	got, err = listener.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, cand, got)
}

func TestWSTransport_PeerCloseMapsToTermination(t *testing.T) {
	listener, addr, acceptErr := startWSListener(t)
	defer listener.Close()

	dialer := NewWSDialer("ws://"+addr+"/signal", zap.NewNop())
	ctx := context.Background()
	require.NoError(t, dialer.Connect(ctx))
	waitForConnect(t, acceptErr)

	require.NoError(t, dialer.Close())

	got, err := listener.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, Termination{}, got)
}

func TestWSTransport_LocalCloseUnblocksReceive(t *testing.T) {
	listener, addr, acceptErr := startWSListener(t)

	dialer := NewWSDialer("ws://"+addr+"/signal", zap.NewNop())
	defer dialer.Close()
	ctx := context.Background()
	require.NoError(t, dialer.Connect(ctx))
	waitForConnect(t, acceptErr)

	type result struct {
		msg Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := listener.Receive(ctx)
		done <- result{msg, err}
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, listener.Close())

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, Termination{}, r.msg)
	case <-time.After(5 * time.Second):
		t.Fatal("Receive did not unblock after Close")
	}
}
