package transport_test

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posebridge/pkg/protocol"
	"posebridge/pkg/transport"
)

const waitTimeout = 2 * time.Second

var (
	poseA = protocol.Pose{
		Orientation: protocol.Quaternion{W: 1, X: 0, Y: 0, Z: 0},
		Position:    protocol.Vector3{X: 2.5, Y: -1.0, Z: 0.0},
	}
	poseB = protocol.Pose{
		Orientation: protocol.Quaternion{W: 0, X: 1, Y: 0, Z: 0},
		Position:    protocol.Vector3{X: 0, Y: 0, Z: 10},
	}
)

type harness struct {
	r      *transport.Receiver
	states chan transport.State
}

func startReceiver(t *testing.T, opts ...transport.Option) *harness {
	t.Helper()
	h := &harness{states: make(chan transport.State, 64)}
	opts = append(opts, transport.WithStateHandler(func(st transport.State) {
		h.states <- st
	}))
	h.r = transport.NewReceiver("127.0.0.1:0", "127.0.0.1:0", opts...)
	require.NoError(t, h.r.Start(context.Background()))
	t.Cleanup(func() { _ = h.r.Stop() })
	h.waitState(t, transport.StateListening)
	return h
}

func (h *harness) waitState(t *testing.T, kind transport.StateKind) transport.State {
	t.Helper()
	timeout := time.After(waitTimeout)
	for {
		select {
		case st := <-h.states:
			if st.Kind == kind {
				return st
			}
		case <-timeout:
			t.Fatalf("timeout waiting for state %s (current %s)", kind, h.r.State())
			return transport.State{}
		}
	}
}

func (h *harness) waitPose(t *testing.T, want protocol.Pose) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.r.LatestPose() == want
	}, waitTimeout, 5*time.Millisecond)
}

func dial(t *testing.T, addr string) *transport.Sender {
	t.Helper()
	s, err := transport.Dial(context.Background(), addr, transport.WithDialTimeout(time.Second))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestReceiverReconnectsOnFallback(t *testing.T) {
	h := startReceiver(t)
	primary := h.r.Addr().String()
	assert.Equal(t, protocol.Pose{}, h.r.LatestPose())

	first := dial(t, primary)
	h.waitState(t, transport.StateConnected)
	require.NoError(t, first.Send(poseA))
	h.waitPose(t, poseA)

	require.NoError(t, first.Close())
	h.waitState(t, transport.StateDisconnected)
	listening := h.waitState(t, transport.StateListening)
	require.NotEqual(t, primary, listening.Addr)
	assert.Equal(t, poseA, h.r.LatestPose())

	second := dial(t, listening.Addr)
	connected := h.waitState(t, transport.StateConnected)
	assert.Equal(t, second.LocalAddr().String(), connected.Peer)
	assert.Equal(t, poseA, h.r.LatestPose())

	require.NoError(t, second.Send(poseB))
	h.waitPose(t, poseB)

	require.NoError(t, h.r.Stop())
	h.waitState(t, transport.StateStopped)
	assert.Equal(t, poseB, h.r.LatestPose())
}

func TestReceiverAccumulatesSplitFrames(t *testing.T) {
	h := startReceiver(t)
	conn, err := net.Dial("tcp", h.r.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	h.waitState(t, transport.StateConnected)

	frame := protocol.EncodeFrame(poseA)
	for _, chunk := range [][]byte{frame[:3], frame[3:17], frame[17:]} {
		assert.Equal(t, protocol.Pose{}, h.r.LatestPose())
		_, err := conn.Write(chunk)
		require.NoError(t, err)
		time.Sleep(20 * time.Millisecond)
	}
	h.waitPose(t, poseA)
}

func TestReceiverDropsTruncatedFrame(t *testing.T) {
	h := startReceiver(t)
	conn, err := net.Dial("tcp", h.r.Addr().String())
	require.NoError(t, err)
	h.waitState(t, transport.StateConnected)

	_, err = conn.Write(protocol.EncodeFrame(poseA))
	require.NoError(t, err)
	_, err = conn.Write(protocol.EncodeFrame(poseB)[:10])
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	h.waitState(t, transport.StateDisconnected)
	h.waitState(t, transport.StateListening)
	assert.Equal(t, poseA, h.r.LatestPose())
}

func TestReceiverIgnoresSecondClientWhileConnected(t *testing.T) {
	h := startReceiver(t)
	addr := h.r.Addr().String()

	first := dial(t, addr)
	h.waitState(t, transport.StateConnected)
	require.NoError(t, first.Send(poseA))
	h.waitPose(t, poseA)

	second := dial(t, addr)
	require.NoError(t, second.Send(poseB))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, poseA, h.r.LatestPose())
}

func TestReceiverStartBindError(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	r := transport.NewReceiver(busy.Addr().String(), "127.0.0.1:0")
	err = r.Start(context.Background())

	var bindErr *transport.BindError
	require.ErrorAs(t, err, &bindErr)
	assert.Equal(t, busy.Addr().String(), bindErr.Addr)
	assert.Equal(t, transport.StateIdle, r.State().Kind)
	assert.NoError(t, r.Stop())
}

func TestReceiverStartTwice(t *testing.T) {
	h := startReceiver(t)
	assert.ErrorIs(t, h.r.Start(context.Background()), transport.ErrAlreadyStarted)
}

func TestReceiverFailsOnReadError(t *testing.T) {
	var (
		mu      sync.Mutex
		handled []error
	)
	h := startReceiver(t,
		transport.WithReadTimeout(50*time.Millisecond),
		transport.WithErrorHandler(func(err error) {
			mu.Lock()
			handled = append(handled, err)
			mu.Unlock()
		}),
	)
	primary := h.r.Addr().String()

	s := dial(t, primary)
	h.waitState(t, transport.StateConnected)
	require.NoError(t, s.Send(poseA))
	h.waitPose(t, poseA)

	failed := h.waitState(t, transport.StateFailed)
	var netErr net.Error
	require.ErrorAs(t, failed.Err, &netErr)
	assert.True(t, netErr.Timeout())

	select {
	case <-h.r.Done():
	case <-time.After(waitTimeout):
		t.Fatalf("receive loop did not exit")
	}
	assert.Nil(t, h.r.Addr())
	assert.Equal(t, failed.Err, h.r.Err())
	assert.Equal(t, failed.Err, h.r.Stop())
	assert.Equal(t, poseA, h.r.LatestPose())

	mu.Lock()
	assert.Len(t, handled, 1)
	mu.Unlock()

	_, err := net.DialTimeout("tcp", primary, 200*time.Millisecond)
	assert.Error(t, err)
}

func TestReceiverFailsWhenFallbackUnavailable(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	states := make(chan transport.State, 16)
	r := transport.NewReceiver("127.0.0.1:0", busy.Addr().String(),
		transport.WithStateHandler(func(st transport.State) { states <- st }))
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	s := dial(t, r.Addr().String())
	require.NoError(t, s.Send(poseA))
	require.Eventually(t, func() bool { return r.LatestPose() == poseA }, waitTimeout, 5*time.Millisecond)
	require.NoError(t, s.Close())

	select {
	case <-r.Done():
	case <-time.After(waitTimeout):
		t.Fatalf("receive loop did not exit")
	}
	var bindErr *transport.BindError
	require.ErrorAs(t, r.Err(), &bindErr)
	assert.Equal(t, transport.StateFailed, r.State().Kind)
	assert.Equal(t, poseA, r.LatestPose())
}

func TestReceiverStopUnblocksAccept(t *testing.T) {
	h := startReceiver(t)
	assertStops(t, h.r)
	h.waitState(t, transport.StateStopped)
	assert.NoError(t, h.r.Err())
}

func TestReceiverStopUnblocksRead(t *testing.T) {
	h := startReceiver(t)
	s := dial(t, h.r.Addr().String())
	h.waitState(t, transport.StateConnected)
	require.NoError(t, s.Send(poseA))
	h.waitPose(t, poseA)

	assertStops(t, h.r)
	h.waitState(t, transport.StateStopped)
	assert.NoError(t, h.r.Err())
	assert.Equal(t, poseA, h.r.LatestPose())
	assert.NoError(t, h.r.Stop())
}

func TestReceiverStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := transport.NewReceiver("127.0.0.1:0", "")
	require.NoError(t, r.Start(ctx))
	cancel()

	select {
	case <-r.Done():
	case <-time.After(waitTimeout):
		t.Fatalf("receive loop did not exit after cancel")
	}
	assert.Equal(t, transport.StateStopped, r.State().Kind)
	assert.NoError(t, r.Err())
}

func assertStops(t *testing.T, r *transport.Receiver) {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- r.Stop() }()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatalf("stop did not return")
	}
}

func TestStreamDeliversPoses(t *testing.T) {
	h := startReceiver(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- transport.Stream(ctx, []string{h.r.Addr().String()}, 5*time.Millisecond,
			func(time.Time) protocol.Pose { return poseB },
			transport.WithReconnectInterval(10*time.Millisecond))
	}()

	h.waitPose(t, poseB)
	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatalf("stream did not return")
	}
}

func TestStreamRejectsEmptyAddrs(t *testing.T) {
	err := transport.Stream(context.Background(), nil, time.Millisecond, nil)
	assert.Error(t, err)
}
