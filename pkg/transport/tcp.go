package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"posebridge/pkg/protocol"
)

var errPeerClosed = errors.New("peer closed connection")

// Receiver accepts one TCP client at a time, decodes its pose frames and
// publishes the latest pose into a Slot.
//
// The first client is accepted on the primary address. After a client
// disconnects cleanly the receiver rebinds on the fallback address and
// every later client is accepted there. Any other I/O error is fatal.
type Receiver struct {
	primaryAddr  string
	fallbackAddr string
	opts         options

	slot Slot
	done chan struct{}

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	ln      net.Listener
	conn    net.Conn
	state   State
	err     error

	seq uint64
}

func NewReceiver(primaryAddr, fallbackAddr string, opts ...Option) *Receiver {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if fallbackAddr == "" {
		fallbackAddr = primaryAddr
	}
	return &Receiver{
		primaryAddr:  primaryAddr,
		fallbackAddr: fallbackAddr,
		opts:         o,
		done:         make(chan struct{}),
	}
}

// Start binds the primary address and runs the receive loop in the
// background. A bind failure is returned as *BindError and nothing is
// started. Cancelling ctx has the same effect as Stop.
func (r *Receiver) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	ln, err := listen(r.primaryAddr)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	r.started = true
	r.cancel = cancel
	r.ln = ln
	r.mu.Unlock()

	context.AfterFunc(ctx, r.closeSockets)
	r.setState(State{Kind: StateListening, Addr: ln.Addr().String()})
	go r.run(ctx, ln)
	return nil
}

// Stop closes the listener and any connected client and waits for the
// receive loop to exit. It returns the failure cause if the receiver had
// already failed.
func (r *Receiver) Stop() error {
	r.mu.Lock()
	started, cancel := r.started, r.cancel
	r.mu.Unlock()
	if !started {
		return nil
	}
	cancel()
	<-r.done
	return r.Err()
}

// LatestPose never blocks. Once the receiver has stopped it keeps
// returning the last published pose.
func (r *Receiver) LatestPose() protocol.Pose {
	return r.slot.Load()
}

func (r *Receiver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Addr returns the address currently being listened on, or nil.
func (r *Receiver) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ln == nil {
		return nil
	}
	return r.ln.Addr()
}

// Done is closed once the receive loop has exited.
func (r *Receiver) Done() <-chan struct{} {
	return r.done
}

// Err returns the cause of a failed receiver, nil otherwise.
func (r *Receiver) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Receiver) run(ctx context.Context, ln net.Listener) {
	defer close(r.done)
	defer r.cancel()

	for {
		conn, err := ln.Accept()
		if err != nil {
			r.finish(ctx, fmt.Errorf("accept on %s: %w", ln.Addr(), err))
			return
		}
		if !r.track(ctx, ln, conn) {
			_ = conn.Close()
			r.finish(ctx, nil)
			return
		}

		peer := conn.RemoteAddr().String()
		r.setState(State{Kind: StateConnected, Addr: ln.Addr().String(), Peer: peer})

		err = r.serve(conn, peer)
		_ = conn.Close()
		_ = ln.Close()
		r.track(ctx, nil, nil)
		if ctx.Err() != nil {
			r.finish(ctx, nil)
			return
		}
		if !errors.Is(err, errPeerClosed) {
			r.finish(ctx, err)
			return
		}
		r.setState(State{Kind: StateDisconnected, Peer: peer})

		ln, err = listen(r.fallbackAddr)
		if err != nil {
			r.finish(ctx, err)
			return
		}
		if !r.track(ctx, ln, nil) {
			_ = ln.Close()
			r.finish(ctx, nil)
			return
		}
		r.setState(State{Kind: StateListening, Addr: ln.Addr().String()})
	}
}

// serve reads whole frames until the peer goes away. Reads accumulate
// until a full frame is available; a partial frame at EOF is dropped.
func (r *Receiver) serve(conn net.Conn, peer string) error {
	buf := make([]byte, protocol.FrameSize)
	for {
		if r.opts.readTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(r.opts.readTimeout))
		}
		n, err := io.ReadFull(conn, buf)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return errPeerClosed
		case errors.Is(err, io.ErrUnexpectedEOF):
			r.opts.logger.Warn("dropping truncated frame", "peer", peer, "bytes", n)
			return errPeerClosed
		default:
			return fmt.Errorf("read from %s: %w", peer, err)
		}

		pose, err := protocol.DecodeFrame(buf)
		if err != nil {
			return err
		}
		r.publish(pose, peer)
	}
}

func (r *Receiver) publish(pose protocol.Pose, peer string) {
	r.slot.Store(pose)
	r.seq++
	if r.opts.sampleHandler != nil {
		r.opts.sampleHandler(protocol.Sample{
			Seq:       r.seq,
			Timestamp: time.Now(),
			Peer:      peer,
			Pose:      pose,
		})
	}
}

// track records the sockets owned by the loop so that closeSockets can
// reach them. It refuses once ctx is cancelled.
func (r *Receiver) track(ctx context.Context, ln net.Listener, conn net.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ctx.Err() != nil {
		r.ln, r.conn = nil, nil
		return ln == nil && conn == nil
	}
	r.ln, r.conn = ln, conn
	return true
}

func (r *Receiver) closeSockets() {
	r.mu.Lock()
	ln, conn := r.ln, r.conn
	r.ln, r.conn = nil, nil
	r.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	if ln != nil {
		_ = ln.Close()
	}
}

// finish ends the loop. Errors seen after cancellation come from our own
// socket closes and count as a clean stop.
func (r *Receiver) finish(ctx context.Context, err error) {
	r.closeSockets()
	if ctx.Err() != nil || err == nil {
		r.setState(State{Kind: StateStopped})
		return
	}

	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
	r.setState(State{Kind: StateFailed, Err: err})
	if r.opts.errorHandler != nil {
		r.opts.errorHandler(err)
	}
}

func (r *Receiver) setState(st State) {
	r.mu.Lock()
	r.state = st
	r.mu.Unlock()

	if st.Kind == StateFailed {
		r.opts.logger.Error("receiver failed", "err", st.Err)
	} else {
		r.opts.logger.Info("receiver state", "state", st.Kind.String(), "addr", st.Addr, "peer", st.Peer)
	}
	if r.opts.stateHandler != nil {
		r.opts.stateHandler(st)
	}
}

func listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, &BindError{Addr: addr, Err: err}
	}
	return ln, nil
}
