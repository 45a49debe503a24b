package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"posebridge/pkg/protocol"
)

// Sender writes pose frames to a Receiver over one TCP connection.
type Sender struct {
	conn net.Conn
	opts options
	buf  []byte
}

func Dial(ctx context.Context, addr string, opts ...Option) (*Sender, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	d := net.Dialer{Timeout: o.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Sender{
		conn: conn,
		opts: o,
		buf:  make([]byte, 0, protocol.FrameSize),
	}, nil
}

func (s *Sender) Send(pose protocol.Pose) error {
	s.buf = protocol.AppendFrame(s.buf[:0], pose)
	if s.opts.writeTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.opts.writeTimeout))
	}
	if _, err := s.conn.Write(s.buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (s *Sender) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

func (s *Sender) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

func (s *Sender) Close() error {
	return s.conn.Close()
}

// PoseFunc returns the pose to send at time t.
type PoseFunc func(t time.Time) protocol.Pose

// Stream sends next(t) every interval until ctx is done. Connection
// failures move on to the next address in addrs with backoff, so a
// primary/fallback pair follows the receiver across reconnects.
func Stream(ctx context.Context, addrs []string, interval time.Duration, next PoseFunc, opts ...Option) error {
	if len(addrs) == 0 {
		return errors.New("stream: no addresses")
	}
	if interval <= 0 {
		return fmt.Errorf("stream: invalid interval %s", interval)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	attempt := 0
	idx := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		addr := addrs[idx%len(addrs)]
		s, err := Dial(ctx, addr, opts...)
		if err != nil {
			o.handleError(err)
			attempt++
			idx++
			sleepBackoff(ctx, o, attempt)
			continue
		}

		attempt = 0
		o.logger.Info("streaming poses", "addr", addr, "interval", interval)
		err = s.stream(ctx, interval, next)
		_ = s.Close()
		if ctx.Err() != nil {
			return nil
		}
		o.handleError(err)
		idx++
		sleepBackoff(ctx, o, 1)
	}
}

func (s *Sender) stream(ctx context.Context, interval time.Duration, next PoseFunc) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ts := <-ticker.C:
			if err := s.Send(next(ts)); err != nil {
				return err
			}
		}
	}
}

func sleepBackoff(ctx context.Context, o options, attempt int) {
	wait := min(o.reconnect*time.Duration(attempt), o.reconnectMax)
	timer := time.NewTimer(wait)
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	timer.Stop()
}

func (o options) handleError(err error) {
	if err == nil {
		return
	}
	o.logger.Warn("sender error", "err", err)
	if o.errorHandler != nil {
		o.errorHandler(err)
	}
}
