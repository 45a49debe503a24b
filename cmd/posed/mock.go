package main

import (
	"fmt"
	"math"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"posebridge/pkg/protocol"
	"posebridge/pkg/transport"
)

const (
	mockRollAmplitudeRad  = 35.0 * math.Pi / 180.0
	mockPitchAmplitudeRad = 25.0 * math.Pi / 180.0
	mockYawAmplitudeRad   = 40.0 * math.Pi / 180.0

	mockRollFreqHz  = 0.23
	mockPitchFreqHz = 0.31
	mockYawFreqHz   = 0.17

	mockPitchPhaseRad = math.Pi / 3.0
	mockYawPhaseRad   = 2.0 * math.Pi / 3.0

	mockOrbitRadius = 0.5
	mockOrbitFreqHz = 0.1
	mockBobFreqHz   = 0.4
	mockBobHeight   = 0.1
)

type mockFlags struct {
	addrs []string
	hz    int
}

func newMockCmd(root *rootFlags) *cobra.Command {
	flags := &mockFlags{}
	cmd := &cobra.Command{
		Use:   "mock",
		Short: "Stream a synthetic pose to a running receiver",
		Long: `mock connects to the receiver and streams a slowly rotating pose on an
orbit. When the connection drops it reconnects, trying the primary and
fallback addresses in turn.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if flags.hz <= 0 {
				return usageError{fmt.Errorf("--hz must be positive: %d", flags.hz)}
			}
			addrs := flags.addrs
			if len(addrs) == 0 {
				addrs = dialAddrs(cfg.Receiver.PrimaryAddr, cfg.Receiver.FallbackAddr)
			}
			log, err := newLogger(cmd.ErrOrStderr(), cfg.Log.Level)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			interval := time.Second / time.Duration(flags.hz)
			return transport.Stream(ctx, addrs, interval, mockPoseFunc(time.Now()),
				transport.WithLogger(log.With("component", "mock")),
			)
		},
	}
	cmd.Flags().StringSliceVar(&flags.addrs, "addr", nil, "receiver address, repeatable (default primary then fallback from config)")
	cmd.Flags().IntVar(&flags.hz, "hz", 50, "frames per second")
	return cmd
}

// dialAddrs turns listen addresses into dialable ones. An unspecified
// host means the receiver is on this machine.
func dialAddrs(listen ...string) []string {
	out := make([]string, 0, len(listen))
	seen := make(map[string]struct{}, len(listen))
	for _, addr := range listen {
		host, port, err := net.SplitHostPort(addr)
		if err == nil && (host == "" || host == "0.0.0.0" || host == "::") {
			addr = net.JoinHostPort("127.0.0.1", port)
		}
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out
}

func mockPoseFunc(start time.Time) transport.PoseFunc {
	return func(ts time.Time) protocol.Pose {
		return mockPose(ts.Sub(start).Seconds())
	}
}

func mockPose(t float64) protocol.Pose {
	return protocol.Pose{
		Orientation: mockQuaternion(t),
		Position:    mockPosition(t),
	}
}

func mockEulerAngles(t float64) (roll float64, pitch float64, yaw float64) {
	roll = mockRollAmplitudeRad * math.Sin(2.0*math.Pi*mockRollFreqHz*t)
	pitch = mockPitchAmplitudeRad * math.Sin(2.0*math.Pi*mockPitchFreqHz*t+mockPitchPhaseRad)
	yaw = mockYawAmplitudeRad * math.Sin(2.0*math.Pi*mockYawFreqHz*t+mockYawPhaseRad)
	return
}

func mockQuaternion(t float64) protocol.Quaternion {
	roll, pitch, yaw := mockEulerAngles(t)
	cr := math.Cos(roll * 0.5)
	sr := math.Sin(roll * 0.5)
	cp := math.Cos(pitch * 0.5)
	sp := math.Sin(pitch * 0.5)
	cy := math.Cos(yaw * 0.5)
	sy := math.Sin(yaw * 0.5)

	// ZYX intrinsic rotation (yaw -> pitch -> roll).
	w := cr*cp*cy + sr*sp*sy
	x := sr*cp*cy - cr*sp*sy
	y := cr*sp*cy + sr*cp*sy
	z := cr*cp*sy - sr*sp*cy

	norm := math.Sqrt(w*w + x*x + y*y + z*z)
	if norm == 0 {
		return protocol.Quaternion{W: 1}
	}
	inv := 1.0 / norm
	return protocol.Quaternion{
		W: float32(w * inv),
		X: float32(x * inv),
		Y: float32(y * inv),
		Z: float32(z * inv),
	}
}

func mockPosition(t float64) protocol.Vector3 {
	angle := 2.0 * math.Pi * mockOrbitFreqHz * t
	return protocol.Vector3{
		X: float32(mockOrbitRadius * math.Cos(angle)),
		Y: float32(mockOrbitRadius * math.Sin(angle)),
		Z: float32(mockBobHeight * math.Sin(2.0*math.Pi*mockBobFreqHz*t)),
	}
}
