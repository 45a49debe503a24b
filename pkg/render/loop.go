package render

import (
	"context"
	"time"

	"posebridge/pkg/protocol"
)

const DefaultTick = 16 * time.Millisecond

// PoseSource is anything publishing a latest pose. LatestPose must not
// block.
type PoseSource interface {
	LatestPose() protocol.Pose
}

// Target is the rendered object a Loop drives.
type Target interface {
	SetTransform(Transform)
}

type TargetFunc func(Transform)

func (f TargetFunc) SetTransform(t Transform) { f(t) }

// Loop polls a PoseSource once per tick and applies the scaled pose to a
// Target.
type Loop struct {
	Source PoseSource
	Target Target
	Scale  Scale
	Tick   time.Duration
}

// Run blocks until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	tick := l.Tick
	if tick <= 0 {
		tick = DefaultTick
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.Step()
		}
	}
}

// Step applies the current pose once.
func (l *Loop) Step() Transform {
	t := Apply(l.Source.LatestPose(), l.Scale)
	if l.Target != nil {
		l.Target.SetTransform(t)
	}
	return t
}
