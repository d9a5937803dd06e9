package ik

import (
	m "math"

	"github.com/spaghettifunk/ewbik/engine/math"
)

// MinScale is the smallest weight a heading is handed to the fitter with.
const MinScale = 1e-4

// EffectorOptions configures the goal of one effector.
type EffectorOptions struct {
	// TargetTransform is the static goal. Without a live target it is
	// relative to the effector bone's pose at solve start; with one, it
	// pre-multiplies the target's transform.
	TargetTransform math.Transform
	// Target names a live goal source. Empty means static.
	Target string
	// UseTargetRotation honors the live target's rotation; otherwise only
	// its position is followed.
	UseTargetRotation bool
	// Priority weights per axis in [0,1]. A zero axis is not followed.
	Priority math.Vec3
	// Weight scales every heading of this effector.
	Weight float64
}

// DefaultEffectorOptions follows all three axes at full weight and holds the
// bone where it is.
func DefaultEffectorOptions() EffectorOptions {
	return EffectorOptions{
		TargetTransform: math.TransformCreate(),
		Priority:        math.NewVec3(1, 1, 1),
		Weight:          1,
	}
}

// Effector is a goal pose bound to one bone.
type Effector struct {
	bone    int
	options EffectorOptions

	followX, followY, followZ bool
	numHeadings               int

	goal math.Transform
}

func newEffector(bone int, options EffectorOptions) *Effector {
	e := &Effector{bone: bone, goal: math.TransformCreate()}
	e.SetOptions(options)
	return e
}

// Bone returns the id of the bone this effector is bound to.
func (e *Effector) Bone() int {
	return e.bone
}

func (e *Effector) Options() EffectorOptions {
	return e.options
}

// SetOptions replaces the effector settings and recomputes the followed axes.
func (e *Effector) SetOptions(options EffectorOptions) {
	if options.TargetTransform == (math.Transform{}) {
		options.TargetTransform = math.TransformCreate()
	}
	options.Weight = m.Max(options.Weight, 0)
	e.options = options
	e.SetPriority(options.Priority)
}

// SetPriority clamps the per-axis priorities to [0,1] and updates the
// heading layout.
func (e *Effector) SetPriority(priority math.Vec3) {
	e.options.Priority = math.Vec3{
		X: math.Clamp(priority.X, 0.0, 1.0),
		Y: math.Clamp(priority.Y, 0.0, 1.0),
		Z: math.Clamp(priority.Z, 0.0, 1.0),
	}
	e.updatePriorities()
}

func (e *Effector) updatePriorities() {
	p := e.options.Priority
	e.followX = p.X > 0
	e.followY = p.Y > 0
	e.followZ = p.Z > 0

	e.numHeadings = 2
	if e.followX {
		e.numHeadings += 2
	}
	if e.followY {
		e.numHeadings += 2
	}
	if e.followZ {
		e.numHeadings += 2
	}
}

// HeadingCount is 2 for the origin pair plus 2 per followed axis.
func (e *Effector) HeadingCount() int {
	return e.numHeadings
}

// IsFollowingTranslationOnly reports that no rotational axis is followed.
func (e *Effector) IsFollowingTranslationOnly() bool {
	return !(e.followX || e.followY || e.followZ)
}

// Goal returns the skeleton-space goal computed by the last refresh.
func (e *Effector) Goal() math.Transform {
	return e.goal
}

// updateGoal refreshes the goal. A live target that cannot be resolved
// falls back to holding the bone's current pose.
func (e *Effector) updateGoal(a *Arena, src GoalSource) {
	if e.options.Target != "" && src != nil {
		if node, ok := src.TargetTransform(e.options.Target); ok {
			skel := src.GlobalTransform()
			var goal math.Transform
			if e.options.UseTargetRotation {
				goal = skel.AffineInverse().Mul(node)
			} else {
				goal = math.TransformFromPosition(skel.XformInv(node.Origin))
			}
			e.goal = e.options.TargetTransform.Mul(goal)
			return
		}
	}
	e.goal = a.Global(e.bone).Mul(e.options.TargetTransform)
}

// followedAxes lists the unit axes and priorities in heading order: x, y, z.
func (e *Effector) followedAxes() ([3]math.Vec3, [3]float64, int) {
	var axes [3]math.Vec3
	var priorities [3]float64
	n := 0
	if e.followX {
		axes[n], priorities[n] = math.NewVec3(1, 0, 0), e.options.Priority.X
		n++
	}
	if e.followY {
		axes[n], priorities[n] = math.NewVec3(0, 1, 0), e.options.Priority.Y
		n++
	}
	if e.followZ {
		axes[n], priorities[n] = math.NewVec3(0, 0, 1), e.options.Priority.Z
		n++
	}
	return axes, priorities, n
}
