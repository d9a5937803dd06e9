package ik

import (
	m "math"

	"github.com/spaghettifunk/ewbik/engine/math"
)

// Heading layout per effector, identical on the target and tip side:
//
//	[0,1]     origin pair
//	[2k,2k+1] +axis / -axis for each followed axis in x, y, z order
//
// When the bone being fitted is the effector's own bone, the origin pair is
// zero and the axis pairs carry the orientation of the goal (target side)
// or of the bone (tip side). For any other bone the origin pair is the
// positional pull towards the goal and the remaining slots are zero.

// appendWeights appends this effector's heading weights.
func (e *Effector) appendWeights(weights []float64, falloff float64) []float64 {
	base := e.options.Weight * falloff
	weights = append(weights, floorWeight(base), floorWeight(base))

	_, priorities, n := e.followedAxes()
	for i := 0; i < n; i++ {
		w := floorWeight(base * priorities[i])
		weights = append(weights, w, w)
	}
	return weights
}

// updateTargetHeadings writes the goal-side headings for forBone at *index
// and advances the cursor by HeadingCount.
func (e *Effector) updateTargetHeadings(a *Arena, forBone int, headings []math.Vec3, index *int) {
	origin := a.Global(forBone).Origin
	e.writeHeadings(forBone, origin, e.goal, headings, index)
}

// updateTipHeadings writes the bone-side headings for forBone at *index
// and advances the cursor by HeadingCount.
func (e *Effector) updateTipHeadings(a *Arena, forBone int, headings []math.Vec3, index *int) {
	origin := a.Global(forBone).Origin
	e.writeHeadings(forBone, origin, a.Global(e.bone), headings, index)
}

func (e *Effector) writeHeadings(forBone int, origin math.Vec3, xform math.Transform, headings []math.Vec3, index *int) {
	i := *index
	if forBone == e.bone {
		headings[i] = math.Vec3{}
		headings[i+1] = math.Vec3{}
		i += 2

		axes, _, n := e.followedAxes()
		for k := 0; k < n; k++ {
			headings[i] = xform.Basis.Rotate(axes[k])
			headings[i+1] = xform.Basis.Rotate(axes[k].Neg())
			i += 2
		}
	} else {
		pull := xform.Origin.Sub(origin)
		headings[i] = pull
		headings[i+1] = pull.Neg()
		for k := 2; k < e.numHeadings; k++ {
			headings[i+k] = math.Vec3{}
		}
		i += e.numHeadings
	}
	*index = i
}

// residual is the weighted mean square difference between the goal and the
// bone's current pose, measured in the effector bone's own frame plus the
// positional offset. Zero means the effector is exactly at its goal.
func (e *Effector) residual(a *Arena, falloff float64) (float64, float64) {
	tip := a.Global(e.bone)
	weights := e.appendWeights(nil, falloff)

	d := e.goal.Origin.Sub(tip.Origin).LengthSquared()
	sum := (weights[0] + weights[1]) * d
	wsum := weights[0] + weights[1]

	axes, _, n := e.followedAxes()
	for k := 0; k < n; k++ {
		w := weights[2+2*k]
		pos := e.goal.Basis.Rotate(axes[k]).Sub(tip.Basis.Rotate(axes[k])).LengthSquared()
		neg := e.goal.Basis.Rotate(axes[k].Neg()).Sub(tip.Basis.Rotate(axes[k].Neg())).LengthSquared()
		sum += w * (pos + neg)
		wsum += 2 * w
	}
	return sum, wsum
}

func floorWeight(w float64) float64 {
	if m.IsNaN(w) {
		return MinScale
	}
	return m.Max(w, MinScale)
}
