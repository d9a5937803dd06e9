package ik

import (
	"github.com/spaghettifunk/ewbik/engine/math"
	"github.com/spaghettifunk/ewbik/engine/qcp"
)

// FitOutcome classifies one fit of one bone.
type FitOutcome int

const (
	// FitMeasured is the residual before the first fit of a bone.
	FitMeasured FitOutcome = iota
	// FitAccepted lowered the residual; stabilization may continue.
	FitAccepted
	// FitStalled did not lower the residual. Its rotation stays applied.
	FitStalled
	// FitRejected returned an invalid rotation, which was not applied.
	FitRejected
)

func (o FitOutcome) String() string {
	switch o {
	case FitMeasured:
		return "measured"
	case FitAccepted:
		return "accepted"
	case FitStalled:
		return "stalled"
	case FitRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// FitRecord is one diagnostic line about a bone fit.
type FitRecord struct {
	Bone     int
	Pass     int
	Outcome  FitOutcome
	Residual float64
	Previous float64
	Rotation math.Quaternion
}

// DiagnosticFunc receives fit records while solving. It must not call back
// into the task.
type DiagnosticFunc func(FitRecord)

// GroupedSolve runs one structured pass over the subtree: this segment's
// solve, then the subtrees hanging below each effector it reaches, so that
// a multi-effector subtree converges together.
func (s *Segment) GroupedSolve(passes int) {
	s.segmentSolve(passes)
	for _, effectorChain := range s.effectorDescendants {
		for _, child := range effectorChain.children {
			child.GroupedSolve(passes)
		}
	}
}

// segmentSolve solves children before this chain, bottom-up, unless the tip
// is an effector, in which case the subtree below it is left to GroupedSolve.
func (s *Segment) segmentSolve(passes int) {
	if s.IsInert() {
		return
	}
	if !s.IsTipEffector() {
		for _, child := range s.children {
			child.segmentSolve(passes)
		}
	}
	s.chainSolve(passes)
}

// chainSolve fits each unlocked bone from the tip up to the root.
func (s *Segment) chainSolve(passes int) {
	for _, bone := range s.chain {
		if s.task.arena.bones[bone].OrientationLock {
			continue
		}
		s.updateOptimalRotation(bone, passes)
	}
}

// updateOptimalRotation fits and applies a rotation for one bone, then
// repeats up to passes more times while the residual strictly decreases.
// A fit that does not improve ends the loop but is not undone.
func (s *Segment) updateOptimalRotation(bone int, passes int) {
	if bone == s.task.rootBone || s.task.arena.bones[bone].Parent < 0 {
		passes = 0
	}
	if len(s.children) == 0 && s.IsTipEffector() && s.TipEffector().IsFollowingTranslationOnly() {
		passes = 0
	}

	s.updateTargetHeadings(bone)
	s.updateTipHeadings(bone)

	sqrmsd := qcp.SqrMSD(s.tipHeadings, s.targetHeadings, s.headingWeights)
	s.task.report(FitRecord{Bone: bone, Pass: -1, Outcome: FitMeasured, Residual: sqrmsd, Previous: sqrmsd, Rotation: math.NewQuatIdentity()})

	for i := 0; i < passes+1; i++ {
		rotation, newSqrmsd, ok := s.setOptimalRotation(bone)
		if !ok {
			s.task.report(FitRecord{Bone: bone, Pass: i, Outcome: FitRejected, Residual: sqrmsd, Previous: sqrmsd, Rotation: rotation})
			return
		}
		if !(newSqrmsd < sqrmsd) {
			s.task.report(FitRecord{Bone: bone, Pass: i, Outcome: FitStalled, Residual: newSqrmsd, Previous: sqrmsd, Rotation: rotation})
			return
		}
		s.task.report(FitRecord{Bone: bone, Pass: i, Outcome: FitAccepted, Residual: newSqrmsd, Previous: sqrmsd, Rotation: rotation})
		sqrmsd = newSqrmsd
		s.updateTipHeadings(bone)
	}
}

// setOptimalRotation fits the current headings, rejects invalid rotations
// and applies the rest. With dampening the rotation angle is capped and the
// residual is re-measured instead of taken from the fitter.
func (s *Segment) setOptimalRotation(bone int) (math.Quaternion, float64, bool) {
	result := s.task.fitter.Fit(s.tipHeadings, s.targetHeadings, s.headingWeights, false)
	rotation := result.Rotation
	if !rotation.IsNormalized() {
		return rotation, 0, false
	}

	dampening := s.task.settings.Dampening
	if dampening > 0 && rotation.Angle() > dampening {
		axis, _ := rotation.AxisAngle()
		rotation = math.NewQuatFromAxisAngle(axis, dampening)
		s.task.arena.rotateGlobal(bone, rotation)
		s.updateTipHeadings(bone)
		return rotation, qcp.SqrMSD(s.tipHeadings, s.targetHeadings, s.headingWeights), true
	}

	s.task.arena.rotateGlobal(bone, rotation)
	return rotation, result.SqrMSD, true
}

func (s *Segment) updateTargetHeadings(bone int) {
	index := 0
	for _, e := range s.Effectors() {
		e.updateTargetHeadings(s.task.arena, bone, s.targetHeadings, &index)
	}
}

func (s *Segment) updateTipHeadings(bone int) {
	index := 0
	for _, e := range s.Effectors() {
		e.updateTipHeadings(s.task.arena, bone, s.tipHeadings, &index)
	}
}
