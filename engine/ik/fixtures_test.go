package ik

import (
	"fmt"

	"github.com/spaghettifunk/ewbik/engine/math"
	"github.com/spaghettifunk/ewbik/engine/qcp"
)

// fakeSkeleton is an in-memory host. Every non-root bone sits one unit up
// the parent's Y axis unless moved.
type fakeSkeleton struct {
	names     []string
	parents   []int
	locals    []math.Transform
	overrides map[int]math.Transform
	strengths map[int]float64
	world     math.Transform
	targets   map[string]math.Transform
}

func newFakeSkeleton(parents ...int) *fakeSkeleton {
	f := &fakeSkeleton{
		overrides: make(map[int]math.Transform),
		strengths: make(map[int]float64),
		world:     math.TransformCreate(),
		targets:   make(map[string]math.Transform),
	}
	for id, parent := range parents {
		f.addBone(fmt.Sprintf("bone_%d", id), parent)
	}
	return f
}

func newFakeChain(n int) *fakeSkeleton {
	parents := make([]int, n)
	for i := range parents {
		parents[i] = i - 1
	}
	return newFakeSkeleton(parents...)
}

func (f *fakeSkeleton) addBone(name string, parent int) int {
	local := math.TransformCreate()
	if parent >= 0 {
		local = math.TransformFromPosition(math.NewVec3(0, 1, 0))
	}
	f.names = append(f.names, name)
	f.parents = append(f.parents, parent)
	f.locals = append(f.locals, local)
	return len(f.names) - 1
}

func (f *fakeSkeleton) BoneCount() int {
	return len(f.parents)
}

func (f *fakeSkeleton) BoneParent(id int) int {
	return f.parents[id]
}

func (f *fakeSkeleton) BoneChildren(id int) []int {
	var children []int
	for child, parent := range f.parents {
		if parent == id {
			children = append(children, child)
		}
	}
	return children
}

func (f *fakeSkeleton) BoneName(id int) string {
	return f.names[id]
}

func (f *fakeSkeleton) BoneGlobalPose(id int) math.Transform {
	global := f.locals[id]
	for p := f.parents[id]; p >= 0; p = f.parents[p] {
		global = f.locals[p].Mul(global)
	}
	return global
}

// posedGlobal is the bone's transform with every override applied at full
// strength.
func (f *fakeSkeleton) posedGlobal(id int) math.Transform {
	local := func(id int) math.Transform {
		l := f.locals[id]
		if o, ok := f.overrides[id]; ok {
			l.Basis = l.Basis.Mul(o.Basis).Normalize()
		}
		return l
	}
	global := local(id)
	for p := f.parents[id]; p >= 0; p = f.parents[p] {
		global = local(p).Mul(global)
	}
	return global
}

func (f *fakeSkeleton) SetBoneLocalPoseOverride(id int, pose math.Transform, strength float64) {
	f.overrides[id] = pose
	f.strengths[id] = strength
}

func (f *fakeSkeleton) GlobalTransform() math.Transform {
	return f.world
}

func (f *fakeSkeleton) TargetTransform(name string) (math.Transform, bool) {
	t, ok := f.targets[name]
	return t, ok
}

// rawTopology allows inconsistent parent and child lists.
type rawTopology struct {
	parents  []int
	children [][]int
}

func (r rawTopology) BoneCount() int { return len(r.parents) }
func (r rawTopology) BoneParent(id int) int { return r.parents[id] }
func (r rawTopology) BoneChildren(id int) []int { return r.children[id] }

// stubFitter always returns the same result.
type stubFitter struct {
	result qcp.Result
	calls  int
}

func (s *stubFitter) Fit(moving, fixed []math.Vec3, weights []float64, translate bool) qcp.Result {
	s.calls++
	return s.result
}

func quarterTurnZ() math.Quaternion {
	return math.NewQuatFromAxisAngle(math.NewVec3(0, 0, 1), math.K_HALF_PI)
}

func rotationOnly() EffectorOptions {
	opts := DefaultEffectorOptions()
	opts.TargetTransform = math.TransformFromRotation(quarterTurnZ())
	return opts
}

func translationOnly(offset math.Vec3) EffectorOptions {
	opts := DefaultEffectorOptions()
	opts.TargetTransform = math.TransformFromPosition(offset)
	opts.Priority = math.Vec3{}
	return opts
}

func recorder(records *[]FitRecord) Option {
	return WithDiagnostics(func(rec FitRecord) {
		*records = append(*records, rec)
	})
}
