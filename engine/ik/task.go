package ik

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/spaghettifunk/ewbik/engine/core"
	"github.com/spaghettifunk/ewbik/engine/math"
	"github.com/spaghettifunk/ewbik/engine/qcp"
)

// RotationFitter finds the rotation that best maps the moving headings onto
// the fixed ones. It must be deterministic.
type RotationFitter interface {
	Fit(moving, fixed []math.Vec3, weights []float64, translate bool) qcp.Result
}

// Settings tune one solver task.
type Settings struct {
	// RootBone is where segmentation starts. -1 uses the skeleton's only
	// root; a skeleton with several roots must name one.
	RootBone int
	// Iterations is the number of grouped passes per Solve.
	Iterations int
	// StabilizationPasses is the number of extra fits per bone.
	StabilizationPasses int
	// BlendStrength is handed to the pose source with every override.
	BlendStrength float64
	// Falloff scales every heading weight.
	Falloff float64
	// MinDistance stops iterating once the residual is below its square.
	// Zero always runs every iteration.
	MinDistance float64
	// Dampening caps the angle of a single fit, in radians. Zero disables it.
	Dampening float64
	// AutoLeafEffectors puts a hold-position effector on every leaf bone
	// that has none.
	AutoLeafEffectors bool
}

func DefaultSettings() Settings {
	return Settings{
		RootBone:            -1,
		Iterations:          4,
		StabilizationPasses: 1,
		BlendStrength:       1,
		Falloff:             1,
		MinDistance:         0.01,
	}
}

// SolveStats summarizes one Solve call.
type SolveStats struct {
	Iterations int
	Initial    float64
	Residual   float64
	Fits       int
	Rejected   int
}

type Option func(*Task)

// WithFitter replaces the default QCP fitter.
func WithFitter(fitter RotationFitter) Option {
	return func(t *Task) {
		t.fitter = fitter
	}
}

// WithDiagnostics installs a sink for per-bone fit records.
func WithDiagnostics(fn DiagnosticFunc) Option {
	return func(t *Task) {
		t.diagnostics = fn
	}
}

// Task solves one skeleton. It is not safe for concurrent use; independent
// tasks on independent skeletons may run in parallel.
type Task struct {
	skeleton    Skeleton
	settings    Settings
	fitter      RotationFitter
	diagnostics DiagnosticFunc

	options map[int]EffectorOptions
	locks   map[int]bool

	arena        *Arena
	rootBone     int
	root         *Segment
	effectors    map[int]*Effector
	effectorList []*Effector

	fingerprint uint64
	built       bool
	dirty       bool
	stats       SolveStats
}

func NewTask(skeleton Skeleton, settings Settings, opts ...Option) *Task {
	t := &Task{
		skeleton: skeleton,
		fitter:   qcp.New(),
		options:  make(map[int]EffectorOptions),
		locks:    make(map[int]bool),
		rootBone: -1,
	}
	t.SetSettings(settings)
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Task) Settings() Settings {
	return t.settings
}

// SetSettings replaces the settings. The segment tree is rebuilt on the next
// solve since the falloff feeds the heading weights.
func (t *Task) SetSettings(settings Settings) {
	if settings.StabilizationPasses < 0 {
		settings.StabilizationPasses = 0
	}
	if settings.Iterations < 0 {
		settings.Iterations = 0
	}
	if settings.Falloff <= 0 {
		settings.Falloff = 1
	}
	settings.BlendStrength = math.Clamp(settings.BlendStrength, 0.0, 1.0)
	t.settings = settings
	t.dirty = true
}

// SetEffector marks a bone as an effector, or updates its options.
func (t *Task) SetEffector(bone int, options EffectorOptions) error {
	if bone < 0 || bone >= t.skeleton.BoneCount() {
		return fmt.Errorf("effector on bone %d: %w", bone, ErrUnknownBone)
	}
	t.options[bone] = options
	t.dirty = true
	return nil
}

func (t *Task) RemoveEffector(bone int) {
	if _, ok := t.options[bone]; ok {
		delete(t.options, bone)
		t.dirty = true
	}
}

// SetOrientationLock stops the solver from rotating the bone. Its children
// are still solved.
func (t *Task) SetOrientationLock(bone int, lock bool) error {
	if bone < 0 || bone >= t.skeleton.BoneCount() {
		return fmt.Errorf("orientation lock on bone %d: %w", bone, ErrUnknownBone)
	}
	t.locks[bone] = lock
	if t.arena != nil && bone < t.arena.Len() {
		t.arena.bones[bone].OrientationLock = lock
	}
	return nil
}

// Root returns the root segment of the last build.
func (t *Task) Root() *Segment {
	return t.root
}

func (t *Task) Arena() *Arena {
	return t.arena
}

// Effector returns the effector on the bone after the last build, or nil.
func (t *Task) Effector(bone int) *Effector {
	return t.effectors[bone]
}

// Effectors returns the effectors in solve order.
func (t *Task) Effectors() []*Effector {
	return t.effectorList
}

// NeedsRebuild reports whether the topology or effector set changed since
// the last build.
func (t *Task) NeedsRebuild() bool {
	if !t.built || t.dirty {
		return true
	}
	fp, err := t.topologyFingerprint()
	return err != nil || fp != t.fingerprint
}

// Build validates the topology and rebuilds the bone arena and segment
// tree. Structural problems are returned before any solving happens.
func (t *Task) Build() error {
	order, err := ValidateTopology(t.skeleton)
	if err != nil {
		return err
	}
	arena := newArena(t.skeleton, order)

	rootBone := t.settings.RootBone
	if rootBone < 0 {
		if roots := arena.roots(); len(roots) > 1 {
			return fmt.Errorf("bones %v have no parent and no root bone is set: %w", roots, ErrMultipleRoots)
		}
		rootBone = order[0]
	} else if rootBone >= arena.Len() {
		return fmt.Errorf("root bone %d: %w", rootBone, ErrUnknownBone)
	}
	solved := arena.subtree(rootBone)

	effectors := make(map[int]*Effector, len(t.options))
	for bone, options := range t.options {
		if bone >= arena.Len() {
			return fmt.Errorf("effector on bone %d: %w", bone, ErrUnknownBone)
		}
		if !solved[bone] {
			return fmt.Errorf("effector on bone %d, root bone %d: %w", bone, rootBone, ErrEffectorOutsideRoot)
		}
		effectors[bone] = newEffector(bone, options)
	}
	if t.settings.AutoLeafEffectors {
		for _, id := range order {
			if _, ok := effectors[id]; !ok && solved[id] && len(arena.bones[id].Children) == 0 {
				effectors[id] = newEffector(id, DefaultEffectorOptions())
			}
		}
	}
	for bone := range effectors {
		arena.bones[bone].HasEffector = true
	}
	for bone, lock := range t.locks {
		if bone < arena.Len() {
			arena.bones[bone].OrientationLock = lock
		}
	}

	t.arena = arena
	t.rootBone = rootBone
	t.effectors = effectors

	root, err := newSegmentBuilder(t).build(rootBone, nil)
	if err != nil {
		t.built = false
		return err
	}
	root.updateEffectorDirectDescendants()
	t.effectorList = root.updateEffectorList(nil)
	t.root = root

	fp, err := t.topologyFingerprint()
	if err != nil {
		return err
	}
	t.fingerprint = fp
	t.built = true
	t.dirty = false
	return nil
}

// Solve seeds the bones from the pose source, refreshes every goal, runs the
// configured number of grouped passes and writes the rotation deltas back.
// Only topology problems are returned; bad fits are skipped and counted.
func (t *Task) Solve() (SolveStats, error) {
	if t.NeedsRebuild() {
		if err := t.Build(); err != nil {
			return SolveStats{}, err
		}
	}

	t.stats = SolveStats{}
	t.arena.seed(t.skeleton)
	for _, e := range t.effectorList {
		e.updateGoal(t.arena, t.skeleton)
	}
	t.stats.Initial = t.Residual()

	threshold := t.settings.MinDistance * t.settings.MinDistance
	for i := 0; i < t.settings.Iterations; i++ {
		t.root.GroupedSolve(t.settings.StabilizationPasses)
		t.stats.Iterations++
		if t.settings.MinDistance > 0 && t.Residual() <= threshold {
			break
		}
	}

	t.stats.Residual = t.Residual()
	t.writeBack()
	return t.stats, nil
}

// Residual is the weighted mean square distance between every effector and
// its goal, in heading units.
func (t *Task) Residual() float64 {
	if t.arena == nil {
		return 0
	}
	sum, wsum := 0.0, 0.0
	for _, e := range t.effectorList {
		s, w := e.residual(t.arena, t.settings.Falloff)
		sum += s
		wsum += w
	}
	if wsum == 0 {
		return 0
	}
	return sum / wsum
}

func (t *Task) writeBack() {
	var walk func(s *Segment)
	walk = func(s *Segment) {
		if s.IsInert() {
			return
		}
		for _, child := range s.children {
			walk(child)
		}
		for _, bone := range s.chain {
			override := math.TransformFromRotation(t.arena.bones[bone].rotDelta)
			t.skeleton.SetBoneLocalPoseOverride(bone, override, t.settings.BlendStrength)
		}
	}
	walk(t.root)
}

func (t *Task) report(rec FitRecord) {
	switch rec.Outcome {
	case FitAccepted, FitStalled:
		t.stats.Fits++
	case FitRejected:
		t.stats.Fits++
		t.stats.Rejected++
	}
	if t.diagnostics != nil {
		t.diagnostics(rec)
	}
}

func (t *Task) boneName(id int) string {
	if namer, ok := t.skeleton.(Namer); ok {
		if name := namer.BoneName(id); name != "" {
			return name
		}
	}
	return fmt.Sprintf("bone_%d", id)
}

// topologyFingerprint hashes the parent links, the effector bones and the
// root bone.
func (t *Task) topologyFingerprint() (uint64, error) {
	n := t.skeleton.BoneCount()
	buf := make([]byte, 0, 4*(n+len(t.options)+2))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(int32(t.settings.RootBone)))
	for id := 0; id < n; id++ {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(int32(t.skeleton.BoneParent(id))))
	}
	bones := make([]int, 0, len(t.options))
	for bone := range t.options {
		bones = append(bones, bone)
	}
	sort.Ints(bones)
	buf = append(buf, 'E')
	for _, bone := range bones {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(bone))
	}
	return core.Fingerprint(buf)
}
