package loaders

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/ewbik/engine/core"
	"github.com/spaghettifunk/ewbik/engine/ik"
	"github.com/spaghettifunk/ewbik/engine/math"
	"github.com/spaghettifunk/ewbik/engine/skeleton"
	"github.com/viant/afs"
	"gopkg.in/yaml.v3"
)

var ErrInvalidRig = errors.New("invalid rig")

const (
	FormatTOML = "toml"
	FormatYAML = "yaml"
	FormatJSON = "json"
)

/**
 * @brief The on-disk description of a rig.
 */
type RigFile struct {
	/** @brief The name of the rig. */
	Name string `toml:"name" yaml:"name" json:"name"`
	/** @brief The world position of the skeleton. */
	Position []float64 `toml:"position,omitempty" yaml:"position,omitempty" json:"position,omitempty"`
	/** @brief The world rotation of the skeleton as x, y, z, w. */
	Rotation []float64 `toml:"rotation,omitempty" yaml:"rotation,omitempty" json:"rotation,omitempty"`
	/** @brief The solver settings. */
	Solver SolverConfig `toml:"solver" yaml:"solver" json:"solver"`
	/** @brief The bones, parents before children. */
	Bones []BoneConfig `toml:"bones" yaml:"bones" json:"bones"`
	/** @brief The effector bindings. */
	Effectors []EffectorConfig `toml:"effectors,omitempty" yaml:"effectors,omitempty" json:"effectors,omitempty"`
	/** @brief The external targets, in world space. */
	Targets []TargetConfig `toml:"targets,omitempty" yaml:"targets,omitempty" json:"targets,omitempty"`
}

type SolverConfig struct {
	Root                string  `toml:"root,omitempty" yaml:"root,omitempty" json:"root,omitempty"`
	Iterations          int     `toml:"iterations" yaml:"iterations" json:"iterations"`
	StabilizationPasses int     `toml:"stabilization_passes" yaml:"stabilization_passes" json:"stabilization_passes"`
	BlendStrength       float64 `toml:"blend_strength" yaml:"blend_strength" json:"blend_strength"`
	Falloff             float64 `toml:"falloff" yaml:"falloff" json:"falloff"`
	MinDistance         float64 `toml:"min_distance" yaml:"min_distance" json:"min_distance"`
	Dampening           float64 `toml:"dampening" yaml:"dampening" json:"dampening"`
	AutoLeafEffectors   bool    `toml:"auto_leaf_effectors" yaml:"auto_leaf_effectors" json:"auto_leaf_effectors"`
}

type BoneConfig struct {
	Name     string    `toml:"name" yaml:"name" json:"name"`
	Parent   string    `toml:"parent,omitempty" yaml:"parent,omitempty" json:"parent,omitempty"`
	Position []float64 `toml:"position,omitempty" yaml:"position,omitempty" json:"position,omitempty"`
	Rotation []float64 `toml:"rotation,omitempty" yaml:"rotation,omitempty" json:"rotation,omitempty"`
}

type EffectorConfig struct {
	Bone              string    `toml:"bone" yaml:"bone" json:"bone"`
	Target            string    `toml:"target,omitempty" yaml:"target,omitempty" json:"target,omitempty"`
	UseTargetRotation bool      `toml:"use_target_rotation,omitempty" yaml:"use_target_rotation,omitempty" json:"use_target_rotation,omitempty"`
	Position          []float64 `toml:"position,omitempty" yaml:"position,omitempty" json:"position,omitempty"`
	Rotation          []float64 `toml:"rotation,omitempty" yaml:"rotation,omitempty" json:"rotation,omitempty"`
	Priority          []float64 `toml:"priority,omitempty" yaml:"priority,omitempty" json:"priority,omitempty"`
	Weight            *float64  `toml:"weight,omitempty" yaml:"weight,omitempty" json:"weight,omitempty"`
}

type TargetConfig struct {
	Name     string    `toml:"name" yaml:"name" json:"name"`
	Position []float64 `toml:"position,omitempty" yaml:"position,omitempty" json:"position,omitempty"`
	Rotation []float64 `toml:"rotation,omitempty" yaml:"rotation,omitempty" json:"rotation,omitempty"`
}

/**
 * @brief A loaded rig, ready to be solved.
 */
type Rig struct {
	/** @brief Where the rig was loaded from. */
	Source string
	/** @brief A hash of the raw file contents. */
	Fingerprint uint64
	/** @brief The skeleton with its effectors and targets. */
	Skeleton *skeleton.Skeleton
	/** @brief The solver settings. */
	Settings ik.Settings
}

type RigLoader struct{}

func (rl *RigLoader) Load(ctx context.Context, url string) (*Rig, error) {
	return LoadRig(ctx, url)
}

// FormatFromPath maps a file extension to a rig format.
func FormatFromPath(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%s: %w", path, core.ErrUnsupportedRig)
	}
}

// LoadRig fetches a rig from a local path or any URL afs can reach and
// builds its skeleton.
func LoadRig(ctx context.Context, url string) (*Rig, error) {
	format, err := FormatFromPath(url)
	if err != nil {
		return nil, err
	}
	if !strings.Contains(url, "://") {
		abs, err := filepath.Abs(url)
		if err != nil {
			return nil, err
		}
		url = "file://" + abs
	}

	fs := afs.New()
	data, err := fs.DownloadWithURL(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rig %s: %w", url, err)
	}
	fingerprint, err := core.Fingerprint(data)
	if err != nil {
		return nil, err
	}

	file, err := DecodeRig(format, data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode rig %s: %w", url, err)
	}
	skel, settings, err := file.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build rig %s: %w", url, err)
	}
	core.LogDebug("loaded rig '%s' from %s (%d bones, %d effectors)", skel.Name, url, skel.BoneCount(), len(skel.Effectors))
	return &Rig{
		Source:      url,
		Fingerprint: fingerprint,
		Skeleton:    skel,
		Settings:    settings,
	}, nil
}

// DecodeRig parses a rig document. Unknown keys are an error; missing solver
// keys keep their defaults.
func DecodeRig(format string, data []byte) (*RigFile, error) {
	file := &RigFile{Solver: defaultSolverConfig()}
	switch format {
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(file); err != nil {
			return nil, err
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(file); err != nil {
			return nil, err
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(file); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("format %q: %w", format, core.ErrUnsupportedRig)
	}
	return file, nil
}

func defaultSolverConfig() SolverConfig {
	d := ik.DefaultSettings()
	return SolverConfig{
		Iterations:          d.Iterations,
		StabilizationPasses: d.StabilizationPasses,
		BlendStrength:       d.BlendStrength,
		Falloff:             d.Falloff,
		MinDistance:         d.MinDistance,
		Dampening:           d.Dampening,
		AutoLeafEffectors:   d.AutoLeafEffectors,
	}
}

// Build turns the document into a skeleton and solver settings.
func (f *RigFile) Build() (*skeleton.Skeleton, ik.Settings, error) {
	settings := ik.DefaultSettings()
	if f.Name == "" {
		return nil, settings, fmt.Errorf("rig without a name: %w", ErrInvalidRig)
	}

	skel := skeleton.New(f.Name)
	world, err := toTransform(f.Position, f.Rotation)
	if err != nil {
		return nil, settings, fmt.Errorf("rig transform: %w", err)
	}
	skel.Transform = world

	for _, b := range f.Bones {
		parent := -1
		if b.Parent != "" {
			if parent = skel.FindBone(b.Parent); parent < 0 {
				return nil, settings, fmt.Errorf("bone %q has parent %q: %w", b.Name, b.Parent, skeleton.ErrUnknownBone)
			}
		}
		rest, err := toTransform(b.Position, b.Rotation)
		if err != nil {
			return nil, settings, fmt.Errorf("bone %q: %w", b.Name, err)
		}
		if _, err := skel.AddBone(b.Name, parent, rest); err != nil {
			return nil, settings, err
		}
	}

	for _, e := range f.Effectors {
		offset, err := toTransform(e.Position, e.Rotation)
		if err != nil {
			return nil, settings, fmt.Errorf("effector on %q: %w", e.Bone, err)
		}
		priority := math.NewVec3(1, 1, 1)
		if e.Priority != nil {
			if len(e.Priority) != 3 {
				return nil, settings, fmt.Errorf("effector on %q needs 3 priorities: %w", e.Bone, ErrInvalidRig)
			}
			priority = math.NewVec3(e.Priority[0], e.Priority[1], e.Priority[2])
		}
		weight := 1.0
		if e.Weight != nil {
			weight = *e.Weight
		}
		if err := skel.SetEffector(skeleton.EffectorConfig{
			Bone:              e.Bone,
			Target:            e.Target,
			UseTargetRotation: e.UseTargetRotation,
			TargetTransform:   offset,
			Priority:          priority,
			Weight:            weight,
		}); err != nil {
			return nil, settings, err
		}
	}

	for _, t := range f.Targets {
		transform, err := toTransform(t.Position, t.Rotation)
		if err != nil {
			return nil, settings, fmt.Errorf("target %q: %w", t.Name, err)
		}
		skel.SetTarget(t.Name, transform)
	}

	s := f.Solver
	settings.Iterations = s.Iterations
	settings.StabilizationPasses = s.StabilizationPasses
	settings.BlendStrength = s.BlendStrength
	settings.Falloff = s.Falloff
	settings.MinDistance = s.MinDistance
	settings.Dampening = s.Dampening
	settings.AutoLeafEffectors = s.AutoLeafEffectors
	if s.Root != "" {
		if settings.RootBone = skel.FindBone(s.Root); settings.RootBone < 0 {
			return nil, settings, fmt.Errorf("solver root %q: %w", s.Root, skeleton.ErrUnknownBone)
		}
	}
	return skel, settings, nil
}

func toTransform(position, rotation []float64) (math.Transform, error) {
	t := math.TransformCreate()
	switch len(position) {
	case 0:
	case 3:
		t.SetPosition(math.NewVec3(position[0], position[1], position[2]))
	default:
		return t, fmt.Errorf("position needs 3 values, got %d: %w", len(position), ErrInvalidRig)
	}
	switch len(rotation) {
	case 0:
	case 4:
		q := math.NewQuat(rotation[0], rotation[1], rotation[2], rotation[3])
		if q.Normal() == 0 {
			return t, fmt.Errorf("zero rotation: %w", ErrInvalidRig)
		}
		t.SetRotation(q.Normalize())
	default:
		return t, fmt.Errorf("rotation needs 4 values (x, y, z, w), got %d: %w", len(rotation), ErrInvalidRig)
	}
	return t, nil
}
