package loaders

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/spaghettifunk/ewbik/engine/core"
	"github.com/spaghettifunk/ewbik/engine/ik"
	"github.com/spaghettifunk/ewbik/engine/math"
	"github.com/spaghettifunk/ewbik/engine/skeleton"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const armTOML = `
name = "arm"
position = [5.0, 0.0, 0.0]

[solver]
root = "shoulder"
iterations = 8
dampening = 0.5

[[bones]]
name = "shoulder"

[[bones]]
name = "elbow"
parent = "shoulder"
position = [0.0, 1.0, 0.0]

[[bones]]
name = "wrist"
parent = "elbow"
position = [0.0, 1.0, 0.0]

[[effectors]]
bone = "wrist"
target = "ball"
priority = [1.0, 0.0, 0.5]
weight = 2.0

[[targets]]
name = "ball"
position = [6.0, 1.0, 0.0]
`

const armYAML = `
name: arm
solver:
  stabilization_passes: 3
  auto_leaf_effectors: true
bones:
  - name: shoulder
  - name: elbow
    parent: shoulder
    position: [0, 1, 0]
    rotation: [0, 0, 0, 2]
  - name: wrist
    parent: elbow
    position: [0, 1, 0]
`

const armJSON = `{
  "name": "arm",
  "solver": {"min_distance": 0.001, "blend_strength": 0.5},
  "bones": [
    {"name": "shoulder"},
    {"name": "elbow", "parent": "shoulder", "position": [0, 1, 0]},
    {"name": "wrist", "parent": "elbow", "position": [0, 1, 0]}
  ],
  "effectors": [{"bone": "wrist", "position": [1, -1, 0], "priority": [0, 0, 0]}]
}`

func writeRig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRigTOML(t *testing.T) {
	rig, err := LoadRig(context.Background(), writeRig(t, "arm.toml", armTOML))
	require.NoError(t, err)

	s := rig.Skeleton
	assert.True(t, strings.HasPrefix(rig.Source, "file://"))
	assert.NotZero(t, rig.Fingerprint)
	assert.Equal(t, "arm", s.Name)
	assert.Equal(t, 3, s.BoneCount())
	assert.Equal(t, 1, s.BoneParent(2))
	assert.Equal(t, math.NewVec3(5, 0, 0), s.Transform.Origin)

	require.Len(t, s.Effectors, 1)
	e := s.Effectors[0]
	assert.Equal(t, "ball", e.Target)
	assert.Equal(t, math.NewVec3(1, 0, 0.5), e.Priority)
	assert.Equal(t, 2.0, e.Weight)

	target, ok := s.TargetTransform("ball")
	require.True(t, ok)
	assert.Equal(t, math.NewVec3(6, 1, 0), target.Origin)

	assert.Equal(t, 0, rig.Settings.RootBone)
	assert.Equal(t, 8, rig.Settings.Iterations)
	assert.Equal(t, 0.5, rig.Settings.Dampening)
	assert.Equal(t, ik.DefaultSettings().StabilizationPasses, rig.Settings.StabilizationPasses)
	assert.Equal(t, ik.DefaultSettings().MinDistance, rig.Settings.MinDistance)
}

func TestLoadRigYAML(t *testing.T) {
	rig, err := LoadRig(context.Background(), writeRig(t, "arm.yml", armYAML))
	require.NoError(t, err)

	assert.Equal(t, 3, rig.Settings.StabilizationPasses)
	assert.True(t, rig.Settings.AutoLeafEffectors)
	assert.Equal(t, -1, rig.Settings.RootBone)
	assert.Empty(t, rig.Skeleton.Effectors)
	assert.True(t, rig.Skeleton.Bones[1].Rest.Basis.IsEqualApprox(math.NewQuatIdentity(), 1e-12))
}

func TestLoadRigJSONSolves(t *testing.T) {
	rig, err := LoadRig(context.Background(), writeRig(t, "arm.json", armJSON))
	require.NoError(t, err)
	assert.Equal(t, 0.5, rig.Settings.BlendStrength)
	assert.Equal(t, 0.001, rig.Settings.MinDistance)

	task := ik.NewTask(rig.Skeleton, rig.Settings)
	require.NoError(t, rig.Skeleton.Bind(task))
	stats, err := task.Solve()
	require.NoError(t, err)
	assert.Less(t, stats.Residual, 1e-6)
	assert.Equal(t, 0.5, rig.Skeleton.Bones[1].OverrideStrength)
}

func TestLoadRigErrors(t *testing.T) {
	tests := []struct {
		description string
		file        string
		content     string
		err         error
	}{
		{
			description: "unknown extension",
			file:        "arm.txt",
			content:     armTOML,
			err:         core.ErrUnsupportedRig,
		},
		{
			description: "missing name",
			file:        "arm.json",
			content:     `{"bones": [{"name": "a"}]}`,
			err:         ErrInvalidRig,
		},
		{
			description: "unknown parent",
			file:        "arm.json",
			content:     `{"name": "arm", "bones": [{"name": "a", "parent": "b"}]}`,
			err:         skeleton.ErrUnknownBone,
		},
		{
			description: "duplicate bone",
			file:        "arm.json",
			content:     `{"name": "arm", "bones": [{"name": "a"}, {"name": "a"}]}`,
			err:         skeleton.ErrDuplicateBone,
		},
		{
			description: "duplicate effector",
			file:        "arm.json",
			content:     `{"name": "arm", "bones": [{"name": "a"}], "effectors": [{"bone": "a"}, {"bone": "a"}]}`,
			err:         skeleton.ErrDuplicateEffector,
		},
		{
			description: "bad position",
			file:        "arm.json",
			content:     `{"name": "arm", "bones": [{"name": "a", "position": [1, 2]}]}`,
			err:         ErrInvalidRig,
		},
		{
			description: "zero rotation",
			file:        "arm.json",
			content:     `{"name": "arm", "bones": [{"name": "a", "rotation": [0, 0, 0, 0]}]}`,
			err:         ErrInvalidRig,
		},
		{
			description: "bad priority",
			file:        "arm.json",
			content:     `{"name": "arm", "bones": [{"name": "a"}], "effectors": [{"bone": "a", "priority": [1]}]}`,
			err:         ErrInvalidRig,
		},
		{
			description: "unknown solver root",
			file:        "arm.json",
			content:     `{"name": "arm", "solver": {"root": "z"}, "bones": [{"name": "a"}]}`,
			err:         skeleton.ErrUnknownBone,
		},
	}
	for _, tc := range tests {
		_, err := LoadRig(context.Background(), writeRig(t, tc.file, tc.content))
		assert.ErrorIs(t, err, tc.err, tc.description)
	}
}

func TestDecodeRigRejectsUnknownKeys(t *testing.T) {
	for format, data := range map[string]string{
		FormatTOML: "name = \"arm\"\ncolour = \"red\"\n",
		FormatYAML: "name: arm\ncolour: red\n",
		FormatJSON: `{"name": "arm", "colour": "red"}`,
	} {
		_, err := DecodeRig(format, []byte(data))
		assert.Error(t, err, format)
	}
	_, err := DecodeRig("xml", nil)
	assert.ErrorIs(t, err, core.ErrUnsupportedRig)
}

func TestLoadRigMissingFile(t *testing.T) {
	_, err := LoadRig(context.Background(), filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestExportPose(t *testing.T) {
	rig, err := LoadRig(context.Background(), writeRig(t, "arm.json", armJSON))
	require.NoError(t, err)
	task := ik.NewTask(rig.Skeleton, rig.Settings)
	require.NoError(t, rig.Skeleton.Bind(task))
	_, err = task.Solve()
	require.NoError(t, err)

	data, err := ExportPose(rig.Skeleton, FormatJSON)
	require.NoError(t, err)
	var fromJSON PoseFile
	require.NoError(t, json.Unmarshal(data, &fromJSON))
	assert.Equal(t, "arm", fromJSON.Name)
	require.Len(t, fromJSON.Bones, 3)
	assert.Equal(t, "wrist", fromJSON.Bones[2].Name)
	assert.Equal(t, 0.5, fromJSON.Bones[2].Strength)

	data, err = ExportPose(rig.Skeleton, FormatYAML)
	require.NoError(t, err)
	var fromYAML PoseFile
	require.NoError(t, yaml.Unmarshal(data, &fromYAML))
	assert.Equal(t, fromJSON.Bones[1].Name, fromYAML.Bones[1].Name)

	data, err = ExportPose(rig.Skeleton, FormatTOML)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[[bones]]")

	_, err = ExportPose(rig.Skeleton, "csv")
	assert.ErrorIs(t, err, core.ErrUnsupportedRig)
}
