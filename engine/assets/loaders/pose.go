package loaders

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/ewbik/engine/core"
	"github.com/spaghettifunk/ewbik/engine/math"
	"github.com/spaghettifunk/ewbik/engine/skeleton"
	"gopkg.in/yaml.v3"
)

/**
 * @brief A snapshot of the solved pose of one rig.
 */
type PoseFile struct {
	Name  string     `toml:"name" yaml:"name" json:"name"`
	Bones []PoseBone `toml:"bones" yaml:"bones" json:"bones"`
}

/**
 * @brief The solved state of one bone. Position and rotation are in
 * skeleton space with the overrides applied.
 */
type PoseBone struct {
	Name     string     `toml:"name" yaml:"name" json:"name"`
	Position [3]float64 `toml:"position" yaml:"position,flow" json:"position"`
	Rotation [4]float64 `toml:"rotation" yaml:"rotation,flow" json:"rotation"`
	Override [4]float64 `toml:"override" yaml:"override,flow" json:"override"`
	Strength float64    `toml:"strength" yaml:"strength" json:"strength"`
}

// SnapshotPose collects the effective pose of every bone.
func SnapshotPose(s *skeleton.Skeleton) PoseFile {
	pose := PoseFile{Name: s.Name, Bones: make([]PoseBone, 0, s.BoneCount())}
	for id, b := range s.Bones {
		global := s.BoneEffectiveGlobalPose(id)
		pose.Bones = append(pose.Bones, PoseBone{
			Name:     b.Name,
			Position: vec3Array(global.Origin),
			Rotation: quatArray(global.Basis),
			Override: quatArray(b.Override.Basis),
			Strength: b.OverrideStrength,
		})
	}
	return pose
}

// ExportPose encodes the effective pose of every bone in the given format.
func ExportPose(s *skeleton.Skeleton, format string) ([]byte, error) {
	pose := SnapshotPose(s)
	switch format {
	case FormatJSON:
		return json.MarshalIndent(pose, "", "  ")
	case FormatYAML:
		return yaml.Marshal(pose)
	case FormatTOML:
		return toml.Marshal(pose)
	default:
		return nil, fmt.Errorf("format %q: %w", format, core.ErrUnsupportedRig)
	}
}

func vec3Array(v math.Vec3) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

func quatArray(q math.Quaternion) [4]float64 {
	return [4]float64{q.X, q.Y, q.Z, q.W}
}
