package math

import (
	m "math"
)

const (
	/** @brief An approximate representation of PI. */
	K_PI float64 = m.Pi
	/** @brief An approximate representation of PI divided by 2. */
	K_HALF_PI float64 = 0.5 * K_PI
	/** @brief A multiplier used to convert degrees to radians. */
	K_DEG2RAD_MULTIPLIER float64 = K_PI / 180.0
	/** @brief A multiplier used to convert radians to degrees. */
	K_RAD2DEG_MULTIPLIER float64 = 180.0 / K_PI
	/** @brief Tolerance used when checking whether a quaternion is normalized. */
	K_UNIT_EPSILON float64 = 1e-6
	/** @brief Tolerance used by the approximate comparisons. */
	K_CMP_EPSILON float64 = 1e-9
)

// ------------------------------------------
// Vector 3
// ------------------------------------------

func NewVec3(x, y, z float64) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

func NewVec3Zero() Vec3 {
	return Vec3{}
}

func NewVec3One() Vec3 {
	return Vec3{1, 1, 1}
}

func NewVec3Up() Vec3 {
	return Vec3{0, 1, 0}
}

func NewVec3Right() Vec3 {
	return Vec3{1, 0, 0}
}

func NewVec3Forward() Vec3 {
	return Vec3{0, 0, -1}
}

func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{v.X + other.X, v.Y + other.Y, v.Z + other.Z}
}

func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{v.X - other.X, v.Y - other.Y, v.Z - other.Z}
}

func (v Vec3) Neg() Vec3 {
	return Vec3{-v.X, -v.Y, -v.Z}
}

func (v Vec3) MulScalar(scalar float64) Vec3 {
	return Vec3{v.X * scalar, v.Y * scalar, v.Z * scalar}
}

func (v Vec3) LengthSquared() float64 {
	return v.X*v.X + v.Y*v.Y + v.Z*v.Z
}

func (v Vec3) Length() float64 {
	return m.Sqrt(v.LengthSquared())
}

// Normalized returns a unit copy of v. The zero vector stays zero.
func (v Vec3) Normalized() Vec3 {
	l := v.Length()
	if l == 0 {
		return Vec3{}
	}
	return v.MulScalar(1 / l)
}

func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

func (v Vec3) Cross(other Vec3) Vec3 {
	return Vec3{
		v.Y*other.Z - v.Z*other.Y,
		v.Z*other.X - v.X*other.Z,
		v.X*other.Y - v.Y*other.X,
	}
}

func (v Vec3) Distance(other Vec3) float64 {
	return v.Sub(other).Length()
}

/**
 * @brief Compares all elements of v and other and ensures the difference
 * is less than tolerance.
 */
func (v Vec3) Compare(other Vec3, tolerance float64) bool {
	return m.Abs(v.X-other.X) <= tolerance &&
		m.Abs(v.Y-other.Y) <= tolerance &&
		m.Abs(v.Z-other.Z) <= tolerance
}

func (v Vec3) IsFinite() bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z)
}

// ------------------------------------------
// Quaternion
// ------------------------------------------

/**
 * @brief Creates an identity quaternion.
 *
 * @return An identity quaternion.
 */
func NewQuatIdentity() Quaternion {
	return Quaternion{0, 0, 0, 1.0}
}

func NewQuat(x, y, z, w float64) Quaternion {
	return Quaternion{X: x, Y: y, Z: z, W: w}
}

/**
 * @brief Creates a quaternion from the given axis and angle.
 *
 * @param axis The axis of rotation. It is normalized before use.
 * @param angle The angle of rotation in radians.
 * @return A new unit quaternion.
 */
func NewQuatFromAxisAngle(axis Vec3, angle float64) Quaternion {
	a := axis.Normalized()
	if a.LengthSquared() == 0 {
		return NewQuatIdentity()
	}
	s, c := m.Sincos(0.5 * angle)
	return Quaternion{s * a.X, s * a.Y, s * a.Z, c}
}

/**
 * @brief Returns the normal of the provided quaternion.
 */
func (q Quaternion) Normal() float64 {
	return m.Sqrt(q.Dot(q))
}

/**
 * @brief Returns a normalized copy of the provided quaternion. A zero
 * quaternion yields the identity.
 */
func (q Quaternion) Normalize() Quaternion {
	normal := q.Normal()
	if normal == 0 {
		return NewQuatIdentity()
	}
	return Quaternion{
		q.X / normal,
		q.Y / normal,
		q.Z / normal,
		q.W / normal}
}

// IsNormalized reports whether q is a finite unit quaternion.
func (q Quaternion) IsNormalized() bool {
	if !isFinite(q.X) || !isFinite(q.Y) || !isFinite(q.Z) || !isFinite(q.W) {
		return false
	}
	return m.Abs(q.Dot(q)-1.0) < K_UNIT_EPSILON
}

/**
 * @brief Returns the conjugate of the provided quaternion. That is,
 * The x, y and z elements are negated, but the w element is untouched.
 */
func (q Quaternion) Conjugate() Quaternion {
	return Quaternion{-q.X, -q.Y, -q.Z, q.W}
}

/**
 * @brief Returns an inverse copy of the provided quaternion.
 */
func (q Quaternion) Inverse() Quaternion {
	return q.Conjugate().Normalize()
}

/**
 * @brief Multiplies the provided quaternions (Hamilton product). The
 * result rotates by other first, then by q.
 */
func (q Quaternion) Mul(other Quaternion) Quaternion {
	return Quaternion{
		X: q.X*other.W + q.Y*other.Z - q.Z*other.Y + q.W*other.X,
		Y: -q.X*other.Z + q.Y*other.W + q.Z*other.X + q.W*other.Y,
		Z: q.X*other.Y - q.Y*other.X + q.Z*other.W + q.W*other.Z,
		W: -q.X*other.X - q.Y*other.Y - q.Z*other.Z + q.W*other.W,
	}
}

func (q Quaternion) Dot(other Quaternion) float64 {
	return q.X*other.X +
		q.Y*other.Y +
		q.Z*other.Z +
		q.W*other.W
}

// Rotate applies the rotation q to v.
func (q Quaternion) Rotate(v Vec3) Vec3 {
	u := Vec3{q.X, q.Y, q.Z}
	t := u.Cross(v).MulScalar(2)
	return v.Add(t.MulScalar(q.W)).Add(u.Cross(t))
}

// Angle returns the rotation angle of q in radians, in [0, PI].
func (q Quaternion) Angle() float64 {
	w := m.Abs(q.Normalize().W)
	if w > 1 {
		w = 1
	}
	return 2 * m.Acos(w)
}

// AxisAngle returns the rotation axis and angle of q. The identity
// rotation reports the X axis and a zero angle.
func (q Quaternion) AxisAngle() (Vec3, float64) {
	n := q.Normalize()
	if n.W < 0 {
		n = Quaternion{-n.X, -n.Y, -n.Z, -n.W}
	}
	axis := Vec3{n.X, n.Y, n.Z}
	if axis.LengthSquared() < K_CMP_EPSILON*K_CMP_EPSILON {
		return NewVec3Right(), 0
	}
	return axis.Normalized(), 2 * m.Acos(Clamp(n.W, -1.0, 1.0))
}

// IsEqualApprox reports whether q and other describe the same rotation
// within tolerance. q and -q are the same rotation.
func (q Quaternion) IsEqualApprox(other Quaternion, tolerance float64) bool {
	return 1.0-m.Abs(q.Normalize().Dot(other.Normalize())) <= tolerance
}

/**
 * @brief Calculates spherical linear interpolation of a given percentage
 * between two quaternions.
 *
 * @param other The second quaternion.
 * @param percentage The percentage of interpolation, typically a value from 0.0-1.0.
 * @return An interpolated quaternion.
 */
func (q Quaternion) Slerp(other Quaternion, percentage float64) Quaternion {
	// Source: https://en.Wikipedia.org/wiki/Slerp
	v0 := q.Normalize()
	v1 := other.Normalize()

	dot := v0.Dot(v1)

	// v1 and -v1 are the same rotation; take the shorter path.
	if dot < 0.0 {
		v1 = Quaternion{-v1.X, -v1.Y, -v1.Z, -v1.W}
		dot = -dot
	}

	const dotThreshold = 0.9995
	if dot > dotThreshold {
		qt := Quaternion{
			v0.X + ((v1.X - v0.X) * percentage),
			v0.Y + ((v1.Y - v0.Y) * percentage),
			v0.Z + ((v1.Z - v0.Z) * percentage),
			v0.W + ((v1.W - v0.W) * percentage)}
		return qt.Normalize()
	}

	theta0 := m.Acos(dot)
	theta := theta0 * percentage
	sinTheta := m.Sin(theta)
	sinTheta0 := m.Sin(theta0)

	s0 := m.Cos(theta) - dot*sinTheta/sinTheta0
	s1 := sinTheta / sinTheta0

	return Quaternion{
		(v0.X * s0) + (v1.X * s1),
		(v0.Y * s0) + (v1.Y * s1),
		(v0.Z * s0) + (v1.Z * s1),
		(v0.W * s0) + (v1.W * s1)}
}

/**
 * @brief Converts provided degrees to radians.
 */
func DegToRad(degrees float64) float64 {
	return degrees * K_DEG2RAD_MULTIPLIER
}

/**
 * @brief Converts provided radians to degrees.
 */
func RadToDeg(radians float64) float64 {
	return radians * K_RAD2DEG_MULTIPLIER
}

func isFinite(f float64) bool {
	return !m.IsNaN(f) && !m.IsInf(f, 0)
}
