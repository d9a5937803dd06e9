package math

// Vec3 represents a 3D vector
type Vec3 struct {
	X, Y, Z float64
}

/** @brief A quaternion, used to represent rotational orientation. */
type Quaternion struct {
	X, Y, Z, W float64
}

/**
 * @brief Represents the rigid transform of a bone or a goal. The
 * rotation is applied first, then the translation by Origin.
 * Transforms compose right to left: a.Mul(b) applies b, then a.
 */
type Transform struct {
	/** @brief The orientation. Expected to be a unit quaternion. */
	Basis Quaternion
	/** @brief The translation. */
	Origin Vec3
}
