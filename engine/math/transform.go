package math

func TransformCreate() Transform {
	return Transform{Basis: NewQuatIdentity()}
}

func TransformFromPosition(position Vec3) Transform {
	return Transform{Basis: NewQuatIdentity(), Origin: position}
}

func TransformFromRotation(rotation Quaternion) Transform {
	return Transform{Basis: rotation}
}

func TransformFromPositionRotation(position Vec3, rotation Quaternion) Transform {
	return Transform{Basis: rotation, Origin: position}
}

func (t *Transform) SetPosition(position Vec3) {
	t.Origin = position
}

func (t *Transform) Translate(translation Vec3) {
	t.Origin = t.Origin.Add(translation)
}

func (t *Transform) SetRotation(rotation Quaternion) {
	t.Basis = rotation
}

// Rotate post-multiplies the basis, rotating in the transform's own frame.
func (t *Transform) Rotate(rotation Quaternion) {
	t.Basis = t.Basis.Mul(rotation).Normalize()
}

// Mul composes t with other so that the result applies other first.
func (t Transform) Mul(other Transform) Transform {
	return Transform{
		Basis:  t.Basis.Mul(other.Basis).Normalize(),
		Origin: t.Xform(other.Origin),
	}
}

// AffineInverse returns the inverse rigid transform.
func (t Transform) AffineInverse() Transform {
	inv := t.Basis.Inverse()
	return Transform{
		Basis:  inv,
		Origin: inv.Rotate(t.Origin.Neg()),
	}
}

// Xform maps a point from the local space of t into its parent space.
func (t Transform) Xform(v Vec3) Vec3 {
	return t.Basis.Rotate(v).Add(t.Origin)
}

// XformInv maps a point from the parent space of t into its local space.
func (t Transform) XformInv(v Vec3) Vec3 {
	return t.Basis.Inverse().Rotate(v.Sub(t.Origin))
}

func (t Transform) IsEqualApprox(other Transform, tolerance float64) bool {
	return t.Origin.Compare(other.Origin, tolerance) && t.Basis.IsEqualApprox(other.Basis, tolerance)
}
