// Package qcp fits the rotation that best superposes one weighted set of
// vectors onto another. The optimum is the dominant eigenvector of the 4x4
// quaternion key matrix built from the weighted cross-covariance of the two
// sets; its eigenvalue gives the residual directly.
package qcp

import (
	m "math"

	"github.com/spaghettifunk/ewbik/engine/math"
	"gonum.org/v1/gonum/mat"
)

// DefaultTieTolerance is the relative eigenvalue gap under which two
// eigenvalues are treated as equal.
const DefaultTieTolerance = 1e-9

// Result of one superposition.
type Result struct {
	// Rotation maps the moving set onto the fixed set.
	Rotation math.Quaternion
	// Translation is zero unless translation solving was requested.
	Translation math.Vec3
	// SqrMSD is the weighted mean square deviation after applying Rotation
	// (and Translation).
	SqrMSD float64
}

type Fitter struct {
	TieTolerance float64
}

func New() *Fitter {
	return &Fitter{TieTolerance: DefaultTieTolerance}
}

// Fit computes the rotation that minimizes sum(w * |R*moving + t - fixed|^2).
// The three sequences must have equal length; entries past the shortest one
// are ignored. Negative weights count as zero.
//
// When several rotations are equally optimal (fewer than two independent
// directions) the one closest to the identity is returned, so a single
// direction pair yields the shortest arc between them.
func (f *Fitter) Fit(moving, fixed []math.Vec3, weights []float64, translate bool) Result {
	n := len(weights)
	if len(moving) < n {
		n = len(moving)
	}
	if len(fixed) < n {
		n = len(fixed)
	}

	wsum := 0.0
	var movingCenter, fixedCenter math.Vec3
	for i := 0; i < n; i++ {
		w := m.Max(weights[i], 0)
		wsum += w
		movingCenter = movingCenter.Add(moving[i].MulScalar(w))
		fixedCenter = fixedCenter.Add(fixed[i].MulScalar(w))
	}
	if wsum == 0 {
		return Result{Rotation: math.NewQuatIdentity()}
	}
	if translate {
		movingCenter = movingCenter.MulScalar(1 / wsum)
		fixedCenter = fixedCenter.MulScalar(1 / wsum)
	} else {
		movingCenter = math.Vec3{}
		fixedCenter = math.Vec3{}
	}

	var e0 float64
	var sxx, sxy, sxz, syx, syy, syz, szx, szy, szz float64
	for i := 0; i < n; i++ {
		w := m.Max(weights[i], 0)
		a := moving[i].Sub(movingCenter)
		b := fixed[i].Sub(fixedCenter)
		e0 += w * (a.LengthSquared() + b.LengthSquared())

		sxx += w * a.X * b.X
		sxy += w * a.X * b.Y
		sxz += w * a.X * b.Z
		syx += w * a.Y * b.X
		syy += w * a.Y * b.Y
		syz += w * a.Y * b.Z
		szx += w * a.Z * b.X
		szy += w * a.Z * b.Y
		szz += w * a.Z * b.Z
	}

	key := mat.NewSymDense(4, []float64{
		sxx + syy + szz, syz - szy, szx - sxz, sxy - syx,
		syz - szy, sxx - syy - szz, sxy + syx, szx + sxz,
		szx - sxz, sxy + syx, -sxx + syy - szz, syz + szy,
		sxy - syx, szx + sxz, syz + szy, -sxx - syy + szz,
	})

	var eigen mat.EigenSym
	if ok := eigen.Factorize(key, true); !ok {
		nan := m.NaN()
		return Result{Rotation: math.NewQuat(nan, nan, nan, nan), SqrMSD: nan}
	}
	values := eigen.Values(nil)
	var vectors mat.Dense
	eigen.VectorsTo(&vectors)

	top := len(values) - 1
	maxEigen := values[top]
	tolerance := f.tieTolerance() * m.Max(1, m.Abs(e0))

	// Project the identity (1,0,0,0) onto the optimal eigenspace.
	var q [4]float64
	for k := top; k >= 0 && maxEigen-values[k] <= tolerance; k-- {
		c := vectors.At(0, k)
		for r := 0; r < 4; r++ {
			q[r] += c * vectors.At(r, k)
		}
	}
	if q[0]*q[0]+q[1]*q[1]+q[2]*q[2]+q[3]*q[3] < 1e-16 {
		for r := 0; r < 4; r++ {
			q[r] = vectors.At(r, top)
		}
	}

	rotation := math.NewQuat(q[1], q[2], q[3], q[0]).Normalize()
	if rotation.W < 0 {
		rotation = math.NewQuat(-rotation.X, -rotation.Y, -rotation.Z, -rotation.W)
	}

	result := Result{
		Rotation: rotation,
		SqrMSD:   m.Max(0, (e0-2*maxEigen)/wsum),
	}
	if translate {
		result.Translation = fixedCenter.Sub(rotation.Rotate(movingCenter))
	}
	return result
}

// SqrMSD measures sum(w * |fixed - moving|^2) / sum(w) without fitting.
func SqrMSD(moving, fixed []math.Vec3, weights []float64) float64 {
	rmsd := 0.0
	wsum := 0.0
	for i := range weights {
		if i >= len(moving) || i >= len(fixed) {
			break
		}
		w := weights[i]
		rmsd += w * fixed[i].Sub(moving[i]).LengthSquared()
		wsum += w
	}
	if wsum == 0 {
		return 0
	}
	return rmsd / wsum
}

func (f *Fitter) tieTolerance() float64 {
	if f.TieTolerance <= 0 {
		return DefaultTieTolerance
	}
	return f.TieTolerance
}
