package element

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// GaussLegendre returns the n point Gauss-Legendre rule on [-1,1]. The
// points are the eigenvalues of the symmetric tridiagonal Jacobi matrix of
// the Legendre recurrence and the weights are 2 times the squared first
// component of each eigenvector.
func GaussLegendre(n int) (X, W []float64, err error) {
	if n < 1 {
		return nil, nil, fmt.Errorf("need at least one quadrature point, got %d", n)
	}
	jm := mat.NewSymDense(n, nil)
	for k := 1; k < n; k++ {
		kf := float64(k)
		jm.SetSym(k-1, k, kf/math.Sqrt(4*kf*kf-1))
	}
	var eig mat.EigenSym
	if ok := eig.Factorize(jm, true); !ok {
		return nil, nil, fmt.Errorf("eigenvalue decomposition failed for n=%d", n)
	}
	X = eig.Values(nil)
	vecs := mat.NewDense(n, n, nil)
	eig.VectorsTo(vecs)
	W = make([]float64, n)
	for i := range W {
		v := vecs.At(0, i)
		W[i] = 2 * v * v
	}
	return X, W, nil
}

// quadShape returns the derivatives of the four bilinear shape functions with
// respect to the reference coordinates (r, s) in [-1,1]², local node order
// (-1,-1), (1,-1), (1,1), (-1,1).
func quadShape(r, s float64) (dNdr, dNds [4]float64) {
	dNdr = [4]float64{-(1 - s) / 4, (1 - s) / 4, (1 + s) / 4, -(1 + s) / 4}
	dNds = [4]float64{-(1 - r) / 4, -(1 + r) / 4, (1 + r) / 4, (1 - r) / 4}
	return
}

// IntegrateStiffness builds the unit square Q4 stiffness matrix by tensor
// Gauss-Legendre quadrature with nq points per direction, K = ∫ Bᵀ D B dA.
// nq = 2 integrates the bilinear element exactly.
func IntegrateStiffness(e, nu float64, nq int) (*Stiffness, error) {
	if err := checkMaterial(e, nu); err != nil {
		return nil, err
	}
	R, W, err := GaussLegendre(nq)
	if err != nil {
		return nil, err
	}

	c := e / (1 - nu*nu)
	D := mat.NewDense(3, 3, []float64{
		c, c * nu, 0,
		c * nu, c, 0,
		0, 0, c * (1 - nu) / 2,
	})

	// x = (r+1)/2 on the unit square: dN/dx = 2 dN/dr, dA = dr ds / 4
	const jac, detJ = 2., 1. / 4.

	K := mat.NewDense(8, 8, nil)
	B := mat.NewDense(3, 8, nil)
	var DB, BtDB mat.Dense
	for i, r := range R {
		for j, s := range R {
			dNdr, dNds := quadShape(r, s)
			B.Zero()
			for a := 0; a < 4; a++ {
				dx, dy := jac*dNdr[a], jac*dNds[a]
				B.Set(0, 2*a, dx)
				B.Set(1, 2*a+1, dy)
				B.Set(2, 2*a, dy)
				B.Set(2, 2*a+1, dx)
			}
			DB.Mul(D, B)
			BtDB.Mul(B.T(), &DB)
			BtDB.Scale(W[i]*W[j]*detJ, &BtDB)
			K.Add(K, &BtDB)
		}
	}
	values := make([]float64, 64)
	copy(values, K.RawMatrix().Data)
	return newStiffness(e, nu, values), nil
}
