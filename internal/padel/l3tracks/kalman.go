package l3tracks

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// kalmanCV is a constant-velocity Kalman filter over (x, y, vx, vy) in
// pixels, measuring (x, y).
type kalmanCV struct {
	x *mat.VecDense // state
	p *mat.Dense    // covariance

	qPos, qVel float64
	r          float64
}

var measH = mat.NewDense(2, 4, []float64{
	1, 0, 0, 0,
	0, 1, 0, 0,
})

func newKalmanCV(x, y float64, cfg BallFilterConfig) *kalmanCV {
	return &kalmanCV{
		x: mat.NewVecDense(4, []float64{x, y, 0, 0}),
		p: mat.NewDense(4, 4, []float64{
			cfg.MeasurementNoise, 0, 0, 0,
			0, cfg.MeasurementNoise, 0, 0,
			0, 0, cfg.InitialVelocityVar, 0,
			0, 0, 0, cfg.InitialVelocityVar,
		}),
		qPos: cfg.ProcessNoisePos,
		qVel: cfg.ProcessNoiseVel,
		r:    cfg.MeasurementNoise,
	}
}

// predict advances the state by dt frames: x' = F x, P' = F P Fᵀ + Q·dt.
func (k *kalmanCV) predict(dt float64) {
	f := mat.NewDense(4, 4, []float64{
		1, 0, dt, 0,
		0, 1, 0, dt,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
	var x mat.VecDense
	x.MulVec(f, k.x)
	k.x = &x

	var fp, fpft mat.Dense
	fp.Mul(f, k.p)
	fpft.Mul(&fp, f.T())
	fpft.Set(0, 0, fpft.At(0, 0)+k.qPos*dt)
	fpft.Set(1, 1, fpft.At(1, 1)+k.qPos*dt)
	fpft.Set(2, 2, fpft.At(2, 2)+k.qVel*dt)
	fpft.Set(3, 3, fpft.At(3, 3)+k.qVel*dt)
	k.p = &fpft
}

// innovation returns the residual z - Hx and its covariance S = HPHᵀ + R.
func (k *kalmanCV) innovation(zx, zy float64) (*mat.VecDense, *mat.Dense) {
	y := mat.NewVecDense(2, []float64{zx - k.x.AtVec(0), zy - k.x.AtVec(1)})
	var hp, s mat.Dense
	hp.Mul(measH, k.p)
	s.Mul(&hp, measH.T())
	s.Set(0, 0, s.At(0, 0)+k.r)
	s.Set(1, 1, s.At(1, 1)+k.r)
	return y, &s
}

// mahalanobisSq returns the squared Mahalanobis distance of a measurement
// from the predicted position, or +Inf when S is singular.
func (k *kalmanCV) mahalanobisSq(zx, zy float64) float64 {
	y, s := k.innovation(zx, zy)
	var sInv mat.Dense
	if err := sInv.Inverse(s); err != nil {
		return math.Inf(1)
	}
	var tmp mat.VecDense
	tmp.MulVec(&sInv, y)
	return mat.Dot(y, &tmp)
}

// update folds in a measurement.
func (k *kalmanCV) update(zx, zy float64) bool {
	y, s := k.innovation(zx, zy)
	var sInv mat.Dense
	if err := sInv.Inverse(s); err != nil {
		return false
	}
	// K = P Hᵀ S⁻¹
	var pht, gain mat.Dense
	pht.Mul(k.p, measH.T())
	gain.Mul(&pht, &sInv)

	var dx mat.VecDense
	dx.MulVec(&gain, y)
	var x mat.VecDense
	x.AddVec(k.x, &dx)
	k.x = &x

	// P = (I - K H) P, symmetrised against round-off.
	var kh, ikh, p mat.Dense
	kh.Mul(&gain, measH)
	ikh.Sub(eye4(), &kh)
	p.Mul(&ikh, k.p)
	var sym mat.Dense
	sym.Add(&p, p.T())
	sym.Scale(0.5, &sym)
	k.p = &sym
	return true
}

func (k *kalmanCV) position() (float64, float64) { return k.x.AtVec(0), k.x.AtVec(1) }
func (k *kalmanCV) velocity() (float64, float64) { return k.x.AtVec(2), k.x.AtVec(3) }

func (k *kalmanCV) setVelocityY(vy float64) { k.x.SetVec(3, vy) }

func (k *kalmanCV) trace() float64 { return mat.Trace(k.p) }

// finite reports whether the state and covariance diagonal are finite.
func (k *kalmanCV) finite() bool {
	for i := 0; i < 4; i++ {
		if !isFinite(k.x.AtVec(i)) || !isFinite(k.p.At(i, i)) {
			return false
		}
	}
	return true
}

func eye4() *mat.Dense {
	return mat.NewDense(4, 4, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
