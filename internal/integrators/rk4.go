package integrators

// RK4 is the classical explicit fourth-order Runge-Kutta method. The local
// error is estimated by step doubling.
type RK4 struct {
	adaptive
	k1, k2, k3, k4 []float64
	scratch        []float64
	full, mid      []float64
}

func NewRK4(tol Tolerance) *RK4 {
	return &RK4{adaptive: newAdaptive("rk4", 4, tol)}
}

func (r *RK4) Init(n int) {
	r.init(n)
	r.k1 = make([]float64, n)
	r.k2 = make([]float64, n)
	r.k3 = make([]float64, n)
	r.k4 = make([]float64, n)
	r.scratch = make([]float64, n)
	r.full = make([]float64, n)
	r.mid = make([]float64, n)
}

func (r *RK4) Evolve(sys System, t *float64, tf float64, h *float64, y []float64) error {
	return r.evolve(sys, t, tf, h, y, r.attempt)
}

func (r *RK4) attempt(sys System, t, h float64, y, out []float64) (float64, error) {
	if err := r.step(sys, y, t, h, r.full); err != nil {
		return 0, err
	}
	if err := r.step(sys, y, t, h/2, r.mid); err != nil {
		return 0, err
	}
	if err := r.step(sys, r.mid, t+h/2, h/2, out); err != nil {
		return 0, err
	}
	for i := range r.scratch {
		r.scratch[i] = (out[i] - r.full[i]) / 15
	}
	return r.errNorm(r.scratch, y, out), nil
}

// step takes one classical RK4 step of size dt from x into result.
func (r *RK4) step(sys System, x []float64, t, dt float64, result []float64) error {
	n := len(x)
	if err := r.fun(sys, t, x, r.k1); err != nil {
		return err
	}

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*0.5*r.k1[i]
	}
	if err := r.fun(sys, t+dt*0.5, r.scratch, r.k2); err != nil {
		return err
	}

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*0.5*r.k2[i]
	}
	if err := r.fun(sys, t+dt*0.5, r.scratch, r.k3); err != nil {
		return err
	}

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*r.k3[i]
	}
	if err := r.fun(sys, t+dt, r.scratch, r.k4); err != nil {
		return err
	}

	dt6 := dt / 6.0
	for i := 0; i < n; i++ {
		result[i] = x[i] + dt6*(r.k1[i]+2*r.k2[i]+2*r.k3[i]+r.k4[i])
	}
	return nil
}
