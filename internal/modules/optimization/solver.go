package optimization

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/aristath/quantfusion/internal/domain"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

const (
	initialPenalty = 10.0
	maxPenalty     = 1e8
)

// Objective is a smooth scalar function. Grad must overwrite grad with the
// gradient at x.
type Objective struct {
	Func func(x []float64) float64
	Grad func(grad, x []float64)
}

// Solver is the numerical optimization capability the allocators depend on.
// Implementations must be safe for concurrent use.
type Solver interface {
	// MinimizeQuadratic minimizes xᵀQx over the constraint set.
	// It fails with domain.InfeasibleError when no feasible point is found.
	MinimizeQuadratic(ctx context.Context, q mat.Symmetric, cons *ConstraintSet, x0 []float64) ([]float64, error)
	// MinimizeNonlinear minimizes obj over the constraint set starting at x0.
	// It fails with domain.ConvergenceError when the iteration budget runs out.
	MinimizeNonlinear(ctx context.Context, obj Objective, cons *ConstraintSet, x0 []float64) ([]float64, error)
}

// SolverSettings bounds the work done by a single solve.
type SolverSettings struct {
	MaxOuterIterations   int
	MaxInnerIterations   int
	Tolerance            float64 // largest weight change between outer iterations at convergence
	FeasibilityTolerance float64 // largest normalized constraint violation accepted
}

// DefaultSolverSettings returns the settings used when none are configured.
func DefaultSolverSettings() SolverSettings {
	return SolverSettings{
		MaxOuterIterations:   60,
		MaxInnerIterations:   500,
		Tolerance:            1e-8,
		FeasibilityTolerance: 1e-8,
	}
}

func (s SolverSettings) withDefaults() SolverSettings {
	d := DefaultSolverSettings()
	if s.MaxOuterIterations <= 0 {
		s.MaxOuterIterations = d.MaxOuterIterations
	}
	if s.MaxInnerIterations <= 0 {
		s.MaxInnerIterations = d.MaxInnerIterations
	}
	if s.Tolerance <= 0 {
		s.Tolerance = d.Tolerance
	}
	if s.FeasibilityTolerance <= 0 {
		s.FeasibilityTolerance = d.FeasibilityTolerance
	}
	return s
}

// AugmentedLagrangian implements Solver with a Powell-Hestenes-Rockafellar
// augmented Lagrangian. Each outer iteration minimizes the unconstrained
// Lagrangian with gonum's BFGS (Nelder-Mead when BFGS fails), then updates
// the multipliers and, if feasibility stalls, the penalty.
type AugmentedLagrangian struct {
	settings SolverSettings
	log      zerolog.Logger
}

// NewAugmentedLagrangian creates a solver with the given limits.
func NewAugmentedLagrangian(settings SolverSettings, log zerolog.Logger) *AugmentedLagrangian {
	return &AugmentedLagrangian{
		settings: settings.withDefaults(),
		log:      log.With().Str("component", "solver").Logger(),
	}
}

// MinimizeQuadratic implements Solver.
func (al *AugmentedLagrangian) MinimizeQuadratic(ctx context.Context, q mat.Symmetric, cons *ConstraintSet, x0 []float64) ([]float64, error) {
	n := q.SymmetricDim()
	if n != cons.Assets() {
		return nil, domain.NewValidationError("covariance", "matrix is %dx%d but constraints cover %d assets", n, n, cons.Assets())
	}

	// Rescale so penalty weights behave the same whatever the return units
	scale := 0.0
	for i := 0; i < n; i++ {
		scale = math.Max(scale, math.Abs(q.At(i, i)))
	}
	if scale == 0 {
		scale = 1
	}

	qx := mat.NewVecDense(n, nil)
	obj := Objective{
		Func: func(x []float64) float64 {
			xv := mat.NewVecDense(n, x)
			return mat.Inner(xv, q, xv) / scale
		},
		Grad: func(grad, x []float64) {
			qx.MulVec(q, mat.NewVecDense(n, x))
			for i := range grad {
				grad[i] = 2 * qx.AtVec(i) / scale
			}
		},
	}

	out, err := al.solve(ctx, "quadratic", obj, cons, x0)
	if err != nil {
		return nil, quadraticFailure(err, cons)
	}
	if out.violation > al.settings.FeasibilityTolerance {
		return nil, &domain.InfeasibleError{
			Assets:      n,
			Constraints: cons.Count(),
			Violation:   out.violation,
			Reason:      "no point satisfies all constraints",
		}
	}
	return cons.Project(out.x), nil
}

// quadraticFailure maps a failed quadratic solve onto InfeasibleError. A
// failure of the inner minimizer keeps its cause in the reason so it is not
// mistaken for unsatisfiable constraints.
func quadraticFailure(err error, cons *ConstraintSet) error {
	var ce *domain.ConvergenceError
	if !errors.As(err, &ce) {
		return err
	}
	reason := "no point satisfies all constraints"
	if ce.Err != nil {
		reason = fmt.Sprintf("inner minimization failed at outer iteration %d: %v", ce.Iterations, ce.Err)
	}
	return &domain.InfeasibleError{
		Assets:      cons.Assets(),
		Constraints: cons.Count(),
		Violation:   ce.Residual,
		Reason:      reason,
	}
}

// MinimizeNonlinear implements Solver.
func (al *AugmentedLagrangian) MinimizeNonlinear(ctx context.Context, obj Objective, cons *ConstraintSet, x0 []float64) ([]float64, error) {
	if obj.Func == nil || obj.Grad == nil {
		return nil, errors.New("nonlinear objective needs both a function and a gradient")
	}

	out, err := al.solve(ctx, "nonlinear", obj, cons, x0)
	if err != nil {
		return nil, err
	}
	if out.violation > al.settings.FeasibilityTolerance || (!out.converged && out.step > math.Sqrt(al.settings.Tolerance)) {
		return nil, &domain.ConvergenceError{
			Method:     "augmented_lagrangian",
			Iterations: out.iterations,
			Residual:   math.Max(out.violation, out.step),
		}
	}
	return cons.Project(out.x), nil
}

// penaltyTerm is one scalar constraint g(x) = 0 or g(x) <= 0, normalized
// so that violations are comparable across constraints.
type penaltyTerm struct {
	name     string
	equality bool
	eval     func(x []float64) float64
	addGrad  func(grad, x []float64, coef float64)
}

type solveOutcome struct {
	x          []float64
	violation  float64
	step       float64
	iterations int
	converged  bool
}

func (al *AugmentedLagrangian) solve(ctx context.Context, kind string, obj Objective, cons *ConstraintSet, x0 []float64) (*solveOutcome, error) {
	n := cons.Assets()
	if len(x0) != n {
		return nil, domain.NewValidationError("x0", "starting point has %d entries for %d assets", len(x0), n)
	}

	terms, err := al.penaltyTerms(cons)
	if err != nil {
		return nil, err
	}

	mult := make([]float64, len(terms))
	rho := initialPenalty

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			v := obj.Func(x)
			for k, t := range terms {
				g := t.eval(x)
				if t.equality {
					v += mult[k]*g + 0.5*rho*g*g
					continue
				}
				p := math.Max(0, mult[k]+rho*g)
				v += (p*p - mult[k]*mult[k]) / (2 * rho)
			}
			return v
		},
		Grad: func(grad, x []float64) {
			obj.Grad(grad, x)
			for k, t := range terms {
				g := t.eval(x)
				coef := mult[k] + rho*g
				if !t.equality {
					coef = math.Max(0, coef)
				}
				if coef != 0 {
					t.addGrad(grad, x, coef)
				}
			}
		},
	}

	out := &solveOutcome{x: append([]float64(nil), x0...)}
	prevViolation := math.Inf(1)

	for iter := 1; iter <= al.settings.MaxOuterIterations; iter++ {
		settings, err := al.innerSettings(ctx)
		if err != nil {
			return nil, &domain.TimeoutError{Operation: kind + " solve", Err: err}
		}

		next, err := al.minimizeInner(problem, out.x, settings)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, &domain.TimeoutError{Operation: kind + " solve", Err: ctxErr}
			}
			return nil, &domain.ConvergenceError{Method: kind, Iterations: iter, Residual: out.violation, Err: err}
		}

		out.step = maxAbsDiff(next, out.x)
		out.x = next
		out.iterations = iter
		out.violation = maxViolation(terms, out.x)

		for k, t := range terms {
			g := t.eval(out.x)
			if t.equality {
				mult[k] += rho * g
			} else {
				mult[k] = math.Max(0, mult[k]+rho*g)
			}
		}

		al.log.Debug().
			Str("kind", kind).
			Int("iteration", iter).
			Float64("violation", out.violation).
			Float64("step", out.step).
			Float64("penalty", rho).
			Msg("Outer iteration")

		if out.violation <= al.settings.FeasibilityTolerance && out.step <= al.settings.Tolerance {
			out.converged = true
			return out, nil
		}

		if out.violation > 0.25*prevViolation {
			rho = math.Min(rho*10, maxPenalty)
		}
		prevViolation = out.violation
	}

	if err := ctx.Err(); err != nil {
		return nil, &domain.TimeoutError{Operation: kind + " solve", Err: err}
	}

	al.log.Debug().
		Str("kind", kind).
		Float64("violation", out.violation).
		Float64("step", out.step).
		Msg("Outer iteration budget exhausted")

	return out, nil
}

func (al *AugmentedLagrangian) innerSettings(ctx context.Context) (*optimize.Settings, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	settings := &optimize.Settings{
		GradientThreshold: 1e-11,
		MajorIterations:   al.settings.MaxInnerIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-16,
			Relative:   1e-14,
			Iterations: 20,
		},
	}
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, context.DeadlineExceeded
		}
		settings.Runtime = remaining
	}
	return settings, nil
}

// minimizeInner runs BFGS and falls back to Nelder-Mead, keeping whichever
// location is better.
func (al *AugmentedLagrangian) minimizeInner(p optimize.Problem, x []float64, settings *optimize.Settings) ([]float64, error) {
	result, err := optimize.Minimize(p, x, settings, &optimize.BFGS{})
	if err == nil && result != nil && usableStatus(result.Status) && isFinite(result.F) {
		return append([]float64(nil), result.X...), nil
	}

	al.log.Debug().Err(err).Msg("BFGS did not finish cleanly, trying Nelder-Mead")

	fallback, fallbackErr := optimize.Minimize(p, x, settings, &optimize.NelderMead{})
	switch {
	case result != nil && isFinite(result.F) && (fallback == nil || !isFinite(fallback.F) || result.F <= fallback.F):
		return append([]float64(nil), result.X...), nil
	case fallback != nil && isFinite(fallback.F):
		return append([]float64(nil), fallback.X...), nil
	}
	return nil, fmt.Errorf("inner minimization failed: %w", errors.Join(err, fallbackErr))
}

func usableStatus(s optimize.Status) bool {
	switch s {
	case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence,
		optimize.StepConvergence, optimize.MethodConverge, optimize.IterationLimit:
		return true
	}
	return false
}

func (al *AugmentedLagrangian) penaltyTerms(cons *ConstraintSet) ([]penaltyTerm, error) {
	var terms []penaltyTerm

	for i := range cons.Lower {
		if lo := cons.Lower[i]; !math.IsInf(lo, -1) {
			terms = append(terms, penaltyTerm{
				name:    "lower",
				eval:    func(x []float64) float64 { return lo - x[i] },
				addGrad: func(grad, _ []float64, coef float64) { grad[i] -= coef },
			})
		}
		if hi := cons.Upper[i]; !math.IsInf(hi, 1) {
			terms = append(terms, penaltyTerm{
				name:    "upper",
				eval:    func(x []float64) float64 { return x[i] - hi },
				addGrad: func(grad, _ []float64, coef float64) { grad[i] += coef },
			})
		}
	}

	for _, lc := range cons.Linear {
		norm := floats.Norm(lc.Coeffs, 2)
		if norm == 0 {
			// 0 = b or 0 <= b, independent of the weights
			if (lc.Equality && math.Abs(lc.Bound) > al.settings.FeasibilityTolerance) ||
				(!lc.Equality && lc.Bound < -al.settings.FeasibilityTolerance) {
				return nil, &domain.InfeasibleError{
					Assets:      cons.Assets(),
					Constraints: cons.Count(),
					Violation:   math.Abs(lc.Bound),
					Reason:      fmt.Sprintf("constraint %s has no weight terms and cannot hold", lc.Name),
				}
			}
			continue
		}
		a := make([]float64, len(lc.Coeffs))
		floats.ScaleTo(a, 1/norm, lc.Coeffs)
		b := lc.Bound / norm
		terms = append(terms, penaltyTerm{
			name:     lc.Name,
			equality: lc.Equality,
			eval:     func(x []float64) float64 { return floats.Dot(a, x) - b },
			addGrad:  func(grad, _ []float64, coef float64) { floats.AddScaled(grad, coef, a) },
		})
	}

	for _, qc := range cons.Quadratic {
		n := len(qc.Center)
		scale := qc.Bound
		for i := 0; i < n; i++ {
			scale = math.Max(scale, math.Abs(qc.Matrix.At(i, i)))
		}
		if scale <= 0 {
			scale = 1
		}
		diff := mat.NewVecDense(n, nil)
		md := mat.NewVecDense(n, nil)
		terms = append(terms, penaltyTerm{
			name: qc.Name,
			eval: func(x []float64) float64 {
				for i := 0; i < n; i++ {
					diff.SetVec(i, x[i]-qc.Center[i])
				}
				return (mat.Inner(diff, qc.Matrix, diff) - qc.Bound) / scale
			},
			addGrad: func(grad, x []float64, coef float64) {
				for i := 0; i < n; i++ {
					diff.SetVec(i, x[i]-qc.Center[i])
				}
				md.MulVec(qc.Matrix, diff)
				for i := range grad {
					grad[i] += coef * 2 * md.AtVec(i) / scale
				}
			},
		})
	}

	return terms, nil
}

func maxViolation(terms []penaltyTerm, x []float64) float64 {
	var worst float64
	for _, t := range terms {
		g := t.eval(x)
		if t.equality {
			g = math.Abs(g)
		}
		worst = math.Max(worst, g)
	}
	return worst
}

func maxAbsDiff(a, b []float64) float64 {
	var d float64
	for i := range a {
		d = math.Max(d, math.Abs(a[i]-b[i]))
	}
	return d
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
