// Package health scores whether the backend is ready to run an analysis.
package health

import (
	"context"

	"github.com/joescharf/arq/internal/apiconfig"
	"github.com/joescharf/arq/internal/backend"
)

// ReadinessThreshold is the share of critical providers that must be
// configured before an analysis is considered operable.
const ReadinessThreshold = 0.70

// Readiness is the computed provider readiness.
type Readiness struct {
	Ready              bool
	CriticalConfigured int
	CriticalTotal      int
	CriticalPercentage float64 // 0-100
	Configured         int
	Total              int
	HealthPercentage   float64 // 0-100, over all providers
	CriticalMissing    []string
}

// Scorer computes readiness from provider statuses.
type Scorer struct{}

// NewScorer returns a new readiness Scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score computes readiness. With no critical providers at all the analysis
// counts as ready.
func (s *Scorer) Score(statuses []apiconfig.Status) *Readiness {
	r := &Readiness{Total: len(statuses)}

	for _, st := range statuses {
		if st.Configured {
			r.Configured++
		}
		if !st.Critical {
			continue
		}
		r.CriticalTotal++
		if st.Configured {
			r.CriticalConfigured++
		} else {
			r.CriticalMissing = append(r.CriticalMissing, st.Name)
		}
	}

	r.HealthPercentage = percent(r.Configured, r.Total)

	if r.CriticalTotal == 0 {
		r.CriticalPercentage = 100
		r.Ready = true
		return r
	}
	ratio := float64(r.CriticalConfigured) / float64(r.CriticalTotal)
	r.CriticalPercentage = ratio * 100
	r.Ready = ratio >= ReadinessThreshold
	return r
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// AppStatuser reports backend health.
type AppStatuser interface {
	AppStatus(ctx context.Context) (*backend.AppStatus, error)
}

// Report combines backend reachability with provider readiness.
type Report struct {
	Backend    *backend.AppStatus
	BackendErr error
	Readiness  *Readiness
}

// Healthy reports whether the backend answered healthy and providers are ready.
func (r *Report) Healthy() bool {
	return r.BackendErr == nil && r.Backend != nil && r.Backend.Healthy &&
		r.Readiness != nil && r.Readiness.Ready
}

// Check queries the backend health endpoint and scores statuses.
// A backend failure is recorded in the report, not returned.
func (s *Scorer) Check(ctx context.Context, app AppStatuser, statuses []apiconfig.Status) *Report {
	rep := &Report{Readiness: s.Score(statuses)}
	rep.Backend, rep.BackendErr = app.AppStatus(ctx)
	return rep
}
