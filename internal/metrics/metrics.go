package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by the connect flows.
const (
	OutcomeRedirect = "redirect"
	OutcomeRender   = "render"
	OutcomeLinked   = "linked"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

var (
	FlowTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauth_connect_flow_total",
		Help: "Connect flow operations by operation and outcome",
	}, []string{"operation", "outcome"})

	AccountStatusRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oauth_connect_account_status_rejected_total",
		Help: "Authentications skipped because the account is locked, disabled or expired",
	})
)

// Register registers the collectors on reg (or the default registerer if nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{FlowTotal, AccountStatusRejected} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}

func Flow(operation, outcome string) {
	FlowTotal.WithLabelValues(operation, outcome).Inc()
}
