package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	LoginSuccessTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "piwatch_logins_success_total",
		Help: "Total number of successful appliance logins.",
	})
	LoginFailureTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "piwatch_logins_failure_total",
		Help: "Total number of failed appliance logins.",
	})
	AuthRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "piwatch_auth_retries_total",
		Help: "Total number of 401-triggered invalidate-and-replay cycles.",
	})
	TransportRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "piwatch_transport_retries_total",
		Help: "Total number of transport-failure retries against the appliance.",
	})
	UpstreamRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "piwatch_upstream_requests_total",
		Help: "Appliance API attempts by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})
)

// Register installs the piwatch metrics on the given registerer. Call once at
// application startup; the collectors themselves are usable before (and
// without) registration, which keeps tests free of registry setup.
func Register(reg prometheus.Registerer) {
	if reg == nil {
		log.Error().Msg("Prometheus registry is nil, cannot register custom metrics.")
		return
	}

	collectors := []prometheus.Collector{
		LoginSuccessTotal,
		LoginFailureTotal,
		AuthRetriesTotal,
		TransportRetriesTotal,
		UpstreamRequestsTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msg("Failed to register metric")
		}
	}

	log.Info().Msg("Custom Prometheus metrics registered.")
}
