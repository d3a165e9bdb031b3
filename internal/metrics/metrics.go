// Package metrics объявляет счётчики Prometheus для ключевых операций сервиса.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConsumesAuthorized количество успешных списаний единиц квоты.
	ConsumesAuthorized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "entitlements_consumes_authorized_total",
		Help: "Number of listing creations authorized by consuming an entitlement unit.",
	})

	// ConsumesDenied количество отказов из-за отсутствия пригодной квоты.
	ConsumesDenied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "entitlements_consumes_denied_total",
		Help: "Number of listing creations denied for lack of an eligible entitlement.",
	})

	// GrantsIssued количество выданных квот по источникам.
	GrantsIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "entitlements_grants_issued_total",
		Help: "Number of entitlements granted, by source.",
	}, []string{"source"})

	// FeatureActivations количество активаций и продлений выделений.
	FeatureActivations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "entitlements_feature_activations_total",
		Help: "Number of feature activations applied, by feature type.",
	}, []string{"feature_type"})

	// SweepExpiredRows количество строк, переведённых в expired за все проходы.
	SweepExpiredRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "entitlements_sweep_expired_rows_total",
		Help: "Number of rows transitioned to expired by the sweeper, by kind.",
	}, []string{"kind"})

	// SweepPublishErrors количество ошибок публикации событий истечения.
	SweepPublishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "entitlements_sweep_publish_errors_total",
		Help: "Number of failed event publications during sweeps.",
	})
)
