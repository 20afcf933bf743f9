package main

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	Requests       *prometheus.CounterVec   // labels: source, outcome={ok,fetch_error,decode_error}
	Products       *prometheus.CounterVec   // labels: product
	DecodeDuration *prometheus.HistogramVec // labels: product
	FetchedBytes   prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "metio",
			Name:      "requests_total",
			Help:      "Decode requests by source and outcome.",
		}, []string{"source", "outcome"}),
		Products: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "metio",
			Name:      "products_decoded_total",
			Help:      "Successfully decoded products by format.",
		}, []string{"product"}),
		DecodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "metio",
			Name:      "decode_duration_seconds",
			Help:      "Time spent decoding one product.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
		}, []string{"product"}),
		FetchedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "metio",
			Name:      "fetched_bytes_total",
			Help:      "Bytes read from all sources.",
		}),
	}
	reg.MustRegister(m.Requests, m.Products, m.DecodeDuration, m.FetchedBytes)
	return m
}
