package station

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the latest report as Prometheus gauges.
type Metrics struct {
	Pressure       prometheus.Gauge
	Temperature    prometheus.Gauge
	AuxTemperature prometheus.Gauge
	Altitude       prometheus.Gauge
	LowPressure    prometheus.Gauge
	Samples        prometheus.Counter
	Errors         *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		Pressure: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hpa",
			Name:      "pressure_hpa",
			Help:      "Station pressure in hPa.",
		}),
		Temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hpa",
			Name:      "temperature_celsius",
			Help:      "Temperature reported by the pressure sensor.",
		}),
		AuxTemperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hpa",
			Name:      "aux_temperature_celsius",
			Help:      "Temperature reported by the auxiliary sensor.",
		}),
		Altitude: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hpa",
			Name:      "altitude_meters",
			Help:      "Altitude above the reference pressure level.",
		}),
		LowPressure: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hpa",
			Name:      "low_pressure",
			Help:      "1 while pressure is below the alert threshold.",
		}),
		Samples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hpa",
			Name:      "samples_total",
			Help:      "Completed station polls.",
		}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hpa",
			Name:      "errors_total",
			Help:      "Failed reads by device.",
		}, []string{"device"}),
	}
}

func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.Pressure, m.Temperature, m.AuxTemperature, m.Altitude, m.LowPressure, m.Samples, m.Errors} {
		err := reg.Register(c)
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) observe(r Report) {
	m.Samples.Inc()
	m.Temperature.Set(float64(r.Reading.Temperature))
	if r.Reading.Pressure > 0 {
		m.Pressure.Set(float64(r.Reading.Pressure))
		m.Altitude.Set(r.Altitude)
	}
	if r.AuxTemperature != nil {
		m.AuxTemperature.Set(float64(*r.AuxTemperature))
	}
	if r.LowPressure {
		m.LowPressure.Set(1)
	} else {
		m.LowPressure.Set(0)
	}
}

func (m *Metrics) failed(device string) {
	m.Errors.WithLabelValues(device).Inc()
}
