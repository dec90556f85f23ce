package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	autosaveTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "phfolio",
			Subsystem: "editor",
			Name:      "autosaves_total",
			Help:      "自动保存次数（按结果分类）。",
		},
		[]string{"result"},
	)

	autosaveDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "phfolio",
			Subsystem: "editor",
			Name:      "autosave_duration_seconds",
			Help:      "自动保存写入耗时分布（秒）。",
			Buckets:   prometheus.DefBuckets,
		},
	)

	openSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "phfolio",
			Subsystem: "editor",
			Name:      "open_sessions",
			Help:      "当前打开的编辑会话数量。",
		},
	)
)

// ObserveAutosave 记录一次自动保存的结果与耗时。
func ObserveAutosave(result string, d time.Duration) {
	autosaveTotal.WithLabelValues(result).Inc()
	autosaveDuration.Observe(d.Seconds())
}

// SessionOpened 记录编辑会话打开。
func SessionOpened() { openSessions.Inc() }

// SessionClosed 记录编辑会话关闭。
func SessionClosed() { openSessions.Dec() }
