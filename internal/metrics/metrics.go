// Package metrics は Prometheus メトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder はサービス層・ワーカーから利用するメトリクス記録インターフェース。
type Recorder interface {
	RecordEngagement(target, kind, outcome string)
	RecordSubmission(submissionType, outcome string)
	RecordTransition(status string)
	RecordPhotoOp(op, result string)
	RecordAnalysis(result string, duration time.Duration)
	RecordCache(hit bool)
	RecordNotification(channel, result string)
}

// Collector は Recorder の Prometheus 実装。
type Collector struct {
	engagements   *prometheus.CounterVec
	submissions   *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	photoOps      *prometheus.CounterVec
	analyses      *prometheus.CounterVec
	analysisTime  prometheus.Histogram
	cacheLookups  *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

// NewCollector は Collector を生成し、reg に登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		engagements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "holidaylights_engagement_total",
			Help: "react/unReact/report の結果別件数",
		}, []string{"target", "type", "outcome"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "holidaylights_submissions_total",
			Help: "投稿受付の結果別件数",
		}, []string{"type", "outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "holidaylights_submission_transitions_total",
			Help: "審査による状態遷移の件数",
		}, []string{"status"}),
		photoOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "holidaylights_photo_operations_total",
			Help: "写真の移動・削除の結果別件数",
		}, []string{"op", "result"}),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "holidaylights_photo_analysis_total",
			Help: "写真解析ジョブの結果別件数",
		}, []string{"result"}),
		analysisTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "holidaylights_photo_analysis_seconds",
			Help:    "写真解析ジョブの所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "holidaylights_location_cache_lookups_total",
			Help: "ロケーションキャッシュの hit/miss 件数",
		}, []string{"result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "holidaylights_notifications_total",
			Help: "管理者通知の送信結果別件数",
		}, []string{"channel", "result"}),
	}

	reg.MustRegister(
		c.engagements,
		c.submissions,
		c.transitions,
		c.photoOps,
		c.analyses,
		c.analysisTime,
		c.cacheLookups,
		c.notifications,
	)
	return c
}

func (c *Collector) RecordEngagement(target, kind, outcome string) {
	c.engagements.WithLabelValues(target, kind, outcome).Inc()
}

func (c *Collector) RecordSubmission(submissionType, outcome string) {
	c.submissions.WithLabelValues(submissionType, outcome).Inc()
}

func (c *Collector) RecordTransition(status string) {
	c.transitions.WithLabelValues(status).Inc()
}

func (c *Collector) RecordPhotoOp(op, result string) {
	c.photoOps.WithLabelValues(op, result).Inc()
}

func (c *Collector) RecordAnalysis(result string, duration time.Duration) {
	c.analyses.WithLabelValues(result).Inc()
	c.analysisTime.Observe(duration.Seconds())
}

func (c *Collector) RecordCache(hit bool) {
	if hit {
		c.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	c.cacheLookups.WithLabelValues("miss").Inc()
}

func (c *Collector) RecordNotification(channel, result string) {
	c.notifications.WithLabelValues(channel, result).Inc()
}

// Handler は gatherer の内容を公開する /metrics ハンドラを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しない Recorder。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordEngagement(string, string, string) {}
func (Nop) RecordSubmission(string, string) {}
func (Nop) RecordTransition(string) {}
func (Nop) RecordPhotoOp(string, string) {}
func (Nop) RecordAnalysis(string, time.Duration) {}
func (Nop) RecordCache(bool) {}
func (Nop) RecordNotification(string, string) {}

var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Nop{}
)
