// Package analysis は写真解析を HTTP リクエストから切り離して実行するワーカープール。
// キューは有限で、満杯の場合はジョブを捨てる。解析の遅延がトグル・投稿の応答に波及しない。
package analysis

import (
	"context"
	"io"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	admindomain "github.com/sngm3741/holiday-lights/api/internal/admin/domain"
	"github.com/sngm3741/holiday-lights/api/internal/metrics"
	"github.com/sngm3741/holiday-lights/api/internal/public/application"
)

const defaultJobTimeout = 90 * time.Second

// PhotoReader opens staged photos.
type PhotoReader interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Analyzer は解析サービスの出力契約を返す。
type Analyzer interface {
	Analyze(ctx context.Context, image io.Reader, mediaType string) (admindomain.AnalysisResult, error)
}

// Applier は解析結果を投稿へ反映する。
type Applier interface {
	Apply(ctx context.Context, submissionID string, result admindomain.AnalysisResult) error
}

// Config はワーカー数とキュー長。
type Config struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
}

// Pool implements application.AnalysisEnqueuer.
type Pool struct {
	cfg      Config
	photos   PhotoReader
	analyzer Analyzer
	applier  Applier
	metrics  metrics.Recorder
	logger   *slog.Logger

	jobs   chan application.AnalysisJob
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewPool(cfg Config, photos PhotoReader, analyzer Analyzer, applier Applier, recorder metrics.Recorder, logger *slog.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = defaultJobTimeout
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		cfg:      cfg,
		photos:   photos,
		analyzer: analyzer,
		applier:  applier,
		metrics:  recorder,
		logger:   logger.With("component", "analysis_worker"),
		jobs:     make(chan application.AnalysisJob, cfg.QueueSize),
	}
}

// Enqueue はブロックしない。満杯または停止後は false。
func (p *Pool) Enqueue(job application.AnalysisJob) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.jobs <- job:
		return true
	default:
		return false
	}
}

// Start launches the workers. ctx のキャンセルで処理中のジョブも打ち切られる。
func (p *Pool) Start(ctx context.Context) {
	p.logger.Info("analysis workers started", "workers", p.cfg.Workers, "queue_size", p.cfg.QueueSize)
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.run(ctx)
	}
}

// Shutdown は受付を止め、キューに残ったジョブを処理し終えるか ctx が切れるまで待つ。
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) run(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			p.process(ctx, job)
		}
	}
}

func (p *Pool) process(ctx context.Context, job application.AnalysisJob) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, p.cfg.JobTimeout)
	defer cancel()

	result, err := p.analyze(ctx, job)
	if err != nil {
		p.metrics.RecordAnalysis("failed", time.Since(start))
		p.logger.Warn("photo analysis failed", "submission_id", job.SubmissionID, "photo", job.PhotoKey, "error", err)
		return
	}
	if err := p.applier.Apply(ctx, job.SubmissionID, result); err != nil {
		p.metrics.RecordAnalysis("apply_failed", time.Since(start))
		p.logger.Error("failed to apply analysis", "submission_id", job.SubmissionID, "photo", job.PhotoKey, "error", err)
		return
	}

	outcome := "ok"
	if !result.IsValidDisplay {
		outcome = "flagged"
	}
	p.metrics.RecordAnalysis(outcome, time.Since(start))
	p.logger.Info("photo analyzed", "submission_id", job.SubmissionID, "photo", job.PhotoKey, "tags", len(result.Tags), "valid", result.IsValidDisplay)
}

func (p *Pool) analyze(ctx context.Context, job application.AnalysisJob) (admindomain.AnalysisResult, error) {
	rc, err := p.photos.Open(ctx, job.PhotoKey)
	if err != nil {
		return admindomain.AnalysisResult{}, err
	}
	defer rc.Close()
	return p.analyzer.Analyze(ctx, rc, MediaType(job.PhotoKey))
}

// MediaType は写真キーの拡張子から MIME タイプを推定する。
func MediaType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".heic":
		return "image/heic"
	default:
		return "image/jpeg"
	}
}

var _ application.AnalysisEnqueuer = (*Pool)(nil)
