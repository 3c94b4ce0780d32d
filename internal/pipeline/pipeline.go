/**
 * Detection Pipeline.
 *
 * Wires capture through to alerting into a running service: a packet
 * source feeds the bounded ingress queue, a worker pool extracts
 * features and evaluates them concurrently against the rule engine and
 * anomaly scorer, joins the two verdicts and routes them, while session
 * and correlator sweepers run on their own tickers. Quiesce composes
 * queue shutdown with a bounded WaitGroup join so in-flight packets
 * drain before the process exits.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kleaSCM/sentryd/internal/alert"
	"github.com/kleaSCM/sentryd/internal/anomaly"
	"github.com/kleaSCM/sentryd/internal/capture"
	"github.com/kleaSCM/sentryd/internal/correlator"
	"github.com/kleaSCM/sentryd/internal/features"
	"github.com/kleaSCM/sentryd/internal/models"
	"github.com/kleaSCM/sentryd/internal/queue"
	"github.com/kleaSCM/sentryd/internal/rules"
	"github.com/kleaSCM/sentryd/internal/session"
	"github.com/kleaSCM/sentryd/internal/telemetry"
)

// DefaultWorkers is the default worker pool size.
const DefaultWorkers = 4

// Config bundles the tunables Pipeline needs beyond its collaborators.
type Config struct {
	Workers       int
	QueueCapacity int
	SessionIdle   time.Duration
	SweepEvery    time.Duration
}

// Pipeline owns the worker pool and background sweepers tying the
// capture source to the rule engine, anomaly scorer, and alert router.
type Pipeline struct {
	source  capture.Source
	q       *queue.Bounded
	tracker *session.Tracker
	engine  *rules.Engine
	scorer  anomaly.Scorer
	router  *alert.Router
	corr    *correlator.Correlator
	metrics *telemetry.Metrics
	log     *zap.Logger

	workers    int
	sweepEvery time.Duration

	wg       sync.WaitGroup
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// New builds a Pipeline from its collaborators. scorer may be
// anomaly.NullScorer{} to disable anomaly detection.
func New(
	source capture.Source,
	tracker *session.Tracker,
	engine *rules.Engine,
	scorer anomaly.Scorer,
	router *alert.Router,
	corr *correlator.Correlator,
	metrics *telemetry.Metrics,
	log *zap.Logger,
	cfg Config,
) *Pipeline {
	workers := cfg.Workers
	if workers < 2 {
		workers = DefaultWorkers
	}
	sweepEvery := cfg.SweepEvery
	if sweepEvery <= 0 {
		sweepEvery = time.Minute
	}
	return &Pipeline{
		source:     source,
		q:          queue.New(cfg.QueueCapacity, metrics),
		tracker:    tracker,
		engine:     engine,
		scorer:     scorer,
		router:     router,
		corr:       corr,
		metrics:    metrics,
		log:        log,
		workers:    workers,
		sweepEvery: sweepEvery,
	}
}

// Run starts the capture source, the worker pool, and both sweepers,
// blocking until ctx is cancelled or Quiesce is called. It returns once
// every goroutine it started has exited.
func (p *Pipeline) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	if err := p.source.Open(); err != nil {
		cancel()
		return err
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		sink := func(rec *models.PacketRecord) { p.q.Push(rec) }
		if err := p.source.Start(ctx, sink); err != nil && p.log != nil {
			p.log.Error("capture source stopped", zap.Error(err))
		}
	}()

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.tracker.RunSweeper(ctx, p.sweepEvery)
	}()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if p.corr != nil {
			p.corr.RunSweeper(ctx)
		}
	}()

	<-ctx.Done()
	p.wg.Wait()
	return nil
}

// runWorker drains the queue, extracting features and evaluating the
// rule engine and anomaly scorer concurrently for each packet before
// routing the joined verdict. Ordering within one worker is
// preserved because a worker never starts packet N+1 before packet N
// is fully routed.
func (p *Pipeline) runWorker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			// Finish whatever the producer already queued before exiting.
			for p.q.Len() > 0 {
				if rec, ok := p.q.Pop(context.Background()); ok {
					p.process(rec)
				}
			}
			return
		default:
		}

		rec, ok := p.q.Pop(ctx)
		if !ok {
			continue
		}
		p.process(rec)
	}
}

func (p *Pipeline) process(rec *models.PacketRecord) {
	fm := features.Extract(rec)
	sess := p.tracker.Add(rec)

	var wg sync.WaitGroup
	var ruleAlerts []models.Alert
	var verdict *anomaly.Verdict

	wg.Add(2)
	go func() {
		defer wg.Done()
		ruleAlerts = p.checkRules(fm, sess)
	}()
	go func() {
		defer wg.Done()
		verdict = p.scoreAnomaly(rec.SrcIP, fm)
	}()
	wg.Wait()

	if p.metrics != nil {
		p.metrics.PacketsProcessed.Inc()
	}

	p.router.Route(alert.PacketContext{
		SrcIP:     rec.SrcIP,
		DstIP:     rec.DstIP,
		SrcPort:   rec.SrcPort,
		DstPort:   rec.DstPort,
		Protocol:  rec.Protocol,
		PacketSeq: rec.Seq,
	}, ruleAlerts, verdict)
}

// checkRules merges the packet's own features with its session's
// flow-level features into one map before evaluating the rule engine,
// since a rule (e.g. "Port Scan Detection") may condition on both
// namespaces at once.
func (p *Pipeline) checkRules(fm models.FeatureMap, sess *models.Session) []models.Alert {
	merged := make(models.FeatureMap, len(fm))
	for k, v := range fm {
		merged[k] = v
	}
	if sess != nil {
		for k, v := range sess.FlowFeatures() {
			merged[k] = v
		}
	}
	return p.engine.Check(merged)
}

func (p *Pipeline) scoreAnomaly(srcIP string, fm models.FeatureMap) *anomaly.Verdict {
	if p.scorer == nil {
		return nil
	}
	if bs, ok := p.scorer.(*anomaly.BaselineScorer); ok {
		return bs.ScoreForSource(srcIP, fm)
	}
	return p.scorer.Score(fm)
}

// Quiesce stops accepting new packets, lets in-flight work drain, and
// joins every worker/sweeper goroutine, bounded by ctx's deadline
// timeout: it stops the source and cancels the run context, each
// worker then processes what is still queued before exiting, and the
// producer, workers and sweepers are joined.
func (p *Pipeline) Quiesce(ctx context.Context) error {
	p.stopOnce.Do(func() {
		p.source.Stop()
		if p.cancel != nil {
			p.cancel()
		}
	})

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
