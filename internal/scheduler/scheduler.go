package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"PriceWatch/internal/collector"
	"PriceWatch/internal/metrics"
	"PriceWatch/internal/model"
	"PriceWatch/internal/notifier"
	"PriceWatch/internal/recorder"
	"PriceWatch/internal/sink"
)

// Config holds scheduler tuning.
type Config struct {
	CooldownTicks int           // ticks to skip after a rate limit (default: 5)
	FetchTimeout  time.Duration // per-fetch timeout (default: 30s)
	RunOnStart    bool          // fetch immediately instead of waiting one period
}

// DefaultConfig returns the reference behaviour: 5 ticks of cooldown, first fetch at start.
func DefaultConfig() Config {
	return Config{
		CooldownTicks: 5,
		FetchTimeout:  30 * time.Second,
		RunOnStart:    true,
	}
}

// state survives across ticks. It is only mutated inside tick.
type state struct {
	cooldownRemaining int
}

// State is a point-in-time view of the scheduler for readers.
type State struct {
	Symbol            string
	Period            time.Duration
	CooldownRemaining int
	Status            string
	Currency          string // of the last successful quote
	Source            string // provider of the last successful quote
	Running           bool
}

// Scheduler polls one symbol at a fixed period and appends each price to a sink.
//
// Ticks never overlap: the cron entry is wrapped with SkipIfStillRunning, so a tick
// that comes due while the previous fetch is still in flight is dropped.
// Stop does not wait for an in-flight fetch; its result is discarded.
// Journal writes happen after the commit lock is released, so a slow recorder
// never holds up State or Stop.
type Scheduler struct {
	cfg      Config
	fetcher  collector.Fetcher
	sink     *sink.Sink
	notifier notifier.Notifier
	recorder recorder.Recorder
	metrics  *metrics.Metrics
	now      func() time.Time

	cron   *cron.Cron
	symbol string
	period time.Duration
	ctx    context.Context
	cancel context.CancelFunc

	// mu guards the fields below and every commit to sink and notifier.
	// It is never held across a fetch or a journal write.
	mu           sync.Mutex
	st           state
	status       string
	lastObserved time.Time
	lastQuote    model.Quote
	started      bool
	stopped      atomic.Bool // set under mu, read without it by flush
}

// journalEntry is a recorder write deferred until mu is released.
type journalEntry struct {
	sample *model.Sample
	event  *recorder.StatusEvent
}

// New creates a Scheduler. rec and m may be nil.
func New(cfg Config, fetcher collector.Fetcher, sk *sink.Sink, n notifier.Notifier, rec recorder.Recorder, m *metrics.Metrics) *Scheduler {
	if cfg.CooldownTicks <= 0 {
		cfg.CooldownTicks = DefaultConfig().CooldownTicks
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultConfig().FetchTimeout
	}
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}
	return &Scheduler{
		cfg:      cfg,
		fetcher:  fetcher,
		sink:     sk,
		notifier: n,
		recorder: rec,
		metrics:  m,
		now:      time.Now,
	}
}

// Start begins polling symbol every period.
func (s *Scheduler) Start(symbol string, period time.Duration) error {
	if symbol == "" {
		return errors.New("symbol is required")
	}
	if period < time.Second {
		return fmt.Errorf("period %s is below the one second minimum", period)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped.Load() {
		return errors.New("scheduler already stopped")
	}
	if s.started {
		return errors.New("scheduler already started")
	}

	logger := &cronLogger{Logger: cron.PrintfLogger(log.Default()), metrics: s.metrics}
	s.cron = cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	id, err := s.cron.AddFunc(fmt.Sprintf("@every %s", period), s.tick)
	if err != nil {
		return fmt.Errorf("register poll task: %w", err)
	}

	s.symbol = symbol
	s.period = period
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.started = true

	job := s.cron.Entry(id).WrappedJob
	s.cron.Start()
	if s.cfg.RunOnStart {
		// Same wrapped job, so it is serialized with timer ticks.
		go job.Run()
	}

	log.Printf("[INFO] scheduler started: symbol=%s period=%s cooldown=%d ticks source=%s",
		symbol, period, s.cfg.CooldownTicks, s.fetcher.Name())
	return nil
}

// Stop cancels the timer and any in-flight fetch. No tick appends or reports
// after Stop returns; pending journal writes are dropped. It is safe to call more
// than once, and before Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped.Load() {
		s.mu.Unlock()
		return
	}
	s.stopped.Store(true)
	c, cancel := s.cron, s.cancel
	s.mu.Unlock()

	if c == nil {
		return
	}
	cancel()
	c.Stop()
	log.Println("[INFO] scheduler stopped")
}

// State returns a copy of the scheduler state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Symbol:            s.symbol,
		Period:            s.period,
		CooldownRemaining: s.st.cooldownRemaining,
		Status:            s.status,
		Currency:          s.lastQuote.Currency,
		Source:            s.lastQuote.Source,
		Running:           s.started && !s.stopped.Load(),
	}
}

// tick runs one timer firing: a cooldown decrement or exactly one fetch.
func (s *Scheduler) tick() {
	s.mu.Lock()
	if s.stopped.Load() {
		s.mu.Unlock()
		return
	}
	if s.st.cooldownRemaining > 0 {
		s.st.cooldownRemaining = max(s.st.cooldownRemaining-1, 0)
		remaining := s.st.cooldownRemaining
		s.mu.Unlock()
		s.metrics.ObserveCooldown(remaining)
		log.Printf("[INFO] rate limit cooldown, %d ticks remaining", remaining)
		return
	}
	ctx, symbol := s.ctx, s.symbol
	s.mu.Unlock()

	start := time.Now()
	fctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	q, err := s.fetcher.FetchQuote(fctx, symbol)
	cancel()
	s.metrics.FetchTime.Observe(time.Since(start).Seconds())

	s.mu.Lock()
	if s.stopped.Load() {
		s.mu.Unlock()
		log.Printf("[INFO] discarding fetch result for %s after stop", symbol)
		return
	}
	var pending []journalEntry
	if err != nil {
		pending = s.handleFailure(err)
	} else {
		pending = s.commit(q)
	}
	s.mu.Unlock()

	s.flush(symbol, pending)
}

// flush writes deferred journal entries, giving up once the scheduler is stopped.
func (s *Scheduler) flush(symbol string, pending []journalEntry) {
	for _, e := range pending {
		if s.stopped.Load() {
			return
		}
		if e.sample != nil {
			if err := s.recorder.RecordSample(symbol, *e.sample); err != nil {
				log.Printf("[ERROR] record sample: %v", err)
			}
			continue
		}
		if err := s.recorder.RecordEvent(e.event); err != nil {
			log.Printf("[ERROR] record status event: %v", err)
		}
	}
}

// commit appends a sample for q and clears any status. Caller holds mu.
func (s *Scheduler) commit(q model.Quote) []journalEntry {
	observedAt := s.now()
	if observedAt.Before(s.lastObserved) {
		observedAt = s.lastObserved
	}
	s.lastObserved = observedAt

	sample := model.NewSample(q.Price, observedAt)
	s.sink.Append(sample)
	s.metrics.ObserveSample(q.Price)
	s.lastQuote = q

	pending := []journalEntry{{sample: &sample}}
	if s.status != "" {
		pending = append(pending, s.event(recorder.EventRecovered, s.status))
	}
	s.report("")
	return pending
}

// handleFailure turns a fetch error into a cooldown or a status report. Caller holds mu.
func (s *Scheduler) handleFailure(err error) []journalEntry {
	kind := collector.Classify(err)
	s.metrics.ObserveFailure(kind.String())

	if kind == collector.KindRateLimited {
		s.st.cooldownRemaining = s.cfg.CooldownTicks
		s.metrics.SetCooldown(s.st.cooldownRemaining)
		msg := fmt.Sprintf("Rate limit reached. Pausing updates for %s.", s.pauseLength())
		log.Printf("[WARN] %s (%v)", msg, err)
		s.report(msg)
		return []journalEntry{s.event(recorder.EventRateLimited, err.Error())}
	}

	detail := err.Error()
	var fe *collector.FetchError
	if errors.As(err, &fe) && fe.Err != nil {
		detail = fe.Err.Error()
	}
	log.Printf("[ERROR] fetch %s: %v", s.symbol, err)
	s.report("Error fetching price: " + detail)
	return []journalEntry{s.event(recorder.EventError, detail)}
}

// pauseLength humanizes the cooldown as wall time. humanize truncates, so the
// duration is first rounded up to the unit it will be shown in.
func (s *Scheduler) pauseLength() string {
	d := time.Duration(s.cfg.CooldownTicks) * s.period
	switch {
	case d >= time.Hour:
		d = ceilTo(d, time.Hour)
	case d >= time.Minute:
		d = ceilTo(d, time.Minute)
	}
	now := s.now()
	return strings.TrimSpace(humanize.RelTime(now, now.Add(d), "", ""))
}

func ceilTo(d, unit time.Duration) time.Duration {
	return (d + unit - 1) / unit * unit
}

func (s *Scheduler) event(eventType, detail string) journalEntry {
	return journalEntry{event: &recorder.StatusEvent{
		EventType:     eventType,
		Detail:        detail,
		CooldownTicks: s.st.cooldownRemaining,
	}}
}

func (s *Scheduler) report(msg string) {
	s.status = msg
	s.notifier.Report(msg)
}

// cronLogger counts ticks dropped by SkipIfStillRunning.
type cronLogger struct {
	cron.Logger
	metrics *metrics.Metrics
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if msg == "skip" {
		l.metrics.ObserveSkipped()
		log.Println("[WARN] previous tick still running, skipping this one")
		return
	}
	l.Logger.Info(msg, keysAndValues...)
}
