package scheduler

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"PriceWatch/internal/collector"
	"PriceWatch/internal/metrics"
	"PriceWatch/internal/model"
	"PriceWatch/internal/recorder"
	"PriceWatch/internal/sink"
)

// statusLog records every report in order.
type statusLog struct {
	mu   sync.Mutex
	msgs []string
}

func (l *statusLog) Report(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, message)
}

func (l *statusLog) last() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.msgs) == 0 {
		return ""
	}
	return l.msgs[len(l.msgs)-1]
}

func (l *statusLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.msgs)
}

type harness struct {
	sched   *Scheduler
	sink    *sink.Sink
	status  *statusLog
	metrics *metrics.Metrics
}

func newHarness(t *testing.T, fetcher collector.Fetcher) *harness {
	t.Helper()
	return newHarnessWithRecorder(t, fetcher, nil)
}

func newHarnessWithRecorder(t *testing.T, fetcher collector.Fetcher, rec recorder.Recorder) *harness {
	t.Helper()
	h := &harness{
		sink:    sink.New(),
		status:  &statusLog{},
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	cfg := Config{CooldownTicks: 5, FetchTimeout: time.Second, RunOnStart: false}
	h.sched = New(cfg, fetcher, h.sink, h.status, rec, h.metrics)

	clock := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	h.sched.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	// Long period: the test drives ticks by hand.
	if err := h.sched.Start("^DJI", time.Minute); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(h.sched.Stop)
	return h
}

func prices(samples []model.Sample) []string {
	out := make([]string, len(samples))
	for i, s := range samples {
		out[i] = s.Value().String()
	}
	return out
}

func TestScheduler_SuccessfulTicks(t *testing.T) {
	f := collector.NewScriptedFetcher(
		collector.PriceStep("100"),
		collector.PriceStep("101"),
		collector.PriceStep("99"),
	)
	h := newHarness(t, f)

	for i := 0; i < 3; i++ {
		h.sched.tick()
	}

	got := slices.Collect(h.sink.All())
	if want := []string{"100", "101", "99"}; !slices.Equal(prices(got), want) {
		t.Fatalf("snapshot = %v, want %v", prices(got), want)
	}
	for i := 1; i < len(got); i++ {
		if !got[i].ObservedAt().After(got[i-1].ObservedAt()) {
			t.Errorf("timestamp %d not after %d", i, i-1)
		}
	}
	if h.status.last() != "" {
		t.Errorf("status = %q, want empty", h.status.last())
	}
}

func TestScheduler_RateLimitCooldown(t *testing.T) {
	f := collector.NewScriptedFetcher(
		collector.PriceStep("100"),
		collector.PriceStep("101"),
		collector.PriceStep("99"),
		collector.ErrStep(collector.RateLimited(errors.New("Too Many Requests"))),
		collector.PriceStep("102"),
	)
	h := newHarness(t, f)

	for tick := 1; tick <= 3; tick++ {
		h.sched.tick()
	}

	// Tick 4: rate limited.
	h.sched.tick()
	if f.Calls() != 4 {
		t.Fatalf("calls after tick 4 = %d, want 4", f.Calls())
	}
	msg := h.status.last()
	if !strings.Contains(msg, "Rate limit reached") || !strings.Contains(msg, "5 minutes") {
		t.Fatalf("status after tick 4 = %q", msg)
	}
	if got := h.sched.State().CooldownRemaining; got != 5 {
		t.Fatalf("cooldown after tick 4 = %d, want 5", got)
	}

	// Ticks 5-9: no fetch, status stays.
	for tick := 5; tick <= 9; tick++ {
		h.sched.tick()
		if f.Calls() != 4 {
			t.Fatalf("tick %d fetched (calls = %d)", tick, f.Calls())
		}
		st := h.sched.State()
		if st.CooldownRemaining < 0 {
			t.Fatalf("tick %d: negative cooldown %d", tick, st.CooldownRemaining)
		}
		if want := 9 - tick; st.CooldownRemaining != want {
			t.Errorf("tick %d: cooldown = %d, want %d", tick, st.CooldownRemaining, want)
		}
		if st.Status == "" {
			t.Errorf("tick %d: status cleared during cooldown", tick)
		}
	}

	// Tick 10: fetch again and clear.
	h.sched.tick()
	if f.Calls() != 5 {
		t.Fatalf("calls after tick 10 = %d, want 5", f.Calls())
	}
	if h.status.last() != "" {
		t.Errorf("status after tick 10 = %q, want empty", h.status.last())
	}
	if want := []string{"100", "101", "99", "102"}; !slices.Equal(prices(slices.Collect(h.sink.All())), want) {
		t.Errorf("snapshot = %v, want %v", prices(slices.Collect(h.sink.All())), want)
	}

	if got := testutil.ToFloat64(h.metrics.Ticks.WithLabelValues(metrics.OutcomeCooldown)); got != 5 {
		t.Errorf("cooldown ticks metric = %f, want 5", got)
	}
	if got := testutil.ToFloat64(h.metrics.FetchErrors.WithLabelValues("rate_limited")); got != 1 {
		t.Errorf("rate limited metric = %f, want 1", got)
	}
}

func TestScheduler_TransientDoesNotSuppressNextFetch(t *testing.T) {
	f := collector.NewScriptedFetcher(
		collector.PriceStep("100"),
		collector.PriceStep("101"),
		collector.PriceStep("99"),
		collector.ErrStep(collector.Transient(errors.New("connection reset by peer"))),
		collector.PriceStep("98.5"),
	)
	h := newHarness(t, f)

	for tick := 1; tick <= 4; tick++ {
		h.sched.tick()
	}
	if msg := h.status.last(); msg != "Error fetching price: connection reset by peer" {
		t.Fatalf("status after tick 4 = %q", msg)
	}
	if got := h.sched.State().CooldownRemaining; got != 0 {
		t.Fatalf("cooldown after transient = %d, want 0", got)
	}

	h.sched.tick()
	if f.Calls() != 5 {
		t.Fatalf("calls after tick 5 = %d, want 5", f.Calls())
	}
	if h.status.last() != "" {
		t.Errorf("status after tick 5 = %q, want empty", h.status.last())
	}
	if h.sink.Len() != 4 {
		t.Errorf("sink len = %d, want 4", h.sink.Len())
	}
}

func TestScheduler_RepeatedRateLimitRestartsCooldown(t *testing.T) {
	f := collector.NewScriptedFetcher(
		collector.ErrStep(collector.RateLimited(nil)),
		collector.ErrStep(collector.RateLimited(nil)),
		collector.PriceStep("1"),
	)
	h := newHarness(t, f)

	for tick := 1; tick <= 7; tick++ {
		h.sched.tick()
	}
	// Tick 1 limited, 2-6 cooldown, 7 limited again.
	if f.Calls() != 2 {
		t.Fatalf("calls = %d, want 2", f.Calls())
	}
	if got := h.sched.State().CooldownRemaining; got != 5 {
		t.Errorf("cooldown = %d, want 5", got)
	}
	if h.sink.Len() != 0 {
		t.Errorf("sink len = %d, want 0", h.sink.Len())
	}
}

func TestScheduler_MonotonicTimestamps(t *testing.T) {
	f := collector.NewScriptedFetcher(collector.PriceStep("1"))
	h := newHarness(t, f)

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	times := []time.Time{base, base.Add(-time.Hour), base.Add(time.Minute)}
	i := 0
	h.sched.now = func() time.Time {
		ts := times[min(i, len(times)-1)]
		i++
		return ts
	}

	for range times {
		h.sched.tick()
	}
	got := slices.Collect(h.sink.All())
	for j := 1; j < len(got); j++ {
		if got[j].ObservedAt().Before(got[j-1].ObservedAt()) {
			t.Errorf("sample %d observed before sample %d", j, j-1)
		}
	}
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	f := collector.NewScriptedFetcher(collector.PriceStep("1"))
	h := newHarness(t, f)

	h.sched.Stop()
	h.sched.Stop()

	h.sched.tick()
	if f.Calls() != 0 {
		t.Errorf("tick after stop fetched (calls = %d)", f.Calls())
	}
	if h.sched.State().Running {
		t.Error("expected scheduler not running after stop")
	}
	if err := h.sched.Start("^DJI", time.Minute); err == nil {
		t.Error("expected Start after Stop to fail")
	}
}

func TestScheduler_StopBeforeStart(t *testing.T) {
	s := New(DefaultConfig(), collector.NewScriptedFetcher(), sink.New(), &statusLog{}, nil, nil)
	s.Stop()
	s.Stop()
}

func TestScheduler_StartValidation(t *testing.T) {
	s := New(DefaultConfig(), collector.NewScriptedFetcher(), sink.New(), &statusLog{}, nil, nil)
	if err := s.Start("", time.Minute); err == nil {
		t.Error("expected error for empty symbol")
	}
	if err := s.Start("^DJI", 100*time.Millisecond); err == nil {
		t.Error("expected error for sub-second period")
	}
	if err := s.Start("^DJI", time.Hour); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()
	if err := s.Start("^DJI", time.Hour); err == nil {
		t.Error("expected error for second Start")
	}
}

// blockingFetcher parks each fetch until released, ignoring cancellation.
type blockingFetcher struct {
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func newBlockingFetcher() *blockingFetcher {
	return &blockingFetcher{entered: make(chan struct{}, 4), release: make(chan struct{})}
}

func (b *blockingFetcher) Name() string { return "blocking" }

func (b *blockingFetcher) FetchQuote(ctx context.Context, symbol string) (model.Quote, error) {
	b.calls.Add(1)
	b.entered <- struct{}{}
	<-b.release
	return model.Quote{Symbol: symbol, Price: decimal.NewFromInt(1)}, nil
}

func waitEntered(t *testing.T, b *blockingFetcher) {
	t.Helper()
	select {
	case <-b.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch never started")
	}
}

func TestScheduler_StopDiscardsInFlightFetch(t *testing.T) {
	f := newBlockingFetcher()
	h := newHarness(t, f)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.sched.tick()
	}()
	waitEntered(t, f)

	stopped := make(chan struct{})
	go func() {
		h.sched.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on in-flight fetch")
	}

	close(f.release)
	<-done

	if h.sink.Len() != 0 {
		t.Errorf("sink len = %d, want 0 after discarded fetch", h.sink.Len())
	}
	if h.status.count() != 0 {
		t.Errorf("status reports = %d, want 0", h.status.count())
	}
}

func TestScheduler_SkipsOverlappingTick(t *testing.T) {
	f := newBlockingFetcher()
	h := newHarness(t, f)

	job := h.sched.cron.Entries()[0].WrappedJob
	done := make(chan struct{})
	go func() {
		defer close(done)
		job.Run()
	}()
	waitEntered(t, f)

	job.Run() // previous run still in flight: dropped
	if got := f.calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
	if got := testutil.ToFloat64(h.metrics.Ticks.WithLabelValues(metrics.OutcomeSkipped)); got != 1 {
		t.Errorf("skipped metric = %f, want 1", got)
	}

	close(f.release)
	<-done
	if h.sink.Len() != 1 {
		t.Errorf("sink len = %d, want 1", h.sink.Len())
	}
}

func TestScheduler_TimerDriven(t *testing.T) {
	f := collector.NewScriptedFetcher(collector.PriceStep("42.0001"))
	sk := sink.New()
	s := New(Config{CooldownTicks: 5, FetchTimeout: time.Second, RunOnStart: true}, f, sk, &statusLog{}, nil, nil)

	if err := s.Start("^DJI", time.Second); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for sk.Len() < 2 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if sk.Len() < 2 {
		t.Fatalf("sink len = %d, want at least 2 (run on start + one timer tick)", sk.Len())
	}
	last, _ := sk.Last()
	if last.Value().String() != "42.0001" {
		t.Errorf("last = %s, want 42.0001", last.Value())
	}
}

func TestScheduler_HandleCommand(t *testing.T) {
	f := collector.NewScriptedFetcher(collector.PriceStep("100.5"), collector.ErrStep(collector.RateLimited(nil)))
	h := newHarness(t, f)

	if reply := h.sched.HandleCommand("/price"); !strings.Contains(reply, "no samples yet") {
		t.Errorf("/price before data = %q", reply)
	}
	h.sched.tick()
	if reply := h.sched.HandleCommand("/price"); !strings.Contains(reply, "100.50") {
		t.Errorf("/price = %q", reply)
	}
	if reply := h.sched.HandleCommand("/series"); !strings.Contains(reply, "last 1 samples") {
		t.Errorf("/series = %q", reply)
	}
	h.sched.tick()
	if reply := h.sched.HandleCommand("/status"); !strings.Contains(reply, "Cooldown remaining: 5 ticks") {
		t.Errorf("/status = %q", reply)
	}
	if reply := h.sched.HandleCommand("hello"); !strings.Contains(reply, "/price") {
		t.Errorf("help = %q", reply)
	}
}

// stallingRecorder blocks every sample write until released.
type stallingRecorder struct {
	entered chan struct{}
	release chan struct{}
	samples atomic.Int32
	events  atomic.Int32
}

func newStallingRecorder() *stallingRecorder {
	return &stallingRecorder{entered: make(chan struct{}, 4), release: make(chan struct{})}
}

func (r *stallingRecorder) RecordSample(_ string, _ model.Sample) error {
	r.entered <- struct{}{}
	<-r.release
	r.samples.Add(1)
	return nil
}

func (r *stallingRecorder) RecordEvent(_ *recorder.StatusEvent) error {
	r.events.Add(1)
	return nil
}

func (r *stallingRecorder) Close() error { return nil }

func TestScheduler_SlowJournalDoesNotBlockReaders(t *testing.T) {
	f := collector.NewScriptedFetcher(collector.PriceStep("100"))
	rec := newStallingRecorder()
	h := newHarnessWithRecorder(t, f, rec)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.sched.tick()
	}()
	select {
	case <-rec.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("journal write never started")
	}

	// The sample is visible before the journal write finishes.
	if h.sink.Len() != 1 {
		t.Errorf("sink len = %d, want 1", h.sink.Len())
	}

	stateDone := make(chan State, 1)
	go func() { stateDone <- h.sched.State() }()
	select {
	case st := <-stateDone:
		if st.Status != "" || !st.Running {
			t.Errorf("unexpected state: %+v", st)
		}
	case <-time.After(time.Second):
		t.Fatal("State blocked behind a journal write")
	}

	stopped := make(chan struct{})
	go func() {
		h.sched.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked behind a journal write")
	}

	close(rec.release)
	<-done
	if got := rec.samples.Load(); got != 1 {
		t.Errorf("journaled samples = %d, want 1", got)
	}
}

func TestScheduler_JournalsSamplesAndEvents(t *testing.T) {
	f := collector.NewScriptedFetcher(
		collector.ErrStep(collector.Transient(errors.New("timeout"))),
		collector.PriceStep("100"),
	)
	rec := newStallingRecorder()
	close(rec.release)
	h := newHarnessWithRecorder(t, f, rec)

	h.sched.tick()
	h.sched.tick()
	<-rec.entered

	if got := rec.samples.Load(); got != 1 {
		t.Errorf("journaled samples = %d, want 1", got)
	}
	// ERROR on the failure, RECOVERED on the next success.
	if got := rec.events.Load(); got != 2 {
		t.Errorf("journaled events = %d, want 2", got)
	}
}

func TestScheduler_PauseLengthRoundsUp(t *testing.T) {
	cases := []struct {
		period time.Duration
		want   string
	}{
		{time.Minute, "5 minutes"},
		{90 * time.Second, "8 minutes"},
		{5 * time.Second, "25 seconds"},
		{20 * time.Minute, "2 hours"},
	}
	for _, tc := range cases {
		s := New(Config{CooldownTicks: 5}, collector.NewScriptedFetcher(), sink.New(), &statusLog{}, nil, nil)
		s.period = tc.period
		if got := s.pauseLength(); got != tc.want {
			t.Errorf("pauseLength(5 x %s) = %q, want %q", tc.period, got, tc.want)
		}
	}
}

func TestScheduler_StateCarriesLastQuoteDetails(t *testing.T) {
	f := &quoteFetcher{q: model.Quote{Price: decimal.NewFromInt(100), Currency: "USD", Source: "yahoo"}}
	h := newHarness(t, f)

	h.sched.tick()
	st := h.sched.State()
	if st.Currency != "USD" || st.Source != "yahoo" {
		t.Errorf("state = %+v, want currency USD and source yahoo", st)
	}
}

type quoteFetcher struct {
	q model.Quote
}

func (f *quoteFetcher) Name() string { return "fixed" }

func (f *quoteFetcher) FetchQuote(ctx context.Context, symbol string) (model.Quote, error) {
	return f.q, nil
}
