// Package spin runs the roulette: tier changes, the spin animation
// lifecycle, the reveal overlay, demo mode and the paid checkout flow.
//
// All state lives behind one mutex. Timer and frame callbacks carry the
// spin generation they were scheduled for and drop themselves when a newer
// spin (or Close) has happened since, so a late callback never mutates a
// newer spin's state.
package spin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/exp/slog"

	"github.com/MJE43/stargift-miniapp/internal/catalog"
	"github.com/MJE43/stargift-miniapp/internal/engine"
	"github.com/MJE43/stargift-miniapp/internal/lib/logger/sl"
	"github.com/MJE43/stargift-miniapp/internal/presenter"
	"github.com/MJE43/stargift-miniapp/internal/roulette"
)

// Phase is the controller state machine: idle → spinning → revealing → idle.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseSpinning  Phase = "spinning"
	PhaseRevealing Phase = "revealing"
)

// Timings used when Options leaves them unset.
const (
	DefaultSpinDuration = 4000 * time.Millisecond
	DefaultCloseDelay   = 320 * time.Millisecond
)

// Advancer is implemented by sources that move to a fresh nonce per draw.
type Advancer interface {
	Advance() uint64
}

// Options configures a Controller. Catalog and Chances are required; every
// other field has a usable default.
type Options struct {
	Catalog *catalog.Catalog
	Chances *catalog.ChanceTable
	Tier    catalog.Tier
	// Demo starts the controller in demo mode.
	Demo bool

	// Source draws winners. When it is an Advancer, each draw uses the
	// first float of a fresh nonce.
	Source engine.Source
	// ShuffleSource orders the strip. Defaults to a crypto source so strip
	// order never consumes the draw stream.
	ShuffleSource engine.Source

	Sequencer    roulette.Sequencer
	Easing       roulette.CubicBezier
	SpinDuration time.Duration
	CloseDelay   time.Duration

	Surface   Surface
	Haptics   Haptics
	Scheduler Scheduler
	Invoices  InvoiceCreator
	Opener    InvoiceOpener
	// Notify receives user-facing notices raised outside a caller's
	// request, such as a failed payment callback.
	Notify func(message string)

	Logger *slog.Logger
}

// Reveal describes a finished spin.
type Reveal struct {
	Spin   uint64         `json:"spin"`
	Tier   catalog.Tier   `json:"tier"`
	Mode   presenter.Mode `json:"mode"`
	Winner *roulette.Item `json:"winner"`
	Index  int            `json:"index"`
	Roll   float64        `json:"roll"`
	// Nonce is set when the draw source is nonce based.
	Nonce *uint64       `json:"nonce,omitempty"`
	Plan  roulette.Plan `json:"plan"`
	At    time.Time     `json:"at"`
}

// Snapshot is a consistent copy of controller state for the renderer.
type Snapshot struct {
	Version           uint64            `json:"version"`
	Phase             Phase             `json:"phase"`
	Tier              catalog.Tier      `json:"tier"`
	Tiers             []catalog.Tier    `json:"tiers"`
	Demo              bool              `json:"demo"`
	Busy              bool              `json:"busy"`
	ProcessingPayment bool              `json:"processing_payment"`
	Items             []*roulette.Item  `json:"items"`
	Repeats           int               `json:"repeats"`
	Card              roulette.CardSize `json:"card"`
	Gap               float64           `json:"gap"`
	StripOffset       float64           `json:"strip_offset"`
	Animating         bool              `json:"animating"`
	DurationMS        int64             `json:"duration_ms"`
	Easing            string            `json:"easing"`
	Result            presenter.View    `json:"result"`
}

// Controller owns the roulette state. Its methods are safe for concurrent
// use.
type Controller struct {
	mu sync.Mutex

	cat          *catalog.Catalog
	chances      *catalog.ChanceTable
	src          engine.Source
	shuffleSrc   engine.Source
	seq          roulette.Sequencer
	easing       roulette.CubicBezier
	spinDuration time.Duration
	closeDelay   time.Duration
	surface      Surface
	haptics      Haptics
	sched        Scheduler
	invoices     InvoiceCreator
	opener       InvoiceOpener
	notify       func(string)
	log          *slog.Logger

	tier        catalog.Tier
	items       []*roulette.Item
	phase       Phase
	demo        bool
	mode        presenter.Mode
	winner      *roulette.Item
	winnerIndex int
	roll        float64
	nonce       *uint64
	plan        roulette.Plan
	stripOffset float64
	animating   bool
	processing  bool
	result      *presenter.Presenter

	spinTimer  Timer
	frameTimer Timer
	closeTimer Timer

	gen         uint64
	checkoutGen uint64
	spins       uint64
	version     uint64
	closed      bool

	subs    map[int]func(Snapshot)
	nextSub int
	hooks   []func(Reveal)
}

// New builds a controller on the requested tier, falling back to the
// default tier and then to the lowest tier the table has.
func New(opts Options) (*Controller, error) {
	if opts.Catalog == nil || opts.Chances == nil {
		return nil, fmt.Errorf("spin: catalog and chance table are required")
	}
	tiers := opts.Chances.Tiers()
	if len(tiers) == 0 {
		return nil, fmt.Errorf("spin: chance table has no tiers")
	}

	c := &Controller{
		cat:          opts.Catalog,
		chances:      opts.Chances,
		src:          opts.Source,
		shuffleSrc:   opts.ShuffleSource,
		seq:          opts.Sequencer,
		easing:       opts.Easing,
		spinDuration: opts.SpinDuration,
		closeDelay:   opts.CloseDelay,
		surface:      opts.Surface,
		haptics:      opts.Haptics,
		sched:        opts.Scheduler,
		invoices:     opts.Invoices,
		opener:       opts.Opener,
		notify:       opts.Notify,
		log:          sl.OrDiscard(opts.Logger).With(slog.String("component", "spin")),
		phase:        PhaseIdle,
		demo:         opts.Demo,
		result:       presenter.New(),
		subs:         make(map[int]func(Snapshot)),
	}
	if c.src == nil {
		c.src = engine.NewCryptoSource()
	}
	if c.shuffleSrc == nil {
		c.shuffleSrc = engine.NewCryptoSource()
	}
	if c.seq.ItemWidth <= 0 {
		c.seq = roulette.NewSequencer(roulette.RegularCard)
	}
	if c.seq.Repeats < 1 {
		c.seq.Repeats = roulette.DefaultRepeats
	}
	if c.easing == (roulette.CubicBezier{}) {
		c.easing = roulette.EaseDefault
	}
	if c.spinDuration <= 0 {
		c.spinDuration = DefaultSpinDuration
	}
	if c.closeDelay <= 0 {
		c.closeDelay = DefaultCloseDelay
	}
	if c.surface == nil {
		c.surface = nopSurface{}
	}
	if c.sched == nil {
		c.sched = RealScheduler{}
	}

	tier := opts.Tier
	switch {
	case c.chances.Has(tier):
	case c.chances.Has(catalog.DefaultTier):
		tier = catalog.DefaultTier
	default:
		tier = tiers[0]
	}
	c.applyTierLocked(tier)
	return c, nil
}

// Subscribe registers fn for every state change and immediately delivers
// the current snapshot. The returned func unsubscribes.
func (c *Controller) Subscribe(fn func(Snapshot)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	snap := c.snapshotLocked()
	c.mu.Unlock()

	fn(snap)
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// OnReveal registers fn to run after every completed spin.
func (c *Controller) OnReveal(fn func(Reveal)) {
	c.mu.Lock()
	c.hooks = append(c.hooks, fn)
	c.mu.Unlock()
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Winner is the prize fixed for the current spin or reveal, nil when idle
// with nothing mounted.
func (c *Controller) Winner() *roulette.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.winner
}

// Strip is the rendered sequence for the current tier.
func (c *Controller) Strip() []*roulette.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq.Strip(c.items)
}

// Busy reports whether a spin or a payment is in progress.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busyLocked()
}

// SetTier switches the price tier and reshuffles the strip once. It is
// rejected while a spin or payment is in progress.
func (c *Controller) SetTier(tier catalog.Tier) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.busyLocked():
		c.mu.Unlock()
		return ErrBusy
	case !c.chances.Has(tier):
		c.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownTier, tier)
	case tier == c.tier:
		c.mu.Unlock()
		return nil
	}
	c.applyTierLocked(tier)
	c.log.Debug("tier changed", slog.Int("tier", int(tier)), slog.Int("items", len(c.items)))
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.publish(snap)
	return nil
}

// SetDemo toggles demo mode. It is rejected while a spin or payment is in
// progress.
func (c *Controller) SetDemo(on bool) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.demo == on:
		c.mu.Unlock()
		return nil
	case c.busyLocked():
		c.mu.Unlock()
		return ErrBusy
	}
	c.demo = on
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)
	return nil
}

// SetViewport sizes the cards for the viewport width the renderer measured.
// A strip resting on a previous winner is moved to where that winner sits
// with the new card size. It is rejected while a spin or payment is in
// progress.
func (c *Controller) SetViewport(width float64) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.busyLocked():
		c.mu.Unlock()
		return ErrBusy
	case width < 0:
		c.mu.Unlock()
		return fmt.Errorf("spin: negative viewport width %v", width)
	}
	card := roulette.CardFor(width)
	c.seq = c.seq.WithCard(card)
	if c.stripOffset != 0 && c.plan.StripLength > 0 {
		plan, err := c.seq.Plan(len(c.items), c.winnerIndex, width)
		if err == nil {
			c.plan = plan
			c.stripOffset = plan.Offset
			c.surface.Jump(plan.Offset)
		}
	}
	c.log.Debug("card size changed", slog.Float64("viewport", width), slog.Float64("card", card.Width))
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.publish(snap)
	return nil
}

// Spin is the main button: a demo spin in demo mode, checkout otherwise.
func (c *Controller) Spin(ctx context.Context) error {
	c.mu.Lock()
	demo := c.demo
	c.mu.Unlock()
	if demo {
		if !c.StartSpin(presenter.ModeDemo) {
			return ErrBusy
		}
		return nil
	}
	return c.Checkout(ctx)
}

// StartSpin draws a winner and starts the strip animation. It reports
// false, changing nothing, while a spin or payment is in progress or the
// controller is closed. Starting during a reveal hides the reveal and
// cancels its pending unmount.
func (c *Controller) StartSpin(mode presenter.Mode) bool {
	c.mu.Lock()
	started := !c.busyLocked() && c.startSpinLocked(mode)
	var snap Snapshot
	if started {
		snap = c.snapshotLocked()
	}
	c.mu.Unlock()

	if started {
		c.publish(snap)
	}
	return started
}

// Dismiss closes the reveal overlay and returns to idle. The prize is
// unmounted after the close delay.
func (c *Controller) Dismiss() bool {
	c.mu.Lock()
	ok := c.dismissLocked()
	var snap Snapshot
	if ok {
		snap = c.snapshotLocked()
	}
	c.mu.Unlock()

	if ok {
		c.publish(snap)
	}
	return ok
}

// DisableDemo leaves demo mode and dismisses any open reveal.
func (c *Controller) DisableDemo() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.demo = false
	c.dismissLocked()
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)
}

// Close cancels every pending timer and ignores later callbacks. It is
// idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.gen++
	c.checkoutGen++
	c.stopTimersLocked()
	c.subs = make(map[int]func(Snapshot))
	c.hooks = nil
}

func (c *Controller) busyLocked() bool {
	return c.phase == PhaseSpinning || c.processing
}

func (c *Controller) applyTierLocked(tier catalog.Tier) {
	c.tier = tier
	c.items = roulette.Shuffle(roulette.Items(c.cat, c.chances, tier), c.shuffleSrc)
	c.stripOffset = 0
	c.animating = false
	c.surface.Jump(0)
}

func (c *Controller) startSpinLocked(mode presenter.Mode) bool {
	if c.closed || c.phase == PhaseSpinning {
		return false
	}
	if len(c.items) == 0 {
		c.log.Warn("spin requested with empty strip", slog.Int("tier", int(c.tier)))
		return false
	}

	rec := &recordingSource{src: c.src}
	idx := roulette.Pick(c.items, rec)
	var nonce *uint64
	if adv, ok := c.src.(Advancer); ok {
		n := adv.Advance()
		nonce = &n
	}
	plan, err := c.seq.Plan(len(c.items), idx, c.surface.ContainerWidth())
	if err != nil {
		c.log.Error("failed to plan spin", sl.Err(err))
		return false
	}

	c.stopTimersLocked()
	c.result.Clear()

	c.gen++
	gen := c.gen
	c.phase = PhaseSpinning
	c.mode = mode
	c.winner = c.items[idx]
	c.winnerIndex = idx
	c.roll = rec.last
	c.nonce = nonce
	c.plan = plan
	c.animating = false
	c.stripOffset = 0
	c.surface.Jump(0)

	c.frameTimer = c.sched.NextFrame(func() { c.onFrame(gen) })
	c.spinTimer = c.sched.AfterFunc(c.spinDuration, func() { c.onSpinDone(gen) })

	c.log.Debug("spin started",
		slog.Int("tier", int(c.tier)),
		slog.String("mode", string(mode)),
		slog.Int("landing", plan.LandingIndex),
		slog.Float64("offset", plan.Offset),
	)
	return true
}

func (c *Controller) dismissLocked() bool {
	if c.closed || c.phase != PhaseRevealing {
		return false
	}
	c.phase = PhaseIdle
	c.result.Close()
	if c.closeTimer != nil {
		c.closeTimer.Stop()
	}
	gen := c.gen
	c.closeTimer = c.sched.AfterFunc(c.closeDelay, func() { c.onCloseDelay(gen) })
	return true
}

func (c *Controller) stale(gen uint64) bool {
	return c.closed || gen != c.gen
}

func (c *Controller) onFrame(gen uint64) {
	c.mu.Lock()
	if c.stale(gen) || c.phase != PhaseSpinning {
		c.mu.Unlock()
		return
	}
	c.frameTimer = nil
	c.animating = true
	c.stripOffset = c.plan.Offset
	c.surface.Animate(c.plan.Offset, c.spinDuration, c.easing)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)
}

func (c *Controller) onSpinDone(gen uint64) {
	c.mu.Lock()
	if c.stale(gen) || c.phase != PhaseSpinning {
		c.mu.Unlock()
		return
	}
	c.spinTimer = nil
	if c.frameTimer != nil {
		c.frameTimer.Stop()
		c.frameTimer = nil
	}
	c.phase = PhaseRevealing
	c.animating = false
	c.stripOffset = c.plan.Offset
	c.result.Reveal(c.winner, c.mode)
	c.spins++
	c.frameTimer = c.sched.NextFrame(func() { c.onSettle(gen) })

	rev := Reveal{
		Spin:   c.spins,
		Tier:   c.tier,
		Mode:   c.mode,
		Winner: c.winner,
		Index:  c.winnerIndex,
		Roll:   c.roll,
		Nonce:  c.nonce,
		Plan:   c.plan,
		At:     time.Now(),
	}
	hooks := append([]func(Reveal){}, c.hooks...)
	haptics := c.haptics
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if haptics != nil {
		if err := haptics.Vibrate(RevealPattern); err != nil {
			c.log.Debug("haptic feedback unavailable", sl.Err(err))
		}
	}
	c.log.Info("spin revealed",
		slog.Uint64("spin", rev.Spin),
		slog.String("gift", string(rev.Winner.Gift.ID)),
		slog.String("mode", string(rev.Mode)),
	)
	for _, h := range hooks {
		h(rev)
	}
	c.publish(snap)
}

func (c *Controller) onSettle(gen uint64) {
	c.mu.Lock()
	if c.stale(gen) || c.phase != PhaseRevealing {
		c.mu.Unlock()
		return
	}
	c.frameTimer = nil
	c.result.Settle()
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)
}

func (c *Controller) onCloseDelay(gen uint64) {
	c.mu.Lock()
	if c.stale(gen) {
		c.mu.Unlock()
		return
	}
	c.closeTimer = nil
	c.result.Clear()
	c.winner = nil
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)
}

func (c *Controller) stopTimersLocked() {
	for _, t := range []*Timer{&c.spinTimer, &c.frameTimer, &c.closeTimer} {
		if *t != nil {
			(*t).Stop()
			*t = nil
		}
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	c.version++
	return Snapshot{
		Version:           c.version,
		Phase:             c.phase,
		Tier:              c.tier,
		Tiers:             c.chances.Tiers(),
		Demo:              c.demo,
		Busy:              c.busyLocked(),
		ProcessingPayment: c.processing,
		Items:             append([]*roulette.Item(nil), c.items...),
		Repeats:           c.seq.Repeats,
		Card:              c.seq.Card(),
		Gap:               c.seq.Gap,
		StripOffset:       c.stripOffset,
		Animating:         c.animating,
		DurationMS:        c.spinDuration.Milliseconds(),
		Easing:            c.easing.CSS(),
		Result:            c.result.View(),
	}
}

func (c *Controller) publish(s Snapshot) {
	c.mu.Lock()
	subs := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()
	for _, fn := range subs {
		fn(s)
	}
}

type recordingSource struct {
	src  engine.Source
	last float64
}

func (r *recordingSource) Float64() float64 {
	r.last = r.src.Float64()
	return r.last
}

type nopSurface struct{}

func (nopSurface) Jump(float64)                                        {}
func (nopSurface) Animate(float64, time.Duration, roulette.CubicBezier) {}
func (nopSurface) ContainerWidth() float64                              { return 0 }
