package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/MJE43/stargift-miniapp/internal/catalog"
	"github.com/MJE43/stargift-miniapp/internal/drawlog"
	"github.com/MJE43/stargift-miniapp/internal/engine"
	"github.com/MJE43/stargift-miniapp/internal/leaderboard"
	"github.com/MJE43/stargift-miniapp/internal/miniapp"
	"github.com/MJE43/stargift-miniapp/internal/presenter"
	"github.com/MJE43/stargift-miniapp/internal/roulette"
	"github.com/MJE43/stargift-miniapp/internal/spin"
)

const sampleInitData = "query_id=AAHdF6IQAAAAAN0XohDhrOrc" +
	"&user=%7B%22id%22%3A279058397%2C%22first_name%22%3A%22Vladislav%22%2C%22last_name%22%3A%22Kibenko%22%2C%22username%22%3A%22vdkfrost%22%2C%22language_code%22%3A%22ru%22%2C%22is_premium%22%3Atrue%7D" +
	"&auth_date=1662771648" +
	"&hash=c501b71e775f74ce10e377dea85a7ea24ecd640b223ea86dfe453e0eaed2e2b2"

// flushScheduler queues callbacks until flush runs them.
type flushScheduler struct {
	mu      sync.Mutex
	pending []*queuedTask
}

type queuedTask struct {
	mu      sync.Mutex
	f       func()
	stopped bool
}

func (t *queuedTask) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (s *flushScheduler) add(f func()) spin.Timer {
	t := &queuedTask{f: f}
	s.mu.Lock()
	s.pending = append(s.pending, t)
	s.mu.Unlock()
	return t
}

func (s *flushScheduler) AfterFunc(_ time.Duration, f func()) spin.Timer { return s.add(f) }
func (s *flushScheduler) NextFrame(f func()) spin.Timer                 { return s.add(f) }

// flush runs queued callbacks, including ones they schedule, until none
// are left.
func (s *flushScheduler) flush() {
	for i := 0; i < 16; i++ {
		s.mu.Lock()
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, t := range batch {
			if t.Stop() {
				t.f()
			}
		}
	}
}

type stubInvoices struct {
	link string
	err  error
}

func (s stubInvoices) CreateInvoice(ctx context.Context, amount int) (string, error) {
	return s.link, s.err
}

type stubAuth struct {
	mu   sync.Mutex
	data string
}

func (a *stubAuth) InitData() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.data
}

func (a *stubAuth) SetInitData(v string) {
	a.mu.Lock()
	a.data = v
	a.mu.Unlock()
}

type stubFetcher struct {
	entries []leaderboard.Entry
}

func (f stubFetcher) FetchLeaderboard(ctx context.Context, initData string) ([]leaderboard.Entry, error) {
	return f.entries, nil
}

type harness struct {
	srv      *Server
	http     *httptest.Server
	ctrl     *spin.Controller
	sched    *flushScheduler
	desk     *InvoiceDesk
	auth     *stubAuth
	store    *drawlog.Store
	journal  *drawlog.Journal
	renderer *Renderer
}

type harnessOptions struct {
	invoices spin.InvoiceCreator
	noDraws  bool
	origins  []string
}

func newHarness(t *testing.T, ho harnessOptions) *harness {
	t.Helper()
	cat := catalog.Default()
	hub := NewHub(nil)
	renderer := NewRenderer(hub)
	renderer.SetContainerWidth(360)
	desk := NewInvoiceDesk(hub, nil)
	sched := &flushScheduler{}

	opts := spin.Options{
		Catalog:       cat,
		Chances:       catalog.DefaultChanceTable(cat),
		Source:        engine.NewSeededSource(7),
		ShuffleSource: engine.NewSeededSource(8),
		Surface:       renderer,
		Haptics:       renderer,
		Scheduler:     sched,
		Opener:        desk,
		Notify:        hub.Notice,
	}
	if ho.invoices != nil {
		opts.Invoices = ho.invoices
	}
	ctrl, err := spin.New(opts)
	if err != nil {
		t.Fatalf("spin.New: %v", err)
	}
	t.Cleanup(ctrl.Close)

	h := &harness{ctrl: ctrl, sched: sched, desk: desk, auth: &stubAuth{}, renderer: renderer}
	so := Options{
		Controller: ctrl,
		Catalog:    cat,
		Chances:    opts.Chances,
		Hub:        hub,
		Renderer:   renderer,
		Invoices:   desk,
		Auth:       h.auth,
		Leaderboard: leaderboard.NewCache(stubFetcher{entries: []leaderboard.Entry{
			{ID: "1", Username: "alice", DisplayName: "alice", Score: 10},
			{ID: "279058397", Username: "vdkfrost", DisplayName: "vdkfrost", Score: 30},
		}}, 0, nil),
	}
	so.AllowedOrigins = ho.origins
	if !ho.noDraws {
		store, err := drawlog.New(filepath.Join(t.TempDir(), "draws.db"))
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { store.Close() })
		j, err := drawlog.NewJournal(context.Background(), store, "seeded", nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		ctrl.OnReveal(j.Record)
		h.store, h.journal = store, j
		so.Draws, so.Session = store, j.Session()
	}
	h.srv = NewServer(so)
	h.http = httptest.NewServer(h.srv.Routes())
	t.Cleanup(h.http.Close)
	return h
}

func (h *harness) do(t *testing.T, method, path, body string, hdr ...string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, h.http.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

func decodeInto(t *testing.T, b []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(b, v); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
}

func errorCode(t *testing.T, b []byte) string {
	t.Helper()
	var body errorBody
	decodeInto(t, b, &body)
	return body.Error.Code
}

func TestStateAndTiers(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	resp, body := h.do(t, http.MethodGet, "/api/v1/state", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("state status = %d", resp.StatusCode)
	}
	var snap struct {
		Phase string `json:"phase"`
		Tier  int    `json:"tier"`
		Items []any  `json:"items"`
	}
	decodeInto(t, body, &snap)
	if snap.Phase != "idle" || snap.Tier != 25 || len(snap.Items) != 13 {
		t.Errorf("snapshot = %+v", snap)
	}

	_, body = h.do(t, http.MethodGet, "/api/v1/tiers", "")
	var tiers struct {
		Tiers []tierView `json:"tiers"`
	}
	decodeInto(t, body, &tiers)
	if len(tiers.Tiers) != 3 {
		t.Fatalf("tiers = %+v", tiers)
	}
	for _, tv := range tiers.Tiers {
		if tv.Selected != (tv.Tier == 25) {
			t.Errorf("tier %d selected = %v", tv.Tier, tv.Selected)
		}
		if len(tv.Odds) != 13 {
			t.Errorf("tier %d has %d odds rows", tv.Tier, len(tv.Odds))
		}
	}
}

func TestSetTier(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	resp, body := h.do(t, http.MethodPut, "/api/v1/tier", `{"tier":50}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	if got := h.ctrl.Snapshot().Tier; got != 50 {
		t.Errorf("tier = %d", got)
	}

	tests := []struct {
		name string
		body string
		want int
	}{
		{"unknown tier", `{"tier":7}`, http.StatusUnprocessableEntity},
		{"missing tier", `{}`, http.StatusUnprocessableEntity},
		{"bad json", `{"tier":`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := h.do(t, http.MethodPut, "/api/v1/tier", tt.body)
			if resp.StatusCode != tt.want || errorCode(t, body) != "VALIDATION_ERROR" {
				t.Errorf("status = %d body = %s", resp.StatusCode, body)
			}
		})
	}
}

func TestDemoSpinLifecycle(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	resp, body := h.do(t, http.MethodPost, "/api/v1/spin", `{"demo":true}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("spin status = %d: %s", resp.StatusCode, body)
	}
	if s := h.ctrl.Snapshot(); s.Phase != spin.PhaseSpinning || !s.Demo {
		t.Fatalf("after spin: %+v", s)
	}

	resp, body = h.do(t, http.MethodPost, "/api/v1/spin", "")
	if resp.StatusCode != http.StatusConflict || errorCode(t, body) != "BUSY" {
		t.Errorf("second spin = %d %s", resp.StatusCode, body)
	}
	resp, _ = h.do(t, http.MethodPut, "/api/v1/tier", `{"tier":100}`)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("tier change while spinning = %d", resp.StatusCode)
	}

	h.sched.flush()
	snap := h.ctrl.Snapshot()
	if snap.Phase != spin.PhaseRevealing || !snap.Result.Visible {
		t.Fatalf("after flush: %+v", snap)
	}

	_, body = h.do(t, http.MethodPost, "/api/v1/result/dismiss", "")
	var dismissed map[string]bool
	decodeInto(t, body, &dismissed)
	if !dismissed["dismissed"] {
		t.Errorf("dismiss = %s", body)
	}
	h.sched.flush()
	if w := h.ctrl.Winner(); w != nil {
		t.Errorf("winner should be cleared, got %v", w.Gift.ID)
	}

	_, body = h.do(t, http.MethodPost, "/api/v1/demo/disable", "")
	if h.ctrl.Snapshot().Demo {
		t.Errorf("demo still on: %s", body)
	}
}

func TestPaidSpinThroughInvoice(t *testing.T) {
	h := newHarness(t, harnessOptions{invoices: stubInvoices{link: "https://t.me/$invoice"}})

	resp, body := h.do(t, http.MethodPost, "/api/v1/spin", `{}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("spin status = %d: %s", resp.StatusCode, body)
	}
	if !h.ctrl.Snapshot().ProcessingPayment {
		t.Fatal("payment should be processing")
	}

	resp, body = h.do(t, http.MethodPost, "/api/v1/spin", `{"demo":true}`)
	if resp.StatusCode != http.StatusConflict || errorCode(t, body) != "BUSY" {
		t.Errorf("demo spin during payment = %d %s", resp.StatusCode, body)
	}
	if s := h.ctrl.Snapshot(); s.Demo || s.Phase != spin.PhaseIdle {
		t.Errorf("demo spin during payment changed state: %+v", s)
	}

	var id uuid.UUID
	h.desk.mu.Lock()
	for k := range h.desk.pending {
		id = k
	}
	h.desk.mu.Unlock()
	if id == uuid.Nil {
		t.Fatal("no pending invoice")
	}

	path := "/api/v1/invoices/" + id.String() + "/status"
	resp, body = h.do(t, http.MethodPost, path, `{"status":"PAID"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	if s := h.ctrl.Snapshot(); s.Phase != spin.PhaseSpinning || s.ProcessingPayment {
		t.Errorf("after paid: %+v", s)
	}

	resp, _ = h.do(t, http.MethodPost, path, `{"status":"paid"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second resolve = %d", resp.StatusCode)
	}

	h.sched.flush()
	if s := h.ctrl.Snapshot(); s.Result.Mode != presenter.ModePaid {
		t.Errorf("result mode = %q", s.Result.Mode)
	}
}

func TestInvoiceStatusValidation(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	resp, _ := h.do(t, http.MethodPost, "/api/v1/invoices/nope/status", `{"status":"paid"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad id = %d", resp.StatusCode)
	}
	resp, _ = h.do(t, http.MethodPost, "/api/v1/invoices/"+uuid.NewString()+"/status", `{"status":"refunded"}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("bad status = %d", resp.StatusCode)
	}
	resp, _ = h.do(t, http.MethodPost, "/api/v1/invoices/"+uuid.NewString()+"/status", `{"status":"paid"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown invoice = %d", resp.StatusCode)
	}
}

func TestSpinPaymentErrors(t *testing.T) {
	tests := []struct {
		name     string
		invoices spin.InvoiceCreator
		status   int
		code     string
		message  string
	}{
		{"unsupported", nil, http.StatusNotImplemented, "PAYMENT_UNAVAILABLE", spin.MsgPaymentUnavailable},
		{"create fails", stubInvoices{err: errors.New("boom")}, http.StatusBadGateway, "PAYMENT_ERROR", spin.MsgInvoiceFailed},
		{"no link", stubInvoices{link: "  "}, http.StatusBadGateway, "PAYMENT_ERROR", spin.MsgInvoiceNoLink},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, harnessOptions{invoices: tt.invoices, noDraws: true})
			resp, body := h.do(t, http.MethodPost, "/api/v1/spin", "")
			var eb errorBody
			decodeInto(t, body, &eb)
			if resp.StatusCode != tt.status || eb.Error.Code != tt.code || eb.Error.Message != tt.message {
				t.Errorf("got %d %+v", resp.StatusCode, eb)
			}
			if s := h.ctrl.Snapshot(); s.Phase != spin.PhaseIdle || s.ProcessingPayment {
				t.Errorf("controller not idle: %+v", s)
			}
		})
	}
}

func TestLeaderboardAndProfile(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	resp, body := h.do(t, http.MethodGet, "/api/v1/leaderboard", "", miniapp.HeaderInitData, sampleInitData)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var page leaderboard.Page
	decodeInto(t, body, &page)
	if page.Total != 2 || len(page.Rows) != 2 || page.Rows[0].Username != "vdkfrost" || !page.Rows[0].Me {
		t.Errorf("page = %+v", page)
	}
	if h.auth.InitData() != sampleInitData {
		t.Error("header did not update the auth context")
	}

	_, body = h.do(t, http.MethodGet, "/api/v1/leaderboard?q=ALI", "")
	decodeInto(t, body, &page)
	if len(page.Rows) != 1 || page.Rows[0].Username != "alice" || page.Rows[0].Position != 1 {
		t.Errorf("filtered page = %+v", page)
	}

	_, body = h.do(t, http.MethodGet, "/api/v1/profile", "")
	var p struct {
		Name        string `json:"name"`
		Handle      string `json:"handle"`
		Badge       string `json:"badge"`
		Placeholder bool   `json:"placeholder"`
	}
	decodeInto(t, body, &p)
	if p.Placeholder || p.Handle != "@vdkfrost" || p.Badge != "ID 279058397" {
		t.Errorf("profile = %+v", p)
	}

	resp, body = h.do(t, http.MethodGet, "/api/v1/profile", "", miniapp.HeaderInitData, "%zz=1")
	if resp.StatusCode != http.StatusBadRequest || errorCode(t, body) != miniapp.CodeInvalidInitData {
		t.Errorf("malformed init data = %d %s", resp.StatusCode, body)
	}
}

func TestDrawRoutes(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	for i := 0; i < 3; i++ {
		if !h.ctrl.StartSpin(presenter.ModeDemo) {
			t.Fatalf("spin %d did not start", i)
		}
		h.sched.flush()
	}

	_, body := h.do(t, http.MethodGet, "/api/v1/draws?limit=2", "")
	var draws struct {
		Rows  []drawlog.Draw `json:"rows"`
		Count int            `json:"count"`
	}
	decodeInto(t, body, &draws)
	if draws.Count != 2 || draws.Rows[0].Spin != 3 {
		t.Errorf("draws = %+v", draws)
	}

	_, body = h.do(t, http.MethodGet, "/api/v1/draws/distribution?tier=25", "")
	var dist struct {
		Rows  []distributionRow `json:"rows"`
		Total int64             `json:"total"`
	}
	decodeInto(t, body, &dist)
	if dist.Total != 3 || len(dist.Rows) == 0 || dist.Rows[0].Expected == "" {
		t.Errorf("distribution = %+v", dist)
	}

	resp, body := h.do(t, http.MethodGet, "/api/v1/draws/export.csv", "")
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/csv") {
		t.Fatalf("export = %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if lines := strings.Split(strings.TrimSpace(string(body)), "\n"); len(lines) != 4 {
		t.Errorf("csv has %d lines", len(lines))
	}

	resp, _ = h.do(t, http.MethodGet, "/api/v1/draws?session=bogus", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bogus session = %d", resp.StatusCode)
	}

	off := newHarness(t, harnessOptions{noDraws: true})
	resp, _ = off.do(t, http.MethodGet, "/api/v1/draws", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("disabled journal = %d", resp.StatusCode)
	}
}

func TestRecolor(t *testing.T) {
	h := newHarness(t, harnessOptions{noDraws: true})
	anim := `{"v":"5.7.4","layers":[{"ty":4,"nm":"icon","shapes":[{"ty":"fl","c":{"a":0,"k":[1,0,0,1]}}]}]}`

	resp, body := h.do(t, http.MethodPost, "/api/v1/animations/recolor", `{"animation":`+anim+`,"tint":"#3390ec"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	var out recolorResponse
	decodeInto(t, body, &out)
	if out.Changed != 1 || !strings.Contains(string(out.Animation), `"v":"5.7.4"`) {
		t.Errorf("recolor = %d %s", out.Changed, out.Animation)
	}

	tests := []struct {
		name string
		body string
	}{
		{"no palette", `{"animation":` + anim + `}`},
		{"bad tint", `{"animation":` + anim + `,"tint":"blue"}`},
		{"bad swap", `{"animation":` + anim + `,"swaps":[{"from":"#f00","to":"nope"}]}`},
		{"no animation", `{"tint":"#fff"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := h.do(t, http.MethodPost, "/api/v1/animations/recolor", tt.body)
			if resp.StatusCode != http.StatusUnprocessableEntity {
				t.Errorf("status = %d", resp.StatusCode)
			}
		})
	}
}

func TestViewportAndHealth(t *testing.T) {
	h := newHarness(t, harnessOptions{noDraws: true})
	resp, _ := h.do(t, http.MethodPut, "/api/v1/viewport", `{"width":412}`)
	if resp.StatusCode != http.StatusNoContent || h.renderer.ContainerWidth() != 412 {
		t.Errorf("viewport = %d width %v", resp.StatusCode, h.renderer.ContainerWidth())
	}
	if card := h.ctrl.Snapshot().Card; card != roulette.CompactCard {
		t.Errorf("card = %+v, want compact", card)
	}

	if !h.ctrl.StartSpin(presenter.ModeDemo) {
		t.Fatal("StartSpin refused")
	}
	resp, _ = h.do(t, http.MethodPut, "/api/v1/viewport", `{"width":900}`)
	if resp.StatusCode != http.StatusConflict || h.renderer.ContainerWidth() != 412 {
		t.Errorf("viewport while spinning = %d width %v", resp.StatusCode, h.renderer.ContainerWidth())
	}
	h.sched.flush()

	_, body := h.do(t, http.MethodGet, "/health", "")
	var health map[string]any
	decodeInto(t, body, &health)
	if health["status"] != "healthy" || health["drawlog"] != false || health["leaderboard"] != true {
		t.Errorf("health = %v", health)
	}
}

func TestCORSAllowsInitDataHeader(t *testing.T) {
	h := newHarness(t, harnessOptions{noDraws: true})
	resp, _ := h.do(t, http.MethodOptions, "/api/v1/state", "",
		"Origin", "https://web.telegram.org",
		"Access-Control-Request-Method", "GET",
		"Access-Control-Request-Headers", miniapp.HeaderInitData)
	allowed := strings.ToLower(resp.Header.Get("Access-Control-Allow-Headers"))
	if !strings.Contains(allowed, strings.ToLower(miniapp.HeaderInitData)) {
		t.Errorf("allow headers = %q", allowed)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return ev
}

func TestWebsocketStream(t *testing.T) {
	h := newHarness(t, harnessOptions{noDraws: true, invoices: stubInvoices{link: "https://t.me/$inv"}})
	url := "ws" + strings.TrimPrefix(h.http.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if ev := readEvent(t, conn); ev.Type != EventState {
		t.Fatalf("first event = %q", ev.Type)
	}

	if resp, _ := h.do(t, http.MethodPost, "/api/v1/spin", ""); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("spin = %d", resp.StatusCode)
	}
	for {
		ev := readEvent(t, conn)
		if ev.Type != EventInvoiceOpen {
			continue
		}
		data := ev.Data.(map[string]any)
		if data["link"] != "https://t.me/$inv" || data["id"] == "" {
			t.Errorf("invoice_open = %v", data)
		}
		break
	}
	if h.desk.Pending() != 1 {
		t.Errorf("pending = %d", h.desk.Pending())
	}

	h.srv.hub.Notice("hello")
	for {
		if ev := readEvent(t, conn); ev.Type == EventNotice {
			if ev.Data.(map[string]any)["message"] != "hello" {
				t.Errorf("notice = %v", ev.Data)
			}
			break
		}
	}
}

func TestVibrateWithoutRenderer(t *testing.T) {
	r := NewRenderer(NewHub(nil))
	if err := r.Vibrate(spin.RevealPattern); !errors.Is(err, ErrNoRenderer) {
		t.Errorf("Vibrate = %v", err)
	}
}

func TestWebsocketOrigins(t *testing.T) {
	dial := func(t *testing.T, h *harness, origin string) (int, error) {
		t.Helper()
		url := "ws" + strings.TrimPrefix(h.http.URL, "http") + "/api/v1/ws"
		hdr := http.Header{}
		if origin != "" {
			hdr.Set("Origin", origin)
		}
		conn, resp, err := websocket.DefaultDialer.Dial(url, hdr)
		if err != nil {
			if resp == nil {
				return 0, err
			}
			return resp.StatusCode, err
		}
		defer conn.Close()
		if ev := readEvent(t, conn); ev.Type != EventState {
			t.Errorf("first event = %q", ev.Type)
		}
		return http.StatusSwitchingProtocols, nil
	}

	open := newHarness(t, harnessOptions{noDraws: true})
	if status, err := dial(t, open, "https://webapp.example.com"); err != nil {
		t.Errorf("foreign origin with default origins: %d %v", status, err)
	}

	h := newHarness(t, harnessOptions{noDraws: true, origins: []string{"https://webapp.example.com", "https://*.gifts.example"}})
	tests := []struct {
		origin string
		want   int
	}{
		{"https://webapp.example.com", http.StatusSwitchingProtocols},
		{"HTTPS://WEBAPP.EXAMPLE.COM", http.StatusSwitchingProtocols},
		{"https://staging.gifts.example", http.StatusSwitchingProtocols},
		{"", http.StatusSwitchingProtocols},
		{"https://evil.example", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			if status, _ := dial(t, h, tt.origin); status != tt.want {
				t.Errorf("status = %d, want %d", status, tt.want)
			}
		})
	}
}
