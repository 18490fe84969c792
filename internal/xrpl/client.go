// Package xrpl implements a resilient JSON-RPC-over-WebSocket client for
// XRPL-style server clusters. One uplink is live at a time; calls are
// multiplexed over it with internally rewritten ids, subscriptions are
// replayed across reconnects, and a server-health view is maintained from
// piggy-backed server_info probes.
package xrpl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"xrpl-uplink/internal/observability"
)

// Config carries the supervisor tunables.
type Config struct {
	// ConnectAttemptTimeout sets the slope of the reconnect-delay ramp when
	// MaxConnectionAttempts is above 1. The dial deadline follows the
	// reconnect delay, not this value.
	ConnectAttemptTimeout time.Duration

	// AssumeOfflineAfter is the ledger-silence window after which the
	// liveness watchdog forces a reconnect.
	AssumeOfflineAfter time.Duration

	// MaxConnectionAttempts bounds attempts per endpoint. Zero means
	// unset; it is forced to 3 when multiple endpoints are configured so
	// rotation can occur.
	MaxConnectionAttempts int
}

// DefaultConfig returns the default supervisor tunables.
func DefaultConfig() Config {
	return Config{
		ConnectAttemptTimeout: 3 * time.Second,
		AssumeOfflineAfter:    15 * time.Second,
	}
}

// Option configures a Client.
type Option func(*Client)

// WithConfig replaces the default supervisor tunables. Zero fields keep
// their defaults.
func WithConfig(cfg Config) Option {
	return func(c *Client) {
		if cfg.ConnectAttemptTimeout > 0 {
			c.cfg.ConnectAttemptTimeout = cfg.ConnectAttemptTimeout
		}
		if cfg.AssumeOfflineAfter > 0 {
			c.cfg.AssumeOfflineAfter = cfg.AssumeOfflineAfter
		}
		if cfg.MaxConnectionAttempts > 0 {
			c.cfg.MaxConnectionAttempts = cfg.MaxConnectionAttempts
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// WithMetrics wires prometheus metrics into the client.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithDialer sets a custom transport dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) {
		c.dial = d
	}
}

// Client is the connection-and-call multiplexer. Construct with New,
// register event handlers with OnEvent, then call Connect.
type Client struct {
	cfg       Config
	log       zerolog.Logger
	metrics   *observability.Metrics
	dial      Dialer
	endpoints *endpointSet
	registry  *callRegistry
	events    *emitter

	// maxAttempts is the resolved attempt budget (config value, or 3 when
	// forced for multi-endpoint rotation).
	maxAttempts int

	// delayFn computes the reconnect delay for an attempt count. Tests
	// override it to avoid the 1.5s production floor.
	delayFn func(attempts int) time.Duration

	mu             sync.Mutex
	state          *serverState
	conn           Conn
	connGen        uint64
	started        bool
	ready          bool
	closed         bool
	info           *serverInfo
	lastContact    time.Time
	readyWaiters   []chan struct{}
	reconnectTimer *time.Timer
	livenessTimer  *time.Timer

	// writeMu serialises frame writes; gorilla connections permit a
	// single concurrent writer.
	writeMu sync.Mutex
}

// New validates the endpoint list and builds a client. Passing nil uses
// DefaultEndpoint; passing an explicit list with no valid ws:// or wss://
// URL fails with ErrNoEndpoints. The client does not dial until Connect.
func New(endpoints []string, opts ...Option) (*Client, error) {
	if endpoints == nil {
		endpoints = []string{DefaultEndpoint}
	}
	set, err := newEndpointSet(endpoints)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:       DefaultConfig(),
		log:       zerolog.Nop(),
		dial:      gorillaDialer{},
		endpoints: set,
		registry:  newCallRegistry(),
		events:    &emitter{},
		state:     newServerState(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.maxAttempts = c.cfg.MaxConnectionAttempts
	if set.Len() > 1 && c.maxAttempts == 0 {
		c.maxAttempts = 3
	}
	if c.delayFn == nil {
		c.delayFn = c.defaultReconnectDelay
	}
	return c, nil
}

// OnEvent registers a handler on the event surface. Handlers run
// synchronously in registration order on the goroutine emitting the event;
// they must not block and must not call Close.
func (c *Client) OnEvent(fn func(Event)) {
	c.events.subscribe(fn)
}

// Connect starts the connection supervisor. It returns immediately; the
// online transition is observable via the online event or Ready.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()
	go c.connectCycle()
	return nil
}

// defaultReconnectDelay implements a linear ramp of (attempts+1)*factor
// seconds with a floor of 1.5s. factor is (ConnectAttemptTimeout-1s) /
// (maxAttempts-1) when maxAttempts is above 1, else 1; with no attempt cap
// the delay keeps growing with the attempt count.
func (c *Client) defaultReconnectDelay(attempts int) time.Duration {
	factor := 1.0
	if c.maxAttempts > 1 {
		factor = (c.cfg.ConnectAttemptTimeout.Seconds() - 1) / float64(c.maxAttempts-1)
	}
	secs := float64(attempts+1) * factor
	if secs < 1.5 {
		secs = 1.5
	}
	return time.Duration(secs * float64(time.Second))
}

// connectCycle runs one connect attempt: rotate or bail if the attempt
// budget is spent, then dial the current endpoint under the dead-connect
// deadline and start the frame pump.
func (c *Client) connectCycle() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.state.connectAttempts++

	var rotated, wrapped bool
	var newEndpoint string
	if c.maxAttempts > 1 && c.state.connectAttempts >= c.maxAttempts {
		if c.endpoints.Len() > 1 {
			wrapped = c.endpoints.Advance()
			c.state.connectAttempts = 0
			newEndpoint = c.endpoints.Current()
			rotated = true
		} else {
			c.mu.Unlock()
			c.emit(Event{Type: EventError, Err: ErrConnectionExhausted})
			c.shutdown(nil)
			return
		}
	}

	gen := c.connGen + 1
	c.connGen = gen
	delay := c.delayFn(c.state.connectAttempts)
	endpoint := c.endpoints.Current()
	c.mu.Unlock()

	if rotated {
		if wrapped {
			c.counter(func(m *observability.Metrics) { m.RoundsTotal.Inc() })
			c.emit(Event{Type: EventRound})
		}
		c.counter(func(m *observability.Metrics) { m.NodeswitchesTotal.Inc() })
		c.emit(Event{Type: EventNodeSwitch, Endpoint: newEndpoint})
		c.log.Info().Str("endpoint", newEndpoint).Msg("switching node")
	}

	// The dial deadline tracks the next reconnect delay, one millisecond
	// short, so a dead connect is abandoned just before the retry fires.
	ctx, cancel := context.WithTimeout(context.Background(), delay-time.Millisecond)
	conn, err := c.dial.DialContext(ctx, endpoint)
	cancel()
	if err != nil {
		c.log.Debug().Err(err).Str("endpoint", endpoint).Msg("dial failed")
		c.handleDisconnect(gen, err)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.mu.Unlock()

	c.counter(func(m *observability.Metrics) { m.ConnectsTotal.Inc() })
	c.log.Debug().Str("endpoint", endpoint).Msg("transport open")

	go c.readPump(conn, gen)
	c.sendProbes()
}

// readPump delivers inbound frames until the connection dies.
func (c *Client) readPump(conn Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(gen, err)
			return
		}
		c.handleFrame(gen, data)
	}
}

// sendProbes arms the current uplink: an internal ledger subscription for
// the liveness signal and a server_info probe whose resolution (or the
// first ledger event) marks the uplink online.
func (c *Client) sendProbes() {
	sub := map[string]interface{}{
		"id":      internalSubscriptionID,
		"command": "subscribe",
		"streams": []string{"ledger"},
	}
	if _, err := c.SendAsync(sub, SendOptions{SendIfNotReady: true, NoReplayAfterReconnect: true}); err != nil && !errors.Is(err, ErrClosed) {
		c.log.Warn().Err(err).Msg("ledger subscription probe failed")
	}
	c.sendServerInfoProbe()
}

// sendServerInfoProbe fires a server_info call tagged with an emission
// timestamp; the round-trip latency is derived from the tag on return.
func (c *Client) sendServerInfoProbe() {
	req := map[string]interface{}{
		"id":      fmt.Sprintf("%s@%d", internalServerInfoPrefix, time.Now().UnixMilli()),
		"command": "server_info",
	}
	if _, err := c.SendAsync(req, SendOptions{SendIfNotReady: true, NoReplayAfterReconnect: true}); err != nil && !errors.Is(err, ErrClosed) {
		c.log.Warn().Err(err).Msg("server_info probe failed")
	}
}

// goOnline transitions the uplink to online: reset the attempt counter,
// flush queued work (pending one-shots before subscriptions), then emit
// online and a state snapshot.
func (c *Client) goOnline(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.connGen || c.ready {
		c.mu.Unlock()
		return
	}
	c.ready = true
	c.state.connectAttempts = 0
	pending, subs := c.registry.snapshotForFlush()
	c.mu.Unlock()

	c.counter(func(m *observability.Metrics) { m.Online.Set(1) })
	c.log.Info().Str("endpoint", c.currentEndpoint()).Msg("uplink online")

	for _, call := range pending {
		if call.opts.NoReplayAfterReconnect && call.wasTransmitted() {
			continue
		}
		c.transmit(call)
	}
	for _, call := range subs {
		c.transmit(call)
	}

	c.armLiveness()
	c.emit(Event{Type: EventOnline})
	c.emitState()
	c.notifyReadyWaiters()
}

// handleDisconnect tears down the current uplink era and schedules the
// next connect. Stale eras (already superseded) are ignored.
func (c *Client) handleDisconnect(gen uint64, cause error) {
	c.mu.Lock()
	if c.closed || gen != c.connGen {
		c.mu.Unlock()
		return
	}
	c.connGen++
	wasReady := c.ready
	c.ready = false
	c.info = nil
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	delay := c.delayFn(c.state.connectAttempts)
	c.mu.Unlock()

	c.counter(func(m *observability.Metrics) { m.Online.Set(0) })
	c.log.Debug().Err(cause).Msg("transport closed")

	c.emit(Event{Type: EventClose})
	c.emitState()
	if wasReady {
		c.emit(Event{Type: EventOffline})
	}

	c.counter(func(m *observability.Metrics) { m.RetriesTotal.Inc() })
	c.emit(Event{Type: EventRetry})

	c.mu.Lock()
	if !c.closed {
		c.reconnectTimer = time.AfterFunc(delay, c.connectCycle)
	}
	c.mu.Unlock()
}

// armLiveness (re)arms the single watchdog timer. Called on every ledger
// event, on the online transition, and by Alive.
func (c *Client) armLiveness() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.livenessTimer != nil {
		c.livenessTimer.Stop()
	}
	c.livenessTimer = time.AfterFunc(c.cfg.AssumeOfflineAfter, c.livenessExpired)
}

// livenessExpired closes the transport after ledger silence. Firing before
// the first online transition is a no-op so startup is not disturbed.
func (c *Client) livenessExpired() {
	c.mu.Lock()
	ready := c.ready
	conn := c.conn
	c.mu.Unlock()
	if !ready || conn == nil {
		return
	}
	c.log.Warn().Dur("window", c.cfg.AssumeOfflineAfter).Msg("no ledger activity, assuming offline")
	_ = conn.Close()
}

// Alive re-arms the liveness watchdog, for callers that have independent
// evidence the uplink is healthy.
func (c *Client) Alive() {
	c.armLiveness()
}

// SendAsync validates and dispatches a call, returning its future. The
// request map is not mutated; command is lowercased and trimmed for
// storage and matching. Semantic rejections surface as an error here.
func (c *Client) SendAsync(req map[string]interface{}, opts SendOptions) (*Call, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if req == nil {
		return nil, ErrInvalidRequest
	}
	rawCmd, ok := req["command"].(string)
	if !ok {
		return nil, ErrInvalidCommand
	}
	command := strings.ToLower(strings.TrimSpace(rawCmd))

	request := make(map[string]interface{}, len(req))
	for k, v := range req {
		request[k] = v
	}
	request["command"] = command

	if command == "unsubscribe" {
		if err := filterLedgerUnsubscribe(request); err != nil {
			return nil, err
		}
	}

	userID, hasUserID := request["id"]
	delete(request, "id")
	probe := isInternalID(userID)

	kind := OneShot
	if subscriptionCommands[command] && !opts.NoReplayAfterReconnect {
		kind = Subscription
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	id := c.registry.allocate()
	call := newCall(id, request, userID, hasUserID, kind, opts)
	if !probe {
		c.registry.insert(call)
		c.updateInFlightLocked()
	}
	conn := c.conn
	readyNow := c.ready
	c.mu.Unlock()

	if (readyNow || opts.SendIfNotReady) && conn != nil {
		c.transmit(call)
	}

	if opts.TimeoutSeconds > 0 && !opts.TimeoutStartsWhenOnline {
		c.armDeadline(call)
	}
	return call, nil
}

// Send dispatches a call and blocks until it settles or ctx expires.
func (c *Client) Send(ctx context.Context, req map[string]interface{}, opts SendOptions) (json.RawMessage, error) {
	call, err := c.SendAsync(req, opts)
	if err != nil {
		return nil, err
	}
	select {
	case <-call.Done():
		return call.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// transmit writes the call to the wire with its envelope id. A write
// failure is left to the read pump to surface; the call stays queued.
func (c *Client) transmit(call *Call) {
	out := make(map[string]interface{}, len(call.request)+1)
	for k, v := range call.request {
		out[k] = v
	}
	out["id"] = wireID{Internal: call.internalID, User: call.userID}

	data, err := json.Marshal(out)
	if err != nil {
		if call.reject(fmt.Errorf("marshal request: %w", err)) {
			c.mu.Lock()
			c.registry.removePending(call.internalID)
			c.registry.removeSubscription(call.internalID)
			c.updateInFlightLocked()
			c.mu.Unlock()
		}
		return
	}

	c.writeMu.Lock()
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		c.writeMu.Unlock()
		return
	}
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		c.log.Debug().Err(err).Uint64("call", call.internalID).Msg("write failed")
		return
	}

	call.markTransmitted()
	if call.opts.TimeoutStartsWhenOnline && call.opts.TimeoutSeconds > 0 {
		c.armDeadline(call)
	}
}

// armDeadline installs the per-call timeout. Arming happens at most once;
// settling the call cancels the timer.
func (c *Client) armDeadline(call *Call) {
	secs := call.opts.TimeoutSeconds
	if secs <= 0 {
		return
	}
	d := time.Duration(secs * float64(time.Second))
	call.arm(func() *time.Timer {
		return time.AfterFunc(d, func() {
			if call.reject(fmt.Errorf("Call timeout after %v seconds", secs)) {
				c.mu.Lock()
				c.registry.removePending(call.internalID)
				c.updateInFlightLocked()
				c.mu.Unlock()
				c.counter(func(m *observability.Metrics) { m.CallTimeoutsTotal.Inc() })
			}
		})
	})
}

// Ready blocks until a state snapshot shows a live, recently contacted
// uplink with a known last ledger, re-checking on every ledger event.
func (c *Client) Ready(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return ErrClosed
		}
		st := c.stateLocked()
		if st.Online && st.SecLastContact >= 0 && st.SecLastContact < 10 && st.Ledger.Last != 0 {
			c.mu.Unlock()
			return nil
		}
		ch := make(chan struct{})
		c.readyWaiters = append(c.readyWaiters, ch)
		c.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// State returns a point-in-time snapshot of the uplink health.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.stateLocked()
}

func (c *Client) stateLocked() *ConnectionState {
	now := time.Now()
	st := &ConnectionState{
		Online: c.ready && !c.closed && c.conn != nil,
		Latency: LatencyInfo{SecAgo: -1},
		Fee:     FeeInfo{SecAgo: -1},
	}
	if n := len(c.state.latency); n > 0 {
		last := c.state.latency[n-1]
		st.Latency = LatencyInfo{
			LastMs: last.Ms,
			AvgMs:  avgLatency(c.state.latency),
			SecAgo: now.Sub(last.At).Seconds(),
		}
	}
	if n := len(c.state.fee); n > 0 {
		last := c.state.fee[n-1]
		st.Fee = FeeInfo{
			LastDrops: last.Drops,
			AvgDrops:  avgFee(c.state.fee),
			SecAgo:    now.Sub(last.At).Seconds(),
		}
	}
	st.Server.URI = c.endpoints.Current()
	if c.info != nil {
		st.Server.Version = c.info.BuildVersion
		st.Server.Uptime = c.info.Uptime
		st.Server.PublicKey = c.info.PubkeyNode
	}
	st.Ledger = LedgerInfo{
		Last:      c.state.lastLedgerIndex,
		Validated: c.state.validatedLedgers,
		Count:     ledgerCount(c.state.validatedLedgers),
	}
	st.Reserve = ReserveInfo{Base: c.state.reserveBase, Owner: c.state.reserveInc}
	if c.lastContact.IsZero() {
		st.SecLastContact = -1
	} else {
		st.SecLastContact = now.Sub(c.lastContact).Seconds()
	}
	return st
}

// Close hard-closes the client: the transport is torn down and every
// outstanding call and subscription is rejected. A second Close returns
// ErrClosed.
func (c *Client) Close() error {
	return c.CloseWithCause(nil)
}

// CloseWithCause hard-closes the client and, when cause is non-nil, emits
// it on the error event.
func (c *Client) CloseWithCause(cause error) error {
	if !c.shutdown(cause) {
		return ErrClosed
	}
	return nil
}

// shutdown performs the Closed transition once. Reports false when the
// client was already closed.
func (c *Client) shutdown(cause error) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.closed = true
	c.ready = false
	conn := c.conn
	c.conn = nil
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	if c.livenessTimer != nil {
		c.livenessTimer.Stop()
	}
	calls := c.registry.drainAll()
	waiters := c.readyWaiters
	c.readyWaiters = nil
	c.updateInFlightLocked()
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	for _, call := range calls {
		call.reject(ErrHardClose)
	}
	for _, ch := range waiters {
		close(ch)
	}
	c.counter(func(m *observability.Metrics) { m.Online.Set(0) })
	if cause != nil {
		c.emit(Event{Type: EventError, Err: cause})
	}
	return true
}

func (c *Client) emit(ev Event) {
	c.events.emit(ev)
}

func (c *Client) emitState() {
	c.mu.Lock()
	st := c.stateLocked()
	c.mu.Unlock()
	c.emit(Event{Type: EventState, State: st})
}

func (c *Client) notifyReadyWaiters() {
	c.mu.Lock()
	waiters := c.readyWaiters
	c.readyWaiters = nil
	c.mu.Unlock()
	for _, ch := range waiters {
		close(ch)
	}
}

func (c *Client) currentEndpoint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoints.Current()
}

func (c *Client) counter(fn func(*observability.Metrics)) {
	if c.metrics != nil {
		fn(c.metrics)
	}
}

func (c *Client) updateInFlightLocked() {
	if c.metrics != nil {
		c.metrics.CallsInFlight.Set(float64(c.registry.pendingCount() + c.registry.subscriptionCount()))
	}
}

// isInternalID reports whether a user-supplied id carries one of the
// reserved probe prefixes.
func isInternalID(id interface{}) bool {
	s, ok := id.(string)
	if !ok {
		return false
	}
	return strings.HasPrefix(s, internalServerInfoPrefix) || strings.HasPrefix(s, internalSubscriptionID)
}

// filterLedgerUnsubscribe strips "ledger" from an unsubscribe's streams.
// If nothing else distinguishes the request the call is rejected: the
// client's own liveness signal rides on the ledger stream.
func filterLedgerUnsubscribe(req map[string]interface{}) error {
	var streams []interface{}
	switch v := req["streams"].(type) {
	case []interface{}:
		streams = v
	case []string:
		streams = make([]interface{}, len(v))
		for i, s := range v {
			streams[i] = s
		}
	default:
		return nil
	}

	filtered := make([]interface{}, 0, len(streams))
	removed := false
	for _, s := range streams {
		if name, ok := s.(string); ok && name == "ledger" {
			removed = true
			continue
		}
		filtered = append(filtered, s)
	}
	if !removed {
		return nil
	}
	req["streams"] = filtered

	if len(filtered) == 0 {
		for k := range req {
			if k != "id" && k != "command" && k != "streams" {
				return nil
			}
		}
		return ErrLedgerUnsubscribe
	}
	return nil
}
