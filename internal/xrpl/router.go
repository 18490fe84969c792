package xrpl

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"xrpl-uplink/internal/observability"
	"xrpl-uplink/internal/xrpladdr"
)

// inboundEnvelope is the subset of an inbound frame the router inspects.
// Everything else passes through opaque.
type inboundEnvelope struct {
	ID                  json.RawMessage `json:"id,omitempty"`
	Result              json.RawMessage `json:"result,omitempty"`
	Status              string          `json:"status,omitempty"`
	Type                string          `json:"type,omitempty"`
	LedgerIndex         uint64          `json:"ledger_index,omitempty"`
	ValidatedLedgers    string          `json:"validated_ledgers,omitempty"`
	ReserveBase         *float64        `json:"reserve_base,omitempty"`
	ReserveInc          *float64        `json:"reserve_inc,omitempty"`
	TxnCount            uint64          `json:"txn_count,omitempty"`
	ValidationPublicKey string          `json:"validation_public_key,omitempty"`
}

// serverInfoResult mirrors the server_info response shape the health
// aggregator consumes.
type serverInfoResult struct {
	Info struct {
		PubkeyNode      string  `json:"pubkey_node"`
		BuildVersion    string  `json:"build_version"`
		CompleteLedgers string  `json:"complete_ledgers"`
		Uptime          int64   `json:"uptime"`
		LoadFactor      float64 `json:"load_factor"`
		ValidatedLedger struct {
			BaseFeeXRP float64 `json:"base_fee_xrp"`
		} `json:"validated_ledger"`
	} `json:"info"`
}

// handleFrame classifies one inbound frame. Parse errors are logged and
// the frame dropped; nothing propagates to callers.
func (c *Client) handleFrame(gen uint64, data []byte) {
	var env inboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.counter(func(m *observability.Metrics) { m.FramesDroppedTotal.Inc() })
		c.log.Debug().Err(err).Msg("dropping unparseable frame")
		return
	}

	c.mu.Lock()
	if c.closed || gen != c.connGen {
		c.mu.Unlock()
		return
	}
	c.lastContact = time.Now()
	c.mu.Unlock()

	internalID, userID, hasEnvelope := decodeWireID(env.ID)

	// Probe traffic is matched by its reserved prefix and never surfaces.
	if user, ok := userIDString(userID); ok {
		if strings.HasPrefix(user, internalServerInfoPrefix) {
			c.handleServerInfo(gen, user, env)
			return
		}
		if strings.HasPrefix(user, internalSubscriptionID) {
			return
		}
	}

	if hasEnvelope {
		c.mu.Lock()
		sub := c.registry.subscriptionByID(internalID)
		c.mu.Unlock()
		if sub != nil {
			c.dispatchSubscription(gen, env, data, sub)
			return
		}

		c.mu.Lock()
		pending := c.registry.pendingByID(internalID)
		if pending != nil {
			c.registry.removePending(internalID)
			c.updateInFlightLocked()
		}
		c.mu.Unlock()
		if pending != nil {
			pending.resolve(resolutionPayload(env, data, pending))
			return
		}
	}

	c.dispatchAsync(gen, env, data, nil)
}

// decodeWireID extracts the internal envelope from a mirrored id. Frames
// without an id, or with a foreign id shape, report hasEnvelope false.
func decodeWireID(raw json.RawMessage) (internal uint64, user json.RawMessage, hasEnvelope bool) {
	if len(raw) == 0 {
		return 0, nil, false
	}
	var wid inboundID
	if err := json.Unmarshal(raw, &wid); err != nil || wid.Internal == 0 {
		return 0, nil, false
	}
	return wid.Internal, wid.User, true
}

func userIDString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// resolutionPayload picks what a settled call resolves to: the result
// member when present, else the whole envelope with the user id restored.
func resolutionPayload(env inboundEnvelope, data []byte, call *Call) json.RawMessage {
	if len(env.Result) > 0 {
		return env.Result
	}
	restored := restoreUserID(data, call)
	payload, err := json.Marshal(restored)
	if err != nil {
		return data
	}
	return payload
}

// restoreUserID rebuilds the inbound frame as a generic map with the
// caller's original id in place of the wire envelope.
func restoreUserID(data []byte, call *Call) map[string]interface{} {
	msg := rawToMap(data)
	if msg == nil {
		return nil
	}
	if call == nil {
		return msg
	}
	if call.hasUserID {
		msg["id"] = call.userID
	} else {
		delete(msg, "id")
	}
	return msg
}

// handleServerInfo feeds the health aggregator from a probe response. The
// id suffix carries the emission timestamp; round-trip latency is derived
// from it. Resolution of the probe also marks the uplink online.
func (c *Client) handleServerInfo(gen uint64, probeID string, env inboundEnvelope) {
	now := time.Now()
	if at, ok := strings.CutPrefix(probeID, internalServerInfoPrefix+"@"); ok {
		if ms, err := strconv.ParseInt(at, 10, 64); err == nil {
			latency := float64(now.UnixMilli() - ms)
			c.mu.Lock()
			c.state.pushLatency(now, latency)
			c.mu.Unlock()
			c.counter(func(m *observability.Metrics) { m.ProbeLatencySeconds.Observe(latency / 1000) })
		}
	}

	var result serverInfoResult
	if len(env.Result) > 0 && json.Unmarshal(env.Result, &result) == nil {
		info := &serverInfo{
			PubkeyNode:      result.Info.PubkeyNode,
			BuildVersion:    result.Info.BuildVersion,
			CompleteLedgers: result.Info.CompleteLedgers,
			Uptime:          result.Info.Uptime,
			LoadFactor:      result.Info.LoadFactor,
			BaseFeeXRP:      result.Info.ValidatedLedger.BaseFeeXRP,
		}
		c.mu.Lock()
		c.info = info
		if info.CompleteLedgers != "" {
			c.state.validatedLedgers = info.CompleteLedgers
		}
		c.state.pushFee(now, info.LoadFactor*info.BaseFeeXRP*dropsPerXRP*feeCushion)
		c.mu.Unlock()
	}

	c.goOnline(gen)
}

// dispatchSubscription handles a frame addressed to a stored subscription:
// the first acknowledgement settles the send future, every push is
// surfaced via events.
func (c *Client) dispatchSubscription(gen uint64, env inboundEnvelope, data []byte, sub *Call) {
	sub.resolve(resolutionPayload(env, data, sub))

	// An acknowledged unsubscribe has done its work; hard close is the
	// only other way out of the subscription map.
	if cmd, _ := sub.request["command"].(string); cmd == "unsubscribe" {
		c.mu.Lock()
		c.registry.removeSubscription(sub.internalID)
		c.updateInFlightLocked()
		c.mu.Unlock()
	}

	c.dispatchAsync(gen, env, data, sub)
}

// dispatchAsync is the async/stream path: emit message for every
// non-internal frame, then route by type, falling back to the stored
// subscription's command and streams.
func (c *Client) dispatchAsync(gen uint64, env inboundEnvelope, data []byte, sub *Call) {
	msg := restoreUserID(data, sub)
	if msg == nil {
		return
	}
	c.emit(Event{Type: EventMessage, Message: msg})

	switch {
	case env.Type == "ledgerClosed":
		c.handleLedgerClosed(gen, env, msg)
	case env.Type == "path_find":
		c.emit(Event{Type: EventPath, Message: msg})
	case env.Type == "transaction":
		c.emit(Event{Type: EventTransaction, Message: msg})
	case env.ValidationPublicKey != "":
		c.emitValidation(env, msg)
	case sub != nil:
		c.dispatchByRequest(env, msg, sub)
	}
}

// dispatchByRequest routes a typeless follow-up by the subscription's own
// command and streams: path_find traffic goes to path, a subscribe that
// includes the ledger stream goes to ledger regardless of other streams.
func (c *Client) dispatchByRequest(env inboundEnvelope, msg map[string]interface{}, sub *Call) {
	cmd, _ := sub.request["command"].(string)
	switch cmd {
	case "path_find":
		c.emit(Event{Type: EventPath, Message: msg})
	case "subscribe":
		if requestStreamsContain(sub.request, "ledger") {
			c.emit(Event{Type: EventLedger, Ledger: &LedgerClosed{
				LedgerIndex:      env.LedgerIndex,
				ValidatedLedgers: env.ValidatedLedgers,
			}, Message: msg, Endpoint: c.currentEndpoint()})
		}
	}
}

func requestStreamsContain(req map[string]interface{}, name string) bool {
	switch v := req["streams"].(type) {
	case []interface{}:
		for _, s := range v {
			if str, ok := s.(string); ok && str == name {
				return true
			}
		}
	case []string:
		for _, s := range v {
			if s == name {
				return true
			}
		}
	}
	return false
}

// handleLedgerClosed updates the health view from a ledger close, emits
// the ledger event, re-arms the watchdog, and piggy-backs a server_info
// probe. The first ledger on a fresh uplink also marks it online.
func (c *Client) handleLedgerClosed(gen uint64, env inboundEnvelope, msg map[string]interface{}) {
	now := time.Now()
	ledger := &LedgerClosed{
		LedgerIndex:      env.LedgerIndex,
		ValidatedLedgers: env.ValidatedLedgers,
		TxnCount:         env.TxnCount,
	}

	c.mu.Lock()
	if env.ValidatedLedgers != "" {
		c.state.validatedLedgers = env.ValidatedLedgers
	}
	if env.ReserveBase != nil {
		base := *env.ReserveBase / dropsPerXRP
		c.state.reserveBase = &base
		ledger.ReserveBase = base
	}
	if env.ReserveInc != nil {
		inc := *env.ReserveInc / dropsPerXRP
		c.state.reserveInc = &inc
		ledger.ReserveInc = inc
	}
	if env.LedgerIndex != 0 {
		c.state.lastLedgerIndex = env.LedgerIndex
		c.state.lastLedgerAt = now
	}
	endpoint := c.endpoints.Current()
	c.mu.Unlock()

	c.counter(func(m *observability.Metrics) { m.LedgersClosedTotal.Inc() })

	c.goOnline(gen)
	c.armLiveness()
	c.emit(Event{Type: EventLedger, Ledger: ledger, Message: msg, Endpoint: endpoint})
	c.sendServerInfoProbe()
	c.notifyReadyWaiters()
}

// emitValidation surfaces a validation message, annotated with the parsed
// key type when the public key decodes.
func (c *Client) emitValidation(env inboundEnvelope, msg map[string]interface{}) {
	keyType := ""
	if key, err := xrpladdr.ParseNodePublicKey(env.ValidationPublicKey); err == nil {
		keyType = key.KeyType
	}
	c.emit(Event{Type: EventValidation, Message: msg, KeyType: keyType})
}
