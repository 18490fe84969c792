package xrpl

import "sort"

// callRegistry tracks outstanding calls. A call lives in exactly one of the
// two maps: pending holds one-shot calls until they are settled,
// subscriptions holds replayable calls until an unsubscribe acknowledgement
// or a hard close removes them. Internal probes are never inserted.
type callRegistry struct {
	nextID        uint64
	pending       map[uint64]*Call
	subscriptions map[uint64]*Call
}

func newCallRegistry() *callRegistry {
	return &callRegistry{
		pending:       make(map[uint64]*Call),
		subscriptions: make(map[uint64]*Call),
	}
}

// allocate returns the next internal call id. Ids are strictly increasing
// for the lifetime of the client instance. Caller must hold the client lock.
func (r *callRegistry) allocate() uint64 {
	r.nextID++
	return r.nextID
}

func (r *callRegistry) insert(call *Call) {
	if call.kind == Subscription {
		r.subscriptions[call.internalID] = call
		return
	}
	r.pending[call.internalID] = call
}

func (r *callRegistry) pendingByID(id uint64) *Call {
	return r.pending[id]
}

func (r *callRegistry) subscriptionByID(id uint64) *Call {
	return r.subscriptions[id]
}

func (r *callRegistry) removePending(id uint64) {
	delete(r.pending, id)
}

func (r *callRegistry) removeSubscription(id uint64) {
	delete(r.subscriptions, id)
}

// snapshotForFlush returns the calls to transmit after going online:
// pending one-shots first, then subscriptions, each in send order.
func (r *callRegistry) snapshotForFlush() (pending, subs []*Call) {
	pending = make([]*Call, 0, len(r.pending))
	for _, call := range r.pending {
		pending = append(pending, call)
	}
	subs = make([]*Call, 0, len(r.subscriptions))
	for _, call := range r.subscriptions {
		subs = append(subs, call)
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].internalID < pending[j].internalID })
	sort.Slice(subs, func(i, j int) bool { return subs[i].internalID < subs[j].internalID })
	return pending, subs
}

// drainAll empties both maps and returns every outstanding call, used by
// hard close to reject them in one sweep.
func (r *callRegistry) drainAll() []*Call {
	calls := make([]*Call, 0, len(r.pending)+len(r.subscriptions))
	for id, call := range r.pending {
		calls = append(calls, call)
		delete(r.pending, id)
	}
	for id, call := range r.subscriptions {
		calls = append(calls, call)
		delete(r.subscriptions, id)
	}
	sort.Slice(calls, func(i, j int) bool { return calls[i].internalID < calls[j].internalID })
	return calls
}

func (r *callRegistry) pendingCount() int {
	return len(r.pending)
}

func (r *callRegistry) subscriptionCount() int {
	return len(r.subscriptions)
}
