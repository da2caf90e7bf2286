package orchestrator

// Subscribe registers a listener for snapshots published on every change.
// Delivery never blocks: a listener whose buffer is full misses the snapshot.
// The returned cancel func unregisters the listener and closes its channel.
func (o *Orchestrator) Subscribe(buffer int) (<-chan Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Snapshot, buffer)

	o.subMu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	o.subMu.Unlock()

	cancel := func() {
		o.subMu.Lock()
		defer o.subMu.Unlock()
		if c, ok := o.subs[id]; ok {
			delete(o.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// publishLocked snapshots the state and fans it out. o.mu must be held so
// listeners observe changes in order.
func (o *Orchestrator) publishLocked() Snapshot {
	s := o.snapshotLocked()

	o.subMu.Lock()
	defer o.subMu.Unlock()
	for _, ch := range o.subs {
		select {
		case ch <- s:
		default:
			if o.hooks.OnDrop != nil {
				o.hooks.OnDrop()
			}
		}
	}
	return s
}
