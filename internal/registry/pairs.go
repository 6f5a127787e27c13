package registry

import "errors"

// Pair-chat errors. server/dispatch.go maps these to specific ERROR
// frames; they are never exposed to the peer as Go error text directly.
var (
	ErrSelfTarget      = errors.New("registry: cannot connect to yourself")
	ErrTargetNotFound  = errors.New("registry: target is not registered")
	ErrTargetGone      = errors.New("registry: target is no longer connected")
	ErrAlreadyPaired   = errors.New("registry: already connected to that target")
	ErrNoPartner       = errors.New("registry: no active chat partner")
	ErrPartnerGone     = errors.New("registry: chat partner is no longer connected")
)

// OpenPair opens a pair-chat between a and the peer registered under
// targetName. If a already has a partner, that pair is closed first and
// the ex-partner is notified; if the target already has a partner, that
// pair is closed too and its other member is told the chat ended. On success both partner back-references are
// set and each side receives an acknowledgment.
func (r *Registry) OpenPair(a Peer, targetName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if targetName == a.Name() {
		return ErrSelfTarget
	}
	b, ok := r.byName[targetName]
	if !ok {
		return ErrTargetNotFound
	}
	if _, stillConnected := r.byID[b.ID()]; !stillConnected {
		return ErrTargetGone
	}
	if existing, has := r.partner[a.ID()]; has && existing == b.ID() {
		return ErrAlreadyPaired
	}

	if existing, has := r.partner[a.ID()]; has {
		r.replacePairLocked(a, existing)
	}
	if existing, has := r.partner[b.ID()]; has {
		r.closePairLocked(b, existing)
	}

	r.partner[a.ID()] = b.ID()
	r.partner[b.ID()] = a.ID()

	a.Send("Connected to " + b.Name() + ". Send messages directly.")
	b.Send(a.Name() + " connected to you. Send messages directly.")
	return nil
}

// ClosePair closes a's pair-chat, if any, notifying the ex-partner.
func (r *Registry) ClosePair(a Peer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	partnerID, ok := r.partner[a.ID()]
	if !ok {
		return ErrNoPartner
	}
	r.closePairLocked(a, partnerID)
	a.Send("Chat disconnected.")
	return nil
}

// closePairLocked clears both back-references and notifies the partner
// that the chat ended. Callers hold r.mu.
func (r *Registry) closePairLocked(a Peer, partnerID string) {
	delete(r.partner, a.ID())
	delete(r.partner, partnerID)
	if p, ok := r.byID[partnerID]; ok {
		p.Send("[System] " + a.Name() + " ended the chat.")
	}
}

// replacePairLocked is used by OpenPair's "new pair replaces the old one"
// path, where the ex-partner is told a new chat started rather than that
// the old one simply ended.
func (r *Registry) replacePairLocked(a Peer, partnerID string) {
	delete(r.partner, a.ID())
	delete(r.partner, partnerID)
	if p, ok := r.byID[partnerID]; ok {
		p.Send("[System] " + a.Name() + " ended the chat to start a new one. " + a.Name() + " is now chatting with someone else.")
	}
}

// disconnectPair is used from the Terminating sequence: a is gone, so
// there is no "Chat disconnected." acknowledgment to send back to it.
func (r *Registry) disconnectPair(a Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	partnerID, ok := r.partner[a.ID()]
	if !ok {
		return
	}
	delete(r.partner, a.ID())
	delete(r.partner, partnerID)
	if p, ok := r.byID[partnerID]; ok {
		p.Send("[System] " + a.Name() + " has disconnected.")
	}
}

// DisconnectPair is the exported Terminating-sequence entry point; see
// disconnectPair.
func (r *Registry) DisconnectPair(a Peer) {
	r.disconnectPair(a)
}

// Forward delivers text from a to its current partner as
// "[<a-name>]: <text>". If the partner has disconnected without the pair
// having been cleaned up yet, the pair is closed and ErrPartnerGone is
// returned.
func (r *Registry) Forward(a Peer, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	partnerID, ok := r.partner[a.ID()]
	if !ok {
		return ErrNoPartner
	}
	b, stillConnected := r.byID[partnerID]
	if !stillConnected {
		delete(r.partner, a.ID())
		delete(r.partner, partnerID)
		return ErrPartnerGone
	}
	b.Send("[" + a.Name() + "]: " + text)
	return nil
}

// PartnerName returns the name of a's current chat partner, if any.
func (r *Registry) PartnerName(a Peer) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.partner[a.ID()]
	if !ok {
		return "", false
	}
	p, ok := r.byID[id]
	if !ok {
		return "", false
	}
	return p.Name(), true
}
