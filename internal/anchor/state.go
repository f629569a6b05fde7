package anchor

import (
	"time"

	"github.com/miekg/dns"
	"github.com/zhouchenh/trustDNS/internal/logger"
)

// missingRemovalFactor stretches the hold-down window before a Missing key
// is given up on. RFC 5011 only mandates the add/remove hold-down; keeping
// a vanished key around longer tolerates extended outages of the key
// publication point.
const missingRemovalFactor = 4

// Machine applies RFC 5011 state transitions to a key set. The clock is
// injectable so that timer arithmetic can be exercised deterministically.
type Machine struct {
	Keying   Keying
	HoldDown time.Duration
	Now      func() time.Time
}

func (m *Machine) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Present handles one key observed in a fresh response. It reports whether
// the key was recognized or newly accepted; a revoked key that matches
// nothing in the set is rejected and never tracked. When forceValid is set
// a previously unseen key becomes Valid immediately instead of waiting out
// the add hold-down; that is only sound for the very first key set.
func (m *Machine) Present(ks *KeySet, rr dns.RR, forceValid bool) bool {
	key, isKey := rr.(*dns.DNSKEY)
	if isKey && !m.Keying.IsKeySigningKey(key) {
		return false
	}
	revoked := isKey && m.Keying.IsRevoked(key)
	now := m.now()

	if ta, ok := ks.Find(m.Keying, rr); ok {
		// KeyPres: a missing key reappeared.
		if ta.State == StateMissing {
			ta.State = StateValid
			ta.clearTimer()
		}
		// RevBit: the revocation bit starts the remove hold-down.
		if (ta.State == StateValid || ta.State == StateMissing) && revoked {
			ta.State = StateRevoked
			ta.setTimer(now.Add(m.HoldDown))
		}
		// RemTime: remove hold-down expired.
		if ta.State == StateRevoked && ta.timerElapsed(now) {
			ta.State = StateRemoved
			ta.clearTimer()
		}
		// AddTime: add hold-down expired.
		if ta.State == StateAddPend && ta.timerElapsed(now) {
			ta.State = StateValid
			ta.clearTimer()
		}
		logTransition(ta)
		return true
	}

	if revoked {
		// An unknown revoked key can never become trusted.
		return false
	}

	// NewKey: start tracking.
	ta := &Anchor{RR: rr, KeyTag: m.Keying.KeyTag(rr)}
	if forceValid {
		ta.State = StateValid
	} else {
		ta.State = StateAddPend
		ta.setTimer(now.Add(m.HoldDown))
	}
	ks.add(ta)
	logTransition(ta)
	return true
}

// Missing handles one tracked anchor absent from a fresh response (KeyRem).
// It reports whether the anchor should be kept in the set.
func (m *Machine) Missing(ta *Anchor) bool {
	now := m.now()
	switch {
	case ta.State == StateValid:
		ta.State = StateMissing
		ta.setTimer(now.Add(m.HoldDown))
	case ta.State == StateAddPend:
		// A pending key that disappears is purged outright.
		logger.Info().Uint16("keytag", ta.KeyTag).Msg("purging key pending addition")
		return false
	case ta.State == StateMissing && m.missingWindowElapsed(ta, now):
		ta.State = StateRemoved
		ta.clearTimer()
		logTransition(ta)
		return false
	}
	logTransition(ta)
	return true
}

// missingWindowElapsed checks the stretched removal window. The stored
// timer marks one hold-down after the key first went missing, so the full
// window ends missingRemovalFactor-1 hold-downs later.
func (m *Machine) missingWindowElapsed(ta *Anchor, now time.Time) bool {
	if ta.Timer == nil {
		return false
	}
	deadline := ta.Timer.Add(time.Duration(missingRemovalFactor-1) * m.HoldDown)
	return !now.Before(deadline)
}

func logTransition(ta *Anchor) {
	event := logger.Debug()
	if ta.State != StateValid {
		event = logger.Info()
	}
	event.Uint16("keytag", ta.KeyTag).Stringer("state", ta.State).Msg("trust anchor key state")
}
