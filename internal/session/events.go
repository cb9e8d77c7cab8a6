package session

import (
	"fmt"
	"time"

	"github.com/stemsi/exstem-engine/internal/model"
)

const (
	tabSwitchWarningTTL = 5 * time.Second
	defaultWarningTTL   = 3 * time.Second
)

// Reaction tells the client how to respond to a captured event.
type Reaction struct {
	Kind model.IntegrityEventKind `json:"type"`
	// Block asks the client to cancel the native action.
	Block bool `json:"block"`
	// ReenterFullscreen asks the client to restore fullscreen after WarningTTL.
	ReenterFullscreen bool          `json:"reenter_fullscreen"`
	Warning           string        `json:"warning"`
	WarningTTL        time.Duration `json:"-"`
}

// Ignored reports whether the event was dropped because its policy flag is off.
func (r Reaction) Ignored() bool {
	return r.Warning == ""
}

// RecordEvent captures an integrity event. It never changes state. Events
// whose policy flag is off are ignored and return a zero Reaction.
func (s *Session) RecordEvent(kind model.IntegrityEventKind, detail string) (Reaction, error) {
	if !kind.Valid() {
		return Reaction{}, fmt.Errorf("unknown integrity event %q", kind)
	}

	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return Reaction{}, ErrNotActive
	}
	if !s.view.AntiCheat.Enabled(kind) {
		s.mu.Unlock()
		return Reaction{}, nil
	}

	if detail == "" {
		detail = defaultDetail(kind)
	}
	s.integrity.SuspiciousActivities = append(s.integrity.SuspiciousActivities, model.IntegrityEvent{
		Kind:      kind,
		Timestamp: s.now(),
		Detail:    detail,
	})
	switch kind {
	case model.EventTabSwitch:
		s.integrity.TabSwitches++
	case model.EventFullscreenExit:
		s.integrity.FullscreenExits++
	}
	s.mu.Unlock()

	r := reactionFor(kind)
	s.log.Debug().Str("event", string(kind)).Msg("Integrity event captured")
	s.observer.OnWarning(r)
	return r, nil
}

func reactionFor(kind model.IntegrityEventKind) Reaction {
	switch kind {
	case model.EventTabSwitch:
		return Reaction{
			Kind:       kind,
			Warning:    "Peringatan: Perpindahan tab terdeteksi! Aktivitas ini akan dilaporkan.",
			WarningTTL: tabSwitchWarningTTL,
		}
	case model.EventFullscreenExit:
		return Reaction{
			Kind:              kind,
			ReenterFullscreen: true,
			Warning:           "Peringatan: Keluar dari mode layar penuh terdeteksi! Silakan kembali ke layar penuh.",
			WarningTTL:        defaultWarningTTL,
		}
	case model.EventCopyPaste:
		return Reaction{
			Kind:       kind,
			Block:      true,
			Warning:    "Peringatan: Salin/tempel tidak diizinkan selama ujian!",
			WarningTTL: defaultWarningTTL,
		}
	default:
		return Reaction{
			Kind:       kind,
			Block:      true,
			Warning:    "Peringatan: Klik kanan dinonaktifkan selama ujian!",
			WarningTTL: defaultWarningTTL,
		}
	}
}

func defaultDetail(kind model.IntegrityEventKind) string {
	switch kind {
	case model.EventTabSwitch:
		return "Tab switched or window minimized"
	case model.EventFullscreenExit:
		return "Exited fullscreen mode"
	case model.EventCopyPaste:
		return "Attempted to copy or paste content"
	default:
		return "Right-click detected"
	}
}
