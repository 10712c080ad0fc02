package cardreset

import (
	"fmt"

	"go.uber.org/zap"
)

// Registry dispatches an attached flash to the first card profile whose
// fingerprint matches. Profiles are tried in the order given; put the
// cheaper checks first, correctness does not depend on it.
type Registry struct {
	profiles []*CardProfile
	log      *zap.Logger
}

// NewRegistry validates every profile up front so patch authoring mistakes
// fail at startup rather than halfway through an erase.
func NewRegistry(profiles []*CardProfile, log *zap.Logger) (*Registry, error) {
	if log == nil {
		log = zap.NewNop()
	}
	for _, p := range profiles {
		if p.Name == "" || p.Strategy == nil || p.IDRegion.Len == 0 {
			return nil, fmt.Errorf("incomplete profile %q", p.Name)
		}
		if v, ok := p.Strategy.(interface{ Validate() error }); ok {
			if err := v.Validate(); err != nil {
				return nil, fmt.Errorf("profile %s: %w", p.Name, err)
			}
		}
	}
	return &Registry{profiles: profiles, log: log}, nil
}

// DetectAndRun identifies the inserted card and runs its profile's strategy,
// bracketed by write-protect handling when the profile calls for it. The
// caller owns the session across invocations; see Strategy.
func (r *Registry) DetectAndRun(d Device, sess *Session) (*Session, error) {
	var match *CardProfile
	for _, p := range r.profiles {
		err := p.Match(d)
		if err == nil {
			match = p
			break
		}
		if CodeOf(err) != WrongCard {
			return sess, err // bus fault, not a verdict
		}
	}
	if match == nil {
		return sess, errf(WrongCard, "no profile matched")
	}
	r.log.Info("card detected", zap.String("profile", match.Name))

	// The fingerprint narrowed the card type; now confirm the chip itself
	// is the expected part before touching protect bits it may not have.
	if match.FlashID != nil {
		id, err := d.Identify()
		if err != nil {
			return sess, err
		}
		if id != *match.FlashID {
			return sess, errf(WrongFlashID, "flash ID %s, want %s", id, *match.FlashID)
		}
	}

	if sess != nil && !sess.BoundTo(match.Strategy) {
		// A session is open for a different profile's card.
		return nil, errf(DifferentCard, "open session belongs to another profile")
	}

	var prot *Protector
	if match.ProtectMask != 0 {
		cd, ok := d.(ConfigDevice)
		if !ok {
			return sess, fmt.Errorf("profile %s requires status/config register writes", match.Name)
		}
		prot = NewProtector(cd, match.ProtectMask, r.log)
		if err := prot.Lift(); err != nil {
			return sess, fmt.Errorf("lift write protection: %w", err)
		}
	}

	sess, err := match.Strategy.Execute(d, sess, r.log.With(zap.String("profile", match.Name)))

	if prot != nil {
		if rerr := prot.Restore(); rerr != nil {
			// The data work is over either way; a card left writable is
			// reported but does not change the outcome.
			r.log.Warn("could not restore write protection", zap.Error(rerr))
		}
	}
	return sess, err
}
