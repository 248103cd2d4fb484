// Copyright 2024-2026 Aiku AI

package gamefmt

import "fmt"

// DeathCause classifies what killed a player.
type DeathCause int

const (
	CauseBlock DeathCause = iota
	CausePlayer
	CauseEntity
	CauseFall
	CauseDrown
	CauseExplosion
	CauseSuicide
	CauseBleed
	CauseInternal
	CauseMechanical
	CauseReviveFailure
	CauseVoid
	CauseWeather
	CauseUnknown

	numCauses
)

// causeKeys maps each cause to its configuration key. The array length
// ties it to the enum so a new cause without a key fails to compile.
var causeKeys = [numCauses]string{
	CauseBlock:         "block",
	CausePlayer:        "player",
	CauseEntity:        "entity",
	CauseFall:          "fall",
	CauseDrown:         "drown",
	CauseExplosion:     "explosion",
	CauseSuicide:       "suicide",
	CauseBleed:         "bleed",
	CauseInternal:      "internal",
	CauseMechanical:    "mechanical",
	CauseReviveFailure: "revive_failure",
	CauseVoid:          "void",
	CauseWeather:       "weather",
	CauseUnknown:       "unknown",
}

// NoKiller is substituted for .Killer when the damage source has no
// attached entity.
const NoKiller = "null"

func (c DeathCause) String() string {
	if c < 0 || c >= numCauses {
		return fmt.Sprintf("cause(%d)", int(c))
	}
	return causeKeys[c]
}

// CauseKeys returns the configuration keys of every death cause in
// declaration order.
func CauseKeys() []string {
	return append([]string(nil), causeKeys[:]...)
}

// ParseDeathCause looks up a cause by its configuration key.
func ParseDeathCause(key string) (DeathCause, bool) {
	for i, k := range causeKeys {
		if k == key {
			return DeathCause(i), true
		}
	}
	return CauseUnknown, false
}

func (c DeathCause) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText maps unrecognised keys to CauseUnknown so that newer hosts
// can report causes this build does not know about.
func (c *DeathCause) UnmarshalText(text []byte) error {
	*c, _ = ParseDeathCause(string(text))
	return nil
}

// DamageSource describes what dealt the killing blow. Killer is the display
// name of the attacking entity, empty when there is none.
type DamageSource struct {
	Cause  DeathCause `json:"cause"`
	Killer string     `json:"killer,omitempty"`
}

// Death renders a death message. A nil source is treated as a suicide.
// Causes without their own template use the unknown template.
func (f *Formatter) Death(victim string, src *DamageSource) (string, error) {
	cause := CauseSuicide
	killer := NoKiller
	if src != nil {
		cause = src.Cause
		if src.Killer != "" {
			killer = src.Killer
		}
	}
	if cause < 0 || cause >= numCauses {
		cause = CauseUnknown
	}
	tpl := f.deaths[cause]
	if tpl == nil {
		tpl = f.deaths[CauseUnknown]
	}
	return render(tpl, Params{Victim: victim, Killer: killer})
}
