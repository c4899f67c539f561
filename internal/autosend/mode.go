package autosend

import (
	"context"
	"os"
	"strconv"
	"strings"
)

type Mode string

const (
	ModeConfidenceGated Mode = "confidence_gated"
	ModeLegacyAlwaysOn  Mode = "legacy_always_on"
	ModeDisabled        Mode = "disabled"
)

// ResolveMode picks the behavioral path for sc. First match wins and the kill
// switch always wins.
func ResolveMode(sc SendContext, killSwitch bool) Mode {
	if killSwitch {
		return ModeDisabled
	}
	if sc.Campaign != nil {
		if sc.Campaign.Mode == AutomationFullAuto {
			return ModeConfidenceGated
		}
		return ModeDisabled
	}
	if sc.LegacyAutoReply {
		return ModeLegacyAlwaysOn
	}
	return ModeDisabled
}

// KillSwitch is consulted once at the start of every decision.
type KillSwitch interface {
	Engaged(ctx context.Context) bool
}

// StaticKillSwitch is a fixed value, mostly for tests and one-shot CLI runs.
type StaticKillSwitch bool

func (s StaticKillSwitch) Engaged(context.Context) bool { return bool(s) }

// EnvKillSwitch combines a configured value with an environment variable that
// is re-read on every call, so flipping the variable takes effect on the next
// decision without a restart.
type EnvKillSwitch struct {
	Configured bool
	Var        string
	lookup     func(string) (string, bool)
}

func NewEnvKillSwitch(configured bool, envVar string) *EnvKillSwitch {
	return &EnvKillSwitch{Configured: configured, Var: envVar, lookup: os.LookupEnv}
}

func (s *EnvKillSwitch) Engaged(context.Context) bool {
	if s.Configured {
		return true
	}
	if s.Var == "" {
		return false
	}
	lookup := s.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	raw, ok := lookup(s.Var)
	if !ok {
		return false
	}
	on, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && on
}
