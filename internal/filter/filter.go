// Package filter decides whether a contact may be acted on in the current run.
package filter

import (
	"time"

	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/domain"
)

const DefaultCooldownDays = 30

type Flow int

const (
	FlowWish Flow = iota
	FlowReply
)

func (f Flow) String() string {
	if f == FlowReply {
		return "reply"
	}
	return "wish"
}

type Rules struct {
	Whitelist    []string
	Blacklist    []string
	CooldownDays int
	Location     *time.Location
	// DryRun is the mode of the run deciding. Dry-run records only block
	// other dry runs.
	DryRun bool
}

type Decision struct {
	Admit  bool
	Reason domain.SkipReason
}

type Filter struct {
	white        map[string]struct{}
	black        map[string]struct{}
	cooldownDays int
	loc          *time.Location
	dryRun       bool
}

func New(r Rules) *Filter {
	f := &Filter{
		white:        toSet(r.Whitelist),
		black:        toSet(r.Blacklist),
		cooldownDays: r.CooldownDays,
		loc:          r.Location,
		dryRun:       r.DryRun,
	}
	if f.cooldownDays <= 0 {
		f.cooldownDays = DefaultCooldownDays
	}
	if f.loc == nil {
		f.loc = time.Local
	}
	return f
}

// Decide applies, in order: blacklist, whitelist, reply cooldown, wished today.
// history is the contact's recent records. Live records block every run;
// dry-run records block dry runs only.
func (f *Filter) Decide(c domain.Contact, flow Flow, history []domain.ActionRecord, now time.Time) Decision {
	if _, ok := f.black[c.ID]; ok {
		return Decision{Reason: domain.ReasonBlacklisted}
	}
	if len(f.white) > 0 {
		if _, ok := f.white[c.ID]; !ok {
			return Decision{Reason: domain.ReasonNotWhitelisted}
		}
	}

	for _, rec := range history {
		if rec.Contact != c.ID || (rec.DryRun && !f.dryRun) {
			continue
		}
		switch {
		case flow == FlowReply && rec.Kind == domain.ActionReplySent:
			if wholeDays(rec.CreatedAt, now) < f.cooldownDays {
				return Decision{Reason: domain.ReasonCooldownActive}
			}
		case flow == FlowWish && rec.Kind == domain.ActionWishSent:
			if sameDay(rec.CreatedAt.In(f.loc), now.In(f.loc)) {
				return Decision{Reason: domain.ReasonAlreadyWishedToday}
			}
		}
	}
	return Decision{Admit: true}
}

// Since returns the earliest timestamp that can influence a decision for flow,
// so callers can bound their history lookup.
func (f *Filter) Since(flow Flow, now time.Time) time.Time {
	if flow == FlowReply {
		return now.Add(-time.Duration(f.cooldownDays) * 24 * time.Hour)
	}
	local := now.In(f.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, f.loc)
}

func (f *Filter) CooldownDays() int { return f.cooldownDays }

func wholeDays(from, to time.Time) int {
	return int(to.Sub(from) / (24 * time.Hour))
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func toSet(ids []string) map[string]struct{} {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			m[id] = struct{}{}
		}
	}
	return m
}
