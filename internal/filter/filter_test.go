package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/domain"
)

var now = time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC)

func rec(contact string, kind domain.ActionKind, at time.Time) domain.ActionRecord {
	return domain.ActionRecord{Contact: contact, Kind: kind, CreatedAt: at}
}

func TestDecideOrder(t *testing.T) {
	alice := domain.Contact{ID: "alice"}
	bob := domain.Contact{ID: "bob"}

	tests := []struct {
		name    string
		rules   Rules
		contact domain.Contact
		flow    Flow
		history []domain.ActionRecord
		want    Decision
	}{
		{
			name:    "no rules admits",
			contact: alice,
			flow:    FlowWish,
			want:    Decision{Admit: true},
		},
		{
			name:    "blacklist wins over whitelist",
			rules:   Rules{Whitelist: []string{"alice"}, Blacklist: []string{"alice"}},
			contact: alice,
			flow:    FlowReply,
			want:    Decision{Reason: domain.ReasonBlacklisted},
		},
		{
			name:    "blacklist wins over cooldown",
			rules:   Rules{Blacklist: []string{"alice"}},
			contact: alice,
			flow:    FlowReply,
			history: []domain.ActionRecord{rec("alice", domain.ActionReplySent, now.Add(-time.Hour))},
			want:    Decision{Reason: domain.ReasonBlacklisted},
		},
		{
			name:    "outside whitelist",
			rules:   Rules{Whitelist: []string{"alice"}},
			contact: bob,
			flow:    FlowWish,
			want:    Decision{Reason: domain.ReasonNotWhitelisted},
		},
		{
			name:    "whitelist is case sensitive",
			rules:   Rules{Whitelist: []string{"Alice"}},
			contact: alice,
			flow:    FlowWish,
			want:    Decision{Reason: domain.ReasonNotWhitelisted},
		},
		{
			name:    "reply inside cooldown",
			contact: alice,
			flow:    FlowReply,
			history: []domain.ActionRecord{rec("alice", domain.ActionReplySent, now.Add(-29*24*time.Hour))},
			want:    Decision{Reason: domain.ReasonCooldownActive},
		},
		{
			name:    "reply after cooldown",
			contact: alice,
			flow:    FlowReply,
			history: []domain.ActionRecord{rec("alice", domain.ActionReplySent, now.Add(-30*24*time.Hour))},
			want:    Decision{Admit: true},
		},
		{
			name:    "custom cooldown",
			rules:   Rules{CooldownDays: 7},
			contact: alice,
			flow:    FlowReply,
			history: []domain.ActionRecord{rec("alice", domain.ActionReplySent, now.Add(-8*24*time.Hour))},
			want:    Decision{Admit: true},
		},
		{
			name:    "wish record does not trigger reply cooldown",
			contact: alice,
			flow:    FlowReply,
			history: []domain.ActionRecord{rec("alice", domain.ActionWishSent, now.Add(-time.Hour))},
			want:    Decision{Admit: true},
		},
		{
			name:    "already wished today",
			contact: alice,
			flow:    FlowWish,
			history: []domain.ActionRecord{rec("alice", domain.ActionWishSent, now.Add(-2*time.Hour))},
			want:    Decision{Reason: domain.ReasonAlreadyWishedToday},
		},
		{
			name:    "wished yesterday",
			contact: alice,
			flow:    FlowWish,
			history: []domain.ActionRecord{rec("alice", domain.ActionWishSent, now.Add(-10*time.Hour))},
			want:    Decision{Admit: true},
		},
		{
			name:    "reply record does not block wish",
			contact: alice,
			flow:    FlowWish,
			history: []domain.ActionRecord{rec("alice", domain.ActionReplySent, now.Add(-time.Hour))},
			want:    Decision{Admit: true},
		},
		{
			name:    "dry run record does not block live run",
			contact: alice,
			flow:    FlowWish,
			history: []domain.ActionRecord{{Contact: "alice", Kind: domain.ActionWishSent, DryRun: true, CreatedAt: now.Add(-time.Hour)}},
			want:    Decision{Admit: true},
		},
		{
			name:    "dry run record blocks dry run",
			rules:   Rules{DryRun: true},
			contact: alice,
			flow:    FlowWish,
			history: []domain.ActionRecord{{Contact: "alice", Kind: domain.ActionWishSent, DryRun: true, CreatedAt: now.Add(-time.Hour)}},
			want:    Decision{Reason: domain.ReasonAlreadyWishedToday},
		},
		{
			name:    "live record blocks dry run",
			rules:   Rules{DryRun: true},
			contact: alice,
			flow:    FlowWish,
			history: []domain.ActionRecord{rec("alice", domain.ActionWishSent, now.Add(-time.Hour))},
			want:    Decision{Reason: domain.ReasonAlreadyWishedToday},
		},
		{
			name:    "dry run reply inside cooldown blocks dry run",
			rules:   Rules{DryRun: true},
			contact: alice,
			flow:    FlowReply,
			history: []domain.ActionRecord{{Contact: "alice", Kind: domain.ActionReplySent, DryRun: true, CreatedAt: now.Add(-48 * time.Hour)}},
			want:    Decision{Reason: domain.ReasonCooldownActive},
		},
		{
			name:    "other contact's record ignored",
			contact: alice,
			flow:    FlowWish,
			history: []domain.ActionRecord{rec("bob", domain.ActionWishSent, now.Add(-time.Hour))},
			want:    Decision{Admit: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.rules.Location = time.UTC
			got := New(tt.rules).Decide(tt.contact, tt.flow, tt.history, now)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCalendarDayUsesLocation(t *testing.T) {
	// now is 02:00 on June 10 at UTC-7.
	la := time.FixedZone("UTC-7", -7*3600)
	f := New(Rules{Location: la})

	sameLocalDay := rec("alice", domain.ActionWishSent, now.Add(-1*time.Hour))
	assert.Equal(t, domain.ReasonAlreadyWishedToday, f.Decide(domain.Contact{ID: "alice"}, FlowWish, []domain.ActionRecord{sameLocalDay}, now).Reason)

	// 06:00 UTC is 23:00 of June 9 at UTC-7.
	previousLocalDay := rec("alice", domain.ActionWishSent, now.Add(-3*time.Hour))
	assert.True(t, f.Decide(domain.Contact{ID: "alice"}, FlowWish, []domain.ActionRecord{previousLocalDay}, now).Admit)
}

func TestSince(t *testing.T) {
	f := New(Rules{Location: time.UTC})
	assert.Equal(t, now.Add(-30*24*time.Hour), f.Since(FlowReply, now))
	assert.Equal(t, time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC), f.Since(FlowWish, now))
	assert.Equal(t, DefaultCooldownDays, f.CooldownDays())
}

func TestWhitelistRestrictsAdmittedSet(t *testing.T) {
	f := New(Rules{Whitelist: []string{"alice", "carol"}, Location: time.UTC})
	for _, id := range []string{"alice", "bob", "carol", "dave", ""} {
		d := f.Decide(domain.Contact{ID: id}, FlowWish, nil, now)
		if d.Admit {
			assert.Contains(t, []string{"alice", "carol"}, id)
		}
	}
}
