package admission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatekeeper/model"
)

func TestRegistryAdmitAndResolve(t *testing.T) {
	r := NewRegistry()

	_, hadPrev := r.Admit(model.PendingMember{ChatID: "g1", MemberID: "u1", Answer: "1234"})
	assert.False(t, hadPrev)
	assert.Equal(t, 1, r.Len())

	entry, ok := r.Lookup("g1", "u1")
	require.True(t, ok)
	assert.Equal(t, "1234", entry.Answer)
	assert.Equal(t, 1, entry.Retries)

	resolved, ok := r.Resolve("g1", "u1")
	require.True(t, ok)
	assert.Equal(t, "1234", resolved.Answer)
	assert.Equal(t, 0, r.Len())

	_, ok = r.Resolve("g1", "u1")
	assert.False(t, ok)
}

func TestRegistryDoubleAdmitKeepsOneEntryAndRetries(t *testing.T) {
	r := NewRegistry()
	r.Admit(model.PendingMember{
		ChatID: "g1", MemberID: "u1", Retries: 3,
		Artifacts: model.JoinArtifacts{CaptchaMsgID: "old"},
	})

	superseded, hadPrev := r.Admit(model.PendingMember{
		ChatID: "g1", MemberID: "u1",
		Artifacts: model.JoinArtifacts{CaptchaMsgID: "new"},
	})

	assert.True(t, hadPrev)
	assert.Equal(t, "old", superseded.CaptchaMsgID)
	assert.Equal(t, 1, r.Len())

	entry, _ := r.Lookup("g1", "u1")
	assert.Equal(t, 3, entry.Retries)
	assert.Equal(t, "new", entry.Artifacts.CaptchaMsgID)
}

func TestRegistryEntriesAreIsolatedPerChat(t *testing.T) {
	r := NewRegistry()
	r.Admit(model.PendingMember{ChatID: "g1", MemberID: "u1"})
	r.Admit(model.PendingMember{ChatID: "g2", MemberID: "u1"})

	assert.Equal(t, 2, r.Len())
	r.Resolve("g1", "u1")
	_, ok := r.Lookup("g2", "u1")
	assert.True(t, ok)
}

func TestRegistryLookupReturnsCopy(t *testing.T) {
	r := NewRegistry()
	r.Admit(model.PendingMember{ChatID: "g1", MemberID: "u1", Answer: "1234"})

	entry, _ := r.Lookup("g1", "u1")
	entry.Answer = "mutated"

	fresh, _ := r.Lookup("g1", "u1")
	assert.Equal(t, "1234", fresh.Answer)
}

func TestRegistryUpdate(t *testing.T) {
	r := NewRegistry()
	r.Admit(model.PendingMember{ChatID: "g1", MemberID: "u1"})

	ok := r.Update("g1", "u1", func(p *model.PendingMember) { p.Kicked = true })
	assert.True(t, ok)
	entry, _ := r.Lookup("g1", "u1")
	assert.True(t, entry.Kicked)

	assert.False(t, r.Update("g1", "nobody", func(p *model.PendingMember) {}))
}

func TestRegistrySnapshotIsDetached(t *testing.T) {
	r := NewRegistry()
	r.Admit(model.PendingMember{ChatID: "g1", MemberID: "u1"})
	r.Admit(model.PendingMember{ChatID: "g1", MemberID: "u2"})

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	r.Resolve("g1", "u1")
	r.Resolve("g1", "u2")

	// The snapshot keeps its entries even after the table drains.
	assert.Len(t, snap, 2)
}

func TestPendingMemberDeadline(t *testing.T) {
	joined := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := model.PendingMember{JoinedAt: joined}
	assert.Equal(t, joined.Add(5*time.Minute), p.Deadline(5*time.Minute))
}
