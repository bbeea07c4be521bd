package exchange

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/alanyoungcy/socialbet/internal/custodian"
	"github.com/alanyoungcy/socialbet/internal/domain"
)

func TestAddRemoveAdmin(t *testing.T) {
	f := newFixture(t, FundingLedger)
	require.True(t, f.x.IsAdmin(owner))
	require.True(t, f.x.IsAdmin(admin))
	require.False(t, f.x.IsAdmin(alice))

	require.NoError(t, f.x.RemoveAdmin(f.ctx, owner, admin))
	require.False(t, f.x.IsAdmin(admin))

	// Removing a non-admin is a no-op.
	require.NoError(t, f.x.RemoveAdmin(f.ctx, owner, alice))
}

func TestAdminMutationsRequireOwner(t *testing.T) {
	f := newFixture(t, FundingLedger)
	requireKind(t, f.x.AddAdmin(f.ctx, admin, alice), domain.ErrPermissionDenied, "sender is not owner")
	requireKind(t, f.x.RemoveAdmin(f.ctx, alice, admin), domain.ErrPermissionDenied, "sender is not owner")
	require.False(t, f.x.IsAdmin(alice))
	require.True(t, f.x.IsAdmin(admin))
}

func TestOwnerCannotBeRemoved(t *testing.T) {
	f := newFixture(t, FundingLedger)
	requireKind(t, f.x.RemoveAdmin(f.ctx, owner, owner), domain.ErrPermissionDenied,
		"owner cannot be removed from admins")
	require.True(t, f.x.IsAdmin(owner))
}

func TestAdminRequiredForEvents(t *testing.T) {
	f := newFixture(t, FundingLedger)
	_, err := f.x.AddEvent(f.ctx, alice, hash, f.clock.now, []domain.MarketType{0}, [][]byte{nil})
	requireKind(t, err, domain.ErrPermissionDenied, "sender is not an admin")
	requireKind(t, f.x.CancelEvent(f.ctx, alice, 1), domain.ErrPermissionDenied, "sender is not an admin")
}

// adminModel drives random admin mutations from random callers and checks
// the admin set against a plain map.
type adminModel struct {
	x      *Exchange
	model  map[common.Address]bool
	actors []common.Address
}

func (m *adminModel) Init(t *rapid.T) {
	m.x = New(testParams(FundingLedger), custodian.NewMemory(vault), nil, nil, discardLogger())
	m.model = map[common.Address]bool{owner: true}
	m.actors = []common.Address{owner, admin, alice, bob}
}

func (m *adminModel) actor(t *rapid.T, label string) common.Address {
	return m.actors[rapid.IntRange(0, len(m.actors)-1).Draw(t, label).(int)]
}

func (m *adminModel) Add(t *rapid.T) {
	caller, target := m.actor(t, "caller"), m.actor(t, "target")
	err := m.x.AddAdmin(context.Background(), caller, target)
	if caller != owner {
		require.ErrorIs(t, err, domain.ErrPermissionDenied)
		return
	}
	require.NoError(t, err)
	m.model[target] = true
}

func (m *adminModel) Remove(t *rapid.T) {
	caller, target := m.actor(t, "caller"), m.actor(t, "target")
	err := m.x.RemoveAdmin(context.Background(), caller, target)
	if caller != owner || target == owner {
		require.ErrorIs(t, err, domain.ErrPermissionDenied)
		return
	}
	require.NoError(t, err)
	delete(m.model, target)
}

func (m *adminModel) Check(t *rapid.T) {
	require.True(t, m.x.IsAdmin(owner))
	for _, a := range m.actors {
		require.Equal(t, m.model[a], m.x.IsAdmin(a), a.Hex())
	}
}

func TestAdminSetProperty(t *testing.T) {
	rapid.Check(t, rapid.Run(&adminModel{}))
}
