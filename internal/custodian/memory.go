// Package custodian provides the external token ledgers the exchange moves
// funds against: an in-process token for development and tests, and an ERC20
// contract reached over JSON-RPC.
package custodian

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/socialbet/internal/domain"
)

var (
	ErrBalance   = errors.New("custodian: transfer amount exceeds balance")
	ErrAllowance = errors.New("custodian: transfer amount exceeds allowance")
)

// Memory is an in-process fungible token. Exchange funds are held under the
// account returned by Address.
type Memory struct {
	mu         sync.Mutex
	self       common.Address
	balances   map[common.Address]uint64
	allowances map[common.Address]map[common.Address]uint64
}

// NewMemory returns a token whose exchange account is self.
func NewMemory(self common.Address) *Memory {
	return &Memory{
		self:       self,
		balances:   make(map[common.Address]uint64),
		allowances: make(map[common.Address]map[common.Address]uint64),
	}
}

var _ domain.Custodian = (*Memory)(nil)

func (m *Memory) Address() common.Address { return m.self }

// Mint credits amount to owner. Development faucet only.
func (m *Memory) Mint(owner common.Address, amount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[owner] += amount
}

// Burn removes up to amount from owner.
func (m *Memory) Burn(owner common.Address, amount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[owner] -= min(amount, m.balances[owner])
}

// Approve sets the allowance spender may pull from owner.
func (m *Memory) Approve(owner, spender common.Address, amount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.allowances[owner] == nil {
		m.allowances[owner] = make(map[common.Address]uint64)
	}
	m.allowances[owner][spender] = amount
}

func (m *Memory) BalanceOf(_ context.Context, owner common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[owner], nil
}

func (m *Memory) Allowance(_ context.Context, owner, spender common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allowances[owner][spender], nil
}

func (m *Memory) Transfer(_ context.Context, to common.Address, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.move(m.self, to, amount)
}

func (m *Memory) TransferFrom(_ context.Context, from common.Address, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.allowances[from][m.self] < amount {
		return fmt.Errorf("%w: %s", ErrAllowance, from.Hex())
	}
	if err := m.move(from, m.self, amount); err != nil {
		return err
	}
	m.allowances[from][m.self] -= amount
	return nil
}

func (m *Memory) move(from, to common.Address, amount uint64) error {
	if m.balances[from] < amount {
		return fmt.Errorf("%w: %s", ErrBalance, from.Hex())
	}
	m.balances[from] -= amount
	m.balances[to] += amount
	return nil
}
