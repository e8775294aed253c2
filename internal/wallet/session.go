// Package wallet holds the connected account for the process.
package wallet

import (
	"errors"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mintdesk/mintdesk/internal/model"
)

// ErrInvalidAddress is returned by Connect for anything that is not a
// 20-byte hex address.
var ErrInvalidAddress = errors.New("invalid account address")

// Session tracks the connected account. The zero value is not usable; use
// NewSession.
type Session struct {
	mu          sync.RWMutex
	account     model.Address
	subscribers map[chan model.Address]struct{}
}

// NewSession creates a session, optionally connected to initial.
func NewSession(initial string) (*Session, error) {
	s := &Session{subscribers: make(map[chan model.Address]struct{})}
	if strings.TrimSpace(initial) == "" {
		return s, nil
	}
	addr, err := NormalizeAddress(initial)
	if err != nil {
		return nil, err
	}
	s.account = addr
	return s, nil
}

// Account returns the connected account and whether one is connected.
func (s *Session) Account() (model.Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account, s.account != ""
}

// Connect switches the session to addr. Subscribers are notified only when
// the account identity changes.
func (s *Session) Connect(addr string) (model.Address, error) {
	normalized, err := NormalizeAddress(addr)
	if err != nil {
		return "", err
	}
	s.set(normalized)
	return normalized, nil
}

// Disconnect clears the account.
func (s *Session) Disconnect() {
	s.set("")
}

// Subscribe returns a channel that receives the new account (empty when
// disconnected) after every change, and a function that cancels the
// subscription. Slow subscribers only ever see the latest value.
func (s *Session) Subscribe() (<-chan model.Address, func()) {
	ch := make(chan model.Address, 1)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, ch)
			s.mu.Unlock()
		})
	}
	return ch, cancel
}

func (s *Session) set(addr model.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.account == addr {
		return
	}
	s.account = addr

	for ch := range s.subscribers {
		// Drop a stale pending value so the latest one always lands.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- addr:
		default:
		}
	}
}

// NormalizeAddress validates addr as a 20-byte hex address and returns its
// checksummed form.
func NormalizeAddress(addr string) (model.Address, error) {
	addr = strings.TrimSpace(addr)
	if !common.IsHexAddress(addr) {
		return "", ErrInvalidAddress
	}
	return model.Address(common.HexToAddress(addr).Hex()), nil
}
