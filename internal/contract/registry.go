package contract

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Registry maps deployed contract names to their addresses.
type Registry struct {
	contracts map[string]common.Address
}

// NewRegistry builds a registry from name -> hex address pairs.
func NewRegistry(deployments map[string]string) (*Registry, error) {
	contracts := make(map[string]common.Address, len(deployments))
	for name, addr := range deployments {
		name = strings.TrimSpace(name)
		addr = strings.TrimSpace(addr)
		if name == "" {
			return nil, fmt.Errorf("deployment %q: empty contract name", addr)
		}
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("deployment %s: %w: %q", name, ErrInvalidAddress, addr)
		}
		contracts[name] = common.HexToAddress(addr)
	}
	return &Registry{contracts: contracts}, nil
}

// Lookup returns the address a contract was deployed at.
func (r *Registry) Lookup(name string) (common.Address, error) {
	addr, ok := r.contracts[name]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s", ErrContractNotDeployed, name)
	}
	return addr, nil
}

// Names returns the registered contract names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.contracts))
	for name := range r.contracts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
