package contract

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/mintdesk/mintdesk/internal/model"
)

// NFT is a binding to one deployed NFT contract.
type NFT struct {
	address  common.Address
	contract *bind.BoundContract
	opts     *bind.TransactOpts
	waiter   bind.DeployBackend
}

// Option configures an NFT binding.
type Option func(*NFT)

// WithSigner enables Mint using the given transact options.
func WithSigner(opts *bind.TransactOpts) Option {
	return func(n *NFT) {
		n.opts = opts
	}
}

// WithReceiptWait makes Mint block until the transaction is mined and
// report reverted receipts as ErrReverted.
func WithReceiptWait(backend bind.DeployBackend) Option {
	return func(n *NFT) {
		n.waiter = backend
	}
}

// NewNFT binds to the contract at address.
// transactor may be nil for a read-only binding.
func NewNFT(address common.Address, caller bind.ContractCaller, transactor bind.ContractTransactor, opts ...Option) (*NFT, error) {
	parsed, err := abi.JSON(strings.NewReader(NFTABI))
	if err != nil {
		return nil, fmt.Errorf("parse nft abi: %w", err)
	}

	n := &NFT{
		address:  address,
		contract: bind.NewBoundContract(address, parsed, caller, transactor, nil),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Address returns the contract address.
func (n *NFT) Address() common.Address {
	return n.address
}

// CanMint reports whether a signer is configured.
func (n *NFT) CanMint() bool {
	return n.opts != nil
}

// TokensOfOwner returns the ids owned by owner in contract order.
func (n *NFT) TokensOfOwner(ctx context.Context, owner model.Address) ([]*big.Int, error) {
	if !common.IsHexAddress(owner.String()) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, owner)
	}

	var out []interface{}
	err := n.contract.Call(&bind.CallOpts{Context: ctx}, &out, "tokensOfOwner", common.HexToAddress(owner.String()))
	if err != nil {
		return nil, fmt.Errorf("tokensOfOwner: %w", err)
	}
	if len(out) == 0 {
		return nil, nil
	}

	ids, ok := out[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("tokensOfOwner: %w: %T", ErrUnexpectedOutput, out[0])
	}
	return ids, nil
}

// TokenURI returns the metadata string for tokenID.
func (n *NFT) TokenURI(ctx context.Context, tokenID *big.Int) (string, error) {
	var out []interface{}
	err := n.contract.Call(&bind.CallOpts{Context: ctx}, &out, "tokenURI", tokenID)
	if err != nil {
		return "", fmt.Errorf("tokenURI(%s): %w", tokenID, err)
	}
	if len(out) == 0 {
		return "", fmt.Errorf("tokenURI(%s): %w: empty", tokenID, ErrUnexpectedOutput)
	}

	uri, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("tokenURI(%s): %w: %T", tokenID, ErrUnexpectedOutput, out[0])
	}
	return uri, nil
}

// Mint sends mint(to) and returns the transaction hash.
func (n *NFT) Mint(ctx context.Context, to model.Address) (string, error) {
	if n.opts == nil {
		return "", ErrNoSigner
	}
	if !common.IsHexAddress(to.String()) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, to)
	}

	opts := *n.opts
	opts.Context = ctx

	tx, err := n.contract.Transact(&opts, "mint", common.HexToAddress(to.String()))
	if err != nil {
		return "", fmt.Errorf("mint: %w", err)
	}
	if tx == nil {
		return "", nil
	}

	if n.waiter != nil {
		receipt, err := bind.WaitMined(ctx, n.waiter, tx)
		if err != nil {
			return "", fmt.Errorf("wait mined %s: %w", tx.Hash().Hex(), err)
		}
		if receipt.Status != types.ReceiptStatusSuccessful {
			return "", fmt.Errorf("%w: %s", ErrReverted, tx.Hash().Hex())
		}
	}

	return tx.Hash().Hex(), nil
}
