// Package contract is the contract-call layer for the deployed NFT contract.
// Reads go through eth_call, writes are signed locally and broadcast.
package contract

import (
	"context"
	"errors"
	"math/big"

	"github.com/mintdesk/mintdesk/internal/model"
)

// Contract layer errors.
var (
	ErrInvalidAddress      = errors.New("invalid address")
	ErrNoSigner            = errors.New("no signer configured")
	ErrReverted            = errors.New("transaction reverted")
	ErrContractNotDeployed = errors.New("contract not deployed")
	ErrUnexpectedOutput    = errors.New("unexpected contract output")
)

// Reader exposes the view calls of the NFT contract.
type Reader interface {
	TokensOfOwner(ctx context.Context, owner model.Address) ([]*big.Int, error)
	TokenURI(ctx context.Context, tokenID *big.Int) (string, error)
}

// Writer exposes the state-changing calls of the NFT contract.
// Mint returns the transaction hash, or "" when the call produced no result.
type Writer interface {
	Mint(ctx context.Context, to model.Address) (string, error)
}

// NFTABI is the subset of the NFT contract ABI this service calls.
const NFTABI = `[
	{
		"type": "function",
		"name": "tokensOfOwner",
		"stateMutability": "view",
		"inputs": [{"name": "owner", "type": "address"}],
		"outputs": [{"name": "", "type": "uint256[]"}]
	},
	{
		"type": "function",
		"name": "tokenURI",
		"stateMutability": "view",
		"inputs": [{"name": "tokenId", "type": "uint256"}],
		"outputs": [{"name": "", "type": "string"}]
	},
	{
		"type": "function",
		"name": "mint",
		"stateMutability": "nonpayable",
		"inputs": [{"name": "to", "type": "address"}],
		"outputs": []
	}
]`
