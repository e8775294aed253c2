package contract

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client is the shared JSON-RPC connection used by every contract call.
type Client struct {
	*ethclient.Client
}

// Dial connects to the chain's JSON-RPC endpoint.
func Dial(ctx context.Context, rpcURL string) (*Client, error) {
	c, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc: %w", err)
	}
	return &Client{Client: c}, nil
}

// Ping checks that the node answers.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.ChainID(ctx); err != nil {
		return fmt.Errorf("rpc chain id: %w", err)
	}
	return nil
}

// Signer holds the key used for write calls.
type Signer struct {
	Opts    *bind.TransactOpts
	Address common.Address
}

// NewSigner parses a hex private key into transact options for chainID.
func NewSigner(hexKey string, chainID int64) (*Signer, error) {
	key, err := parseKey(hexKey)
	if err != nil {
		return nil, err
	}

	opts, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(chainID))
	if err != nil {
		return nil, fmt.Errorf("build transactor: %w", err)
	}

	return &Signer{
		Opts:    opts,
		Address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

func parseKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		// the underlying error can echo key material
		return nil, fmt.Errorf("invalid signer private key")
	}
	return key, nil
}
