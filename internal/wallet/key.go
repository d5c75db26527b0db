package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// TxBackend is the node access a local key needs to sign and broadcast.
// *ethclient.Client satisfies it.
type TxBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// KeyProvider is a headless wallet holding one private key. It is always
// authorized and never emits change notifications.
type KeyProvider struct {
	key     *ecdsa.PrivateKey
	account common.Address
	backend TxBackend
}

func NewKeyProvider(hexKey string, backend TxBackend) (*KeyProvider, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, fmt.Errorf("empty private key")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &KeyProvider{
		key:     key,
		account: crypto.PubkeyToAddress(key.PublicKey),
		backend: backend,
	}, nil
}

// KeyProviderFromEnv reads the key from the named environment variable.
func KeyProviderFromEnv(name string, backend TxBackend) (*KeyProvider, error) {
	v := os.Getenv(name)
	if strings.TrimSpace(v) == "" {
		return nil, fmt.Errorf("%s is not set", name)
	}
	return NewKeyProvider(v, backend)
}

func (p *KeyProvider) Accounts(ctx context.Context) ([]common.Address, error) {
	return []common.Address{p.account}, nil
}

func (p *KeyProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	return []common.Address{p.account}, nil
}

func (p *KeyProvider) ChainID(ctx context.Context) (*big.Int, error) {
	return p.backend.ChainID(ctx)
}

func (p *KeyProvider) Signer(account common.Address) (Signer, error) {
	if account != p.account {
		return nil, fmt.Errorf("key holds %s, not %s", p.account.Hex(), account.Hex())
	}
	return &keySigner{p: p}, nil
}

func (p *KeyProvider) Events() <-chan Event { return nil }

type keySigner struct{ p *KeyProvider }

func (s *keySigner) Account() common.Address { return s.p.account }

func (s *keySigner) SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	b := s.p.backend
	chainID, err := b.ChainID(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain id: %w", err)
	}
	nonce, err := b.PendingNonceAt(ctx, s.p.account)
	if err != nil {
		return common.Hash{}, fmt.Errorf("nonce: %w", err)
	}
	price := req.GasPrice
	if price == nil {
		if price, err = b.SuggestGasPrice(ctx); err != nil {
			return common.Hash{}, fmt.Errorf("gas price: %w", err)
		}
	}
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	to := req.To
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: price,
		Gas:      req.Gas,
		To:       &to,
		Value:    value,
		Data:     req.Data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.p.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign: %w", err)
	}
	if err := b.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}
	return signed.Hash(), nil
}
