package services

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Subset of the MintEscrow contract ABI the bridge uses.
const escrowABI = `[
  {"type":"function","name":"submitIntent","stateMutability":"nonpayable",
   "inputs":[{"name":"amount","type":"uint256"},{"name":"countryCode","type":"bytes32"},{"name":"txRef","type":"bytes32"}],
   "outputs":[{"name":"intentId","type":"bytes32"}]},
  {"type":"function","name":"getIntent","stateMutability":"view",
   "inputs":[{"name":"intentId","type":"bytes32"}],
   "outputs":[{"name":"","type":"tuple","components":[
     {"name":"user","type":"address"},
     {"name":"amount","type":"uint256"},
     {"name":"countryCode","type":"bytes32"},
     {"name":"txRef","type":"bytes32"},
     {"name":"timestamp","type":"uint256"},
     {"name":"status","type":"uint8"}]}]},
  {"type":"function","name":"executeMint","stateMutability":"nonpayable",
   "inputs":[{"name":"intentId","type":"bytes32"}],"outputs":[]}
]`

// MintIntent mirrors the escrow contract's intent record.
type MintIntent struct {
	User        common.Address
	Amount      *big.Int
	CountryCode [32]byte
	TxRef       [32]byte
	Timestamp   *big.Int
	Status      uint8
}

// EscrowConfig holds the chain connection and signer settings.
type EscrowConfig struct {
	RPCURL          string
	ContractAddress string
	PrivateKey      string
	ChainID         int64
	CountryCode     string
}

// EscrowService submits and executes mint intents against the on-chain
// escrow contract.
type EscrowService struct {
	client      *ethclient.Client
	contract    *bind.BoundContract
	opts        *bind.TransactOpts
	countryCode [32]byte
}

// NewEscrowService dials the RPC endpoint and prepares a signing transactor.
func NewEscrowService(cfg EscrowConfig) (*EscrowService, error) {
	if cfg.PrivateKey == "" {
		return nil, fmt.Errorf("escrow: missing private key")
	}

	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("escrow: dial rpc: %w", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("escrow: parse private key: %w", err)
	}

	opts, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(cfg.ChainID))
	if err != nil {
		return nil, fmt.Errorf("escrow: build transactor: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(escrowABI))
	if err != nil {
		return nil, fmt.Errorf("escrow: parse abi: %w", err)
	}

	contract := bind.NewBoundContract(common.HexToAddress(cfg.ContractAddress), parsed, client, client, client)

	return &EscrowService{
		client:      client,
		contract:    contract,
		opts:        opts,
		countryCode: toBytes32(cfg.CountryCode),
	}, nil
}

// SubmitIntent registers a mint intent for the given amount with the M-Pesa
// receipt as the off-chain reference. Returns the submission tx hash.
func (s *EscrowService) SubmitIntent(ctx context.Context, amount float64, txRef string) (string, error) {
	opts := *s.opts
	opts.Context = ctx

	tx, err := s.contract.Transact(&opts, "submitIntent", amountToWei(amount), s.countryCode, toBytes32(txRef))
	if err != nil {
		return "", fmt.Errorf("escrow: submitIntent: %w", err)
	}

	return tx.Hash().Hex(), nil
}

// GetIntent reads an intent record by its id.
func (s *EscrowService) GetIntent(ctx context.Context, intentID string) (*MintIntent, error) {
	var out []interface{}
	err := s.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getIntent", intentIDToBytes32(intentID))
	if err != nil {
		return nil, fmt.Errorf("escrow: getIntent: %w", err)
	}

	intent := *abi.ConvertType(out[0], new(MintIntent)).(*MintIntent)
	return &intent, nil
}

// ExecuteMint performs the privileged mint for a pending intent. Returns
// the execution tx hash.
func (s *EscrowService) ExecuteMint(ctx context.Context, intentID string) (string, error) {
	opts := *s.opts
	opts.Context = ctx

	tx, err := s.contract.Transact(&opts, "executeMint", intentIDToBytes32(intentID))
	if err != nil {
		return "", fmt.Errorf("escrow: executeMint: %w", err)
	}

	return tx.Hash().Hex(), nil
}

// amountToWei scales a stablecoin amount to 18 decimals.
func amountToWei(amount float64) *big.Int {
	wei, _ := new(big.Float).Mul(big.NewFloat(amount), big.NewFloat(1e18)).Int(nil)
	return wei
}

// toBytes32 right-pads a short string into a bytes32 value, truncating
// anything past 32 bytes.
func toBytes32(s string) [32]byte {
	var out [32]byte
	copy(out[:], s)
	return out
}

// intentIDToBytes32 accepts either a 0x-prefixed 32-byte hex id or a plain
// string reference.
func intentIDToBytes32(id string) [32]byte {
	if strings.HasPrefix(id, "0x") && len(id) == 66 {
		return common.HexToHash(id)
	}
	return toBytes32(id)
}
