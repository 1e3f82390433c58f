// Package signer produces signed x402 payment credentials for challenge
// accept terms. The EVM implementation signs an EIP-3009
// TransferWithAuthorization typed-data message and encodes the resulting
// payment payload the way x402 facilitators expect: base64 over JSON.
package signer

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"paywall-agent/internal/model"
)

// Scheme is the x402 payment scheme implemented by this signer.
const Scheme = "exact"

// x402Version is the payment payload version emitted in the credential.
const x402Version = 1

// Config holds the signing key and the EIP-712 domain settings for the
// settlement network.
type Config struct {
	// PrivateKey is the hex-encoded secp256k1 key, with or without 0x prefix.
	// Empty means no credential is configured: construction succeeds but
	// signing reports a configuration error, so unpaid fetches still work.
	PrivateKey string
	Network    string // network identifier carried in the payload
	ChainID    int64  // EIP-712 domain chain ID
	Asset      string // token contract address (EIP-712 verifying contract)
	AssetName  string // EIP-712 domain name, e.g. "USDC"
	AssetVer   string // EIP-712 domain version, e.g. "2"
}

// EVMSigner signs EIP-3009 transfer authorizations.
type EVMSigner struct {
	key     *ecdsa.PrivateKey
	address string
	cfg     Config
}

// New creates an EVMSigner. An invalid key is rejected here; an absent key is
// deferred to signing time so credential-free deployments can still discover
// and fetch unpaid resources.
func New(cfg Config) (*EVMSigner, error) {
	s := &EVMSigner{cfg: cfg}

	if cfg.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			return nil, model.NewConfigError("signer", fmt.Sprintf("invalid X402_PRIVATE_KEY: %v", err))
		}
		s.key = key
		s.address = crypto.PubkeyToAddress(key.PublicKey).Hex()
	}

	return s, nil
}

// Address returns the signing account address, or empty when no key is
// configured.
func (s *EVMSigner) Address() string {
	return s.address
}

// authorization is the EIP-3009 message carried inside the payment payload.
type authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// paymentPayload is the x402 credential wire shape, serialized to JSON and
// base64-encoded into the payment header.
type paymentPayload struct {
	X402Version int            `json:"x402Version"`
	Scheme      string         `json:"scheme"`
	Network     string         `json:"network"`
	Payload     payloadDetails `json:"payload"`
}

type payloadDetails struct {
	Signature     string        `json:"signature"`
	Authorization authorization `json:"authorization"`
}

// SignPayment signs the accept term and returns the encoded credential.
// The validity window is [now, now+maxTimeoutSeconds), defaulting to 300
// seconds when the term omits a timeout. A missing key is a configuration
// error (model.ErrConfig); the negotiator propagates it unmodified.
func (s *EVMSigner) SignPayment(ctx context.Context, term *model.AcceptTerm) (string, error) {
	const op = "sign"

	if s.key == nil {
		return "", model.NewConfigError(op, "X402_PRIVATE_KEY is not set")
	}
	if term.PayTo == "" {
		return "", model.NewValidationError(op, "payTo", "missing recipient")
	}
	if _, ok := new(big.Int).SetString(term.MaxAmountRequired, 10); !ok {
		return "", model.NewValidationError(op, "maxAmountRequired",
			fmt.Sprintf("%q is not a base-unit decimal", term.MaxAmountRequired))
	}

	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", model.NewInternalError(op, err)
	}

	validBefore := time.Now().Unix() + int64(term.Timeout())

	auth := authorization{
		From:        s.address,
		To:          term.PayTo,
		Value:       term.MaxAmountRequired,
		ValidAfter:  "0",
		ValidBefore: strconv.FormatInt(validBefore, 10),
		Nonce:       hexutil.Encode(nonce[:]),
	}

	// Providers may pin the asset contract per challenge; fall back to the
	// configured network default.
	asset := term.Asset
	if asset == "" {
		asset = s.cfg.Asset
	}

	sig, err := s.signAuthorization(auth, asset)
	if err != nil {
		return "", model.NewInternalError(op, err)
	}

	credential, err := json.Marshal(paymentPayload{
		X402Version: x402Version,
		Scheme:      Scheme,
		Network:     s.cfg.Network,
		Payload: payloadDetails{
			Signature:     sig,
			Authorization: auth,
		},
	})
	if err != nil {
		return "", model.NewInternalError(op, err)
	}

	return base64.StdEncoding.EncodeToString(credential), nil
}

// signAuthorization hashes the EIP-3009 typed data and signs it, returning
// the 65-byte signature with the Ethereum V offset applied.
func (s *EVMSigner) signAuthorization(auth authorization, asset string) (string, error) {
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TransferWithAuthorization": {
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              s.cfg.AssetName,
			Version:           s.cfg.AssetVer,
			ChainId:           math.NewHexOrDecimal256(s.cfg.ChainID),
			VerifyingContract: asset,
		},
		Message: apitypes.TypedDataMessage{
			"from":        auth.From,
			"to":          auth.To,
			"value":       auth.Value,
			"validAfter":  auth.ValidAfter,
			"validBefore": auth.ValidBefore,
			"nonce":       auth.Nonce,
		},
	}

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return "", fmt.Errorf("hashing typed data: %w", err)
	}

	sig, err := crypto.Sign(hash, s.key)
	if err != nil {
		return "", fmt.Errorf("signing: %w", err)
	}

	// Transform V from 0/1 to 27/28 per Ethereum convention.
	sig[64] += 27

	return hexutil.Encode(sig), nil
}
