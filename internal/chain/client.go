// Package chain implements the ChainLogSource over a Polygon JSON-RPC
// endpoint using go-ethereum's ethclient.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/polymind/polymind/internal/decoder"
	"github.com/polymind/polymind/internal/domain"
)

// Default exchange contracts whose logs are indexed.
const (
	CTFExchange     = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"
	NegRiskExchange = "0xC5d563A36AE78145C45a50134d48A1215220f80a"
)

// Config holds connection parameters for the log source.
type Config struct {
	RPCURL       string
	Contracts    []string      // defaults to the CTF and NegRisk exchanges
	FetchTimeout time.Duration // per-call deadline; a blown deadline is a transient failure
}

// Client fetches raw logs for block ranges and resolves block timestamps.
// It is the sole ChainLogSource implementation.
type Client struct {
	eth       *ethclient.Client
	addresses []common.Address
	topics    [][]common.Hash
	timeout   time.Duration
	logger    *slog.Logger

	// headerTimes caches block timestamps for the current batch window.
	headerTimes map[uint64]time.Time
}

// Dial connects to the RPC endpoint and verifies connectivity.
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", cfg.RPCURL, err)
	}

	contracts := cfg.Contracts
	if len(contracts) == 0 {
		contracts = []string{CTFExchange, NegRiskExchange}
	}
	addresses := make([]common.Address, len(contracts))
	for i, c := range contracts {
		addresses[i] = common.HexToAddress(c)
	}

	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		eth:         eth,
		addresses:   addresses,
		topics:      [][]common.Hash{decoder.Topics()},
		timeout:     timeout,
		logger:      logger.With(slog.String("component", "chain")),
		headerTimes: make(map[uint64]time.Time),
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("chain: chain id: %w", err)
	}
	c.logger.Info("rpc connected", slog.String("chain_id", chainID.String()))

	return c, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// HeadBlock returns the current chain head.
func (c *Client) HeadBlock(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	head, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, classifyFetchErr(fmt.Errorf("chain: head block: %v", err), err)
	}
	return head, nil
}

// FetchLogs returns every recognized exchange log in [fromBlock, toBlock],
// annotated with block timestamps and ordered by (block, log index).
func (c *Client) FetchLogs(ctx context.Context, fromBlock, toBlock uint64) ([]domain.RawLog, error) {
	if fromBlock > toBlock {
		return nil, fmt.Errorf("chain: range [%d,%d]: %w", fromBlock, toBlock, domain.ErrInvalidRange)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: c.addresses,
		Topics:    c.topics,
	}

	logs, err := c.eth.FilterLogs(callCtx, query)
	if err != nil {
		return nil, classifyFetchErr(fmt.Errorf("chain: filter logs [%d,%d]: %v", fromBlock, toBlock, err), err)
	}

	// Drop timestamp cache entries from previous windows.
	for block := range c.headerTimes {
		if block < fromBlock {
			delete(c.headerTimes, block)
		}
	}

	out := make([]domain.RawLog, 0, len(logs))
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		ts, err := c.blockTime(ctx, lg.BlockNumber)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.RawLog{
			Address:   lg.Address,
			Topics:    lg.Topics,
			Data:      lg.Data,
			Block:     lg.BlockNumber,
			LogIndex:  lg.Index,
			TxHash:    lg.TxHash,
			Timestamp: ts,
		})
	}
	return out, nil
}

// blockTime resolves a block's timestamp, memoized per batch window.
func (c *Client) blockTime(ctx context.Context, block uint64) (time.Time, error) {
	if ts, ok := c.headerTimes[block]; ok {
		return ts, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	header, err := c.eth.HeaderByNumber(callCtx, new(big.Int).SetUint64(block))
	if err != nil {
		return time.Time{}, classifyFetchErr(fmt.Errorf("chain: header %d: %v", block, err), err)
	}

	ts := time.Unix(int64(header.Time), 0).UTC()
	c.headerTimes[block] = ts
	return ts, nil
}

// classifyFetchErr maps RPC failures onto the fetch error taxonomy: rate
// limits and malformed ranges are recognized by message, deadline blowouts
// by errors.Is. Anything unrecognized is a generic upstream failure, still
// transient so the indexer never permanently abandons a range over a
// network blip.
func classifyFetchErr(wrapped, cause error) error {
	if errors.Is(cause, context.DeadlineExceeded) {
		return fmt.Errorf("%v: %w", wrapped, domain.ErrFetchTimeout)
	}

	msg := strings.ToLower(cause.Error())
	switch {
	case strings.Contains(msg, "429"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "too many requests"):
		return fmt.Errorf("%v: %w", wrapped, domain.ErrRateLimited)
	case strings.Contains(msg, "invalid block range"),
		strings.Contains(msg, "block range is too wide"),
		strings.Contains(msg, "query returned more than"):
		return fmt.Errorf("%v: %w", wrapped, domain.ErrInvalidRange)
	default:
		return fmt.Errorf("%v: %w", wrapped, domain.ErrUpstream)
	}
}
