// Package cache holds the Redis-backed account cache.
//
// Each contract gets one hash, account:{id}, with one field per as-of
// date. Invalidate drops the whole hash, so a write to a contract
// forgets every as-of date computed for it. Entries also expire after a
// TTL so a missed invalidation heals itself.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vallemart2000/desarrolladora-sql/ledger"
)

const keyPrefix = "account:"

// New creates a new Redis client.
func New(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: ping: %w", err)
	}

	return client, nil
}

// AccountCache implements ledger.AccountCache.
type AccountCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewAccountCache(client *redis.Client, ttl time.Duration) *AccountCache {
	return &AccountCache{client: client, ttl: ttl}
}

func key(id ledger.ContractID) string { return keyPrefix + string(id) }

// Get returns nil, nil on a miss.
func (c *AccountCache) Get(ctx context.Context, id ledger.ContractID, asOf ledger.Date) (*ledger.Account, error) {
	raw, err := c.client.HGet(ctx, key(id), asOf.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: get %s: %w", id, err)
	}
	var acct ledger.Account
	if err := json.Unmarshal(raw, &acct); err != nil {
		return nil, fmt.Errorf("cache: decode %s: %w", id, err)
	}
	return &acct, nil
}

func (c *AccountCache) Put(ctx context.Context, acct ledger.Account) error {
	raw, err := json.Marshal(acct)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", acct.ContractID, err)
	}
	k := key(acct.ContractID)
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k, acct.AsOf.String(), raw)
		if c.ttl > 0 {
			pipe.Expire(ctx, k, c.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache: put %s: %w", acct.ContractID, err)
	}
	return nil
}

func (c *AccountCache) Invalidate(ctx context.Context, id ledger.ContractID) error {
	if err := c.client.Del(ctx, key(id)).Err(); err != nil {
		return fmt.Errorf("cache: invalidate %s: %w", id, err)
	}
	return nil
}

var _ ledger.AccountCache = (*AccountCache)(nil)
