package client

import (
	"context"
	"strconv"

	"github.com/Usub-development/uredis/rediserr"
)

// Get returns the value of key, or ok=false if it does not exist.
// Grounded on original_source/src/uredis/RedisClient.cpp's get.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.Command(ctx, "GET", key)
	if err != nil {
		return "", false, err
	}
	if v.IsNull() {
		return "", false, nil
	}
	s, ok := v.AsString()
	if !ok {
		return "", false, rediserr.New(rediserr.Protocol, "GET: unexpected type")
	}
	return s, true, nil
}

// Set sets key to value with no expiry.
func (c *Client) Set(ctx context.Context, key, value string) error {
	_, err := c.Command(ctx, "SET", key, value)
	return err
}

// SetEX sets key to value with a TTL of ttlSec seconds.
func (c *Client) SetEX(ctx context.Context, key string, ttlSec int, value string) error {
	_, err := c.Command(ctx, "SETEX", key, strconv.Itoa(ttlSec), value)
	return err
}

// Del deletes keys and returns the number removed. Calling it with no keys
// is a local no-op, matching the original's empty-span short circuit.
func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	v, err := c.Command(ctx, "DEL", keys...)
	if err != nil {
		return 0, err
	}
	n, ok := v.AsInt()
	if !ok {
		return 0, rediserr.New(rediserr.Protocol, "DEL: unexpected type")
	}
	return n, nil
}

// IncrBy increments key by delta and returns the new value.
func (c *Client) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	v, err := c.Command(ctx, "INCRBY", key, strconv.FormatInt(delta, 10))
	if err != nil {
		return 0, err
	}
	n, ok := v.AsInt()
	if !ok {
		return 0, rediserr.New(rediserr.Protocol, "INCRBY: unexpected type")
	}
	return n, nil
}

// HSet sets field in the hash stored at key and returns the number of new
// fields created (0 or 1 for a single field/value pair).
func (c *Client) HSet(ctx context.Context, key, field, value string) (int64, error) {
	v, err := c.Command(ctx, "HSET", key, field, value)
	if err != nil {
		return 0, err
	}
	n, ok := v.AsInt()
	if !ok {
		return 0, rediserr.New(rediserr.Protocol, "HSET: unexpected type")
	}
	return n, nil
}

// HGet returns the value of field in the hash at key, or ok=false if the
// field or key does not exist.
func (c *Client) HGet(ctx context.Context, key, field string) (string, bool, error) {
	v, err := c.Command(ctx, "HGET", key, field)
	if err != nil {
		return "", false, err
	}
	if v.IsNull() {
		return "", false, nil
	}
	s, ok := v.AsString()
	if !ok {
		return "", false, rediserr.New(rediserr.Protocol, "HGET: unexpected type")
	}
	return s, true, nil
}

// HGetAll returns every field/value pair in the hash at key. A missing key
// yields an empty, non-nil map.
func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	v, err := c.Command(ctx, "HGETALL", key)
	if err != nil {
		return nil, err
	}
	if v.IsNull() {
		return map[string]string{}, nil
	}
	m, ok := v.AsMap()
	if !ok {
		return nil, rediserr.New(rediserr.Protocol, "HGETALL: unexpected type")
	}
	return m, nil
}

// SAdd adds members to the set at key and returns the number actually
// added.
func (c *Client) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}
	v, err := c.Command(ctx, "SADD", append([]string{key}, members...)...)
	if err != nil {
		return 0, err
	}
	n, ok := v.AsInt()
	if !ok {
		return 0, rediserr.New(rediserr.Protocol, "SADD: unexpected type")
	}
	return n, nil
}

// SRem removes members from the set at key and returns the number actually
// removed.
func (c *Client) SRem(ctx context.Context, key string, members ...string) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}
	v, err := c.Command(ctx, "SREM", append([]string{key}, members...)...)
	if err != nil {
		return 0, err
	}
	n, ok := v.AsInt()
	if !ok {
		return 0, rediserr.New(rediserr.Protocol, "SREM: unexpected type")
	}
	return n, nil
}

// SMembers returns every member of the set at key.
func (c *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	v, err := c.Command(ctx, "SMEMBERS", key)
	if err != nil {
		return nil, err
	}
	if v.IsNull() {
		return []string{}, nil
	}
	s, ok := v.AsStringSlice()
	if !ok {
		return nil, rediserr.New(rediserr.Protocol, "SMEMBERS: unexpected type")
	}
	return s, nil
}

// LPush prepends values to the list at key and returns the list's new
// length.
func (c *Client) LPush(ctx context.Context, key string, values ...string) (int64, error) {
	if len(values) == 0 {
		return 0, nil
	}
	v, err := c.Command(ctx, "LPUSH", append([]string{key}, values...)...)
	if err != nil {
		return 0, err
	}
	n, ok := v.AsInt()
	if !ok {
		return 0, rediserr.New(rediserr.Protocol, "LPUSH: unexpected type")
	}
	return n, nil
}

// LRange returns the list elements at key between start and stop
// (inclusive, Redis list-index semantics apply, including negative
// indices).
func (c *Client) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	v, err := c.Command(ctx, "LRANGE", key, strconv.FormatInt(start, 10), strconv.FormatInt(stop, 10))
	if err != nil {
		return nil, err
	}
	s, ok := v.AsStringSlice()
	if !ok {
		return nil, rediserr.New(rediserr.Protocol, "LRANGE: unexpected type")
	}
	return s, nil
}

// ZMember is one member/score pair passed to ZAdd.
type ZMember struct {
	Member string
	Score  float64
}

// ZAdd adds members with their scores to the sorted set at key and returns
// the number of new members added.
func (c *Client) ZAdd(ctx context.Context, key string, members ...ZMember) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}
	args := make([]string, 0, 1+len(members)*2)
	args = append(args, key)
	for _, m := range members {
		args = append(args, strconv.FormatFloat(m.Score, 'f', -1, 64), m.Member)
	}
	v, err := c.Command(ctx, "ZADD", args...)
	if err != nil {
		return 0, err
	}
	n, ok := v.AsInt()
	if !ok {
		return 0, rediserr.New(rediserr.Protocol, "ZADD: unexpected type")
	}
	return n, nil
}

// ZRangeWithScores returns the sorted-set members between start and stop
// (inclusive rank range) along with their scores, in ascending rank order.
func (c *Client) ZRangeWithScores(ctx context.Context, key string, start, stop int64) ([]ZMember, error) {
	v, err := c.Command(ctx, "ZRANGE", key, strconv.FormatInt(start, 10), strconv.FormatInt(stop, 10), "WITHSCORES")
	if err != nil {
		return nil, err
	}
	pairs, ok := v.AsPairs()
	if !ok {
		return nil, rediserr.New(rediserr.Protocol, "ZRANGE: unexpected type")
	}
	out := make([]ZMember, 0, len(pairs))
	for _, p := range pairs {
		score, perr := strconv.ParseFloat(p[1], 64)
		if perr != nil {
			return nil, rediserr.Newf(rediserr.Protocol, "ZRANGE: malformed score %q", p[1])
		}
		out = append(out, ZMember{Member: p[0], Score: score})
	}
	return out, nil
}
