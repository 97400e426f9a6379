package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/emrgen/linkfeed/internal/compress"
	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const defaultRedisPrefix = "linkfeed:"

var _ RecordStore = (*Redis)(nil)

// Redis keeps records as compressed JSON strings. The set of live keys is
// tracked in a redis set so Keys does not need SCAN.
type Redis struct {
	client  *redis.Client
	encoder compress.Compress
	prefix  string
	ttl     time.Duration
}

// NewRedisClient connects to a redis server.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		Protocol: 2,
	})
}

// NewRedis creates a record store on client. A zero ttl keeps records until
// they are deleted.
func NewRedis(client *redis.Client, encoder compress.Compress, ttl time.Duration) *Redis {
	if encoder == nil {
		encoder = compress.NewNop()
	}
	return &Redis{
		client:  client,
		encoder: encoder,
		prefix:  defaultRedisPrefix,
		ttl:     ttl,
	}
}

// WithPrefix namespaces all keys, several clients can share one server.
func (r *Redis) WithPrefix(prefix string) *Redis {
	next := *r
	next.prefix = prefix
	return &next
}

func (r *Redis) recordKey(key string) string {
	return r.prefix + "record:" + key
}

func (r *Redis) indexKey() string {
	return r.prefix + "records"
}

func (r *Redis) Get(ctx context.Context, key string) (Record, error) {
	res := r.client.Get(ctx, r.recordKey(key))
	if res.Err() != nil {
		if errors.Is(res.Err(), redis.Nil) {
			return nil, nil
		}
		return nil, res.Err()
	}

	buf, err := res.Bytes()
	if err != nil {
		return nil, err
	}

	data, err := r.encoder.Decode(buf)
	if err != nil {
		return nil, err
	}

	rec := make(Record)
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}

	return rec, nil
}

func (r *Redis) Put(ctx context.Context, records map[string]Record) error {
	if len(records) == 0 {
		return nil
	}

	encoded := make(map[string][]byte, len(records))
	members := make([]interface{}, 0, len(records))
	for key, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		value, err := r.encoder.Encode(data)
		if err != nil {
			return err
		}
		encoded[key] = value
		members = append(members, key)
	}

	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for key, value := range encoded {
			if err := p.Set(ctx, r.recordKey(key), value, r.ttl).Err(); err != nil {
				return err
			}
		}
		return p.SAdd(ctx, r.indexKey(), members...).Err()
	})

	return err
}

func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	recordKeys := make([]string, len(keys))
	members := make([]interface{}, len(keys))
	for i, key := range keys {
		recordKeys[i] = r.recordKey(key)
		members[i] = key
	}

	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if err := p.Del(ctx, recordKeys...).Err(); err != nil {
			return err
		}
		return p.SRem(ctx, r.indexKey(), members...).Err()
	})

	return err
}

func (r *Redis) Keys(ctx context.Context) ([]string, error) {
	return r.client.SMembers(ctx, r.indexKey()).Result()
}

func (r *Redis) Clear(ctx context.Context) error {
	keys, err := r.Keys(ctx)
	if err != nil {
		return err
	}

	logrus.Debugf("clearing %d redis cache records", len(keys))

	if err := r.Delete(ctx, keys...); err != nil {
		return err
	}
	return r.client.Del(ctx, r.indexKey()).Err()
}
