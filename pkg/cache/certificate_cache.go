package cache

import (
	"context"
	"encoding/json"
	"mylms_backend/internal/model"
	"time"

	"github.com/go-redis/redis/v8"
)

const verifyKeyPrefix = "lms:cert:verify:"

// CertificateCache 证书校验结果缓存。证书签发后不可变，可以放心缓存
type CertificateCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewCertificateCache rdb 为 nil 时缓存不生效
func NewCertificateCache(rdb *redis.Client, ttl time.Duration) *CertificateCache {
	return &CertificateCache{rdb: rdb, ttl: ttl}
}

func (c *CertificateCache) Get(ctx context.Context, code string) (*model.Certificate, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, verifyKeyPrefix+code).Bytes()
	if err != nil {
		return nil, false
	}
	var cert model.Certificate
	if err := json.Unmarshal(raw, &cert); err != nil {
		return nil, false
	}
	return &cert, true
}

func (c *CertificateCache) Set(ctx context.Context, cert *model.Certificate) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	raw, err := json.Marshal(cert)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, verifyKeyPrefix+cert.Code, raw, c.ttl).Err()
}

// Invalidate 删除课程时清理对应证书缓存
func (c *CertificateCache) Invalidate(ctx context.Context, codes ...string) error {
	if c == nil || c.rdb == nil || len(codes) == 0 {
		return nil
	}
	keys := make([]string, 0, len(codes))
	for _, code := range codes {
		keys = append(keys, verifyKeyPrefix+code)
	}
	return c.rdb.Del(ctx, keys...).Err()
}
