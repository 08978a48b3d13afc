package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"commerce-access/internal/domain/model"
	"commerce-access/internal/domain/ports/repository"
	"commerce-access/internal/infra/metrics"
	red "commerce-access/internal/infra/redis"
)

var _ repository.ProductRepository = (*productRepoCacheDecorator)(nil)

const productListKey = "products:all"

type productRepoCacheDecorator struct {
	inner repository.ProductRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewProductRepoCacheDecorator(inner repository.ProductRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.ProductRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	l := logger.With().Str("component", "productCache").Logger()
	return &productRepoCacheDecorator{
		inner: inner,
		cache: cache,
		ttl:   ttl,
		log:   &l,
	}
}

func productKey(id string) string { return fmt.Sprintf("product:%s", id) }

// FindByID reads through the cache. Reads inside a transaction go straight to the
// store so row locks and snapshot stay consistent.
func (d *productRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Product, error) {
	if tx != repository.NoTX {
		return d.inner.FindByID(ctx, tx, id)
	}
	key := productKey(id)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var p model.Product
		if json.Unmarshal([]byte(val), &p) == nil {
			metrics.CatalogCacheHit("product")
			return &p, nil
		}
	} else if !errors.Is(err, red.Nil) {
		d.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}

	metrics.CatalogCacheMiss("product")
	p, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if p != nil {
		b, _ := json.Marshal(p)
		if err := d.cache.Set(ctx, key, b, d.ttl); err != nil {
			d.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
	}
	return p, nil
}

// Save invalidates the product and the list entry.
func (d *productRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, p *model.Product) error {
	if err := d.inner.Save(ctx, tx, p); err != nil {
		return err
	}
	if err := d.cache.Del(ctx, productKey(p.ID), productListKey); err != nil {
		d.log.Warn().Err(err).Str("product_id", p.ID).Msg("cache invalidation failed")
	}
	return nil
}

func (d *productRepoCacheDecorator) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Product, error) {
	if tx != repository.NoTX {
		return d.inner.ListAll(ctx, tx)
	}
	val, err := d.cache.Get(ctx, productListKey)
	if err == nil {
		var products []*model.Product
		if json.Unmarshal([]byte(val), &products) == nil {
			metrics.CatalogCacheHit("product_list")
			return products, nil
		}
	}

	metrics.CatalogCacheMiss("product_list")
	products, err := d.inner.ListAll(ctx, tx)
	if err != nil {
		return nil, err
	}
	if len(products) > 0 {
		b, _ := json.Marshal(products)
		if err := d.cache.Set(ctx, productListKey, b, d.ttl); err != nil {
			d.log.Warn().Err(err).Msg("cache write failed")
		}
	}
	return products, nil
}
