package tools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/basketvoice/internal/cache"
)

// CachedExecutor serves repeated read-tool calls from the cache. Cached
// reads are keyed by a per-scope generation token kept in the cache itself,
// and any write call replaces the token, so a write on one node hides the
// reads cached by every node sharing the cache.
type CachedExecutor struct {
	next    Executor
	catalog *Catalog
	cache   cache.Cache
	ttl     time.Duration
	log     *logrus.Logger
}

func NewCachedExecutor(next Executor, catalog *Catalog, c cache.Cache, ttl time.Duration, log *logrus.Logger) *CachedExecutor {
	if log == nil {
		log = logrus.New()
	}
	return &CachedExecutor{
		next:    next,
		catalog: catalog,
		cache:   c,
		ttl:     ttl,
		log:     log,
	}
}

func (e *CachedExecutor) Execute(ctx context.Context, scope, name string, args map[string]any) (Result, error) {
	def, known := e.catalog.Get(name)
	if known && def.Kind == KindRead && e.ttl > 0 {
		return e.cachedRead(ctx, scope, name, args)
	}

	res, err := e.next.Execute(ctx, scope, name, args)
	if known && def.Kind == KindWrite {
		e.invalidate(ctx, scope)
	}
	return res, err
}

func (e *CachedExecutor) cachedRead(ctx context.Context, scope, name string, args map[string]any) (Result, error) {
	log := e.log.WithFields(logrus.Fields{"tool": name, "scope": scope})

	gen, err := e.generation(ctx, scope)
	if err != nil {
		log.WithError(err).Warn("tool cache read failed")
		return e.next.Execute(ctx, scope, name, args)
	}

	key := cacheKey(scope, gen, name, args)
	var hit Result
	if ok, err := e.cache.GetJSON(ctx, key, &hit); err == nil && ok {
		return hit, nil
	} else if err != nil {
		log.WithError(err).Warn("tool cache read failed")
	}

	res, err := e.next.Execute(ctx, scope, name, args)
	if err != nil {
		return res, err
	}
	if err := e.cache.SetJSON(ctx, key, res, e.ttl); err != nil {
		log.WithError(err).Warn("tool cache write failed")
	}
	return res, nil
}

// generation is "0" until the scope's first write.
func (e *CachedExecutor) generation(ctx context.Context, scope string) (string, error) {
	var gen string
	ok, err := e.cache.GetJSON(ctx, generationKey(scope), &gen)
	if err != nil {
		return "", err
	}
	if !ok || gen == "" {
		return "0", nil
	}
	return gen, nil
}

// invalidate outlives every entry cached under the old token, so falling
// back to "0" after it expires cannot resurrect them.
func (e *CachedExecutor) invalidate(ctx context.Context, scope string) {
	if err := e.cache.SetJSON(ctx, generationKey(scope), uuid.NewString(), e.ttl+time.Hour); err != nil {
		e.log.WithError(err).WithField("scope", scope).Warn("tool cache invalidation failed")
	}
}

func generationKey(scope string) string { return "tool:" + scope + ":gen" }

// json.Marshal sorts map keys, so equal arguments hash equally.
func cacheKey(scope, gen, name string, args map[string]any) string {
	b, _ := json.Marshal(args)
	sum := sha256.Sum256(b)
	return "tool:" + scope + ":" + gen + ":" + name + ":" + hex.EncodeToString(sum[:8])
}
