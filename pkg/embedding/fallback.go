package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"

	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/log"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/vector"
)

// DefaultDimensions 是未配置时使用的向量维度。
const DefaultDimensions = 1536

var errVectorCount = errors.New("embedding provider returned wrong number of vectors")

// Deterministic 由文本的 sha256 派生一个单位向量，相同文本永远得到相同的向量。
func Deterministic(text string, dim int) []float32 {
	sum := sha256.Sum256([]byte(text))
	seed, _ := strconv.ParseUint(hex.EncodeToString(sum[:])[:16], 16, 64)

	values := make([]float32, dim)
	for i := range values {
		seed = (seed*1103515245 + 12345) & 0x7fffffff
		values[i] = float32(float64(seed)/float64(0x7fffffff)*2 - 1)
	}
	return vector.Normalize(values)
}

// Fit 将向量补零或截断到 dim 维。
func Fit(v []float32, dim int) []float32 {
	if len(v) == dim {
		return v
	}
	log.Debugf("[Embedding] 向量维度 %d 调整为 %d", len(v), dim)
	out := make([]float32, dim)
	copy(out, v)
	return out
}

// Resilient 包装一个上游 Provider：上游失败时为每段文本生成确定性向量，
// 并保证所有向量都是 dim 维。它的 Embed 不会返回错误。
type Resilient struct {
	inner      Provider
	dim        int
	onFallback func(error)
}

// NewResilient 创建一个 Resilient。inner 可以为 nil，此时始终使用确定性向量。
func NewResilient(inner Provider, dim int, onFallback func(error)) *Resilient {
	if dim <= 0 {
		dim = DefaultDimensions
	}
	return &Resilient{inner: inner, dim: dim, onFallback: onFallback}
}

// Dimensions 返回输出向量的维度。
func (r *Resilient) Dimensions() int {
	return r.dim
}

// Embed 实现 Provider。
func (r *Resilient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	if r.inner != nil {
		vectors, err := r.inner.Embed(ctx, texts)
		if err == nil && len(vectors) == len(texts) {
			out := make([][]float32, len(vectors))
			for i, v := range vectors {
				out[i] = Fit(v, r.dim)
			}
			return out, nil
		}
		if err == nil {
			err = errVectorCount
		}
		if !errors.Is(err, ErrNoAPIKey) {
			log.Warnf("[Embedding] 上游 Embedding 失败, 使用确定性向量: %v", err)
		}
		if r.onFallback != nil {
			r.onFallback(err)
		}
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = Deterministic(t, r.dim)
	}
	return out, nil
}

// EmbedOne 是单条文本的便捷方法。
func (r *Resilient) EmbedOne(ctx context.Context, text string) []float32 {
	vectors, _ := r.Embed(ctx, []string{text})
	return vectors[0]
}
