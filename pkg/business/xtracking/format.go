package xtracking

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// =============================================================================
// 默认值
// =============================================================================

const (
	// DefaultAlphabet 默认字母表（大写字母 + 数字）。
	DefaultAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	DefaultMinLength = 8
	DefaultMaxLength = 16

	// DefaultMinRandom 随机段最少字符数。
	DefaultMinRandom = 4
)

// 固定段长度：路由 3 + 客户 2 + 时间 2。
const fixedSegmentLen = 7

// FormatPolicy 候选运单号生成策略。
//
// 候选号由四段组成：
//
//	路由段   origin[0] dest[0] alphabet[(origin[0]+dest[0]) mod n]
//	客户段   alphabet[h mod n] alphabet[(h/n) mod n]，h = xxhash64(slug)
//	时间段   alphabet[t mod n] alphabet[t/n]，t = unix 秒 mod n²
//	随机段   min(MaxLen-used, max(MinRandom, MinLen-used)) 个均匀随机字符
//
// 结果截断到 MaxLen。FormatPolicy 创建后只读，可并发使用。
// 零值不可用，必须通过 NewFormatPolicy 创建。
type FormatPolicy struct {
	alphabet  string
	index     [256]int16
	minLen    int
	maxLen    int
	minRandom int
	entropy   io.Reader
}

// FormatOption 配置 FormatPolicy。
type FormatOption func(*FormatPolicy)

// WithAlphabet 设置字母表（单字节字符，不可重复）。
func WithAlphabet(alphabet string) FormatOption {
	return func(p *FormatPolicy) {
		p.alphabet = alphabet
	}
}

// WithLength 设置长度范围 [minLen, maxLen]。
func WithLength(minLen, maxLen int) FormatOption {
	return func(p *FormatPolicy) {
		p.minLen = minLen
		p.maxLen = maxLen
	}
}

// WithMinRandom 设置随机段最少字符数。
func WithMinRandom(n int) FormatOption {
	return func(p *FormatPolicy) {
		p.minRandom = n
	}
}

// WithDefaultEntropy 设置 Generate 未传入随机源时使用的随机源，必须并发安全。
// nil 被忽略。
func WithDefaultEntropy(r io.Reader) FormatOption {
	return func(p *FormatPolicy) {
		if r != nil {
			p.entropy = r
		}
	}
}

// NewFormatPolicy 创建并校验生成策略。
func NewFormatPolicy(opts ...FormatOption) (*FormatPolicy, error) {
	p := &FormatPolicy{
		alphabet:  DefaultAlphabet,
		minLen:    DefaultMinLength,
		maxLen:    DefaultMaxLength,
		minRandom: DefaultMinRandom,
		entropy:   rand.Reader,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	for i := range p.index {
		p.index[i] = -1
	}
	for i := 0; i < len(p.alphabet); i++ {
		p.index[p.alphabet[i]] = int16(i) //nolint:gosec // len(alphabet) <= 256
	}
	return p, nil
}

func (p *FormatPolicy) validate() error {
	n := len(p.alphabet)
	if n == 0 || n > 256 {
		return fmt.Errorf("%w: alphabet size %d out of [1, 256]", ErrInvalidConfig, n)
	}
	var seen [256]bool
	for i := 0; i < n; i++ {
		c := p.alphabet[i]
		if seen[c] {
			return fmt.Errorf("%w: duplicate alphabet symbol %q", ErrInvalidConfig, c)
		}
		seen[c] = true
	}
	if p.minLen < 1 || p.minLen > p.maxLen {
		return fmt.Errorf("%w: length range [%d, %d]", ErrInvalidConfig, p.minLen, p.maxLen)
	}
	if p.minRandom < 0 {
		return fmt.Errorf("%w: negative min random %d", ErrInvalidConfig, p.minRandom)
	}
	return nil
}

// Alphabet 返回字母表。
func (p *FormatPolicy) Alphabet() string { return p.alphabet }

// MinLength 返回最小长度。
func (p *FormatPolicy) MinLength() int { return p.minLen }

// MaxLength 返回最大长度。
func (p *FormatPolicy) MaxLength() int { return p.maxLen }

// Generate 生成一个候选号。entropy 为 nil 时使用策略的默认随机源。
//
// 零值 FormatPolicy 调用 Generate 会 panic。随机源读取失败返回包裹 ErrEntropy 的错误。
func (p *FormatPolicy) Generate(in GenerationInput, now time.Time, entropy io.Reader) (string, error) {
	n := len(p.alphabet)
	if n == 0 {
		panic("xtracking: Generate called on zero FormatPolicy")
	}
	if entropy == nil {
		entropy = p.entropy
	}
	if entropy == nil {
		entropy = rand.Reader
	}

	var b strings.Builder
	b.Grow(p.maxLen)

	// 路由段
	o, d := firstByte(in.Origin), firstByte(in.Destination)
	b.WriteByte(p.symbol(o))
	b.WriteByte(p.symbol(d))
	b.WriteByte(p.alphabet[(int(o)+int(d))%n])

	// 客户段
	h := xxhash.Sum64String(in.CustomerSlug)
	un := uint64(n)
	b.WriteByte(p.alphabet[h%un])
	b.WriteByte(p.alphabet[(h/un)%un])

	// 时间段
	m := int64(n) * int64(n)
	t := ((now.Unix() % m) + m) % m
	b.WriteByte(p.alphabet[t%int64(n)])
	b.WriteByte(p.alphabet[t/int64(n)])

	randomLen := min(p.maxLen-fixedSegmentLen, max(p.minRandom, p.minLen-fixedSegmentLen))
	if randomLen > 0 {
		if err := p.appendRandom(&b, entropy, randomLen); err != nil {
			return "", err
		}
	}

	s := b.String()
	if len(s) > p.maxLen {
		s = s[:p.maxLen]
	}
	return s, nil
}

// symbol 把编码字符映射进字母表：已在字母表中的原样保留，否则取 alphabet[c mod n]。
func (p *FormatPolicy) symbol(c byte) byte {
	if p.index[c] >= 0 {
		return c
	}
	return p.alphabet[int(c)%len(p.alphabet)]
}

// appendRandom 使用拒绝采样追加 count 个均匀分布的字符。
func (p *FormatPolicy) appendRandom(b *strings.Builder, entropy io.Reader, count int) error {
	n := len(p.alphabet)
	// 大于等于 limit 的字节丢弃，保证 byte mod n 均匀
	limit := 256 - 256%n
	buf := make([]byte, count*2)
	for count > 0 {
		if _, err := io.ReadFull(entropy, buf); err != nil {
			return fmt.Errorf("%w: %w", ErrEntropy, err)
		}
		for _, v := range buf {
			if int(v) >= limit {
				continue
			}
			b.WriteByte(p.alphabet[int(v)%n])
			count--
			if count == 0 {
				break
			}
		}
	}
	return nil
}

func firstByte(s string) byte {
	if s == "" {
		return 0
	}
	return s[0]
}
