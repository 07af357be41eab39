package resolver

import "sync/atomic"

// 文档注释：可热替换的解析器引用
// 背景：数据集重新发布时在后台构建新实例，构建成功后原子切换；读路径无锁，正在进行的查询继续使用旧实例。
// 约束：Swap 返回旧实例，由调用方负责 Close；旧实例关闭后仍持有其引用的查询会得到 ErrResolverClosed。
type Holder struct{ p atomic.Pointer[Resolver] }

func NewHolder(r *Resolver) *Holder {
	h := &Holder{}
	h.p.Store(r)
	return h
}

// Load：当前实例；未设置时返回 nil
func (h *Holder) Load() *Resolver { return h.p.Load() }

func (h *Holder) Swap(r *Resolver) *Resolver { return h.p.Swap(r) }
