package crawlers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RecoveryAshes/GalleryScraper/internal/models"
	"github.com/rs/zerolog/log"
)

// PoolObserver 标签页池事件观察者(指标采集)
type PoolObserver interface {
	ObserveAcquire(wait time.Duration)
	ObserveSaturated()
	ObserveDiscard(reason string)
	ObserveDisconnect()
}

type noopObserver struct{}

func (noopObserver) ObserveAcquire(time.Duration) {}
func (noopObserver) ObserveSaturated()            {}
func (noopObserver) ObserveDiscard(string)        {}
func (noopObserver) ObserveDisconnect()           {}

// pooledPage 池内标签页及其元数据
type pooledPage struct {
	handle     PageHandle
	generation int64 // 所属浏览器代数
	createdAt  time.Time
	uses       int
}

// Lease 一次借出
// 浏览器断开时Context()会被取消,cause为ErrBrowserDisconnected
type Lease struct {
	page       *pooledPage
	ctx        context.Context
	acquiredAt time.Time
	done       atomic.Bool
}

// Handle 借出的标签页
func (l *Lease) Handle() PageHandle {
	return l.page.handle
}

// Context 借出有效期,浏览器断开或池关闭时取消
func (l *Lease) Context() context.Context {
	return l.ctx
}

// finish 标记借出结束,只有第一次调用返回true
func (l *Lease) finish() bool {
	return l.done.CompareAndSwap(false, true)
}

// PagePoolConfig 标签页池配置
type PagePoolConfig struct {
	Capacity      int           // 最大标签页数
	WaitlistLimit int           // 等待队列上限
	ResetTimeout  time.Duration // 回收时重置标签页的超时 (默认:5s)
	CreateTimeout time.Duration // 后台补齐时创建标签页的超时 (默认:30s)
	Observer      PoolObserver
}

// PagePool 标签页池管理器
// 职责: 限制并发标签页数,按FIFO顺序分配,回收/替换标签页,浏览器断开时整体失效
type PagePool struct {
	factory  PageFactory
	capacity int
	waitlist *Waitlist
	observer PoolObserver

	resetTimeout  time.Duration
	createTimeout time.Duration

	mu     sync.Mutex
	idle   []*pooledPage
	leased map[*pooledPage]*Lease
	live   int // 空闲 + 借出 + 创建中
	closed bool

	// 已归还、正在后台重置的标签页数,仍计入leased
	recycling int

	// 浏览器代数,断开后+1,旧代标签页归还时直接销毁
	generation int64
	genCtx     context.Context
	genCancel  context.CancelCauseFunc

	// 后台补齐/关闭任务
	wg sync.WaitGroup
}

// NewPagePool 创建标签页池实例
// 不会立即创建标签页,第一次Acquire时才启动浏览器
func NewPagePool(factory PageFactory, config PagePoolConfig) *PagePool {
	if config.Capacity < 1 {
		config.Capacity = 1
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 5 * time.Second
	}
	if config.CreateTimeout <= 0 {
		config.CreateTimeout = 30 * time.Second
	}
	if config.Observer == nil {
		config.Observer = noopObserver{}
	}

	genCtx, genCancel := context.WithCancelCause(context.Background())
	pp := &PagePool{
		factory:       factory,
		capacity:      config.Capacity,
		waitlist:      NewWaitlist(config.WaitlistLimit),
		observer:      config.Observer,
		resetTimeout:  config.ResetTimeout,
		createTimeout: config.CreateTimeout,
		leased:        make(map[*pooledPage]*Lease),
		genCtx:        genCtx,
		genCancel:     genCancel,
	}

	if notifier, ok := factory.(DisconnectNotifier); ok {
		notifier.OnDisconnect(pp.Invalidate)
	}

	return pp
}

// Acquire 获取一个标签页
// 有空闲标签页时立即返回;未达容量时创建新标签页;否则进入等待队列,队列已满返回ErrPoolSaturated
func (pp *PagePool) Acquire(ctx context.Context) (*Lease, error) {
	start := time.Now()

	pp.mu.Lock()
	if pp.closed {
		pp.mu.Unlock()
		return nil, models.ErrPoolClosed
	}

	// 有人在等时新来的请求只能排队,保证FIFO
	if pp.waitlist.Len() == 0 {
		if n := len(pp.idle); n > 0 {
			page := pp.idle[n-1]
			pp.idle = pp.idle[:n-1]
			lease := pp.leaseLocked(page)
			pp.mu.Unlock()
			pp.observer.ObserveAcquire(time.Since(start))
			return lease, nil
		}

		if pp.live < pp.capacity {
			pp.live++
			gen := pp.generation
			pp.mu.Unlock()
			return pp.acquireNew(ctx, gen, start)
		}
	}

	// 每个回收中的标签页很快会交给一个等待者,允许相应数量的等待者超出上限排队
	w := newWaiter()
	if !pp.waitlist.Push(w, pp.recycling) {
		waiting, limit := pp.waitlist.Len(), pp.waitlist.Limit()
		pp.mu.Unlock()
		pp.observer.ObserveSaturated()
		return nil, models.NewScrapeError(models.KindPoolSaturated,
			fmt.Sprintf("等待队列已满(%d/%d)", waiting, limit), nil)
	}
	log.Debug().Msgf("没有空闲标签页,进入等待队列,当前等待数: %d", pp.waitlist.Len())
	pp.mu.Unlock()

	select {
	case res := <-w.ch:
		if res.err != nil {
			return nil, res.err
		}
		pp.observer.ObserveAcquire(time.Since(start))
		return res.lease, nil
	case <-ctx.Done():
		pp.mu.Lock()
		removed := pp.waitlist.Remove(w)
		pp.mu.Unlock()
		if !removed {
			// 取消与交付同时发生,把已交付的标签页还回去
			if res := <-w.ch; res.lease != nil {
				pp.giveBack(res.lease)
			}
		}
		return nil, ctx.Err()
	}
}

// acquireNew 为调用方创建新标签页,名额已在锁内预留
func (pp *PagePool) acquireNew(ctx context.Context, gen int64, start time.Time) (*Lease, error) {
	page, err := pp.create(ctx, gen)

	pp.mu.Lock()
	if err != nil {
		pp.live--
		pp.slotFreedLocked()
		pp.mu.Unlock()
		return nil, err
	}
	if pp.closed || gen != pp.generation {
		// 创建期间浏览器断开或池已关闭
		pp.live--
		closed := pp.closed
		pp.slotFreedLocked()
		pp.mu.Unlock()
		pp.closeAsync(page, "创建期间浏览器已失效")
		if closed {
			return nil, models.ErrPoolClosed
		}
		return nil, models.ErrBrowserDisconnected
	}
	lease := pp.leaseLocked(page)
	live := pp.live
	pp.mu.Unlock()

	log.Debug().Msgf("创建新标签页,当前标签页数: %d, 最大限制: %d", live, pp.capacity)
	pp.observer.ObserveAcquire(time.Since(start))
	return lease, nil
}

// create 通过工厂创建标签页
func (pp *PagePool) create(ctx context.Context, gen int64) (*pooledPage, error) {
	handle, err := pp.factory.NewPage(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, models.ErrBrowserDisconnected) {
			return nil, err
		}
		log.Error().Err(err).Msg("创建标签页失败,浏览器可能已崩溃")
		return nil, models.NewScrapeError(models.KindBrowserDisconnected, "创建标签页失败(浏览器可能已崩溃)", err)
	}
	return &pooledPage{
		handle:     handle,
		generation: gen,
		createdAt:  time.Now(),
	}, nil
}

// leaseLocked 生成借出记录,调用方持有锁
func (pp *PagePool) leaseLocked(page *pooledPage) *Lease {
	page.uses++
	lease := &Lease{
		page:       page,
		ctx:        pp.genCtx,
		acquiredAt: time.Now(),
	}
	pp.leased[page] = lease
	return lease
}

// Release 归还标签页,立即返回
// 重置(失败重试一次)和交接在后台完成: 交给等待最久的等待者,没有等待者时放回空闲列表
// 重置仍失败则销毁并在后台补齐,容量不会因此缩小
func (pp *PagePool) Release(lease *Lease) {
	if lease == nil {
		return
	}
	if !lease.finish() {
		log.Warn().Msgf("标签页 %s 重复归还,已忽略", lease.page.handle.ID())
		return
	}

	page := lease.page

	pp.mu.Lock()
	if pp.closed || page.generation != pp.generation {
		pp.mu.Unlock()
		pp.retire(page, "浏览器已重建或池已关闭")
		return
	}
	// 在锁内登记,保证Close的wg.Wait能等到这次回收
	pp.recycling++
	pp.wg.Add(1)
	pp.mu.Unlock()

	go pp.recycle(page)
}

// recycle 后台重置并交接标签页
func (pp *PagePool) recycle(page *pooledPage) {
	defer pp.wg.Done()

	err := pp.reset(page)
	if err != nil {
		log.Warn().Err(err).Msg("第一次清理失败,尝试重试")
		if err = pp.reset(page); err == nil {
			log.Info().Msg("重试清理成功,标签页恢复正常")
		}
	}

	pp.mu.Lock()
	pp.recycling--
	if err != nil {
		stale := pp.closed || page.generation != pp.generation
		pp.mu.Unlock()
		if stale {
			pp.retire(page, "清理失败")
			return
		}
		log.Warn().Err(err).Msgf("标签页 %s 清理失败,销毁并补齐", page.handle.ID())
		pp.replace(page, "清理失败")
		return
	}

	delete(pp.leased, page)
	if pp.closed || page.generation != pp.generation {
		pp.live--
		pp.slotFreedLocked()
		pp.mu.Unlock()
		pp.closeAsync(page, "浏览器已重建或池已关闭")
		return
	}
	pp.handOffLocked(page)
	pp.mu.Unlock()
}

// Discard 强制销毁借出的标签页(任务超时、导航卡死、浏览器断开)
// 当前代的标签页会在后台补齐替换
func (pp *PagePool) Discard(lease *Lease, reason string) {
	if lease == nil || !lease.finish() {
		return
	}

	page := lease.page
	pp.mu.Lock()
	stale := pp.closed || page.generation != pp.generation
	pp.mu.Unlock()

	if stale {
		pp.retire(page, reason)
		return
	}
	pp.replace(page, reason)
}

// giveBack 把未使用过的借出直接放回(等待被取消的情况)
func (pp *PagePool) giveBack(lease *Lease) {
	if !lease.finish() {
		return
	}
	page := lease.page

	pp.mu.Lock()
	delete(pp.leased, page)
	if pp.closed || page.generation != pp.generation {
		pp.live--
		pp.slotFreedLocked()
		pp.mu.Unlock()
		pp.closeAsync(page, "浏览器已重建或池已关闭")
		return
	}
	pp.handOffLocked(page)
	pp.mu.Unlock()
}

// reset 重置标签页状态
func (pp *PagePool) reset(page *pooledPage) error {
	ctx, cancel := context.WithTimeout(context.Background(), pp.resetTimeout)
	defer cancel()
	return page.handle.Reset(ctx)
}

// retire 销毁旧代标签页,释放名额
func (pp *PagePool) retire(page *pooledPage, reason string) {
	pp.mu.Lock()
	delete(pp.leased, page)
	pp.live--
	pp.slotFreedLocked()
	pp.mu.Unlock()

	pp.observer.ObserveDiscard(reason)
	pp.closeAsync(page, reason)
}

// replace 销毁标签页并保留名额,后台创建替换品
func (pp *PagePool) replace(page *pooledPage, reason string) {
	pp.mu.Lock()
	delete(pp.leased, page)
	gen := pp.generation
	pp.mu.Unlock()

	pp.observer.ObserveDiscard(reason)
	pp.closeAsync(page, reason)

	pp.wg.Add(1)
	go pp.backfill(gen)
}

// backfill 后台补齐一个标签页,名额已预留
func (pp *PagePool) backfill(gen int64) {
	defer pp.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), pp.createTimeout)
	defer cancel()

	page, err := pp.create(ctx, gen)

	pp.mu.Lock()
	if err != nil {
		pp.live--
		// 队首等待者承担这次失败,其余等待者由slotFreedLocked继续补齐
		if w := pp.waitlist.Pop(); w != nil {
			w.ch <- acquireResult{err: err}
		}
		pp.slotFreedLocked()
		pp.mu.Unlock()
		log.Warn().Err(err).Msg("后台补齐标签页失败")
		return
	}
	if pp.closed || gen != pp.generation {
		pp.live--
		pp.slotFreedLocked()
		pp.mu.Unlock()
		pp.closeAsync(page, "补齐期间浏览器已失效")
		return
	}
	pp.handOffLocked(page)
	pp.mu.Unlock()

	log.Debug().Msgf("已补齐标签页 %s", page.handle.ID())
}

// handOffLocked 把标签页交给队首等待者,没有等待者时放回空闲列表
func (pp *PagePool) handOffLocked(page *pooledPage) {
	if w := pp.waitlist.Pop(); w != nil {
		w.ch <- acquireResult{lease: pp.leaseLocked(page)}
		return
	}
	pp.idle = append(pp.idle, page)
}

// slotFreedLocked 名额被释放后,若仍有等待者则为队首补齐一个标签页
func (pp *PagePool) slotFreedLocked() {
	if pp.closed || pp.waitlist.Len() == 0 || pp.live >= pp.capacity {
		return
	}
	pp.live++
	pp.wg.Add(1)
	go pp.backfill(pp.generation)
}

// closeAsync 后台关闭标签页,失败只记录日志
func (pp *PagePool) closeAsync(page *pooledPage, reason string) {
	pp.wg.Add(1)
	go func() {
		defer pp.wg.Done()
		if err := page.handle.Close(); err != nil {
			log.Warn().Err(err).Msgf("关闭标签页失败 (%s)", reason)
			return
		}
		log.Debug().Msgf("销毁标签页 %s: %s", page.handle.ID(), reason)
	}()
}

// Invalidate 浏览器意外断开
// 所有空闲标签页作废,所有借出的Context被取消,所有等待者以ErrBrowserDisconnected失败
// 下一次Acquire会创建新的浏览器
func (pp *PagePool) Invalidate(cause error) {
	disconnectErr := models.NewScrapeError(models.KindBrowserDisconnected, "浏览器连接已断开", cause)

	pp.mu.Lock()
	if pp.closed {
		pp.mu.Unlock()
		return
	}
	pp.generation++
	pp.genCancel(disconnectErr)
	pp.genCtx, pp.genCancel = context.WithCancelCause(context.Background())

	idle := pp.idle
	pp.idle = nil
	pp.live -= len(idle)
	waiters := pp.waitlist.Drain()
	inFlight := len(pp.leased)
	gen := pp.generation
	pp.mu.Unlock()

	for _, w := range waiters {
		w.ch <- acquireResult{err: disconnectErr}
	}
	for _, page := range idle {
		pp.closeAsync(page, "浏览器断开")
	}

	pp.observer.ObserveDisconnect()
	log.Error().Err(cause).Msgf("浏览器连接断开,作废 %d 个空闲标签页, %d 个进行中任务, %d 个等待者 (新代数: %d)",
		len(idle), inFlight, len(waiters), gen)
}

// Stats 返回当前占用快照
func (pp *PagePool) Stats() models.PoolStats {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	return models.PoolStats{
		Capacity:      pp.capacity,
		Live:          pp.live,
		Idle:          len(pp.idle),
		InUse:         len(pp.leased) - pp.recycling,
		Recycling:     pp.recycling,
		Waiting:       pp.waitlist.Len(),
		WaitlistLimit: pp.waitlist.Limit(),
		Generation:    pp.generation,
		Closed:        pp.closed,
	}
}

// Capacity 最大标签页数
func (pp *PagePool) Capacity() int {
	return pp.capacity
}

// Close 关闭标签页池,释放所有资源
// 等待者以ErrPoolClosed失败,借出中的标签页在归还时销毁
func (pp *PagePool) Close() error {
	pp.mu.Lock()
	if pp.closed {
		pp.mu.Unlock()
		return nil
	}
	pp.closed = true
	pp.genCancel(models.ErrPoolClosed)

	idle := pp.idle
	pp.idle = nil
	pp.live -= len(idle)
	waiters := pp.waitlist.Drain()
	pp.mu.Unlock()

	for _, w := range waiters {
		w.ch <- acquireResult{err: models.ErrPoolClosed}
	}
	for _, page := range idle {
		pp.closeAsync(page, "标签页池关闭")
	}

	pp.wg.Wait()

	log.Info().Msg("标签页池已关闭")
	return pp.factory.Close()
}
