package crawlers_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/RecoveryAshes/GalleryScraper/internal/crawlers"
	"github.com/RecoveryAshes/GalleryScraper/internal/crawlers/crawlertest"
	"github.com/RecoveryAshes/GalleryScraper/internal/models"
)

// waitFor 轮询直到条件成立
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("等待超时: %s", what)
}

func newPool(capacity, waitlist int) (*crawlers.PagePool, *crawlertest.Factory) {
	factory := crawlertest.NewFactory()
	pool := crawlers.NewPagePool(factory, crawlers.PagePoolConfig{
		Capacity:      capacity,
		WaitlistLimit: waitlist,
	})
	return pool, factory
}

func TestPagePool_LazyCreation(t *testing.T) {
	pool, factory := newPool(2, 4)
	defer pool.Close()

	if factory.Created() != 0 {
		t.Fatalf("创建池时不应创建标签页, 得到 %d", factory.Created())
	}

	lease, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire失败: %v", err)
	}
	if factory.Created() != 1 {
		t.Errorf("期望创建1个标签页, 得到 %d", factory.Created())
	}

	pool.Release(lease)
	waitFor(t, "标签页重置后回到空闲列表", func() bool { return pool.Stats().Idle == 1 })
	again, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("第二次Acquire失败: %v", err)
	}
	if again.Handle().ID() != lease.Handle().ID() {
		t.Error("空闲标签页应被复用")
	}
	if factory.Created() != 1 {
		t.Errorf("复用时不应创建新标签页, 得到 %d", factory.Created())
	}
	pool.Release(again)
}

func TestPagePool_FIFOAndBound(t *testing.T) {
	const capacity = 2
	const waiters = 5
	pool, _ := newPool(capacity, waiters)
	defer pool.Close()

	held := make([]*crawlers.Lease, 0, capacity)
	for i := 0; i < capacity; i++ {
		lease, err := pool.Acquire(context.Background())
		if err != nil {
			t.Fatalf("Acquire失败: %v", err)
		}
		held = append(held, lease)
	}

	type served struct {
		idx   int
		lease *crawlers.Lease
	}
	results := make(chan served, waiters)
	for i := 0; i < waiters; i++ {
		idx := i
		go func() {
			lease, err := pool.Acquire(context.Background())
			if err != nil {
				t.Errorf("等待者%d获取失败: %v", idx, err)
				return
			}
			results <- served{idx: idx, lease: lease}
		}()
		waitFor(t, "等待者入队", func() bool { return pool.Stats().Waiting == idx+1 })
	}

	for want := 0; want < waiters; want++ {
		if stats := pool.Stats(); stats.InUse > capacity || stats.Idle+stats.InUse > capacity {
			t.Fatalf("超过容量: %+v", stats)
		}

		pool.Release(held[0])
		held = held[1:]

		got := <-results
		if got.idx != want {
			t.Fatalf("FIFO顺序错误: 期望等待者%d, 得到 %d", want, got.idx)
		}
		held = append(held, got.lease)
	}

	for _, lease := range held {
		pool.Release(lease)
	}
	waitFor(t, "全部归还", func() bool {
		stats := pool.Stats()
		return stats.Idle == capacity && stats.InUse == 0 && stats.Waiting == 0 && stats.Recycling == 0
	})
}

func TestPagePool_SaturatedFailsImmediately(t *testing.T) {
	pool, _ := newPool(1, 2)
	defer pool.Close()

	first, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire失败: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := pool.Acquire(context.Background())
			if err != nil {
				t.Errorf("排队者获取失败: %v", err)
				return
			}
			pool.Release(lease)
		}()
	}
	waitFor(t, "两个等待者入队", func() bool { return pool.Stats().Waiting == 2 })

	start := time.Now()
	_, err = pool.Acquire(context.Background())
	if !errors.Is(err, models.ErrPoolSaturated) {
		t.Fatalf("期望 ErrPoolSaturated, 得到 %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("饱和时应立即失败, 耗时 %v", elapsed)
	}

	pool.Release(first)
	wg.Wait()
}

func TestPagePool_ZeroWaitlist(t *testing.T) {
	pool, _ := newPool(1, 0)
	defer pool.Close()

	lease, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire失败: %v", err)
	}
	defer pool.Release(lease)

	if _, err := pool.Acquire(context.Background()); !errors.Is(err, models.ErrPoolSaturated) {
		t.Errorf("等待队列为0时期望 ErrPoolSaturated, 得到 %v", err)
	}
}

func TestPagePool_ReleaseBalanced(t *testing.T) {
	pool, _ := newPool(3, 3)
	defer pool.Close()

	for round := 0; round < 5; round++ {
		before := pool.Stats()
		lease, err := pool.Acquire(context.Background())
		if err != nil {
			t.Fatalf("Acquire失败: %v", err)
		}
		pool.Release(lease)
		pool.Release(lease) // 重复归还应被忽略

		waitFor(t, "后台重置完成", func() bool { return pool.Stats().Recycling == 0 })
		after := pool.Stats()
		if round > 0 && after.Idle+after.InUse != before.Idle+before.InUse {
			t.Errorf("第%d轮借还不平衡: %+v -> %+v", round, before, after)
		}
		if after.InUse != 0 {
			t.Errorf("第%d轮归还后仍有借出: %+v", round, after)
		}
	}
}

func TestPagePool_ReleaseDoesNotWaitForReset(t *testing.T) {
	pool, factory := newPool(1, 0)
	defer pool.Close()

	lease, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire失败: %v", err)
	}
	slow := factory.Pages()[0]
	slow.SetResetDelay(300 * time.Millisecond)

	start := time.Now()
	pool.Release(lease)
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("归还不应等待重置完成, 耗时 %v", elapsed)
	}
	if s := pool.Stats(); s.Recycling != 1 || s.InUse != 0 {
		t.Errorf("期望1个标签页后台重置中: %+v", s)
	}

	// 等待队列为0时,回收中的标签页仍可交给下一个请求
	again, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("回收期间获取应排队等待, 得到 %v", err)
	}
	if again.Handle().ID() != lease.Handle().ID() {
		t.Error("等待者应拿到重置后的同一个标签页")
	}
	if slow.Resets() != 1 {
		t.Errorf("交付前应完成重置, 重置次数 %d", slow.Resets())
	}
	if factory.Created() != 1 {
		t.Errorf("不应额外创建标签页, 得到 %d", factory.Created())
	}

	// 回收名额只容纳一个等待者
	if _, err := pool.Acquire(context.Background()); !errors.Is(err, models.ErrPoolSaturated) {
		t.Errorf("期望 ErrPoolSaturated, 得到 %v", err)
	}
	pool.Release(again)
}

func TestPagePool_ResetFailureReplaced(t *testing.T) {
	pool, factory := newPool(1, 1)
	defer pool.Close()

	lease, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire失败: %v", err)
	}
	broken := factory.Pages()[0]
	broken.SetResetErr(errors.New("target closed"))

	pool.Release(lease)

	waitFor(t, "补齐替换标签页", func() bool {
		s := pool.Stats()
		return factory.Created() == 2 && s.Idle == 1 && s.Live == 1
	})
	if !broken.IsClosed() {
		t.Error("重置失败的标签页应被关闭")
	}
	if broken.Resets() != 2 {
		t.Errorf("重置失败应重试一次, 实际调用 %d 次", broken.Resets())
	}
}

func TestPagePool_DiscardBackfills(t *testing.T) {
	pool, factory := newPool(2, 2)
	defer pool.Close()

	a, _ := pool.Acquire(context.Background())
	b, _ := pool.Acquire(context.Background())

	pool.Discard(a, "任务超时")
	waitFor(t, "超时标签页被替换", func() bool {
		s := pool.Stats()
		return factory.Created() == 3 && s.Idle == 1 && s.InUse == 1
	})

	pool.Release(b)
	waitFor(t, "容量不应缩小", func() bool {
		s := pool.Stats()
		return s.Idle == 2 && s.Live == 2
	})
}

func TestPagePool_DiscardServesWaiter(t *testing.T) {
	pool, factory := newPool(1, 1)
	defer pool.Close()

	lease, _ := pool.Acquire(context.Background())

	got := make(chan *crawlers.Lease, 1)
	go func() {
		l, err := pool.Acquire(context.Background())
		if err != nil {
			t.Errorf("等待者获取失败: %v", err)
			close(got)
			return
		}
		got <- l
	}()
	waitFor(t, "等待者入队", func() bool { return pool.Stats().Waiting == 1 })

	pool.Discard(lease, "任务超时")

	select {
	case l := <-got:
		if l == nil {
			return
		}
		if l.Handle().ID() == lease.Handle().ID() {
			t.Error("等待者不应拿到被销毁的标签页")
		}
		if factory.Created() != 2 {
			t.Errorf("期望创建2个标签页, 得到 %d", factory.Created())
		}
		pool.Release(l)
	case <-time.After(2 * time.Second):
		t.Fatal("等待者没有拿到补齐的标签页")
	}
}

func TestPagePool_BackfillFailureFailsHeadWaiter(t *testing.T) {
	pool, factory := newPool(1, 2)
	defer pool.Close()

	lease, _ := pool.Acquire(context.Background())

	errs := make(chan error, 1)
	go func() {
		_, err := pool.Acquire(context.Background())
		errs <- err
	}()
	waitFor(t, "等待者入队", func() bool { return pool.Stats().Waiting == 1 })

	factory.FailNextCreate(errors.New("browser gone"))
	pool.Discard(lease, "任务超时")

	select {
	case err := <-errs:
		if !errors.Is(err, models.ErrBrowserDisconnected) {
			t.Errorf("期望 ErrBrowserDisconnected, 得到 %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("补齐失败时等待者应收到错误")
	}

	waitFor(t, "名额释放", func() bool { return pool.Stats().Live == 0 })
	again, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("补齐失败后再次获取应成功: %v", err)
	}
	pool.Release(again)
}

func TestPagePool_DisconnectInvalidatesEverything(t *testing.T) {
	pool, factory := newPool(2, 2)
	defer pool.Close()

	inFlight := make([]*crawlers.Lease, 0, 2)
	for i := 0; i < 2; i++ {
		lease, err := pool.Acquire(context.Background())
		if err != nil {
			t.Fatalf("Acquire失败: %v", err)
		}
		inFlight = append(inFlight, lease)
	}

	waiterErr := make(chan error, 1)
	go func() {
		_, err := pool.Acquire(context.Background())
		waiterErr <- err
	}()
	waitFor(t, "等待者入队", func() bool { return pool.Stats().Waiting == 1 })

	factory.Disconnect(errors.New("websocket closed"))

	select {
	case err := <-waiterErr:
		if !errors.Is(err, models.ErrBrowserDisconnected) {
			t.Errorf("等待者期望 ErrBrowserDisconnected, 得到 %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("断开后等待者应立即失败")
	}

	for i, lease := range inFlight {
		select {
		case <-lease.Context().Done():
			if cause := context.Cause(lease.Context()); !errors.Is(cause, models.ErrBrowserDisconnected) {
				t.Errorf("借出%d的取消原因错误: %v", i, cause)
			}
		default:
			t.Errorf("借出%d应被取消", i)
		}
		pool.Discard(lease, "浏览器断开")
	}

	if gen := pool.Stats().Generation; gen != 1 {
		t.Errorf("期望代数1, 得到 %d", gen)
	}

	fresh, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("断开后再次获取应成功: %v", err)
	}
	if factory.Created() != 3 {
		t.Errorf("期望创建新标签页(共3个), 得到 %d", factory.Created())
	}
	select {
	case <-fresh.Context().Done():
		t.Error("新借出不应处于取消状态")
	default:
	}
	pool.Release(fresh)

	waitFor(t, "旧标签页全部关闭", func() bool { return factory.OpenPages() == 1 })
}

func TestPagePool_WaiterCancelled(t *testing.T) {
	pool, _ := newPool(1, 1)
	defer pool.Close()

	lease, _ := pool.Acquire(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := pool.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("期望 DeadlineExceeded, 得到 %v", err)
	}
	if w := pool.Stats().Waiting; w != 0 {
		t.Errorf("取消后应移出等待队列, 仍有 %d", w)
	}

	pool.Release(lease)
	waitFor(t, "标签页回到空闲列表", func() bool { return pool.Stats().Idle == 1 })
}

func TestPagePool_Close(t *testing.T) {
	pool, factory := newPool(1, 1)

	lease, _ := pool.Acquire(context.Background())

	waiterErr := make(chan error, 1)
	go func() {
		_, err := pool.Acquire(context.Background())
		waiterErr <- err
	}()
	waitFor(t, "等待者入队", func() bool { return pool.Stats().Waiting == 1 })

	done := make(chan struct{})
	go func() {
		_ = pool.Close()
		close(done)
	}()

	if err := <-waiterErr; !errors.Is(err, models.ErrPoolClosed) {
		t.Errorf("期望 ErrPoolClosed, 得到 %v", err)
	}

	pool.Release(lease)
	<-done

	if _, err := pool.Acquire(context.Background()); !errors.Is(err, models.ErrPoolClosed) {
		t.Errorf("关闭后获取期望 ErrPoolClosed, 得到 %v", err)
	}
	waitFor(t, "标签页全部关闭", func() bool { return factory.OpenPages() == 0 })
}
