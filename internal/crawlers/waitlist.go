package crawlers

import (
	"container/list"
	"time"
)

// acquireResult 交付给等待者的结果,lease和err二选一
type acquireResult struct {
	lease *Lease
	err   error
}

// waiter 等待标签页的获取者
type waiter struct {
	ch         chan acquireResult // 容量为1,交付永不阻塞
	enqueuedAt time.Time
}

func newWaiter() *waiter {
	return &waiter{
		ch:         make(chan acquireResult, 1),
		enqueuedAt: time.Now(),
	}
}

// Waitlist 有界FIFO等待队列
// 职责: 按到达顺序保存等待者,超过上限时拒绝入队
// 非并发安全,由PagePool的锁保护
type Waitlist struct {
	items *list.List
	index map[*waiter]*list.Element
	limit int
}

// NewWaitlist 创建等待队列,limit为0表示不允许排队
func NewWaitlist(limit int) *Waitlist {
	if limit < 0 {
		limit = 0
	}
	return &Waitlist{
		items: list.New(),
		index: make(map[*waiter]*list.Element),
		limit: limit,
	}
}

// Push 入队,长度达到limit+extra时返回false
// extra为即将可交付的标签页数,这些等待者不会无限期等待
func (q *Waitlist) Push(w *waiter, extra int) bool {
	if q.items.Len() >= q.limit+extra {
		return false
	}
	q.index[w] = q.items.PushBack(w)
	return true
}

// Pop 取出等待最久的等待者,队列为空时返回nil
func (q *Waitlist) Pop() *waiter {
	front := q.items.Front()
	if front == nil {
		return nil
	}
	w := q.items.Remove(front).(*waiter)
	delete(q.index, w)
	return w
}

// Remove 移除指定等待者(等待被取消),已被取出时返回false
func (q *Waitlist) Remove(w *waiter) bool {
	elem, ok := q.index[w]
	if !ok {
		return false
	}
	q.items.Remove(elem)
	delete(q.index, w)
	return true
}

// Drain 按顺序取出全部等待者
func (q *Waitlist) Drain() []*waiter {
	drained := make([]*waiter, 0, q.items.Len())
	for w := q.Pop(); w != nil; w = q.Pop() {
		drained = append(drained, w)
	}
	return drained
}

// Len 当前等待数量
func (q *Waitlist) Len() int {
	return q.items.Len()
}

// Limit 队列上限
func (q *Waitlist) Limit() int {
	return q.limit
}

// Full 队列是否已满
func (q *Waitlist) Full() bool {
	return q.items.Len() >= q.limit
}
