// Package crawlers 提供浏览器标签页池和页面内容提取
//
// # 概述
//
// crawlers包负责"借一个标签页、打开页面、取出内容、还回标签页"这条路径上与调度无关的部分。
// 支持动态(go-rod无头Chrome)和静态(Colly)两种页面引擎,二者都实现PageFactory/PageHandle接口,
// 标签页池只依赖接口,测试中可以用假实现替换。
//
// # 核心组件
//
// ## PagePool (标签页池)
//
// 限制同时打开的标签页数量,按FIFO顺序分配,回收或替换标签页。
// 核心策略:
//   - 第一次Acquire时才启动浏览器(懒创建)
//   - 有空闲标签页立即返回,未达容量时创建,否则进入有界等待队列
//   - 等待队列已满时立即返回ErrPoolSaturated,不阻塞
//   - 归还立即返回,后台重置到about:blank后直接交给等待最久的等待者
//   - 后台重置中的标签页各为等待队列多留一个名额
//   - 重置失败或任务超时的标签页被销毁,后台补齐替换品,容量不缩小
//   - 浏览器断开时作废全部标签页,取消所有借出,等待者以ErrBrowserDisconnected失败
//
// 使用示例:
//
//	pool := NewPagePool(NewBrowserManager(browserConfig), PagePoolConfig{
//	    Capacity:      monitor.CalculateCapacity(),
//	    WaitlistLimit: 16,
//	})
//	defer pool.Close()
//
//	lease, err := pool.Acquire(ctx)
//	if err != nil { /* ErrPoolSaturated / ErrBrowserDisconnected */ }
//	defer pool.Release(lease)
//
//	err = lease.Handle().Navigate(ctx, url, policy)
//
// ## ResourceMonitor (资源监控器)
//
// 按CPU核数和可用内存推导默认容量,结果限制在[1, MaxTabsLimit](默认上限4)。
// 同时为健康检查和check命令提供内存/CPU快照。
//
// ## Extractor (内容提取器)
//
// 基于goquery的策略表: 首页和相册页各有一组选择器,按顺序尝试,第一个命中的策略生效。
// 提取结果通过Dedup按(类别, 规范化源URL)去重,保留首次出现顺序。
//
// # 并发安全
//
//   - PagePool: 单个sync.Mutex保护全部状态,等待者通过容量为1的channel接收结果
//   - BrowserManager: sync.Mutex保护浏览器实例,断开回调在监听goroutine中执行
//   - ResourceMonitor: 缓存和采样各自加锁
//   - Waitlist: 非并发安全,由PagePool的锁保护
package crawlers
