package config

import (
	"errors"
	"os"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/clipmark/ratekeeper-go/internal/constants"
)

// 监视器相关错误定义
var (
	ErrWatcherAlreadyStarted = errors.New(constants.ErrMsgWatcherAlreadyStarted)
)

// ReloadFunc 代表配置变更后的回调函数
type ReloadFunc func()

// Watcher 代表配置文件监视器，通过轮询修改时间检测变更
// 短时间内的连续修改会被去抖合并为一次回调，避免重复加载
type Watcher struct {
	path     string        // 被监视的配置文件路径
	interval time.Duration // 轮询间隔
	debounce time.Duration // 去抖静默期
	onReload ReloadFunc    // 变更回调
	logger   *logr.Logger  // 日志记录器

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewWatcher 创建新的配置文件监视器实例
// path: 配置文件路径
// cfg: 热加载配置
// logger: 日志记录器
// onReload: 变更回调，在去抖静默期结束后调用一次
func NewWatcher(path string, cfg *WatchConfig, logger *logr.Logger, onReload ReloadFunc) *Watcher {
	return &Watcher{
		path:     path,
		interval: time.Duration(cfg.Interval) * time.Millisecond,
		debounce: time.Duration(cfg.Debounce) * time.Millisecond,
		onReload: onReload,
		logger:   logger,
	}
}

// Start 启动监视器，在独立的goroutine中轮询文件变更
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return ErrWatcherAlreadyStarted
	}

	w.running = true
	w.stopCh = make(chan struct{})

	w.wg.Add(1)
	go w.loop()

	w.logger.Info("Config watcher started", "path", w.path, "interval", w.interval.String())
	return nil
}

// Stop 停止监视器并等待轮询goroutine退出
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	w.wg.Wait()
	w.logger.Info("Config watcher stopped", "path", w.path)
}

// IsRunning 检查监视器是否正在运行
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// loop 轮询文件修改时间，检测到变更后等待去抖静默期再触发回调
func (w *Watcher) loop() {
	defer w.wg.Done()

	lastMod := w.currentModTime()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var (
		dirty      bool
		lastChange time.Time
	)

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			mod := w.currentModTime()
			if !mod.IsZero() && mod != lastMod {
				// 记录变更但不立即触发，等待静默期合并连续修改
				lastMod = mod
				dirty = true
				lastChange = time.Now()
				continue
			}

			if dirty && time.Since(lastChange) >= w.debounce {
				dirty = false
				w.logger.Info("Config file changed, reloading", "path", w.path)
				w.onReload()
			}
		}
	}
}

// currentModTime 获取文件当前修改时间，文件不存在时返回零值
func (w *Watcher) currentModTime() time.Time {
	info, err := os.Stat(w.path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
