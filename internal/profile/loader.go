package profile

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"tfmr/internal/logger"
)

// fileConfig 是完整的档案配置文件结构。
type fileConfig struct {
	Profiles map[string]Definition `mapstructure:"profiles"`
}

// Snapshot 对外暴露的只读快照，Profiles 已并入内置档案。
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Profiles map[string]Definition
}

// Names 返回快照内档案名的升序列表。
func (s Snapshot) Names() []string {
	return sortedNames(s.Profiles)
}

// Resolve 按名字取档案；找不到时回落到 default 标记的内置档案。
func (s Snapshot) Resolve(name string) (Definition, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if def, ok := s.Profiles[key]; ok {
		return def, true
	}
	for _, def := range s.Profiles {
		if def.Default {
			return def, false
		}
	}
	return Definition{}, false
}

// ChangeListener 在档案文件变更时被调用。
type ChangeListener func(Snapshot)

// Loader 从 YAML 文件加载券商档案，并监听热更新。
type Loader struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// NewLoader 读取档案文件；watch 为真时开始监听 FS 事件。
func NewLoader(path string, watch bool) (*Loader, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("profile loader requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read profiles config failed: %w", err)
	}
	l := &Loader{path: path, v: v}
	if err := l.reload(); err != nil {
		return nil, err
	}
	if watch {
		v.OnConfigChange(func(evt fsnotify.Event) {
			if err := l.reload(); err != nil {
				logger.Errorf("profiles reload failed (%s): %v", evt.Name, err)
				return
			}
			l.notify()
		})
		v.WatchConfig()
	}
	return l, nil
}

// NewStatic 构造只含内置档案的 Loader，不读文件不监听。
func NewStatic() *Loader {
	l := &Loader{}
	l.snapshot = Snapshot{
		Version:  1,
		LoadedAt: time.Now(),
		Profiles: Builtin(),
	}
	return l
}

// Snapshot 返回当前档案快照（深拷贝）。
func (l *Loader) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneSnapshot(l.snapshot)
}

// Subscribe 注册监听器，并立即收到一次完整快照。
func (l *Loader) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	snap := cloneSnapshot(l.snapshot)
	l.mu.Unlock()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("profile listener panic: %v", r)
			}
		}()
		fn(snap)
	}()
}

func (l *Loader) notify() {
	l.mu.RLock()
	snap := cloneSnapshot(l.snapshot)
	listeners := append([]ChangeListener(nil), l.listeners...)
	l.mu.RUnlock()
	for _, fn := range listeners {
		if fn == nil {
			continue
		}
		go func(cb ChangeListener) {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("profile listener panic: %v", r)
				}
			}()
			cb(snap)
		}(fn)
	}
}

func (l *Loader) reload() error {
	if err := validateFile(l.path); err != nil {
		return err
	}
	var fileCfg fileConfig
	if err := l.v.Unmarshal(&fileCfg); err != nil {
		return fmt.Errorf("parse profiles config failed: %w", err)
	}
	merged := Builtin()
	for name, def := range fileCfg.Profiles {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		merged[key] = normalizeDefinition(name, def)
	}
	l.mu.Lock()
	l.snapshot = Snapshot{
		Version:  l.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Profiles: merged,
	}
	l.mu.Unlock()
	logger.Infof("profiles reloaded: %d entries from %s", len(merged), filepath.Base(l.path))
	return nil
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := Snapshot{
		Version:  src.Version,
		LoadedAt: src.LoadedAt,
		Profiles: make(map[string]Definition, len(src.Profiles)),
	}
	for name, def := range src.Profiles {
		dst.Profiles[name] = def
	}
	return dst
}
