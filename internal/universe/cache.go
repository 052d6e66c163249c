package universe

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// 缓存条目少于这个数说明文件被截断或来源当时就坏了，不作数。
const minCacheTickers = 20

// cacheEntry 是票池的磁盘快照。
type cacheEntry struct {
	FetchedAt time.Time `json:"fetched_at"`
	Source    string    `json:"source"`
	Tickers   []Ticker  `json:"tickers"`
}

func readCache(path string) (cacheEntry, error) {
	var entry cacheEntry
	raw, err := os.ReadFile(path)
	if err != nil {
		return entry, err
	}
	if err := json.Unmarshal(raw, &entry); err != nil {
		return entry, fmt.Errorf("parse universe cache failed: %w", err)
	}
	if len(entry.Tickers) < minCacheTickers {
		return entry, fmt.Errorf("universe cache too small: %d < %d", len(entry.Tickers), minCacheTickers)
	}
	return entry, nil
}

func writeCache(path string, entry cacheEntry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}
	// 先写临时文件再改名，读端不会看见半截 JSON
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
