package tradelog

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	mu  sync.Mutex
	ist = time.FixedZone("IST", 19800)
)

// Entry is one acknowledged order. PnL is set on orders that close a trade.
type Entry struct {
	Time, Symbol, Token, Side, Action, OrderID, Reason string
	Qty                                                int
	Price                                              float64
	PnL                                                float64        `json:"PnL,omitempty"`
	Extra                                              map[string]any `json:"extra,omitempty"`
}

// SignalEntry records a Supertrend signal change.
type SignalEntry struct {
	Time, Symbol, Signal, Direction string
	Price, Trend                    float64
	Extra                           map[string]any `json:"extra,omitempty"`
}

// LogDir is the directory daily logs are written to (TRADER_LOG_DIR, default "logs").
func LogDir() string {
	if v := os.Getenv("TRADER_LOG_DIR"); v != "" {
		return v
	}
	return "logs"
}

// DailyFilepath returns the trade log for t's IST date.
func DailyFilepath(t time.Time) string {
	d := t.In(ist).Format("2006-01-02")
	return filepath.Join(LogDir(), d+".txt")
}

func signalsFilepath(t time.Time) string {
	d := t.In(ist).Format("2006-01-02")
	return filepath.Join(LogDir(), "signals", d+".txt")
}

func Append(e Entry) error {
	now := time.Now().In(ist)
	e.Time = now.Format("2006-01-02 15:04:05")
	return appendLine(DailyFilepath(now), e)
}

func AppendSignal(e SignalEntry) error {
	now := time.Now().In(ist)
	e.Time = now.Format("2006-01-02 15:04:05")
	return appendLine(signalsFilepath(now), e)
}

func appendLine(p string, v any) error {
	mu.Lock()
	defer mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// CompressOlder gzips .txt logs older than retentionDays and removes the originals.
func CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	return filepath.WalkDir(LogDir(), func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(p) != ".txt" {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		gz := p + ".gz"
		if _, err := os.Stat(gz); err == nil {
			_ = os.Remove(p)
			return nil
		}
		if err := gzipFile(p, gz); err == nil {
			_ = os.Remove(p)
		}
		return nil
	})
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(out)
	_, copyErr := io.Copy(gw, in)
	closeErr := gw.Close()
	if err := out.Close(); err != nil && copyErr == nil && closeErr == nil {
		return err
	}
	if copyErr != nil {
		_ = os.Remove(dst)
		return copyErr
	}
	return closeErr
}
