package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const hourLayout = "2006-01-02-15"

// Journal appends JSON lines to zstd segments, one per UTC hour, named
// <prefix>-YYYY-MM-DD-HH.jsonl.zst. Reopening an hour appends a new zstd frame.
type Journal struct {
	dir    string
	prefix string
	clock  func() time.Time

	mu  sync.Mutex
	seg *segment
}

// segment is the open file for one hour.
type segment struct {
	hour string
	file *os.File
	zw   *zstd.Encoder
	buf  *bufio.Writer
}

func NewJournal(dir, prefix string) *Journal {
	return &Journal{dir: dir, prefix: prefix, clock: time.Now}
}

// SegmentPath is the file holding entries written during the hour of t.
func (j *Journal) SegmentPath(t time.Time) string {
	return filepath.Join(j.dir, fmt.Sprintf("%s-%s.jsonl.zst", j.prefix, t.UTC().Format(hourLayout)))
}

func (j *Journal) Write(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	now := j.clock()
	if j.seg == nil || j.seg.hour != now.UTC().Format(hourLayout) {
		if err := j.switchTo(now); err != nil {
			return err
		}
	}
	if _, err := j.seg.buf.Write(line); err != nil {
		return err
	}
	return j.seg.buf.Flush()
}

// Close finishes the open segment. The journal can be written to again.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	err := j.seg.close()
	j.seg = nil
	return err
}

func (j *Journal) switchTo(now time.Time) error {
	err := j.seg.close()
	j.seg = nil
	if err != nil {
		return err
	}
	seg, err := openSegment(j.SegmentPath(now))
	if err != nil {
		return err
	}
	seg.hour = now.UTC().Format(hourLayout)
	j.seg = seg
	return nil
}

func openSegment(path string) (*segment, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		f.Close()
		return nil, err
	}
	return &segment{file: f, zw: zw, buf: bufio.NewWriterSize(zw, 128*1024)}, nil
}

func (s *segment) close() error {
	if s == nil {
		return nil
	}
	return errors.Join(s.buf.Flush(), s.zw.Close(), s.file.Close())
}

// ReadJSONL decodes every line of the closed journal files for prefix in dir, in
// file name order, calling fn with the raw line.
func ReadJSONL(dir, prefix string, fn func(line []byte) error) error {
	paths, err := filepath.Glob(filepath.Join(dir, prefix+"-*.jsonl.zst"))
	if err != nil {
		return err
	}
	sort.Strings(paths)
	for _, path := range paths {
		if err := readFile(path, fn); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

func readFile(path string, fn func([]byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()
	br := bufio.NewReaderSize(dec, 128*1024)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 1 {
			if ferr := fn(line[:len(line)-1]); ferr != nil {
				return ferr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// FrameEntry is one octree update.
type FrameEntry struct {
	Frame    int        `json:"frame"`
	Time     float64    `json:"time"`
	View     [3]float32 `json:"view"`
	Duration int64      `json:"duration_us"`

	ScheduledMain       int  `json:"scheduled_main"`
	ScheduledBackground int  `json:"scheduled_background"`
	Completed           int  `json:"completed"`
	Discarded           int  `json:"discarded,omitempty"`
	Pending             int  `json:"pending"`
	ActiveNodes         int  `json:"active_nodes"`
	RenderedNodes       int  `json:"rendered_nodes"`
	Triangles           int  `json:"triangles"`
	Changed             bool `json:"changed"`

	ResidentChunks int    `json:"resident_chunks"`
	PageIns        uint64 `json:"page_ins"`
	PageOuts       uint64 `json:"page_outs"`
	Evictions      uint64 `json:"evictions"`
}

// PageEvent records a chunk becoming resident.
type PageEvent struct {
	At      string `json:"at"`
	Lower   [3]int `json:"lower"`
	Side    int    `json:"side"`
	Created bool   `json:"created"`
}

// FrameLogger writes one JSONL entry per frame (compressed).
type FrameLogger struct{ w *Journal }

func NewFrameLogger(dir string) *FrameLogger {
	return &FrameLogger{w: NewJournal(filepath.Join(dir, "frames"), "frames")}
}

func (l *FrameLogger) WriteFrame(v FrameEntry) error { return l.w.Write(v) }
func (l *FrameLogger) Close() error                  { return l.w.Close() }

// PageLogger writes page-in events (compressed). Safe for concurrent use.
type PageLogger struct{ w *Journal }

func NewPageLogger(dir string) *PageLogger {
	return &PageLogger{w: NewJournal(filepath.Join(dir, "paging"), "paging")}
}

func (l *PageLogger) WritePage(v PageEvent) error { return l.w.Write(v) }
func (l *PageLogger) Close() error                { return l.w.Close() }
