// Package sqlitepager stores chunks as compressed blobs in a SQLite database.
// Evicted chunks are written behind: PageOut queues the blob and a single writer
// goroutine commits queued blobs in batches. Queued blobs are served to PageIn
// until they are committed.
package sqlitepager

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelterrain/internal/geom"
	"voxelterrain/internal/persistence/codec"
	"voxelterrain/internal/volume"
)

var ErrClosed = errors.New("sqlitepager: closed")

type Config[V comparable] struct {
	Path  string
	Codec codec.Chunk[V]
	// Fallback fills chunks the database has never seen. Nil leaves them empty.
	Fallback volume.Pager[V]
	// CommitEvery caps the number of blobs per transaction.
	CommitEvery int
	Logger      *log.Logger
}

type Stats struct {
	Loaded    uint64
	Stored    uint64
	Generated uint64
	Queued    int
}

type Pager[V comparable] struct {
	db          *sql.DB
	codec       codec.Chunk[V]
	fallback    volume.Pager[V]
	commitEvery int
	logger      *log.Logger

	mu      sync.Mutex
	pending map[chunkKey]pendingBlob
	seq     uint64
	werr    error

	// sendMu orders sends on ch against Close closing it.
	sendMu sync.RWMutex
	ch     chan write
	wg     sync.WaitGroup
	once   sync.Once
	closed atomic.Bool

	loaded    atomic.Uint64
	stored    atomic.Uint64
	generated atomic.Uint64
}

type chunkKey struct {
	X, Y, Z int
	Side    int
}

type pendingBlob struct {
	seq   uint64
	codec string
	blob  []byte
}

type write struct {
	key  chunkKey
	seq  uint64
	done chan error // barrier when non-nil
}

func Open[V comparable](cfg Config[V]) (*Pager[V], error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if cfg.Codec.Compressor == nil || cfg.Codec.Words.ToWord == nil {
		return nil, fmt.Errorf("sqlitepager: incomplete codec")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}
	if cfg.CommitEvery <= 0 {
		cfg.CommitEvery = 256
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[sqlitepager] ", log.LstdFlags)
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := checkVoxelKind(db, cfg.Codec.Words.Name); err != nil {
		_ = db.Close()
		return nil, err
	}

	p := &Pager[V]{
		db:          db,
		codec:       cfg.Codec,
		fallback:    cfg.Fallback,
		commitEvery: cfg.CommitEvery,
		logger:      logger,
		pending:     map[chunkKey]pendingBlob{},
		ch:          make(chan write, 4096),
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.loop()
	}()
	return p, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS chunks (
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			side INTEGER NOT NULL,
			codec TEXT NOT NULL,
			data BLOB NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (x, y, z, side)
		);`,
		`INSERT OR IGNORE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// checkVoxelKind pins the database to one voxel flavour.
func checkVoxelKind(db *sql.DB, kind string) error {
	var have string
	err := db.QueryRow(`SELECT value FROM meta WHERE key='voxel'`).Scan(&have)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = db.Exec(`INSERT INTO meta(key,value) VALUES('voxel',?)`, kind)
		return err
	}
	if err != nil {
		return err
	}
	if have != kind {
		return fmt.Errorf("sqlitepager: database holds %q voxels, want %q", have, kind)
	}
	return nil
}

func keyOf(r geom.Region, side int) chunkKey {
	return chunkKey{X: r.Min.X, Y: r.Min.Y, Z: r.Min.Z, Side: side}
}

func (p *Pager[V]) PageIn(r geom.Region, c *volume.Chunk[V]) (bool, error) {
	key := keyOf(r, c.SideLength())

	p.mu.Lock()
	pb, queued := p.pending[key]
	p.mu.Unlock()

	name, blob := pb.codec, pb.blob
	if !queued {
		err := p.db.QueryRow(`SELECT codec, data FROM chunks WHERE x=? AND y=? AND z=? AND side=?`,
			key.X, key.Y, key.Z, key.Side).Scan(&name, &blob)
		if errors.Is(err, sql.ErrNoRows) {
			p.generated.Add(1)
			if p.fallback != nil {
				return p.fallback.PageIn(r, c)
			}
			return true, nil
		}
		if err != nil {
			return false, fmt.Errorf("load chunk %v: %w", r, err)
		}
	}

	cc, err := p.codecFor(name)
	if err != nil {
		return false, err
	}
	if err := cc.Decode(blob, c.Data()); err != nil {
		return false, fmt.Errorf("decode chunk %v: %w", r, err)
	}
	p.loaded.Add(1)
	return false, nil
}

// codecFor accepts blobs written with another compressor so the compression
// setting can change between runs.
func (p *Pager[V]) codecFor(name string) (codec.Chunk[V], error) {
	if name == p.codec.Name() {
		return p.codec, nil
	}
	words, comp, ok := strings.Cut(name, "+")
	if !ok || words != p.codec.Words.Name {
		return codec.Chunk[V]{}, fmt.Errorf("sqlitepager: unsupported blob codec %q", name)
	}
	c, err := codec.NewCompressor(comp)
	if err != nil {
		return codec.Chunk[V]{}, err
	}
	return codec.Chunk[V]{Words: p.codec.Words, Compressor: c}, nil
}

func (p *Pager[V]) PageOut(r geom.Region, c *volume.Chunk[V]) error {
	blob, err := p.codec.Encode(c.Data())
	if err != nil {
		return fmt.Errorf("encode chunk %v: %w", r, err)
	}
	key := keyOf(r, c.SideLength())

	p.sendMu.RLock()
	defer p.sendMu.RUnlock()
	if p.closed.Load() {
		return ErrClosed
	}
	p.mu.Lock()
	p.seq++
	seq := p.seq
	p.pending[key] = pendingBlob{seq: seq, codec: p.codec.Name(), blob: blob}
	p.mu.Unlock()

	p.ch <- write{key: key, seq: seq}
	return nil
}

// Sync waits until every queued blob is committed and returns the first write
// error seen so far.
func (p *Pager[V]) Sync() error {
	p.sendMu.RLock()
	if p.closed.Load() {
		p.sendMu.RUnlock()
		return ErrClosed
	}
	done := make(chan error, 1)
	p.ch <- write{done: done}
	p.sendMu.RUnlock()
	return <-done
}

// Close commits queued blobs and closes the database.
func (p *Pager[V]) Close() error {
	var err error
	p.once.Do(func() {
		p.sendMu.Lock()
		p.closed.Store(true)
		close(p.ch)
		p.sendMu.Unlock()
		p.wg.Wait()
		p.mu.Lock()
		err = p.werr
		p.mu.Unlock()
		if cerr := p.db.Close(); err == nil {
			err = cerr
		}
	})
	return err
}

func (p *Pager[V]) Stats() Stats {
	p.mu.Lock()
	queued := len(p.pending)
	p.mu.Unlock()
	return Stats{
		Loaded:    p.loaded.Load(),
		Stored:    p.stored.Load(),
		Generated: p.generated.Load(),
		Queued:    queued,
	}
}

// Count is the number of committed chunks.
func (p *Pager[V]) Count(ctx context.Context) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}

func (p *Pager[V]) loop() {
	batch := make([]write, 0, p.commitEvery)
	for w := range p.ch {
		batch = append(batch[:0], w)
	drain:
		for len(batch) < p.commitEvery {
			select {
			case more, ok := <-p.ch:
				if !ok {
					break drain
				}
				batch = append(batch, more)
			default:
				break drain
			}
		}
		p.commit(batch)
	}
}

func (p *Pager[V]) commit(batch []write) {
	err := p.writeBatch(batch)

	p.mu.Lock()
	if err != nil {
		if p.werr == nil {
			p.werr = err
		}
		p.logger.Printf("commit %d chunks: %v", len(batch), err)
	} else {
		for _, w := range batch {
			if w.done != nil {
				continue
			}
			if pb, ok := p.pending[w.key]; ok && pb.seq == w.seq {
				delete(p.pending, w.key)
			}
		}
	}
	werr := p.werr
	p.mu.Unlock()

	for _, w := range batch {
		if w.done != nil {
			w.done <- werr
		}
	}
}

func (p *Pager[V]) writeBatch(batch []write) error {
	ctx := context.Background()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO chunks(x,y,z,side,codec,data,updated_at) VALUES(?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	n := 0
	for _, w := range batch {
		if w.done != nil {
			continue
		}
		p.mu.Lock()
		pb, ok := p.pending[w.key]
		p.mu.Unlock()
		// A later PageOut of the same chunk supersedes this one.
		if !ok || pb.seq != w.seq {
			continue
		}
		if _, err := stmt.Exec(w.key.X, w.key.Y, w.key.Z, w.key.Side, pb.codec, pb.blob, now); err != nil {
			return err
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	p.stored.Add(uint64(n))
	return nil
}
