// Package engine wires the storage layers — buffer pool, write-ahead log,
// lock manager, transaction registry, tables, and skip-list indexes — into
// a single embeddable instance, the Go analogue of how DaemonDB's now-retired
// storage_engine/structs.go and main.go bootstrapped its managers from one
// config struct, generalized to this engine's fixed-record/directory-page
// table model and added skip-list indexes.
package engine

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"

	"ledgercore/pkg/index/skiplist"
	"ledgercore/pkg/lock"
	"ledgercore/pkg/storage/basefile"
	"ledgercore/pkg/storage/buffer"
	"ledgercore/pkg/storage/pagedfile"
	"ledgercore/pkg/storage/table"
	"ledgercore/pkg/txn"
	"ledgercore/pkg/wal"
)

// Config bundles everything needed to construct an Engine, matching the
// engine's configuration surface one-for-one: pool sizing, WAL location and
// buffer size, and the skip-list tower height cap shared by every index
// created through this engine.
type Config struct {
	// Dir is the directory all data, directory, and log files are created
	// under.
	Dir string
	// BufferPoolPages is the buffer pool's frame capacity.
	BufferPoolPages int
	// LogFilename is the write-ahead log's file name, resolved under Dir.
	LogFilename string
	// LogBufferBytes is the write-ahead log's in-memory buffer size.
	LogBufferBytes int
	// PageSize documents the fixed on-disk page size every base file in
	// this engine uses. It is informational only — ids.PageSize is the
	// actual compile-time constant every layer is built against.
	PageSize int
	// SkipListMaxLevel caps the tower height of every index created
	// through this engine.
	SkipListMaxLevel int
}

// DefaultConfig returns a Config with reasonable sizes for a single
// embedded instance.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:              dir,
		BufferPoolPages:  1024,
		LogFilename:      "wal.log",
		LogBufferBytes:   1 << 20,
		PageSize:         4096,
		SkipListMaxLevel: 16,
	}
}

// Engine is a single embeddable storage instance: one buffer pool, one
// write-ahead log, one lock manager, and a registry of tables and indexes
// built on top of them.
type Engine struct {
	cfg Config

	pool  *buffer.Pool
	log   *wal.LogManager
	locks *lock.Manager
	txns  *txn.Registry

	mu      sync.Mutex
	nextFID uint32
	tables  map[string]*table.Table
	indexes map[string]*skiplist.SkipList
}

// Open constructs an Engine from cfg, creating its log file under cfg.Dir.
func Open(cfg Config) (*Engine, error) {
	pool := buffer.NewPool(cfg.BufferPoolPages)
	pool.Logf = func(format string, args ...any) { fmt.Printf(format+"\n", args...) }

	logPath := filepath.Join(cfg.Dir, cfg.LogFilename)
	log, err := wal.Open(logPath, cfg.LogBufferBytes)
	if err != nil {
		return nil, fmt.Errorf("engine: open log: %w", err)
	}
	log.Logf = func(format string, args ...any) { fmt.Printf(format+"\n", args...) }

	locks := lock.NewManager()
	locks.Logf = func(format string, args ...any) { fmt.Printf(format+"\n", args...) }
	registry := txn.NewRegistry(log, locks)

	fmt.Printf("[engine] open dir=%s pool=%d pages log=%s bufsize=%s\n",
		cfg.Dir, cfg.BufferPoolPages, logPath, humanize.Bytes(uint64(cfg.LogBufferBytes)))

	return &Engine{
		cfg:     cfg,
		pool:    pool,
		log:     log,
		locks:   locks,
		txns:    registry,
		nextFID: 1,
		tables:  make(map[string]*table.Table),
		indexes: make(map[string]*skiplist.SkipList),
	}, nil
}

// Begin starts a new transaction against this engine's lock manager and log.
func (e *Engine) Begin() *txn.Transaction { return e.txns.Begin() }

// Active returns the engine's currently active transactions.
func (e *Engine) Active() []*txn.Transaction { return e.txns.Active() }

// Locks returns the engine's lock manager, for components (tables, indexes)
// that need to acquire record-level locks directly.
func (e *Engine) Locks() *lock.Manager { return e.locks }

func (e *Engine) allocFileID() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextFID
	e.nextFID++
	return id
}

// CreateTable creates a new fixed-record-size table named name, backed by
// two freshly allocated base files (data and directory) under the engine's
// directory. Returns an error if a table with that name already exists.
func (e *Engine) CreateTable(name string, recordSize uint16) (*table.Table, error) {
	e.mu.Lock()
	if _, exists := e.tables[name]; exists {
		e.mu.Unlock()
		return nil, fmt.Errorf("engine: table %q already exists", name)
	}
	e.mu.Unlock()

	dataFileID := e.allocFileID()
	dirFileID := e.allocFileID()

	dataPath := filepath.Join(e.cfg.Dir, name+".tbl")
	dirPath := filepath.Join(e.cfg.Dir, name+".dir")

	dataFile, err := basefile.Open(dataFileID, dataPath)
	if err != nil {
		return nil, fmt.Errorf("engine: open data file for table %q: %w", name, err)
	}
	dirFile, err := basefile.Open(dirFileID, dirPath)
	if err != nil {
		return nil, fmt.Errorf("engine: open directory file for table %q: %w", name, err)
	}

	e.pool.RegisterFile(dataFile)
	e.pool.RegisterFile(dirFile)

	pf, err := pagedfile.New(e.pool, dataFile, dirFile, recordSize)
	if err != nil {
		return nil, fmt.Errorf("engine: init paged file for table %q: %w", name, err)
	}

	tbl, err := table.New(name, pf, e.pool, e.log)
	if err != nil {
		return nil, fmt.Errorf("engine: init table %q: %w", name, err)
	}

	e.mu.Lock()
	e.tables[name] = tbl
	e.mu.Unlock()

	fmt.Printf("[engine] create table %s recordSize=%d\n", name, recordSize)
	return tbl, nil
}

// Table returns the table named name, or false if no such table exists.
func (e *Engine) Table(name string) (*table.Table, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tbl, ok := e.tables[name]
	return tbl, ok
}

// CreateIndex creates a new skip-list index named name over fixed-size keys
// and payloads. Returns an error if an index with that name already exists.
func (e *Engine) CreateIndex(name string, keySize, payloadSize int) (*skiplist.SkipList, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.indexes[name]; exists {
		return nil, fmt.Errorf("engine: index %q already exists", name)
	}
	idx := skiplist.New(keySize, payloadSize, e.cfg.SkipListMaxLevel)
	e.indexes[name] = idx
	fmt.Printf("[engine] create index %s keySize=%d payloadSize=%d maxLevel=%d\n",
		name, keySize, payloadSize, e.cfg.SkipListMaxLevel)
	return idx, nil
}

// Index returns the index named name, or false if no such index exists.
func (e *Engine) Index(name string) (*skiplist.SkipList, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx, ok := e.indexes[name]
	return idx, ok
}

// Close flushes every dirty frame in the buffer pool and closes the
// write-ahead log. It does not attempt to roll back or resolve any
// transaction still in progress.
func (e *Engine) Close() error {
	if err := e.pool.FlushAll(); err != nil {
		return fmt.Errorf("engine: flush buffer pool: %w", err)
	}
	if err := e.log.Close(); err != nil {
		return fmt.Errorf("engine: close log: %w", err)
	}
	fmt.Printf("[engine] close dir=%s\n", e.cfg.Dir)
	return nil
}
