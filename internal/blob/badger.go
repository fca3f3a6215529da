package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"consent-ledger/pkg/platform/sentinel"
)

const badgerGCInterval = 5 * time.Minute

// Badger stores blobs in an embedded badger database. An empty directory
// opens an in-memory database.
type Badger struct {
	db     *badger.DB
	logger *slog.Logger
	stop   chan struct{}
	wg     sync.WaitGroup
}

func OpenBadger(dir string, logger *slog.Logger) (*Badger, error) {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	opts := badger.DefaultOptions(dir).
		WithLogger(badgerLogger{logger}).
		WithLoggingLevel(badger.WARNING)
	if dir == "" {
		opts = opts.WithInMemory(true)
	} else if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	b := &Badger{db: db, logger: logger, stop: make(chan struct{})}
	if dir != "" {
		b.wg.Add(1)
		go b.runGC()
	}
	return b, nil
}

func (b *Badger) Put(_ context.Context, data []byte) (ContentID, error) {
	cid := Compute(data)
	err := b.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(cid.key())
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(cid.key(), data)
	})
	if err != nil {
		return "", fmt.Errorf("badger put: %w", err)
	}
	return cid, nil
}

func (b *Badger) Get(_ context.Context, cid ContentID) ([]byte, error) {
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cid.key())
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("badger get: %w", err)
	}
	return verify(cid, data)
}

// Health reports an error once the database has been closed.
func (b *Badger) Health(context.Context) error {
	if b.db.IsClosed() {
		return errors.New("badger closed")
	}
	return nil
}

func (b *Badger) Close() error {
	close(b.stop)
	b.wg.Wait()
	return b.db.Close()
}

func (b *Badger) runGC() {
	defer b.wg.Done()
	ticker := time.NewTicker(badgerGCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for {
				err := b.db.RunValueLogGC(0.5)
				if err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) {
						b.logger.Warn("blob value log gc failed", "error", err)
					}
					break
				}
			}
		case <-b.stop:
			return
		}
	}
}

// badgerLogger adapts slog to badger.Logger.
type badgerLogger struct {
	l *slog.Logger
}

func (b badgerLogger) Errorf(format string, args ...any) {
	b.l.Error(fmt.Sprintf(format, args...), "component", "badger")
}

func (b badgerLogger) Warningf(format string, args ...any) {
	b.l.Warn(fmt.Sprintf(format, args...), "component", "badger")
}

func (b badgerLogger) Infof(format string, args ...any) {
	b.l.Info(fmt.Sprintf(format, args...), "component", "badger")
}

func (b badgerLogger) Debugf(format string, args ...any) {
	b.l.Debug(fmt.Sprintf(format, args...), "component", "badger")
}
