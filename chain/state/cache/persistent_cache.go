package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/multifork/logging"
	"github.com/crytic/multifork/utils"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

const (
	// cacheDirectoryName is the directory created inside the configured cache directory.
	cacheDirectoryName = ".multifork-cache"

	// cacheBucket is the bbolt bucket holding every entry of a cache file.
	cacheBucket = "cache"

	// keyPrefixStateObject and keyPrefixSlot separate the query kinds stored in a cache file.
	keyPrefixStateObject byte = 'o'
	keyPrefixSlot        byte = 's'
)

// persistentCache provides a thread-safe cache for storing objects/slots that persists the cache to disk. Reads are
// served from memory first, then from disk. Writes go to memory immediately and are flushed to disk in batches.
type persistentCache struct {
	memCache *nonPersistentStateCache
	db       *bbolt.DB

	pendingWriteMutex sync.Mutex
	pendingWrites     []pendingWrite
	flushThreshold    int

	closeOnce sync.Once
	closeErr  error

	logger *logging.Logger
}

type pendingWrite struct {
	key   []byte
	value []byte
}

func newPersistentCache(ctx context.Context, workingDir string, rpcAddr string, height uint64) (*persistentCache, error) {
	cacheDir, err := createCacheDirectory(workingDir)
	if err != nil {
		return nil, err
	}
	cacheFile := filepath.Join(cacheDir, getCacheFilename(rpcAddr, height))
	db, err := bbolt.Open(cacheFile, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "could not open cache file %s", cacheFile)
	}

	// create default bucket if it doesn't exist
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(cacheBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	p := &persistentCache{
		memCache:       newNonPersistentStateCache(),
		db:             db,
		flushThreshold: 25,
		pendingWrites:  []pendingWrite{},
		logger:         logging.GlobalLogger.NewSubLogger("module", logging.CACHE_SERVICE),
	}
	p.logger.Debug("Opened remote state cache ", cacheFile)

	// close db if context cancelled
	go func() {
		<-ctx.Done()
		if err := p.Close(); err != nil {
			p.logger.Error("Failed to close the remote state cache", err)
		}
	}()

	return p, nil
}

// getFromPersist decodes the entry stored under key into value. Returns false if no entry exists.
func (p *persistentCache) getFromPersist(key []byte, value interface{}) (bool, error) {
	found := false
	err := p.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(cacheBucket)).Get(key)
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, value)
	})
	if err != nil {
		return false, errors.Wrap(err, "could not get value")
	}
	return found, nil
}

// writeToPersist queues an entry for the next flush, flushing once the threshold is reached.
func (p *persistentCache) writeToPersist(key []byte, value interface{}) error {
	serialized, err := json.Marshal(value)
	if err != nil {
		return err
	}

	p.pendingWriteMutex.Lock()
	defer p.pendingWriteMutex.Unlock()

	p.pendingWrites = append(p.pendingWrites, pendingWrite{key: key, value: serialized})
	if len(p.pendingWrites) >= p.flushThreshold {
		return p.flushWrites()
	}
	return nil
}

// flushWrites writes every pending entry in a single transaction. Callers must hold pendingWriteMutex.
func (p *persistentCache) flushWrites() error {
	if len(p.pendingWrites) == 0 {
		return nil
	}
	err := p.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(cacheBucket))
		for _, pw := range p.pendingWrites {
			if err := bucket.Put(pw.key, pw.value); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		p.pendingWrites = p.pendingWrites[:0]
	}
	return err
}

func (p *persistentCache) GetStateObject(addr common.Address) (*StateObject, error) {
	if so, err := p.memCache.GetStateObject(addr); err == nil {
		return so, nil
	}

	// check persistent cache
	s := StateObject{}
	exists, err := p.getFromPersist(stateObjectKey(addr), &s)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrCacheMiss
	}
	err = p.memCache.WriteStateObject(addr, s)
	return &s, err
}

func (p *persistentCache) GetSlotData(addr common.Address, slot common.Hash) (common.Hash, error) {
	if data, err := p.memCache.GetSlotData(addr, slot); err == nil {
		return data, nil
	}

	// check persistent cache
	data := common.Hash{}
	exists, err := p.getFromPersist(slotKey(addr, slot), &data)
	if err != nil {
		return common.Hash{}, err
	}
	if !exists {
		return common.Hash{}, ErrCacheMiss
	}
	err = p.memCache.WriteSlotData(addr, slot, data)
	return data, err
}

func (p *persistentCache) WriteStateObject(addr common.Address, data StateObject) error {
	if err := p.memCache.WriteStateObject(addr, data); err != nil {
		return err
	}
	return p.writeToPersist(stateObjectKey(addr), data)
}

func (p *persistentCache) WriteSlotData(addr common.Address, slot common.Hash, data common.Hash) error {
	if err := p.memCache.WriteSlotData(addr, slot, data); err != nil {
		return err
	}
	return p.writeToPersist(slotKey(addr, slot), data)
}

// Close flushes pending writes and closes the underlying database. Subsequent calls return the first result.
func (p *persistentCache) Close() error {
	p.closeOnce.Do(func() {
		p.pendingWriteMutex.Lock()
		flushErr := p.flushWrites()
		p.pendingWriteMutex.Unlock()

		closeErr := p.db.Close()
		if flushErr != nil {
			p.closeErr = flushErr
		} else {
			p.closeErr = closeErr
		}
	})
	return p.closeErr
}

func stateObjectKey(addr common.Address) []byte {
	key := make([]byte, 0, 1+common.AddressLength)
	key = append(key, keyPrefixStateObject)
	return append(key, addr[:]...)
}

func slotKey(addr common.Address, slot common.Hash) []byte {
	key := make([]byte, 0, 1+common.AddressLength+common.HashLength)
	key = append(key, keyPrefixSlot)
	key = append(key, addr[:]...)
	return append(key, slot[:]...)
}

func createCacheDirectory(workingDir string) (string, error) {
	cachePath := filepath.Join(workingDir, cacheDirectoryName)
	if err := utils.MakeDirectory(cachePath); err != nil {
		return "", errors.Wrap(err, "failed to create cache directory")
	}
	return cachePath, nil
}

func getCacheFilename(rpcAddr string, height uint64) string {
	h := sha256.New()
	h.Write([]byte(rpcAddr))
	bs := h.Sum(nil)

	return fmt.Sprintf("%d-%x.dat", height, bs[0:10])
}
