package nvram

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/deploymenttheory/go-nvstorage/internal/common/errors"
	"github.com/deploymenttheory/go-nvstorage/internal/common/fsutil"
	"go.etcd.io/bbolt"
)

// optionsBucket mirrors the /options node of the device tree
var optionsBucket = []byte("options")

const (
	// DefaultRegistryMaxSize is the per-variable limit of the options node
	DefaultRegistryMaxSize = 8192

	defaultRegistryTimeout = time.Second
)

// RegistryOptions configures OpenRegistry
type RegistryOptions struct {
	MaxVariableSize int
	// Timeout bounds how long Open waits for the file lock
	Timeout time.Duration
}

// Registry is a registry-style options node persisted in a bbolt file. Every
// mutation is a single bbolt transaction, so writes are all-or-nothing.
type Registry struct {
	db      *bbolt.DB
	maxSize int
}

// OpenRegistry opens (creating if needed) the options node stored at path
func OpenRegistry(path string, opts RegistryOptions) (*Registry, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: registry path not set", errors.ErrBackendUnavailable)
	}
	if err := fsutil.CreateDirIfNotExists(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrBackendUnavailable, err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultRegistryTimeout
	}
	maxSize := opts.MaxVariableSize
	if maxSize == 0 {
		maxSize = DefaultRegistryMaxSize
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", errors.ErrBackendUnavailable, path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(optionsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", errors.ErrBackendUnavailable, err)
	}

	return &Registry{db: db, maxSize: maxSize}, nil
}

func (r *Registry) Kind() Kind { return KindRegistry }

// Path returns the file backing the node
func (r *Registry) Path() string { return r.db.Path() }

func (r *Registry) Get(name string) ([]byte, error) {
	var value []byte
	err := r.db.View(func(tx *bbolt.Tx) error {
		// Seek rather than Get: a zero-length value may come back as nil
		key := []byte(name)
		k, stored := tx.Bucket(optionsBucket).Cursor().Seek(key)
		if k == nil || !bytes.Equal(k, key) {
			return fmt.Errorf("%w: %s", errors.ErrVariableNotFound, name)
		}
		// bbolt memory is only valid inside the transaction
		value = cloneBytes(stored)
		return nil
	})
	if err != nil {
		return nil, wrapRead(err)
	}
	return value, nil
}

func (r *Registry) Set(name string, value []byte) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := checkSize(name, value, r.maxSize); err != nil {
		return err
	}
	err := r.db.Update(func(tx *bbolt.Tx) error {
		// bbolt treats a nil value as empty; keep zero-length variables present
		if value == nil {
			value = []byte{}
		}
		return tx.Bucket(optionsBucket).Put([]byte(name), value)
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", errors.ErrBackendWrite, name, err)
	}
	return nil
}

func (r *Registry) Remove(name string) error {
	err := r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(optionsBucket).Delete([]byte(name))
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", errors.ErrBackendWrite, name, err)
	}
	return nil
}

func (r *Registry) Enumerate() ([]Variable, error) {
	var vars []Variable
	err := r.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(optionsBucket).ForEach(func(k, v []byte) error {
			vars = append(vars, Variable{Name: string(k), Value: cloneBytes(v)})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrBackendRead, err)
	}
	return vars, nil
}

func (r *Registry) Close() error {
	return r.db.Close()
}

func wrapRead(err error) error {
	if stderrors.Is(err, errors.ErrVariableNotFound) {
		return err
	}
	return fmt.Errorf("%w: %v", errors.ErrBackendRead, err)
}
