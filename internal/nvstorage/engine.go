// Package nvstorage stores named binary variables in a host variable store,
// optionally framed with a record header that layers checksum, compression and
// encryption over the payload. It can also snapshot the whole store to a
// property-list file and restore it.
//
// The public methods report success as a boolean (or a value/ok pair) and log
// the reason for any failure; callers treat a corrupt variable exactly like a
// missing one.
package nvstorage

import (
	stderrors "errors"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/deploymenttheory/go-nvstorage/internal/common/compressionutil"
	"github.com/deploymenttheory/go-nvstorage/internal/common/cryptoutil"
	"github.com/deploymenttheory/go-nvstorage/internal/common/errors"
	"github.com/deploymenttheory/go-nvstorage/internal/common/fsutil"
	"github.com/deploymenttheory/go-nvstorage/internal/common/plistutil"
	"github.com/deploymenttheory/go-nvstorage/internal/logger"
	"github.com/deploymenttheory/go-nvstorage/internal/nvram"
)

// State is the engine lifecycle position. Transitions are one-way:
// Uninitialized -> Initialized -> Deinitialized.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateDeinitialized
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateDeinitialized:
		return "deinitialized"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Detector locates the host variable store at Init time
type Detector func() (nvram.Backend, error)

// Option configures an Engine
type Option func(*Engine)

// WithBackend makes Init use b instead of probing the environment
func WithBackend(b nvram.Backend) Option {
	return func(e *Engine) {
		e.detect = func() (nvram.Backend, error) { return b, nil }
	}
}

// WithDetector sets the function Init uses to find a backend
func WithDetector(d Detector) Option {
	return func(e *Engine) {
		e.detect = d
	}
}

// WithCompression selects the codec used for newly written records. Records
// written with another codec stay readable.
func WithCompression(algorithm compression.Algorithm) Option {
	return func(e *Engine) {
		e.algorithm = algorithm
	}
}

// WithCipher replaces the payload cipher
func WithCipher(c cryptoutil.Cipher) Option {
	return func(e *Engine) {
		e.cipher = c
	}
}

// Engine is the NVStorage engine. Construct one per process with New, call Init
// before any other operation and Deinit when done. A single mutex serializes all
// operations; they are short and infrequent.
type Engine struct {
	mu sync.Mutex

	state      State
	detect     Detector
	backend    nvram.Backend
	algorithm  compression.Algorithm
	compressor *compression.Adapter
	cipher     cryptoutil.Cipher
}

// New creates an uninitialized engine
func New(opts ...Option) *Engine {
	e := &Engine{
		algorithm: compression.AlgorithmLZ4,
		cipher:    cryptoutil.NewStreamCipher(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Init attaches the engine to exactly one backend. It fails with
// ErrBackendUnavailable when none can be found, and cannot be repeated.
func (e *Engine) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateInitialized:
		return errors.ErrAlreadyInitialized
	case StateDeinitialized:
		return errors.ErrAlreadyDeinitialized
	}

	compressor, err := compression.NewAdapter(e.algorithm)
	if err != nil {
		return err
	}

	if e.detect == nil {
		return fmt.Errorf("%w: no detector configured", errors.ErrBackendUnavailable)
	}
	backend, err := e.detect()
	if err != nil {
		if !stderrors.Is(err, errors.ErrBackendUnavailable) {
			err = fmt.Errorf("%w: %v", errors.ErrBackendUnavailable, err)
		}
		logger.LogError("NVStorage initialization failed", err, nil)
		return err
	}
	if backend == nil {
		return fmt.Errorf("%w: detector returned no backend", errors.ErrBackendUnavailable)
	}

	e.backend = backend
	e.compressor = compressor
	e.state = StateInitialized

	logger.LogDebug("NVStorage initialized", map[string]interface{}{
		"backend":     backend.Kind().String(),
		"compression": e.algorithm.String(),
	})
	return nil
}

// Deinit releases the backend. The engine cannot be initialized again.
func (e *Engine) Deinit() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateDeinitialized {
		return nil
	}
	e.state = StateDeinitialized

	if e.backend == nil {
		return nil
	}
	err := e.backend.Close()
	e.backend = nil
	e.compressor = nil
	if err != nil {
		logger.LogError("NVStorage backend close failed", err, nil)
	}
	return err
}

// State returns the lifecycle state
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Kind returns the backend variant chosen at Init, or zero before Init
func (e *Engine) Kind() nvram.Kind {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.backend == nil {
		return 0
	}
	return e.backend.Kind()
}

// ready must be called with mu held
func (e *Engine) ready() error {
	if e.state != StateInitialized {
		return fmt.Errorf("%w: engine is %s", errors.ErrNotInitialized, e.state)
	}
	return nil
}

// Exists reports whether name is present in the backend
func (e *Engine) Exists(name string) bool {
	found, err := e.exists(name)
	if err != nil {
		logger.LogWarn("NVStorage exists check failed", map[string]interface{}{
			"name":  name,
			"error": err.Error(),
		})
	}
	return found
}

func (e *Engine) exists(name string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ready(); err != nil {
		return false, err
	}
	_, err := e.backend.Get(name)
	switch {
	case err == nil:
		return true, nil
	case stderrors.Is(err, errors.ErrVariableNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Write encodes payload according to mode and stores it under name. key is
// required when mode asks for encryption and optional for Auto. On failure the
// previous value of name, if any, is left untouched.
func (e *Engine) Write(name string, payload []byte, mode Mode, key []byte) bool {
	if err := e.write(name, payload, mode, key); err != nil {
		logger.LogWarn("NVStorage write failed", map[string]interface{}{
			"name":  name,
			"mode":  mode.String(),
			"error": err.Error(),
		})
		return false
	}
	logger.LogDebug("NVStorage variable written", map[string]interface{}{
		"name": name,
		"mode": mode.String(),
		"size": len(payload),
	})
	return true
}

func (e *Engine) write(name string, payload []byte, mode Mode, key []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ready(); err != nil {
		return err
	}
	if err := nvram.ValidateName(name); err != nil {
		return err
	}

	// The record is fully built before the backend sees it, so a failure here
	// never reaches the store.
	record, err := e.encode(payload, mode, key)
	if err != nil {
		return err
	}
	return e.backend.Set(name, record)
}

// encode must be called with mu held
func (e *Engine) encode(payload []byte, mode Mode, key []byte) ([]byte, error) {
	if mode.IsRaw() {
		return cloneBytes(payload), nil
	}
	if uint64(len(payload)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: payload of %d bytes", errors.ErrInvalidArgument, len(payload))
	}

	var (
		opts      StoredOptions
		algorithm = compression.AlgorithmNone
		body      = payload
	)

	if mode.IsAuto() {
		opts = OptChecksum
		if len(key) > 0 {
			opts |= OptEncrypted
		}
		compressed, err := e.compressor.CompressIfSmaller(payload, 0)
		switch {
		case err == nil:
			opts |= OptCompressed
			algorithm = e.compressor.Algorithm()
			body = compressed
		case !stderrors.Is(err, errors.ErrIncompressible):
			logger.LogDebug("Auto compression skipped", map[string]interface{}{
				"error": err.Error(),
			})
		}
	} else {
		opts = mode.Options()
		if opts.Has(OptEncrypted) && len(key) == 0 {
			return nil, errors.ErrMissingKey
		}
		if opts.Has(OptCompressed) {
			compressed, err := e.compressor.Compress(payload, 0)
			if err != nil {
				return nil, err
			}
			algorithm = e.compressor.Algorithm()
			body = compressed
		}
	}

	var sum uint32
	if opts.Has(OptChecksum) {
		sum = Checksum(payload)
	}

	if opts.Has(OptEncrypted) {
		encrypted, err := e.cipher.Encrypt(body, key)
		if err != nil {
			return nil, err
		}
		body = encrypted
	}

	header := EncodeHeader(Header{
		Options:    opts,
		Algorithm:  algorithm,
		Length:     uint32(len(payload)),
		BodyLength: uint32(len(body)),
		Checksum:   sum,
	})

	record := make([]byte, HeaderSize+len(body))
	copy(record, header[:])
	copy(record[HeaderSize:], body)
	return record, nil
}

// Read returns the decoded payload stored under name. ok is false when the
// variable is missing or cannot be decoded: malformed header, option mismatch,
// missing or wrong key, decompression failure or checksum mismatch.
func (e *Engine) Read(name string, mode Mode, key []byte) ([]byte, bool) {
	payload, err := e.read(name, mode, key)
	if err != nil {
		fields := map[string]interface{}{
			"name":  name,
			"mode":  mode.String(),
			"error": err.Error(),
		}
		if stderrors.Is(err, errors.ErrVariableNotFound) {
			logger.LogDebug("NVStorage variable not found", fields)
		} else {
			logger.LogWarn("NVStorage read failed", fields)
		}
		return nil, false
	}
	return payload, true
}

func (e *Engine) read(name string, mode Mode, key []byte) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ready(); err != nil {
		return nil, err
	}
	record, err := e.backend.Get(name)
	if err != nil {
		return nil, err
	}
	return e.decode(record, mode, key)
}

// decode must be called with mu held
func (e *Engine) decode(record []byte, mode Mode, key []byte) ([]byte, error) {
	if mode.IsRaw() {
		return record, nil
	}

	h, body, err := DecodeHeader(record)
	if err != nil {
		if mode.IsAuto() {
			// Unframed bytes are taken as raw. A raw blob that happens to carry
			// a valid header is misread; that ambiguity is accepted.
			return record, nil
		}
		return nil, err
	}

	if !mode.IsAuto() && h.Options != mode.Options() {
		return nil, fmt.Errorf("%w: requested %s, stored %s", errors.ErrOptionMismatch, mode.Options(), h.Options)
	}

	data := body
	if h.Options.Has(OptEncrypted) {
		if len(key) == 0 {
			return nil, errors.ErrMissingKey
		}
		if data, err = e.cipher.Decrypt(data, key); err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrCorruptData, err)
		}
	}

	if h.Options.Has(OptCompressed) {
		if data, err = compression.Decompress(h.Algorithm, data, int(h.Length)); err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrCorruptData, err)
		}
	}

	if uint64(len(data)) != uint64(h.Length) {
		return nil, fmt.Errorf("%w: decoded %d bytes, header says %d", errors.ErrCorruptData, len(data), h.Length)
	}

	if h.Options.Has(OptChecksum) {
		if sum := Checksum(data); sum != h.Checksum {
			return nil, fmt.Errorf("%w: stored 0x%08x, computed 0x%08x", errors.ErrIntegrityFailure, h.Checksum, sum)
		}
	}

	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// Remove deletes name. Removing an absent variable succeeds.
func (e *Engine) Remove(name string) bool {
	if err := e.remove(name); err != nil {
		logger.LogWarn("NVStorage remove failed", map[string]interface{}{
			"name":  name,
			"error": err.Error(),
		})
		return false
	}
	return true
}

func (e *Engine) remove(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ready(); err != nil {
		return err
	}
	return e.backend.Remove(name)
}

// List returns the names of every enumerable variable, sorted
func (e *Engine) List() ([]string, bool) {
	names, err := e.list()
	if err != nil {
		logger.LogWarn("NVStorage enumeration failed", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, false
	}
	return names, true
}

func (e *Engine) list() ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ready(); err != nil {
		return nil, err
	}
	vars, err := e.backend.Enumerate()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(vars))
	for _, v := range vars {
		names = append(names, v.Name)
	}
	sort.Strings(names)
	return names, nil
}

// Save writes a snapshot of every enumerable variable to path. The file is
// replaced atomically. Retrying against a backup path is the caller's job.
func (e *Engine) Save(path string) bool {
	if err := e.save(path); err != nil {
		logger.LogError("NVStorage snapshot save failed", err, map[string]interface{}{
			"path": path,
		})
		return false
	}
	logger.LogInfo("NVStorage snapshot saved", map[string]interface{}{
		"path": path,
	})
	return true
}

func (e *Engine) save(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ready(); err != nil {
		return err
	}
	if path == "" {
		return fmt.Errorf("%w: empty snapshot path", errors.ErrInvalidArgument)
	}

	vars, err := e.backend.Enumerate()
	if err != nil {
		return err
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i].Name < vars[j].Name })

	doc, err := plistutil.RenderVariables(vars)
	if err != nil {
		return err
	}

	if err := fsutil.WriteFileAtomic(path, doc, 0644); err != nil {
		if os.IsPermission(err) {
			return fmt.Errorf("%w: %s", errors.ErrPermissionDenied, path)
		}
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", errors.ErrPathNotAccessible, path)
		}
		return fmt.Errorf("%w: %s: %v", errors.ErrFileWriteError, path, err)
	}
	return nil
}

// Load writes every variable in the snapshot at path back to the backend,
// verbatim. Entries that fail are skipped; ok is false if the file could not be
// parsed or any entry failed. restored counts the entries written.
func (e *Engine) Load(path string) (restored int, ok bool) {
	restored, err := e.load(path)
	if err != nil {
		logger.LogError("NVStorage snapshot load failed", err, map[string]interface{}{
			"path":     path,
			"restored": restored,
		})
		return restored, false
	}
	logger.LogInfo("NVStorage snapshot loaded", map[string]interface{}{
		"path":     path,
		"restored": restored,
	})
	return restored, true
}

func (e *Engine) load(path string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ready(); err != nil {
		return 0, err
	}

	doc, err := fsutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("%w: %s", errors.ErrFileNotFound, path)
		}
		if os.IsPermission(err) {
			return 0, fmt.Errorf("%w: %s", errors.ErrPermissionDenied, path)
		}
		return 0, fmt.Errorf("%w: %s: %v", errors.ErrFileReadError, path, err)
	}

	logger.LogDebug("Parsing NVRAM snapshot", map[string]interface{}{
		"path":   path,
		"format": plistutil.FormatToString(plistutil.DetectFormat(doc)),
	})

	vars, err := plistutil.ParseVariables(doc)
	if err != nil {
		return 0, err
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i].Name < vars[j].Name })

	var (
		restored int
		failures []error
	)
	for _, v := range vars {
		if err := e.backend.Set(v.Name, v.Value); err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", v.Name, err))
			continue
		}
		restored++
	}
	return restored, stderrors.Join(failures...)
}

// Compress runs payload through the engine's compressor. The output is not
// framed; Decompress needs the original length.
func (e *Engine) Compress(payload []byte) ([]byte, bool) {
	out, err := e.compress(payload)
	if err != nil {
		logger.LogWarn("NVStorage compress failed", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, false
	}
	return out, true
}

func (e *Engine) compress(payload []byte) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.compressor.Compress(payload, 0)
}

// Decompress reverses Compress, producing exactly originalLength bytes
func (e *Engine) Decompress(data []byte, originalLength int) ([]byte, bool) {
	out, err := e.decompress(data, originalLength)
	if err != nil {
		logger.LogWarn("NVStorage decompress failed", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, false
	}
	return out, true
}

func (e *Engine) decompress(data []byte, originalLength int) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ready(); err != nil {
		return nil, err
	}
	out, err := e.compressor.Decompress(data, originalLength)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrCorruptData, err)
	}
	return out, nil
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
