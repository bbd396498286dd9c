package state

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"guildhall/storage"
)

// statePrefix namespaces hashed state entries inside the backing database.
var statePrefix = []byte("s/")

// Manager is the journaled world state shared by every organization and token
// living in one database. Writes land in an in-memory overlay until Commit;
// Snapshot/RevertToSnapshot roll back speculative writes made during a call.
//
// Manager is not safe for concurrent use; Executor serializes access.
type Manager struct {
	db      storage.Database
	dirty   map[string][]byte
	journal []journalEntry
}

type journalEntry struct {
	key     string
	prev    []byte
	present bool
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, dirty: make(map[string][]byte)}
}

func kvKey(key []byte) []byte {
	hashed := ethcrypto.Keccak256(key)
	out := make([]byte, 0, len(statePrefix)+len(hashed))
	out = append(out, statePrefix...)
	return append(out, hashed...)
}

func (m *Manager) get(hashed []byte) ([]byte, error) {
	if value, ok := m.dirty[string(hashed)]; ok {
		return value, nil
	}
	value, err := m.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (m *Manager) set(hashed []byte, value []byte) {
	key := string(hashed)
	prev, present := m.dirty[key]
	m.journal = append(m.journal, journalEntry{key: key, prev: prev, present: present})
	m.dirty[key] = value
}

// Snapshot returns an identifier for the current journal position.
func (m *Manager) Snapshot() int { return len(m.journal) }

// RevertToSnapshot undoes every write made after the snapshot was taken.
func (m *Manager) RevertToSnapshot(id int) {
	if id < 0 {
		id = 0
	}
	for i := len(m.journal) - 1; i >= id; i-- {
		entry := m.journal[i]
		if entry.present {
			m.dirty[entry.key] = entry.prev
		} else {
			delete(m.dirty, entry.key)
		}
	}
	if id < len(m.journal) {
		m.journal = m.journal[:id]
	}
}

// Dirty reports whether uncommitted writes are pending.
func (m *Manager) Dirty() bool { return len(m.dirty) > 0 }

// Commit flushes pending writes to the database in one batch and clears the
// journal.
func (m *Manager) Commit() error {
	if len(m.dirty) == 0 {
		m.journal = m.journal[:0]
		return nil
	}
	batch := new(storage.Batch)
	for key, value := range m.dirty {
		if len(value) == 0 {
			batch.Delete([]byte(key))
			continue
		}
		batch.Put([]byte(key), value)
	}
	if err := m.db.Write(batch); err != nil {
		return err
	}
	m.Discard()
	return nil
}

// Discard drops pending writes.
func (m *Manager) Discard() {
	m.dirty = make(map[string][]byte)
	m.journal = m.journal[:0]
}

// Root digests the committed state. Two managers with identical committed
// entries report the same root.
func (m *Manager) Root() (common.Hash, error) {
	hasher := ethcrypto.NewKeccakState()
	err := m.db.Iterate(statePrefix, func(key, value []byte) bool {
		hasher.Write(key)
		hasher.Write(value)
		return true
	})
	if err != nil {
		return common.Hash{}, err
	}
	var root common.Hash
	hasher.Read(root[:])
	return root, nil
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is hashed with keccak256 before it reaches the database.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.set(kvKey(key), encoded)
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the value stored under key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	m.set(kvKey(key), nil)
	return nil
}

// KVAppend appends the provided value to the RLP-encoded byte slice list stored
// under the supplied key. Duplicate values are ignored to keep the index
// deterministic.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	hashed := kvKey(key)
	data, err := m.get(hashed)
	if err != nil {
		return err
	}
	var list [][]byte
	if len(data) > 0 {
		if err := rlp.DecodeBytes(data, &list); err != nil {
			return err
		}
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	encoded, err := rlp.EncodeToBytes(list)
	if err != nil {
		return err
	}
	m.set(hashed, encoded)
	return nil
}

// KVGetList retrieves an RLP-encoded slice stored under the provided key and
// decodes it into the supplied destination slice pointer. When no value is
// present the destination is initialised with an empty slice to avoid nil
// surprises for callers.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.get(kvKey(key))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		val := reflect.ValueOf(out)
		if val.Kind() != reflect.Ptr || val.IsNil() {
			return fmt.Errorf("kv: destination must be a non-nil pointer")
		}
		elem := val.Elem()
		if elem.Kind() != reflect.Slice {
			return fmt.Errorf("kv: destination must point to a slice")
		}
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
		return nil
	}
	return rlp.DecodeBytes(data, out)
}

// Prefixed scopes every key of the returned view under prefix so several
// organizations can share one world state without key collisions.
func (m *Manager) Prefixed(prefix string) *View {
	return &View{m: m, prefix: []byte(prefix)}
}

// View is a key-prefixed window onto a Manager.
type View struct {
	m      *Manager
	prefix []byte
}

func (v *View) key(key []byte) []byte {
	out := make([]byte, 0, len(v.prefix)+len(key))
	out = append(out, v.prefix...)
	return append(out, key...)
}

// Prefix returns the namespace of the view.
func (v *View) Prefix() string { return string(v.prefix) }

// KVPut stores value under the prefixed key.
func (v *View) KVPut(key []byte, value interface{}) error { return v.m.KVPut(v.key(key), value) }

// KVGet loads the prefixed key into out.
func (v *View) KVGet(key []byte, out interface{}) (bool, error) { return v.m.KVGet(v.key(key), out) }

// KVDelete removes the prefixed key.
func (v *View) KVDelete(key []byte) error { return v.m.KVDelete(v.key(key)) }

// KVAppend appends value to the list stored under the prefixed key.
func (v *View) KVAppend(key []byte, value []byte) error { return v.m.KVAppend(v.key(key), value) }

// KVGetList loads the list stored under the prefixed key.
func (v *View) KVGetList(key []byte, out interface{}) error { return v.m.KVGetList(v.key(key), out) }

// Snapshot forwards to the underlying manager.
func (v *View) Snapshot() int { return v.m.Snapshot() }

// RevertToSnapshot forwards to the underlying manager.
func (v *View) RevertToSnapshot(id int) { v.m.RevertToSnapshot(id) }
