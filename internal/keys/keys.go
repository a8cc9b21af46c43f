// Package keys implements the key providers consulted by encrypting archive
// drivers.
package keys

import (
	"fmt"
	"os"
	"sync"

	"github.com/desertwitch/arcvfs/internal/mount"
)

// Key is a secret passphrase.
type Key string

// Provider provides the key of one encrypted file system.
type Provider interface {
	// WriteKey returns the key for writing the file system.
	WriteKey() (Key, error)

	// ReadKey returns the key for reading the file system. invalid is true
	// if the previously returned key has been rejected.
	ReadKey(invalid bool) (Key, error)

	// SetKey replaces the key, nil clears it.
	SetKey(key *Key)
}

// Static is a [Provider] holding a fixed key. It cannot provide another key
// once its key has been rejected.
type Static struct {
	sync.Mutex
	key *Key
}

// NewStatic returns a pointer to a new [Static] provider for key.
func NewStatic(key Key) *Static {
	return &Static{key: &key}
}

func (s *Static) WriteKey() (Key, error) {
	s.Lock()
	defer s.Unlock()

	if s.key == nil {
		return "", ErrNoKey
	}

	return *s.key, nil
}

func (s *Static) ReadKey(invalid bool) (Key, error) {
	if invalid {
		return "", ErrKeyRejected
	}

	return s.WriteKey()
}

func (s *Static) SetKey(key *Key) {
	s.Lock()
	defer s.Unlock()

	if key == nil {
		s.key = nil

		return
	}
	k := *key
	s.key = &k
}

// Env is a [Provider] reading the key from an environment variable each time
// it is asked for a key, unless a key has been set explicitly.
type Env struct {
	Static
	variable string
}

// NewEnv returns a pointer to a new [Env] provider for the variable.
func NewEnv(variable string) *Env {
	return &Env{variable: variable}
}

func (e *Env) WriteKey() (Key, error) {
	if k, err := e.Static.WriteKey(); err == nil {
		return k, nil
	}

	v, ok := os.LookupEnv(e.variable)
	if !ok || v == "" {
		return "", fmt.Errorf("(keys-env) %w: $%s is not set", ErrNoKey, e.variable)
	}

	return Key(v), nil
}

func (e *Env) ReadKey(invalid bool) (Key, error) {
	if invalid {
		return "", ErrKeyRejected
	}

	return e.WriteKey()
}

// Prompt is a [Provider] asking a function for every key, e.g. to prompt a
// user again after a key has been rejected.
type Prompt struct {
	Static
	ask func(invalid bool) (Key, error)
}

// NewPrompt returns a pointer to a new [Prompt] provider.
func NewPrompt(ask func(invalid bool) (Key, error)) *Prompt {
	return &Prompt{ask: ask}
}

func (p *Prompt) WriteKey() (Key, error) {
	if k, err := p.Static.WriteKey(); err == nil {
		return k, nil
	}

	k, err := p.ask(false)
	if err != nil {
		return "", err
	}
	p.SetKey(&k)

	return k, nil
}

func (p *Prompt) ReadKey(invalid bool) (Key, error) {
	if !invalid {
		return p.WriteKey()
	}

	k, err := p.ask(true)
	if err != nil {
		return "", err
	}
	p.SetKey(&k)

	return k, nil
}

// Manager hands out one [Provider] per mount point.
type Manager struct {
	sync.Mutex
	factory   func(point *mount.Point) Provider
	providers map[string]Provider
}

// NewManager returns a pointer to a new [Manager] creating providers with
// factory on first use.
func NewManager(factory func(point *mount.Point) Provider) *Manager {
	return &Manager{
		factory:   factory,
		providers: make(map[string]Provider),
	}
}

// Provider returns the provider for the mount point.
func (m *Manager) Provider(point *mount.Point) Provider {
	m.Lock()
	defer m.Unlock()

	if p, ok := m.providers[point.String()]; ok {
		return p
	}

	p := m.factory(point)
	m.providers[point.String()] = p

	return p
}

// Forget drops the provider of the mount point.
func (m *Manager) Forget(point *mount.Point) {
	m.Lock()
	defer m.Unlock()

	delete(m.providers, point.String())
}
