package core

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// ErrUnknownModule is returned by LookupModule for IDs nobody registered.
var ErrUnknownModule = errors.New("unknown module")

var (
	registry   = make(map[ModuleID]ModuleInfo)
	registryMu sync.RWMutex
)

// RegisterModule adds a module to the global registry. It is meant to be
// called from init and panics on an invalid or duplicate ID, since either
// is a programming error that should fail the binary at startup.
func RegisterModule(instance Module) {
	if err := register(instance.ModuleInfo()); err != nil {
		panic(err)
	}
}

func register(info ModuleInfo) error {
	if err := checkID(info.ID); err != nil {
		return err
	}
	if info.New == nil {
		return fmt.Errorf("module %s: New must not be nil", info.ID)
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[info.ID]; dup {
		return fmt.Errorf("module %s registered twice", info.ID)
	}
	registry[info.ID] = info
	return nil
}

// checkID rejects IDs that would be ambiguous as config keys.
func checkID(id ModuleID) error {
	if id == "" {
		return errors.New("module ID must not be empty")
	}
	s := string(id)
	if strings.ContainsFunc(s, func(r rune) bool { return r == ' ' || r == '\t' || r == '\n' }) {
		return fmt.Errorf("module ID %q contains whitespace", s)
	}
	if slices.Contains(strings.Split(s, "."), "") {
		return fmt.Errorf("module ID %q has an empty segment", s)
	}
	return nil
}

// GetModule returns the ModuleInfo registered under id.
func GetModule(id string) (ModuleInfo, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	info, ok := registry[ModuleID(id)]
	return info, ok
}

// LookupModule is GetModule with an error suited for users: when id is
// unknown, the error wraps ErrUnknownModule and lists the modules
// registered in the same namespace, if any.
func LookupModule(id string) (ModuleInfo, error) {
	if info, ok := GetModule(id); ok {
		return info, nil
	}
	siblings := moduleIDsIn(ModuleID(id).Namespace())
	if len(siblings) == 0 {
		return ModuleInfo{}, fmt.Errorf("%w: %s", ErrUnknownModule, id)
	}
	return ModuleInfo{}, fmt.Errorf("%w: %s (available: %s)", ErrUnknownModule, id, strings.Join(siblings, ", "))
}

// GetModules returns all registered modules sorted by ID.
func GetModules() []ModuleInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	ids := slices.Sorted(maps.Keys(registry))
	out := make([]ModuleInfo, 0, len(ids))
	for _, id := range ids {
		out = append(out, registry[id])
	}
	return out
}

func moduleIDsIn(namespace string) []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	var ids []string
	for id := range registry {
		if id.Namespace() == namespace {
			ids = append(ids, string(id))
		}
	}
	slices.Sort(ids)
	return ids
}

// isolateRegistry swaps in an empty registry and returns a function that
// restores the previous one. Tests pass the result to t.Cleanup.
func isolateRegistry() func() {
	registryMu.Lock()
	saved := registry
	registry = make(map[ModuleID]ModuleInfo)
	registryMu.Unlock()

	return func() {
		registryMu.Lock()
		registry = saved
		registryMu.Unlock()
	}
}
