package core

import "strings"

// ModuleID is a dotted identifier such as "store.sqlite". The part before the
// first dot is the module's namespace.
type ModuleID string

// Namespace returns the first segment of the ID.
func (id ModuleID) Namespace() string {
	ns, _, _ := strings.Cut(string(id), ".")
	return ns
}

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	ID  ModuleID
	New func() Module
}

// Module is the minimal interface every module implements. Optional
// lifecycle hooks are discovered through the interfaces in lifecycle.go.
type Module interface {
	ModuleInfo() ModuleInfo
}
