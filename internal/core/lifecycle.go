package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// The hooks below are optional. LoadModule and App call whichever ones a
// module implements, in this order:
//
//	Configure → Provision → Validate → Start → Stop

// Configurable modules receive their section of the modules: map. Configure
// is skipped when the section is absent, so defaults belong in Provision.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner resolves dependencies from the AppContext and registers the
// services the module offers to modules loaded after it.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator checks the provisioned module. It must not touch the outside
// world; `sitterd config check` relies on that.
type Validator interface {
	Validate() error
}

// Starter begins background work such as listeners or schedules. Start must
// not block.
type Starter interface {
	Start() error
}

// Stopper releases what Provision or Start acquired. Modules are stopped in
// reverse load order, and Stop may run without a prior Start when loading
// or starting a later module failed.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Hooks lists the lifecycle hooks m implements, in call order.
func Hooks(m Module) []string {
	var hooks []string
	if _, ok := m.(Configurable); ok {
		hooks = append(hooks, "configure")
	}
	if _, ok := m.(Provisioner); ok {
		hooks = append(hooks, "provision")
	}
	if _, ok := m.(Validator); ok {
		hooks = append(hooks, "validate")
	}
	if _, ok := m.(Starter); ok {
		hooks = append(hooks, "start")
	}
	if _, ok := m.(Stopper); ok {
		hooks = append(hooks, "stop")
	}
	return hooks
}
