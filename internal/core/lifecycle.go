package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// Configurable modules receive their raw section of the configuration file
// (for example the gateway block) before Provision.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner modules apply defaults and look up the services they depend
// on. Provision runs once, after Configure.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator modules check their settings after Provision. Validate must
// not touch the network or the disk.
type Validator interface {
	Validate() error
}

// Starter modules begin background work: listeners, cron loops, exporters.
// The App starts modules in load order.
type Starter interface {
	Start() error
}

// Stopper modules release what Start acquired. The App stops modules in
// reverse start order and bounds the whole shutdown with a timeout.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Reloader modules pick up a changed configuration file without a restart.
// A failed reload leaves the module running on its previous settings.
type Reloader interface {
	Reload(ctx *AppContext) error
}
