package sandbox

import "github.com/sandveil/sandveil/internal/domain/global"

// Router supplies the virtualized navigation state for one application.
// Implementations install a location/history pair onto the virtual global
// object and tear it down again.
type Router interface {
	InitRouteState(appName, url string, virtual *global.Object) error
	ClearRouteState(appName, url string, virtual *global.Object) error
}

// Effect is the listener-rewriting collaborator for one application. It
// tracks global event registrations and timers made by the application so
// they can be bulk-released, and records/rebuilds them around singleton
// module remounts.
type Effect interface {
	Release() error
	RecordBeforeMount() error
	RebuildOnRemount() error
}

// Capture installs the process-wide document-level listener capture shared
// by all active sandboxes.
type Capture interface {
	Install() error
	Remove() error
}

// Patcher installs the process-wide element-prototype patches shared by all
// active sandboxes.
type Patcher interface {
	Install() error
	Remove() error
}

// DataBus is the inter-application event center for one application.
type DataBus interface {
	ClearDataListener() error
	ClearGlobalDataListener() error
	SnapshotRecord() error
	SnapshotRebuild() error
}

// Collaborators bundles the per-application collaborator set handed to a
// sandbox at construction. Nil members degrade to no-ops.
type Collaborators struct {
	Router Router
	Effect Effect
	Bus    DataBus
}
