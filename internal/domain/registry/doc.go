// Package registry manages the set of hosted applications.
//
// The Manager assembles one sandbox, one VM, and one collaborator set per
// application, enforces a single live instance per name, and drives the
// mount and unmount lifecycle. Singleton-mode applications are kept in
// stopped form after unmount so a later mount restores them from their
// recorded snapshot without executing the application script again.
package registry
