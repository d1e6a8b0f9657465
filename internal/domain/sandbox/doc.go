/*
Package sandbox virtualizes a shared global scope so that multiple
independently-built applications can run in one process without colliding
on global identifiers, listeners, or navigation state.

# Overview

Each hosted application gets a Sandbox: a proxy over a private virtual
global object. Property operations route through six traps (read, write,
containment, descriptor query, descriptor definition, enumeration,
deletion), each consulting the property classifier and the descriptor
bridge:

  - Scoped keys resolve only within the virtual object.
  - Escape keys mirror writes onto the shared real global store.
  - Static escape keys mirror only while the real global lacks them.
  - Setter-forced keys write straight through to the real global.
  - Everything else reads virtual-first with real-global fall-through.

# Lifecycle

Sandboxes move between inactive and active; Start and Stop are idempotent.
Stop rolls back every tracked side effect: injected virtual keys, escaped
real-global keys, registered listener/timer effects, and bus listeners.
The shared Env counts active sandboxes and installs the process-wide
document capture and prototype patches exactly on the 0→1 transition,
removing them on 1→0.

Singleton-module (UMD) applications whose top-level code runs once use
RecordUmdSnapshot before the first mount and RebuildUmdSnapshot on every
remount to resume from captured state.

# Isolation model

This is intra-process naming isolation, not a security boundary: hosted
code is trusted, and no attempt is made to contain hostile scripts.
*/
package sandbox
