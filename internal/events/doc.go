// Package events carries task lifecycle notifications.
//
// The task manager emits a TransitionEvent every time a task changes status.
// Handlers registered on an emitter observe those transitions without the
// task package knowing who listens, which keeps logging, metrics and test
// probes decoupled from the scheduling core.
package events
