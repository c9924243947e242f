// Package logx is a thin structured-logging facade over zerolog.
//
// It exists so services can hold a Logger value whose sinks and level can be
// swapped at runtime (config hot-reload) without re-plumbing every component.
package logx
