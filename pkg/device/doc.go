// Package device holds the driver catalog: what each known device family can
// do, how its files are decoded, and how its serial protocol is recognized.
//
// Drivers come in two variants. A FileImportDriver only decodes files that
// the device left on a filesystem. A DirectReadDriver additionally speaks a
// serial protocol and can be downloaded from directly. Callers ask for the
// capability with AsDirectRead instead of inspecting a flag.
package device
