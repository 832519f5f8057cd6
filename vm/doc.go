// Package vm implements the flatvm accumulator machine.
//
// All machine state lives in a single byte arena:
//   - Code words at the low addresses
//   - A root object header immediately after the code
//   - Frames and named nested objects appended above it
//
// Objects are addressed by arena offsets only. An object is a 20-byte
// header (cap, size, base, prev, ret) followed by a body of cap bytes that
// holds a list of typed items. Only the object whose body ends at the arena
// top may grow in place.
//
// Errors come in two flavours. A *Fault is returned by Step for conditions a
// program can trigger, such as a wrong accumulator type or a full frame. An *InvariantViolation is raised as a panic when the arena layout
// itself is inconsistent.
package vm
