// Package stepcompress implements the step-pulse schedule compressor
// that sits between a host motion planner and a resource-constrained
// stepper-motor microcontroller (MCU).
//
// The planner produces a dense sequence of absolute times at which a
// stepper coil must pulse. The MCU accepts a compact command of the
// form (interval, count, add): emit count pulses with an initial
// inter-pulse interval interval, incrementing the interval by add
// after each pulse. StepCompress finds a short sequence of such
// commands whose pulses all fall within a per-step tolerance window of
// the planner's requested times, using a bounded least-squares fit
// that maximizes the number of steps covered by each command.
//
// Synchroniser interleaves the commands of several StepCompress
// instances in strict chronological order, respecting a finite shared
// MCU command-queue depth.
//
// Command encoding, serial transport, the planner's motion model, and
// MCU-side execution are external collaborators (MessageEncoder,
// Transport) and out of scope here.
package stepcompress
