package stepcompress

import (
	"math"
)

// StepCompress turns a stream of requested step times for one stepper
// into a compact run of queue_step/set_next_step_dir commands ready
// for Synchroniser to interleave and a Transport to send. One
// StepCompress exists per stepper (per oid).
type StepCompress struct {
	oid      uint32
	encoder  MessageEncoder
	maxError uint32

	queueStepMsgtag      uint32
	setNextStepDirMsgtag uint32

	mcuTimeOffset     float64
	mcuFreq           float64
	lastStepPrintTime float64

	lastInterval       uint32
	lastIdealStepClock uint64
	lastStepClock      uint64

	queue    stepQueue
	msgQueue messageQueue

	sdir       int // -1 unknown, 0 negative, 1 positive
	invertSdir bool

	nextStepClock uint64
	nextStepDir   int

	lastPosition int64
	history      historyLog
}

// NewStepCompress allocates a StepCompress for the stepper identified
// by oid. encoder turns the protocol words of a queue_step or
// set_next_step_dir command into a wire payload.
func NewStepCompress(oid uint32, encoder MessageEncoder) *StepCompress {
	return &StepCompress{
		oid:     oid,
		encoder: encoder,
		sdir:    -1,
		history: newHistoryLog(),
	}
}

// Fill records the protocol constants needed to encode commands: the
// tolerance a compressed move may deviate from the requested clocks by,
// and the message tags identifying queue_step and set_next_step_dir on
// the wire.
func (sc *StepCompress) Fill(maxError uint32, queueStepMsgtag, setNextStepDirMsgtag uint32) {
	sc.maxError = maxError
	sc.queueStepMsgtag = queueStepMsgtag
	sc.setNextStepDirMsgtag = setNextStepDirMsgtag
}

// SetInvertSdir flips the sense of the direction bit sent on the wire,
// without changing which direction the stepper is actually asked to
// move in.
func (sc *StepCompress) SetInvertSdir(invert bool) {
	if invert != sc.invertSdir {
		sc.invertSdir = invert
		if sc.sdir >= 0 {
			sc.sdir ^= 1
		}
	}
}

// GetOID returns the stepper's oid.
func (sc *StepCompress) GetOID() uint32 { return sc.oid }

// GetStepDir returns the direction of the most recently appended step
// (0 or 1, pre-invert).
func (sc *StepCompress) GetStepDir() int { return sc.nextStepDir }

func (sc *StepCompress) calcLastStepPrintTime() {
	lsc := float64(sc.lastStepClock)
	sc.lastStepPrintTime = sc.mcuTimeOffset + (lsc-0.5)/sc.mcuFreq

	if lsc > sc.mcuFreq*historyExpire {
		sc.history.expireBefore(uint64(lsc - sc.mcuFreq*historyExpire))
	}
}

// SetTime sets the affine mapping from host print_time (seconds) to
// MCU clock ticks: clock = (print_time - time_offset) * mcu_freq.
func (sc *StepCompress) SetTime(timeOffset, mcuFreq float64) {
	sc.mcuTimeOffset = timeOffset
	sc.mcuFreq = mcuFreq
	sc.calcLastStepPrintTime()
}

// emitMove turns move into a queue_step command starting at firstClock,
// advancing last_step_clock/last_interval and recording the move in
// the history log.
func (sc *StepCompress) emitMove(firstClock uint64, move StepMove) {
	count32 := int32(move.Count)
	addfactor := count32 * (count32 - 1) / 2
	term1 := uint32(int32(move.Add) * addfactor)
	term2 := move.Interval * uint32(count32-1)
	ticks := term1 + term2
	lastClock := firstClock + uint64(ticks)
	sc.lastInterval = move.Interval + uint32(int32(move.Add)*(count32-1))

	words := []uint32{
		sc.queueStepMsgtag, sc.oid, move.Interval,
		uint32(move.Count), uint32(int32(move.Add)),
	}
	qm := queuedMessage{
		msg: QueueMessage{
			Payload:  sc.encoder.Encode(words),
			MinClock: sc.lastStepClock,
			ReqClock: sc.lastStepClock,
		},
		usesSlot:   true,
		slotFreeAt: sc.lastStepClock,
	}
	if move.Count == 1 && firstClock >= sc.lastStepClock+clockDiffMax {
		qm.msg.ReqClock = firstClock
	}
	sc.msgQueue.push(qm)
	sc.lastStepClock = lastClock

	stepCount := int32(move.Count)
	if sc.sdir == 0 {
		stepCount = -stepCount
	}
	sc.history.pushFront(HistoryEntry{
		FirstClock:    firstClock,
		LastClock:     lastClock,
		StartPosition: sc.lastPosition,
		StepCount:     stepCount,
		Interval:      int32(move.Interval),
		Add:           int32(move.Add),
	})
	sc.lastPosition += int64(stepCount)
}

// queueFlush converts queued step clocks into queue_step commands
// until last_step_clock reaches moveClock or the queue empties.
func (sc *StepCompress) queueFlush(moveClock uint64) error {
	if sc.queue.Len() == 0 {
		return nil
	}
	for sc.lastStepClock < moveClock {
		move := wrapCompress(sc)
		if err := sc.verifyMove(move); err != nil {
			componentLogger(sc.oid).Error().Err(err).
				Uint32("interval", move.Interval).
				Uint16("count", move.Count).
				Int16("add", move.Add).
				Msg("step compression produced an invalid move")
			return err
		}

		diff := sc.queue.At(int(move.Count)-1) - uint32(sc.lastStepClock)
		sc.lastIdealStepClock = uint64(diff) + sc.lastStepClock
		sc.emitMove(sc.lastStepClock+uint64(move.Interval), move)

		if sc.queue.Len() <= int(move.Count) {
			sc.queue.Consume(sc.queue.Len())
			break
		}
		sc.queue.Consume(int(move.Count))
	}
	sc.calcLastStepPrintTime()
	return nil
}

// flushFar emits a lone queue_step for a step too far in the future
// to share a move with anything already queued.
func (sc *StepCompress) flushFar(absStepClock uint64) error {
	move := StepMove{Interval: uint32(absStepClock - sc.lastStepClock), Count: 1, Add: 0}
	sc.lastIdealStepClock = absStepClock
	sc.emitMove(absStepClock, move)
	sc.calcLastStepPrintTime()
	return nil
}

// setNextStepDir flushes any pending moves on the old direction, then
// queues a set_next_step_dir command for the new one.
func (sc *StepCompress) setNextStepDir(sdir int) error {
	if sc.sdir == sdir {
		return nil
	}
	if err := sc.queueFlush(math.MaxUint64); err != nil {
		return err
	}
	sc.sdir = sdir

	val := sdir
	if sc.invertSdir {
		val ^= 1
	}
	componentLogger(sc.oid).Debug().Int("dir", val).Msg("set_next_step_dir")

	words := []uint32{sc.setNextStepDirMsgtag, sc.oid, uint32(val)}
	qm := queuedMessage{msg: QueueMessage{Payload: sc.encoder.Encode(words), ReqClock: sc.lastStepClock}}
	sc.msgQueue.push(qm)
	return nil
}

// queueAppendFar handles a pending step clock that lies CLOCK_DIFF_MAX
// or more ticks beyond last_step_clock: it flushes what it can, then
// either queues the step for normal compression (if it's now within
// range) or emits it as a standalone far move.
func (sc *StepCompress) queueAppendFar() error {
	stepClock := sc.nextStepClock
	sc.nextStepClock = 0
	if err := sc.queueFlush(stepClock - clockDiffMax + 1); err != nil {
		return err
	}
	if stepClock >= sc.lastStepClock+clockDiffMax {
		return sc.flushFar(stepClock)
	}
	if err := sc.queue.Append(uint32(stepClock)); err != nil {
		return newAllocationFailureError(sc.oid, err)
	}
	return nil
}

// queueAppendExtend makes room in the step queue: if it's grown
// beyond the soft cap it forces a partial flush first, then grows or
// compacts the backing array if it's still full.
func (sc *StepCompress) queueAppendExtend() error {
	if sc.queue.Len() > queueSoftCap {
		flush := sc.queue.At(sc.queue.Len()-65535) - uint32(sc.lastStepClock)
		if err := sc.queueFlush(sc.lastStepClock + uint64(flush)); err != nil {
			return err
		}
	}
	if sc.queue.full() {
		if err := sc.queue.growOrCompact(); err != nil {
			return newAllocationFailureError(sc.oid, err)
		}
	}
	if err := sc.queue.Append(uint32(sc.nextStepClock)); err != nil {
		return newAllocationFailureError(sc.oid, err)
	}
	sc.nextStepClock = 0
	return nil
}

// queueAppend moves next_step_clock into the step queue, flushing a
// direction change first if needed and routing far-future clocks to
// queueAppendFar.
func (sc *StepCompress) queueAppend() error {
	if sc.nextStepDir != sc.sdir {
		if err := sc.setNextStepDir(sc.nextStepDir); err != nil {
			return err
		}
	}
	if sc.nextStepClock >= sc.lastStepClock+clockDiffMax {
		return sc.queueAppendFar()
	}
	if sc.queue.full() {
		return sc.queueAppendExtend()
	}
	if err := sc.queue.Append(uint32(sc.nextStepClock)); err != nil {
		return newAllocationFailureError(sc.oid, err)
	}
	sc.nextStepClock = 0
	return nil
}

// Append records a requested step at step_time (seconds from
// print_time) in direction sdir. A step is held back one call so that
// a direction reversal arriving within sdsFilterTime of it (step, dir,
// step) can be filtered out instead of reaching the wire.
func (sc *StepCompress) Append(sdir int, printTime, stepTime float64) error {
	offset := printTime - sc.lastStepPrintTime
	relSc := (stepTime + offset) * sc.mcuFreq
	stepClock := sc.lastStepClock + uint64(relSc)

	if sc.nextStepClock != 0 {
		if sdir != sc.nextStepDir {
			diff := int64(stepClock - sc.nextStepClock)
			if float64(diff) < sdsFilterTime*sc.mcuFreq {
				sc.nextStepClock = 0
				sc.nextStepDir = sdir
				return nil
			}
		}
		if err := sc.queueAppend(); err != nil {
			return err
		}
	}
	sc.nextStepClock = stepClock
	sc.nextStepDir = sdir
	return nil
}

// Commit flushes a pending step appended by Append, preventing any
// further rollback of it by the step+dir+step filter.
func (sc *StepCompress) Commit() error {
	if sc.nextStepClock != 0 {
		return sc.queueAppend()
	}
	return nil
}

// flush commits a pending step (if moveClock has reached it) and
// drains the step queue up to moveClock.
func (sc *StepCompress) flush(moveClock uint64) error {
	if sc.nextStepClock != 0 && moveClock >= sc.nextStepClock {
		if err := sc.queueAppend(); err != nil {
			return err
		}
	}
	return sc.queueFlush(moveClock)
}

// Reset flushes all pending steps and rebinds last_step_clock, as
// happens when a stepper's motion is interrupted and resumed from a
// known clock.
func (sc *StepCompress) Reset(lastStepClock uint64) error {
	if err := sc.flush(math.MaxUint64); err != nil {
		return err
	}
	sc.lastStepClock = lastStepClock
	sc.lastInterval = 0
	sc.sdir = -1
	sc.calcLastStepPrintTime()
	return nil
}

// SetLastPosition flushes pending steps, then pins last_position at
// clock with a zero-length history marker so FindPastPosition can
// resolve queries at or after it.
func (sc *StepCompress) SetLastPosition(clock uint64, lastPosition int64) error {
	if err := sc.flush(math.MaxUint64); err != nil {
		return err
	}
	sc.lastPosition = lastPosition
	sc.history.pushFront(HistoryEntry{FirstClock: clock, LastClock: clock, StartPosition: lastPosition})
	return nil
}

// FindPastPosition returns the stepper's position at clock, as best
// as the history log (and, failing that, the current last_position)
// can reconstruct it.
func (sc *StepCompress) FindPastPosition(clock uint64) int64 {
	return sc.history.findPastPosition(clock, sc.lastPosition)
}

// QueueMsg flushes pending steps, then enqueues an arbitrary message
// (not a queue_step/set_next_step_dir command) to go out in req_clock
// order alongside this stepper's other traffic.
func (sc *StepCompress) QueueMsg(words []uint32) error {
	if err := sc.flush(math.MaxUint64); err != nil {
		return err
	}
	qm := queuedMessage{msg: QueueMessage{Payload: sc.encoder.Encode(words), ReqClock: sc.lastStepClock}}
	sc.msgQueue.push(qm)
	return nil
}

// ExtractOld returns up to max history entries overlapping
// [startClock, endClock), newest first.
func (sc *StepCompress) ExtractOld(max int, startClock, endClock uint64) []HistoryEntry {
	return sc.history.extractOld(max, startClock, endClock)
}
