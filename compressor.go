package stepcompress

import (
	"fmt"
	"math"
)

// StepMove is a single queue_step command: count pulses are emitted
// with successive gaps of interval, interval+add, interval+2*add, ...
type StepMove struct {
	Interval uint32
	Count    uint16
	Add      int16
}

// addMove is the reduced form of a StepMove used internally while
// searching for the longest valid sequence: only add and count matter
// until the final interval is derived from queueRef.lastInterval.
type addMove struct {
	add   int32
	count int32
}

// queueRef is an immutable view of a stepper's pending step clocks
// together with the scheduling state (last emitted clock, interval,
// and "ideal" clock) a candidate move would start from. It never
// mutates sc directly; qrAfterMove derives a new queueRef reflecting
// the state after a hypothetical move, so the search in
// compressLeastSquares can explore branches without committing to any
// of them.
type queueRef struct {
	q                  []uint32
	maxError           uint32
	lastStepClock      uint64
	lastIdealStepClock uint64
	lastInterval       uint32
}

// newQueueRef builds a queueRef windowed to at most maxCount pending
// entries -- wrap_compress searches over 46000, verifyMove over 65535,
// neither above the 16-bit step_move.count ceiling of 65535.
func newQueueRef(sc *StepCompress, maxCount int) queueRef {
	n := sc.queue.Len()
	if n > maxCount {
		n = maxCount
	}
	return queueRef{
		q:                  sc.queue.Prefix(n),
		maxError:           sc.maxError,
		lastStepClock:      sc.lastStepClock,
		lastIdealStepClock: sc.lastIdealStepClock,
		lastInterval:       sc.lastInterval,
	}
}

// qrAfterMove derives the queueRef state that would result from
// scheduling am against qr, without touching qr itself.
func qrAfterMove(qr queueRef, am addMove) queueRef {
	add, count := am.add, am.count
	addfactor := count * (count + 1) / 2

	diff := qr.q[count-1] - uint32(qr.lastStepClock)
	nqr := queueRef{
		q:                  qr.q[count:],
		maxError:           qr.maxError,
		lastIdealStepClock: uint64(diff) + qr.lastStepClock,
	}
	term := uint32(qr.lastInterval)*uint32(count) + uint32(addfactor*add)
	nqr.lastStepClock = qr.lastStepClock + uint64(term)
	nqr.lastInterval = qr.lastInterval + uint32(count*add)
	return nqr
}

// minmaxPoint returns the acceptable [minp, maxp] window for the
// step at index pos in qr.q, given the tolerance negotiated with the
// previous point and bounded by qr.maxError.
func minmaxPoint(qr *queueRef, pos int) points {
	lsc := uint32(qr.lastStepClock)
	point := qr.q[pos] - lsc
	var prevpoint uint32
	if pos > 0 {
		prevpoint = qr.q[pos-1] - lsc
	}
	maxError := (point - prevpoint) / 2
	if maxError > qr.maxError {
		maxError = qr.maxError
	}
	return points{minp: int32(point - maxError), maxp: int32(point)}
}

// points is the acceptable scheduling window for one step, relative
// to queueRef.lastStepClock.
type points struct {
	minp, maxp int32
}

// addRange is the range of "add" values still admissible for a
// sequence of the given count, narrowed step by step by
// addRangeUpdate.
type addRange struct {
	minadd, maxadd, count int32
}

func initAddRange() addRange {
	return addRange{minadd: -0x8000, maxadd: 0x7fff, count: 0}
}

// addRangeUpdate extends ar by one more step if some add value in
// [minadd,maxadd] keeps every step so far within its point window. It
// reports whether the extension succeeded.
func addRangeUpdate(ar *addRange, qr *queueRef) bool {
	if ar.count >= int32(len(qr.q)) {
		return false
	}
	nextpoint := minmaxPoint(qr, int(ar.count))

	nextcount := ar.count + 1
	nextaddfactor := nextcount * (nextcount + 1) / 2
	interval := int32(qr.lastInterval)
	nextminadd, nextmaxadd := ar.minadd, ar.maxadd
	if interval*nextcount+ar.minadd*nextaddfactor < nextpoint.minp {
		nextminadd = idivUp(nextpoint.minp-interval*nextcount, nextaddfactor)
	}
	if interval*nextcount+ar.maxadd*nextaddfactor > nextpoint.maxp {
		nextmaxadd = idivDown(nextpoint.maxp-interval*nextcount, nextaddfactor)
	}
	if nextminadd > nextmaxadd {
		return false
	}
	ar.minadd, ar.maxadd, ar.count = nextminadd, nextmaxadd, nextcount
	return true
}

// addRangeScan finds the longest run of steps that admit a common add
// range, starting from an empty range.
func addRangeScan(qr *queueRef) addRange {
	ar := initAddRange()
	for addRangeUpdate(&ar, qr) {
	}
	return ar
}

// idealInterval is the gap since the previous step's clock, or since
// qr.lastIdealStepClock for the first step of a new window -- the
// "no error accumulated yet" interval that leastsquares fits against.
func idealInterval(qr *queueRef, pos int) int32 {
	if pos > 0 {
		return int32(qr.q[pos] - qr.q[pos-1])
	}
	return int32(qr.q[pos] - uint32(qr.lastIdealStepClock))
}

// calcSeq computes the step clock reached after a tc-step sequence
// split into an initial c1-step run at add1 followed by a tc-c1-step
// run at add2.
func calcSeq(qr *queueRef, add1, add2, c1, tc int32) int32 {
	ad := add1 - add2
	addfactor := tc * (tc + 1) / 2
	paddfactor := c1 * (c1 - 1) / 2
	total := uint32(qr.lastInterval)*uint32(tc) + uint32(add2*addfactor) + uint32(ad*(c1*tc-paddfactor))
	return int32(total)
}

// calcLeastSquares estimates the add1,count1 split of a totalcount-step
// sequence that best fits the ideal (error-free) step intervals in a
// least-squares sense, searching every admissible count1 and keeping
// the one with lowest relative error.
func calcLeastSquares(qr *queueRef, totalcount int32) addMove {
	var varAc1, varAc2, covAc1Ac2 float64
	var covAc1Aii, covAc2Aii, sumAii float64
	for step := int32(1); step <= totalcount; step++ {
		wantInterval := idealInterval(qr, int(step-1))
		aii := wantInterval - int32(qr.lastInterval)
		dac2, daii := float64(step), float64(aii)
		covAc2Aii += dac2 * daii
		varAc2 += dac2 * dac2
		sumAii += daii
	}
	condsumAii := sumAii

	ar := initAddRange()
	bestE2 := math.MaxFloat64
	best := addMove{0, 0}
	for {
		if !addRangeUpdate(&ar, qr) {
			return best
		}
		count1 := ar.count

		wantInterval := idealInterval(qr, int(count1-1))
		aii := wantInterval - int32(qr.lastInterval)
		covAc2Aii -= condsumAii
		covAc1Aii += condsumAii
		condsumAii -= float64(aii)
		pc2 := totalcount - count1 + 1
		paf := pc2 * (pc2 + 1) / 2
		vaDiff := float64(pc2 * pc2)
		caaDiff := float64(paf - count1*pc2)
		covAc1Ac2 += caaDiff
		varAc2 -= vaDiff
		varAc1 += vaDiff - 2*caaDiff

		var dadd2 float64
		if count1 < totalcount {
			determinant := varAc1*varAc2 - covAc1Ac2*covAc1Ac2
			v := varAc1*covAc2Aii - covAc1Ac2*covAc1Aii
			dadd2 = math.Round(v / determinant)
		}
		dadd1 := math.Round((covAc1Aii - dadd2*covAc1Ac2) / varAc1)
		add1 := int32(dadd1)
		if add1 > ar.maxadd {
			add1 = ar.maxadd
		}
		if add1 < ar.minadd {
			add1 = ar.minadd
		}
		dadd1 = float64(add1)

		if count1 < totalcount {
			dadd2 = math.Round((covAc2Aii - dadd1*covAc1Ac2) / varAc2)
		}
		add2 := int32(dadd2)
		lastr := minmaxPoint(qr, int(totalcount-1))
		lastp := calcSeq(qr, add1, add2, count1, totalcount)
		count2 := totalcount - count1
		af := count2 * (count2 + 1) / 2
		if lastp < lastr.minp {
			if lastp+af > lastr.maxp {
				continue
			}
			add2 += idivUp(lastr.minp-lastp, af)
		} else if lastp > lastr.maxp {
			if lastp-af < lastr.minp {
				continue
			}
			add2 -= idivUp(lastp-lastr.maxp, af)
		}
		dadd2 = float64(add2)

		relError2 := dadd1*dadd1*varAc1 + dadd2*dadd2*varAc2 +
			2*dadd1*dadd2*covAc1Ac2 -
			2*dadd1*covAc1Aii - 2*dadd2*covAc2Aii
		if relError2 <= bestE2 {
			best.add = add1
			best.count = count1
			bestE2 = relError2
		}
	}
}

// compressLeastSquares finds the add,count pair that reaches as far
// into the queue as possible starting from qr, falling back to a
// single step when no range of more than zero steps can share an add.
func compressLeastSquares(qr *queueRef) addMove {
	outerAr1 := addRangeScan(qr)
	outerCount1 := outerAr1.count
	if outerCount1 == 0 {
		interval := qr.q[0] - uint32(qr.lastStepClock)
		st := interval - qr.lastInterval - qr.maxError/2
		return addMove{add: int32(st), count: 1}
	}

	outerAdd1 := (outerAr1.minadd + outerAr1.maxadd) / 2
	prev := addMove{add: outerAdd1, count: outerCount1}
	next := prev
	prevTotalcount := int32(0)
	for {
		qr2 := qrAfterMove(*qr, next)
		ar := addRangeScan(&qr2)
		totalcount := next.count + ar.count

		if prevTotalcount >= totalcount {
			return prev
		}
		prev = next
		prevTotalcount = totalcount
		next = calcLeastSquares(qr, totalcount)
	}
}

// wrapCompress runs compressLeastSquares once; when that yields a
// single step, it compresses the steps after it too and, if that
// move's add fits in 16 bits, emits both as one StepMove of count+1
// whose first pulse uses the new interval unchanged -- so a lone step
// rides along with the move that follows it instead of costing its
// own command.
func wrapCompress(sc *StepCompress) StepMove {
	qr := newQueueRef(sc, 46000)

	am1 := compressLeastSquares(&qr)
	if am1.count == 1 && len(qr.q) > 1 {
		qr2 := qrAfterMove(qr, am1)
		am2 := compressLeastSquares(&qr2)
		if am2.add >= -0x8000 && am2.add <= 0x7fff {
			return StepMove{
				Interval: qr.lastInterval + uint32(am1.add),
				Count:    uint16(am2.count + 1),
				Add:      int16(am2.add),
			}
		}
	}

	add := int16(0)
	if am1.count > 1 {
		add = int16(am1.add)
	}
	return StepMove{
		Interval: qr.lastInterval + uint32(am1.add),
		Count:    uint16(am1.count),
		Add:      add,
	}
}

// verifyMove re-checks a candidate StepMove against the raw requested
// clocks it was derived from, catching any arithmetic mistake in the
// compressor before it reaches the wire.
func (sc *StepCompress) verifyMove(move StepMove) error {
	if move.Count == 0 ||
		(move.Interval == 0 && move.Add == 0 && move.Count > 1) ||
		move.Interval >= 0x80000000 {
		return newInvalidMoveError(sc.oid, move, -1, "invalid sequence")
	}

	qr := newQueueRef(sc, 65535)
	interval := move.Interval
	var p uint32
	for i := 0; i < int(move.Count); i++ {
		point := minmaxPoint(&qr, i)
		p += interval
		if p < uint32(point.minp) || p > uint32(point.maxp) {
			return newInvalidMoveError(sc.oid, move, i+1,
				fmt.Sprintf("point %d not in %d:%d", p, point.minp, point.maxp))
		}
		if interval >= 0x80000000 {
			return newInvalidMoveError(sc.oid, move, i+1, "interval overflow")
		}
		interval += uint32(int32(move.Add))
	}
	return nil
}
