package vm

import "fmt"

// Step runs the program until it produces a row, halts, or fails. A StepRow
// result suspends the program with a row pending; calling Step again resumes
// after the producing instruction. Stepping a halted or failed program
// returns an error rather than silently restarting.
func (p *Program) Step() (StepResult, error) {
	switch p.state {
	case StateHalted:
		return StepDone, ErrHalted
	case StateFailed:
		if p.err != nil {
			return StepDone, p.err
		}
		return StepDone, ErrHalted
	case StateRow:
		p.state = StateReady
	}

	for {
		if p.ctx != nil {
			select {
			case <-p.ctx.Done():
				return StepDone, p.fail(p.ctx.Err())
			default:
			}
		}
		if p.ip < 0 || p.ip >= len(p.code) {
			return StepDone, p.fail(fmt.Errorf("%w: instruction pointer %d", ErrBadOperand, p.ip))
		}
		p.stepCount++
		if p.maxSteps > 0 && p.stepCount > p.maxSteps {
			return StepDone, p.fail(fmt.Errorf("%w: %d", ErrStepLimit, p.maxSteps))
		}

		in := p.code[p.ip]
		if p.statsEnabled {
			p.stats.Steps++
			p.stats.OpcodeCount[in.Op]++
		}
		next := p.ip + 1

		switch in.Op {
		case OpNoop:

		case OpInteger:
			p.regs[in.P2] = NewInteger(int64(in.P1))
		case OpInt64, OpReal, OpString, OpBlob:
			p.regs[in.P2] = in.P4
		case OpNull:
			p.regs[in.P2] = Null()
		case OpCopy, OpSCopy:
			// Values are immutable, so both copies behave identically.
			p.regs[in.P2] = p.regs[in.P1]
		case OpMove:
			for i := 0; i < in.P3; i++ {
				p.regs[in.P2+i] = p.regs[in.P1+i]
				p.regs[in.P1+i] = Null()
			}

		case OpAdd:
			p.regs[in.P3] = Add(p.regs[in.P1], p.regs[in.P2])
		case OpSubtract:
			p.regs[in.P3] = Subtract(p.regs[in.P1], p.regs[in.P2])
		case OpMultiply:
			p.regs[in.P3] = Multiply(p.regs[in.P1], p.regs[in.P2])
		case OpDivide:
			p.regs[in.P3] = Divide(p.regs[in.P1], p.regs[in.P2])
		case OpRemainder:
			p.regs[in.P3] = Remainder(p.regs[in.P1], p.regs[in.P2])
		case OpConcat:
			p.regs[in.P3] = Concat(p.regs[in.P1], p.regs[in.P2])
		case OpAddImm:
			p.regs[in.P1] = NewInteger(p.regs[in.P1].Int() + int64(in.P2))

		case OpGoto:
			next = in.P2
		case OpGosub:
			p.regs[in.P1] = NewInteger(int64(p.ip + 1))
			next = in.P2
		case OpReturn:
			r := p.regs[in.P1]
			if r.Type() != TypeInteger {
				return StepDone, p.fail(fmt.Errorf("%w: Return through register %d at addr %d", ErrNotInteger, in.P1, p.ip))
			}
			next = int(r.Int())
		case OpHalt:
			if in.P1 != 0 {
				msg := in.P4.Text()
				if msg == "" {
					msg = fmt.Sprintf("error code %d", in.P1)
				}
				return StepDone, p.fail(fmt.Errorf("%w: %s", ErrHaltAbort, msg))
			}
			p.state = StateHalted
			return StepDone, nil
		case OpOnce:
			if p.onceDone[p.ip] {
				next = in.P2
			} else {
				if p.onceDone == nil {
					p.onceDone = make(map[int]bool)
				}
				p.onceDone[p.ip] = true
			}

		case OpIf:
			v := p.regs[in.P1]
			if v.IsNull() {
				if in.P5&FlagJumpIfNull != 0 {
					next = in.P2
				}
			} else if v.Truthy() {
				next = in.P2
			}
		case OpIfNot:
			v := p.regs[in.P1]
			if v.IsNull() {
				if in.P5&FlagJumpIfNull != 0 {
					next = in.P2
				}
			} else if !v.Truthy() {
				next = in.P2
			}
		case OpIsNull:
			if p.regs[in.P1].IsNull() {
				next = in.P2
			}
		case OpNotNull:
			if !p.regs[in.P1].IsNull() {
				next = in.P2
			}
		case OpIfPos:
			if v := p.regs[in.P1]; v.Type() == TypeInteger && v.Int() > 0 {
				p.regs[in.P1] = NewInteger(v.Int() - int64(in.P3))
				next = in.P2
			}
		case OpIfNotZero:
			if v := p.regs[in.P1]; v.Int() != 0 {
				if n := v.Int(); n > 0 {
					p.regs[in.P1] = NewInteger(n - 1)
				}
				next = in.P2
			}
		case OpDecrJumpZero:
			n := p.regs[in.P1].Int() - 1
			p.regs[in.P1] = NewInteger(n)
			if n == 0 {
				next = in.P2
			}
		case OpMustBeInt:
			switch v := p.regs[in.P1]; {
			case v.Type() == TypeInteger:
			case v.Type() == TypeReal && v.Float() == float64(int64(v.Float())):
				p.regs[in.P1] = NewInteger(int64(v.Float()))
			case in.P2 != 0:
				next = in.P2
			default:
				return StepDone, p.fail(fmt.Errorf("%w: register %d at addr %d", ErrNotInteger, in.P1, p.ip))
			}

		case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
			a, c := p.regs[in.P1], p.regs[in.P3]
			if in.P5&FlagNullNever != 0 && (a.IsNull() || c.IsNull()) {
				break
			}
			cmp := Compare(a, c)
			var jump bool
			switch in.Op {
			case OpEq:
				jump = cmp == 0
			case OpNe:
				jump = cmp != 0
			case OpLt:
				jump = cmp < 0
			case OpLe:
				jump = cmp <= 0
			case OpGt:
				jump = cmp > 0
			case OpGe:
				jump = cmp >= 0
			}
			if jump {
				next = in.P2
			}

		case OpResultRow:
			p.resultStart, p.resultCount = in.P1, in.P2
			p.ip = next
			p.state = StateRow
			if p.statsEnabled {
				p.stats.Rows++
			}
			return StepRow, nil

		case OpOpenRead:
			if p.store == nil {
				return StepDone, p.fail(fmt.Errorf("%w: OpenRead at addr %d", ErrNoStore, p.ip))
			}
			if old := p.cursors[in.P1].cur; old != nil {
				if err := old.Close(); err != nil {
					return StepDone, p.fail(err)
				}
			}
			cur, err := p.store.Open(in.P4.Text())
			if err != nil {
				return StepDone, p.fail(fmt.Errorf("open %q: %w", in.P4.Text(), err))
			}
			p.cursors[in.P1] = cursorSlot{cur: cur}
		case OpClose:
			if c := p.cursors[in.P1].cur; c != nil {
				if err := c.Close(); err != nil {
					return StepDone, p.fail(err)
				}
				p.cursors[in.P1] = cursorSlot{}
			}
		case OpRewind, OpLast:
			slot, err := p.cursor(in.P1)
			if err != nil {
				return StepDone, p.fail(err)
			}
			var has bool
			if in.Op == OpRewind {
				has, err = slot.cur.Rewind()
			} else {
				has, err = slot.cur.Last()
			}
			if err != nil {
				return StepDone, p.fail(err)
			}
			slot.valid = has
			if !has {
				next = in.P2
			}
		case OpNext, OpPrev:
			slot, err := p.cursor(in.P1)
			if err != nil {
				return StepDone, p.fail(err)
			}
			var has bool
			if slot.valid {
				if in.Op == OpNext {
					has, err = slot.cur.Next()
				} else {
					has, err = slot.cur.Prev()
				}
				if err != nil {
					return StepDone, p.fail(err)
				}
			}
			slot.valid = has
			if has {
				next = in.P2
			}
		case OpSeekGE, OpSeekGT, OpSeekLE, OpSeekLT, OpSeekRowid:
			slot, err := p.cursor(in.P1)
			if err != nil {
				return StepDone, p.fail(err)
			}
			key := p.regs[in.P3]
			var has bool
			switch in.Op {
			case OpSeekGE:
				has, err = slot.cur.SeekGE(key)
			case OpSeekGT:
				has, err = slot.cur.SeekGT(key)
			case OpSeekLE:
				has, err = slot.cur.SeekLE(key)
			case OpSeekLT:
				has, err = slot.cur.SeekLT(key)
			case OpSeekRowid:
				if key.Type() != TypeInteger {
					return StepDone, p.fail(fmt.Errorf("%w: SeekRowid key in register %d", ErrNotInteger, in.P3))
				}
				has, err = slot.cur.SeekRowid(key.Int())
			}
			if err != nil {
				return StepDone, p.fail(err)
			}
			slot.valid = has
			if !has {
				next = in.P2
			}
		case OpColumn:
			slot, err := p.positionedCursor(in.P1)
			if err != nil {
				return StepDone, p.fail(err)
			}
			v, err := slot.cur.Column(in.P2)
			if err != nil {
				return StepDone, p.fail(err)
			}
			p.regs[in.P3] = v
		case OpRowid:
			slot, err := p.positionedCursor(in.P1)
			if err != nil {
				return StepDone, p.fail(err)
			}
			p.regs[in.P2] = NewInteger(slot.cur.Rowid())
		case OpNewRowid:
			slot, err := p.cursor(in.P1)
			if err != nil {
				return StepDone, p.fail(err)
			}
			has, err := slot.cur.Last()
			if err != nil {
				return StepDone, p.fail(err)
			}
			rowid := int64(1)
			if has {
				rowid = slot.cur.Rowid() + 1
			}
			slot.valid = has
			p.regs[in.P2] = NewInteger(rowid)
		case OpInsert:
			slot, err := p.cursor(in.P1)
			if err != nil {
				return StepDone, p.fail(err)
			}
			rowid := p.regs[in.P3]
			if rowid.Type() != TypeInteger {
				return StepDone, p.fail(fmt.Errorf("%w: Insert rowid in register %d", ErrNotInteger, in.P3))
			}
			n := int(in.P4.Int())
			row := make([]Value, n)
			copy(row, p.regs[in.P2:in.P2+n])
			if err := slot.cur.Insert(rowid.Int(), row); err != nil {
				return StepDone, p.fail(err)
			}
		case OpDelete:
			slot, err := p.positionedCursor(in.P1)
			if err != nil {
				return StepDone, p.fail(err)
			}
			if err := slot.cur.Delete(); err != nil {
				return StepDone, p.fail(err)
			}
			// the cursor repositions itself so Next lands on the
			// row after the deleted one

		case OpBegin:
			if p.store == nil {
				return StepDone, p.fail(fmt.Errorf("%w: Begin at addr %d", ErrNoStore, p.ip))
			}
			if err := p.store.Begin(in.P1 != 0); err != nil {
				return StepDone, p.fail(err)
			}
		case OpCommit:
			if p.store == nil {
				return StepDone, p.fail(fmt.Errorf("%w: Commit at addr %d", ErrNoStore, p.ip))
			}
			if err := p.store.Commit(); err != nil {
				return StepDone, p.fail(err)
			}
		case OpRollback:
			if p.store == nil {
				return StepDone, p.fail(fmt.Errorf("%w: Rollback at addr %d", ErrNoStore, p.ip))
			}
			if err := p.store.Rollback(); err != nil {
				return StepDone, p.fail(err)
			}

		default:
			return StepDone, p.fail(fmt.Errorf("%w: invalid opcode %d at addr %d", ErrBadOperand, in.Op, p.ip))
		}

		p.ip = next
	}
}

func (p *Program) cursor(i int) (*cursorSlot, error) {
	slot := &p.cursors[i]
	if slot.cur == nil {
		return nil, fmt.Errorf("%w: cursor %d at addr %d", ErrCursorClosed, i, p.ip)
	}
	return slot, nil
}

func (p *Program) positionedCursor(i int) (*cursorSlot, error) {
	slot, err := p.cursor(i)
	if err != nil {
		return nil, err
	}
	if !slot.valid {
		return nil, fmt.Errorf("%w: cursor %d has no current row at addr %d", ErrCursorClosed, i, p.ip)
	}
	return slot, nil
}

func (p *Program) fail(err error) error {
	p.state = StateFailed
	p.err = err
	return err
}
