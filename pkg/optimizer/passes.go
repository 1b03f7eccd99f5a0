package optimizer

import (
	"github.com/plasm-db/plasm/pkg/vm"
)

// foldConstants replaces arithmetic over registers with known constant
// contents by an equivalent load. Tracking resets at jump targets, where
// control can arrive with different register contents.
func foldConstants(code []vm.Instr) []vm.Instr {
	targets := jumpTargets(code)
	known := make(map[int]vm.Value)
	out := make([]vm.Instr, len(code))
	copy(out, code)

	for addr, in := range out {
		if targets[addr] {
			known = make(map[int]vm.Value)
		}

		switch in.Op {
		case vm.OpInteger:
			known[in.P2] = vm.NewInteger(int64(in.P1))
		case vm.OpInt64, vm.OpReal, vm.OpString, vm.OpBlob:
			known[in.P2] = in.P4
		case vm.OpNull:
			known[in.P2] = vm.Null()
		case vm.OpCopy, vm.OpSCopy:
			if v, ok := known[in.P1]; ok {
				known[in.P2] = v
			} else {
				delete(known, in.P2)
			}

		case vm.OpAdd, vm.OpSubtract, vm.OpMultiply, vm.OpDivide, vm.OpRemainder, vm.OpConcat:
			a, okA := known[in.P1]
			b, okB := known[in.P2]
			if !okA || !okB {
				delete(known, in.P3)
				continue
			}
			var folded vm.Value
			switch in.Op {
			case vm.OpAdd:
				folded = vm.Add(a, b)
			case vm.OpSubtract:
				folded = vm.Subtract(a, b)
			case vm.OpMultiply:
				folded = vm.Multiply(a, b)
			case vm.OpDivide:
				folded = vm.Divide(a, b)
			case vm.OpRemainder:
				folded = vm.Remainder(a, b)
			case vm.OpConcat:
				folded = vm.Concat(a, b)
			}
			out[addr] = loadFor(folded, in.P3)
			known[in.P3] = folded

		case vm.OpNoop, vm.OpGoto:
			// no register writes

		case vm.OpResultRow:
			// execution suspends here and the caller may poke
			// registers before resuming
			known = make(map[int]vm.Value)

		default:
			// anything else may write registers or move control in ways
			// the tracker does not model
			known = make(map[int]vm.Value)
		}
	}
	return out
}

// loadFor builds the load instruction that puts v into register dst.
func loadFor(v vm.Value, dst int) vm.Instr {
	switch v.Type() {
	case vm.TypeNull:
		return vm.Instr{Op: vm.OpNull, P2: dst}
	case vm.TypeInteger:
		if n := v.Int(); int64(int(n)) == n && n == int64(int32(n)) {
			return vm.Instr{Op: vm.OpInteger, P1: int(n), P2: dst}
		}
		return vm.Instr{Op: vm.OpInt64, P2: dst, P4: v}
	case vm.TypeReal:
		return vm.Instr{Op: vm.OpReal, P2: dst, P4: v}
	case vm.TypeBlob:
		return vm.Instr{Op: vm.OpBlob, P2: dst, P4: v}
	default:
		return vm.Instr{Op: vm.OpString, P2: dst, P4: v}
	}
}

// threadJumps retargets jumps whose destination is an unconditional Goto,
// following chains up to the code length so cycles terminate.
func threadJumps(code []vm.Instr) []vm.Instr {
	out := make([]vm.Instr, len(code))
	copy(out, code)
	for addr, in := range out {
		if !in.Op.IsJump() {
			continue
		}
		target := in.P2
		for hops := 0; hops < len(out); hops++ {
			if target < 0 || target >= len(out) || out[target].Op != vm.OpGoto {
				break
			}
			next := out[target].P2
			if next == target {
				break // self-loop
			}
			target = next
		}
		out[addr].P2 = target
	}
	return out
}

// elideDeadCode replaces instructions no path reaches with Noop. Addresses
// are reached from 0 through fallthrough and jump edges; Goto and a
// success Halt do not fall through.
func elideDeadCode(code []vm.Instr) []vm.Instr {
	reached := make([]bool, len(code))
	stack := []int{0}
	for len(stack) > 0 {
		addr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if addr < 0 || addr >= len(code) || reached[addr] {
			continue
		}
		reached[addr] = true
		in := code[addr]
		if in.Op.IsJump() {
			stack = append(stack, in.P2)
		}
		switch in.Op {
		case vm.OpHalt, vm.OpGoto, vm.OpReturn:
			// no fallthrough; Gosub return sites are covered because
			// Gosub itself falls through to addr+1
		default:
			stack = append(stack, addr+1)
		}
	}

	out := make([]vm.Instr, len(code))
	copy(out, code)
	for addr := range out {
		if !reached[addr] {
			out[addr] = vm.Instr{Op: vm.OpNoop}
		}
	}
	return out
}
