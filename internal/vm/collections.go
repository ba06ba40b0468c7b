package vm

import (
	"agentus/internal/bytecode"
	"agentus/internal/module"
	"agentus/internal/value"
)

// execCollection implements NewList, NewMap, IndexGet, IndexSet and
// Len (spec §4.1 Collections).
func (vm *VM) execCollection(f *CallFrame, instr bytecode.Instruction, op bytecode.OpCode) error {
	switch op {
	case bytecode.OpNewList:
		n := int(instr.C())
		items := make([]value.Value, n)
		for i := 0; i < n; i++ {
			items[i] = f.get(instr.B() + uint8(i))
		}
		f.set(instr.A(), value.NewList(items))
		return nil

	case bytecode.OpNewMap:
		n := int(instr.C())
		m := value.NewMap()
		entries := m.AsMap().Entries
		for i := 0; i < n; i++ {
			key := f.get(instr.B() + uint8(2*i))
			val := f.get(instr.B() + uint8(2*i+1))
			if !key.IsStr() {
				return runtimeError("map literal keys must be strings")
			}
			entries[key.AsStr()] = val
		}
		f.set(instr.A(), m)
		return nil

	case bytecode.OpIndexGet:
		obj, idx := f.get(instr.B()), f.get(instr.C())
		v, err := vm.indexGet(obj, idx)
		if err != nil {
			return err
		}
		f.set(instr.A(), v)
		return nil

	case bytecode.OpIndexSet:
		obj, idx, val := f.get(instr.A()), f.get(instr.B()), f.get(instr.C())
		return vm.indexSet(obj, idx, val)

	case bytecode.OpLen:
		obj := f.get(instr.B())
		n, err := vm.length(obj)
		if err != nil {
			return err
		}
		f.set(instr.A(), value.Num(float64(n)))
		return nil
	}
	return nil
}

// indexGet returns None for an out-of-bounds list index rather than
// erroring (spec §7: "Out-of-bounds (list IndexSet outside length;
// IndexGet returns None instead)").
func (vm *VM) indexGet(obj, idx value.Value) (value.Value, error) {
	switch obj.Kind() {
	case value.KindList:
		items := obj.AsList().Items
		if !idx.IsNum() {
			return value.None(), runtimeError("list index must be numeric")
		}
		i := int(idx.AsNum())
		if i < 0 || i >= len(items) {
			return value.None(), nil
		}
		return items[i], nil
	case value.KindMap:
		if !idx.IsStr() {
			return value.None(), runtimeError("map index must be a string")
		}
		v, ok := obj.AsMap().Entries[idx.AsStr()]
		if !ok {
			return value.None(), nil
		}
		return v, nil
	default:
		return value.None(), runtimeError("cannot index a %s value", obj.Kind())
	}
}

// indexSet errors on an out-of-bounds list index (unlike IndexGet's
// None, spec §7 distinguishes the two directions explicitly).
func (vm *VM) indexSet(obj, idx, val value.Value) error {
	switch obj.Kind() {
	case value.KindList:
		items := obj.AsList()
		if !idx.IsNum() {
			return runtimeError("list index must be numeric")
		}
		i := int(idx.AsNum())
		if i < 0 || i >= len(items.Items) {
			return runtimeError("list index %d out of range (length %d)", i, len(items.Items))
		}
		items.Items[i] = val
		return nil
	case value.KindMap:
		if !idx.IsStr() {
			return runtimeError("map index must be a string")
		}
		obj.AsMap().Entries[idx.AsStr()] = val
		return nil
	default:
		return runtimeError("cannot index-assign a %s value", obj.Kind())
	}
}

func (vm *VM) length(obj value.Value) (int, error) {
	switch obj.Kind() {
	case value.KindList:
		return len(obj.AsList().Items), nil
	case value.KindMap:
		return len(obj.AsMap().Entries), nil
	case value.KindStr:
		return len(obj.AsStr()), nil
	default:
		return 0, runtimeError("cannot take length of a %s value", obj.Kind())
	}
}

// execIterInit snapshots the source sequence into a fresh Iterator
// value: a List's items directly, a Map's keys sorted for determinism
// (spec §3 Iterator, §9 "Iterator snapshot").
func (vm *VM) execIterInit(f *CallFrame, instr bytecode.Instruction) error {
	src := f.get(instr.B())
	var items []value.Value
	switch src.Kind() {
	case value.KindList:
		orig := src.AsList().Items
		items = make([]value.Value, len(orig))
		copy(items, orig)
	case value.KindMap:
		keys := value.SortedMapKeys(src.AsMap())
		items = make([]value.Value, len(keys))
		for i, k := range keys {
			items[i] = value.Str(k)
		}
	default:
		return runtimeError("cannot iterate a %s value", src.Kind())
	}
	f.set(instr.A(), value.Iterator(&value.IteratorObj{Items: items}))
	return nil
}

// execIterNext reads the two-word IterNext group: word 0's A is the
// destination ("variable") register and sBx is the exhaustion offset
// measured from the PC after both words; word 1's B is the iterator
// register (spec §4.1 IterNext, §4.2, §4.4).
func (vm *VM) execIterNext(f *CallFrame, fn *module.Function, instr bytecode.Instruction) error {
	extra := bytecode.Instruction(fn.Code[f.PC])
	f.PC++
	iterReg := extra.B()

	it := f.get(iterReg)
	if !it.IsIterator() {
		return runtimeError("IterNext operand is not an iterator")
	}
	iter := it.AsIterator()
	if iter.Cursor >= len(iter.Items) {
		f.PC += int(instr.SBx())
		return nil
	}
	f.set(instr.A(), iter.Items[iter.Cursor])
	iter.Cursor++
	return nil
}
