package vm

import (
	"strconv"

	"agentus/internal/bytecode"
	"agentus/internal/host"
	"agentus/internal/module"
	"agentus/internal/value"
)

// execCall implements the Call opcode's two shapes: a direct
// function-index call (push a frame) and the 0xFFFE method-dispatch
// sentinel, which further splits into a built-in collection method
// (synchronous, no frame) or a user agent-method call (push a frame
// with agent linkage) — spec §4.2, §4.4 "Call dispatch".
func (vm *VM) execCall(f *CallFrame, fn *module.Function, instr bytecode.Instruction) error {
	extra := bytecode.Instruction(fn.Code[f.PC])
	f.PC++
	firstArg, numArgs := extra.B(), extra.C()

	if instr.Bx() != bytecode.MethodCallSentinel {
		return vm.callFunction(f, instr.Bx(), firstArg, numArgs, instr.A())
	}

	nameWord := bytecode.Instruction(fn.Code[f.PC])
	f.PC++
	methodName := vm.constStr(nameWord.Bx())

	receiver := f.get(firstArg)
	switch receiver.Kind() {
	case value.KindList, value.KindMap, value.KindStr:
		result, err := vm.callBuiltinMethod(receiver, methodName, f, firstArg, numArgs)
		if err != nil {
			return err
		}
		f.set(instr.A(), result)
		return nil
	case value.KindAgent:
		return vm.callAgentMethod(f, receiver.AsAgentHandle(), methodName, firstArg, numArgs, instr.A())
	default:
		return runtimeError("cannot call method '%s' on a %s value", methodName, receiver.Kind())
	}
}

// callFunction pushes a new frame for module.functions[fnIdx], copying
// numArgs consecutive caller registers (starting at firstArg) into the
// callee's parameter registers 0..numArgs-1 (spec §4.4).
func (vm *VM) callFunction(f *CallFrame, fnIdx uint16, firstArg, numArgs, resultReg uint8) error {
	if int(fnIdx) >= len(vm.Module.Functions) {
		return runtimeError("call to undefined function index %d", fnIdx)
	}
	callee := vm.fn(uint32(fnIdx))
	nf := newFrame(uint32(fnIdx), callee)
	for i := uint8(0); i < numArgs; i++ {
		nf.set(i, f.get(firstArg+i))
	}
	nf.HasReturn = true
	nf.ReturnFuncIndex = f.FuncIndex
	nf.ResultReg = resultReg
	vm.frames = append(vm.frames, nf)
	return nil
}

// callAgentMethod dispatches a method call whose receiver is an
// AgentHandle. The receiver occupies firstArg but is not copied into
// the callee: methods address memory implicitly via the frame's
// AgentID (spec §4.2 "the receiver is implicit").
func (vm *VM) callAgentMethod(f *CallFrame, agentID uint64, methodName string, firstArg, numArgs, resultReg uint8) error {
	inst, ok := vm.agents[agentID]
	if !ok {
		return runtimeError("agent handle %d does not refer to a live agent", agentID)
	}
	desc := &vm.Module.AgentDescriptors[inst.DescriptorIndex]
	fnIdx, ok := vm.lookupMethod(desc, methodName)
	if !ok {
		return runtimeError("agent '%s' has no method '%s'", vm.constStr(desc.NameConst), methodName)
	}
	callee := vm.fn(fnIdx)
	nf := newFrame(fnIdx, callee)
	for i := uint8(1); i < numArgs; i++ {
		nf.set(i-1, f.get(firstArg+i))
	}
	nf.HasReturn = true
	nf.ReturnFuncIndex = f.FuncIndex
	nf.ResultReg = resultReg
	nf.HasAgent = true
	nf.AgentID = agentID
	vm.frames = append(vm.frames, nf)
	return nil
}

func (vm *VM) lookupMethod(desc *module.AgentDescriptor, name string) (uint32, bool) {
	for nameConst, fnIdx := range desc.Methods {
		if vm.constStr(nameConst) == name {
			return fnIdx, true
		}
	}
	return 0, false
}

// callBuiltinMethod dispatches the closed set of List/Map/Str methods
// the spec names (spec §4.4, §9 "keep the dispatch table explicit and
// closed"). Mutating calls (list.push, map.remove) change the shared
// List/Map storage the receiver points to; no register is rewritten.
func (vm *VM) callBuiltinMethod(receiver value.Value, name string, f *CallFrame, firstArg, numArgs uint8) (value.Value, error) {
	switch receiver.Kind() {
	case value.KindList:
		l := receiver.AsList()
		switch name {
		case "push":
			if numArgs < 2 {
				return value.None(), runtimeError("list.push requires one argument")
			}
			l.Items = append(l.Items, f.get(firstArg+1))
			return value.None(), nil
		case "len":
			return value.Num(float64(len(l.Items))), nil
		default:
			return value.None(), runtimeError("list has no method '%s'", name)
		}
	case value.KindMap:
		m := receiver.AsMap()
		switch name {
		case "len":
			return value.Num(float64(len(m.Entries))), nil
		case "keys":
			keys := value.SortedMapKeys(m)
			items := make([]value.Value, len(keys))
			for i, k := range keys {
				items[i] = value.Str(k)
			}
			return value.NewList(items), nil
		case "values":
			keys := value.SortedMapKeys(m)
			items := make([]value.Value, len(keys))
			for i, k := range keys {
				items[i] = m.Entries[k]
			}
			return value.NewList(items), nil
		case "contains":
			if numArgs < 2 {
				return value.None(), runtimeError("map.contains requires one argument")
			}
			k := f.get(firstArg + 1)
			if !k.IsStr() {
				return value.None(), runtimeError("map keys are strings")
			}
			_, ok := m.Entries[k.AsStr()]
			return value.Bool(ok), nil
		case "remove":
			if numArgs < 2 {
				return value.None(), runtimeError("map.remove requires one argument")
			}
			k := f.get(firstArg + 1)
			if !k.IsStr() {
				return value.None(), runtimeError("map keys are strings")
			}
			v, ok := m.Entries[k.AsStr()]
			delete(m.Entries, k.AsStr())
			if !ok {
				return value.None(), nil
			}
			return v, nil
		default:
			return value.None(), runtimeError("map has no method '%s'", name)
		}
	case value.KindStr:
		switch name {
		case "len":
			return value.Num(float64(len(receiver.AsStr()))), nil
		default:
			return value.None(), runtimeError("str has no method '%s'", name)
		}
	default:
		return value.None(), runtimeError("no built-in methods on %s", receiver.Kind())
	}
}

// execTCall resolves the tool descriptor, zips live arguments with
// declared parameter names (synthesizing arg{i} past the descriptor's
// param list), stringifies each value, and hands the request to the
// host (spec §4.1 TCall, §4.4 TCall, §6 tool_call contract).
func (vm *VM) execTCall(f *CallFrame, fn *module.Function, instr bytecode.Instruction) error {
	extra := bytecode.Instruction(fn.Code[f.PC])
	f.PC++
	firstArg, numArgs := extra.B(), extra.C()

	toolIdx := instr.Bx()
	if int(toolIdx) >= len(vm.Module.ToolDescriptors) {
		return runtimeError("call to undefined tool index %d", toolIdx)
	}
	desc := &vm.Module.ToolDescriptors[toolIdx]
	toolName := vm.constStr(desc.NameConst)

	params := make([]host.ParamEntry, numArgs)
	for i := uint8(0); i < numArgs; i++ {
		var name string
		if int(i) < len(desc.Params) {
			name = vm.constStr(desc.Params[i].NameConst)
		} else {
			name = argName(i)
		}
		params[i] = host.ParamEntry{Name: name, Value: value.Display(f.get(firstArg + i))}
	}

	vm.audit("tool_call", 0, toolName)
	result, err := vm.Host.ToolCall(vm.ctx, host.ToolCallRequest{ToolName: toolName, Params: params})
	if err != nil {
		return runtimeError("tool call error: %v", err)
	}
	f.set(instr.A(), value.Str(result))
	return nil
}

func argName(i uint8) string {
	return "arg" + strconv.Itoa(int(i))
}

// execExec invokes the host for the Exec opcode, threading the owning
// agent's model/system-prompt when the current frame has one (spec
// §4.1 Exec, §4.4 Exec).
func (vm *VM) execExec(f *CallFrame, instr bytecode.Instruction) error {
	prompt := value.Display(f.get(instr.B()))
	req := host.ExecRequest{Prompt: prompt}
	if f.HasAgent {
		if inst, ok := vm.agents[f.AgentID]; ok {
			desc := &vm.Module.AgentDescriptors[inst.DescriptorIndex]
			if desc.HasModel {
				req.HasModel = true
				req.Model = vm.constStr(desc.ModelConst)
			}
			if desc.HasSystemPrompt {
				req.HasSystemPrompt = true
				req.SystemPrompt = vm.constStr(desc.SystemPromptConst)
			}
		}
	}
	vm.audit("exec", f.AgentID, prompt)
	result, err := vm.Host.Exec(vm.ctx, req)
	if err != nil {
		return runtimeError("exec error: %v", err)
	}
	f.set(instr.A(), value.Str(result))
	return nil
}
