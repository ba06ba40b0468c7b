package vm

import (
	"agentus/internal/bytecode"
	"agentus/internal/value"
)

// execSpawn materializes an agent instance from its descriptor:
// memory fields populated from their literal defaults (or None), a
// fresh monotonically-increasing handle, and an entry in the live
// table (spec §4.4 Spawn).
func (vm *VM) execSpawn(f *CallFrame, instr bytecode.Instruction) error {
	descIdx := instr.Bx()
	if int(descIdx) >= len(vm.Module.AgentDescriptors) {
		return runtimeError("spawn of undefined agent descriptor %d", descIdx)
	}
	desc := &vm.Module.AgentDescriptors[descIdx]

	memory := make(map[string]value.Value, len(desc.Fields))
	for _, field := range desc.Fields {
		name := vm.constStr(field.NameConst)
		if field.HasDefault {
			memory[name] = vm.loadConstValue(field.DefaultConst)
		} else {
			memory[name] = value.None()
		}
	}

	id := vm.nextAgentID
	vm.nextAgentID++
	vm.agents[id] = &AgentInstance{DescriptorIndex: uint32(descIdx), Memory: memory}

	vm.audit("spawn", id, vm.constStr(desc.NameConst))
	f.set(instr.A(), value.AgentHandle(id))
	return nil
}

// execSend appends a message to the target agent's mailbox. Recv on
// an empty mailbox yields None — no blocking semantics (spec §4.4
// Send/Recv, §5).
func (vm *VM) execSend(f *CallFrame, instr bytecode.Instruction) error {
	target := f.get(instr.A())
	if !target.IsAgent() {
		return runtimeError("send target must be an agent handle")
	}
	inst, ok := vm.agents[target.AsAgentHandle()]
	if !ok {
		return runtimeError("send target does not refer to a live agent")
	}
	msg := f.get(instr.B())
	inst.Mailbox = append(inst.Mailbox, msg)
	vm.audit("send", target.AsAgentHandle(), value.Display(msg))
	return nil
}

func (vm *VM) execRecv(f *CallFrame, instr bytecode.Instruction) error {
	target := f.get(instr.B())
	if !target.IsAgent() {
		return runtimeError("recv target must be an agent handle")
	}
	inst, ok := vm.agents[target.AsAgentHandle()]
	if !ok {
		return runtimeError("recv target does not refer to a live agent")
	}
	if len(inst.Mailbox) == 0 {
		f.set(instr.A(), value.None())
		return nil
	}
	msg := inst.Mailbox[0]
	inst.Mailbox = inst.Mailbox[1:]
	vm.audit("recv", target.AsAgentHandle(), value.Display(msg))
	f.set(instr.A(), msg)
	return nil
}

// execMLoad/execMStore address the current frame's owning-agent
// memory by field-name constant; both require an agent-owning frame
// (spec §4.4 Memory ops, §7 "Frame-context violation").
func (vm *VM) execMLoad(f *CallFrame, instr bytecode.Instruction) error {
	if !f.HasAgent {
		return runtimeError("not in an agent context")
	}
	inst := vm.agents[f.AgentID]
	name := vm.constStr(instr.Bx())
	v, ok := inst.Memory[name]
	if !ok {
		return runtimeError("agent has no memory field '%s'", name)
	}
	f.set(instr.A(), v)
	return nil
}

func (vm *VM) execMStore(f *CallFrame, instr bytecode.Instruction) error {
	if !f.HasAgent {
		return runtimeError("not in an agent context")
	}
	inst := vm.agents[f.AgentID]
	name := vm.constStr(instr.Bx())
	inst.Memory[name] = f.get(instr.A())
	return nil
}

// AgentMemorySnapshot returns a copy of a live agent's memory map, for
// tests and diagnostics.
func (vm *VM) AgentMemorySnapshot(id uint64) (map[string]value.Value, bool) {
	inst, ok := vm.agents[id]
	if !ok {
		return nil, false
	}
	out := make(map[string]value.Value, len(inst.Memory))
	for k, v := range inst.Memory {
		out[k] = v
	}
	return out, true
}
