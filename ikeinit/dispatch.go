package ikeinit

import "github.com/nullcipher/ikeinit/protocol"

// Build populates an outbound message. Dispatch runs through buildFn
// once the task has swapped into the multi-exchange phase (§4.6);
// otherwise it runs the initial-exchange builder for this task's role.
func (t *Task) Build(msg *protocol.Message) Status {
	if t.buildFn != nil {
		return t.buildFn(msg)
	}
	if t.isInitiator {
		return t.buildI(msg)
	}
	return t.buildR(msg)
}

// Process consumes an inbound message, with the same dispatch rule as Build.
func (t *Task) Process(msg *protocol.Message) Status {
	if t.processFn != nil {
		return t.processFn(msg)
	}
	if t.isInitiator {
		return t.processI(msg)
	}
	return t.processR(msg)
}

// PreProcess validates an inbound response before regular processing
// runs; only meaningful for the initiator (§4.5).
func (t *Task) PreProcess(msg *protocol.Message) Status {
	if !t.isInitiator {
		return StatusNeedMore
	}
	return t.preProcessI(msg)
}

// PostBuild runs the deferred-derivation trampoline an intermediate
// responder build installs, if any; a no-op otherwise.
func (t *Task) PostBuild(msg *protocol.Message) Status {
	if t.postBuild == nil {
		return StatusSuccess
	}
	hook := t.postBuild
	t.postBuild = nil
	return hook(msg)
}

// PostProcess runs the deferred-derivation trampoline an intermediate
// initiator process installs, if any; a no-op otherwise.
func (t *Task) PostProcess(msg *protocol.Message) Status {
	if t.postProcess == nil {
		return StatusSuccess
	}
	hook := t.postProcess
	t.postProcess = nil
	return hook(msg)
}
