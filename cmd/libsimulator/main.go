// Command libsimulator exports the request bridge as a C shared library:
//
//	go build -buildmode=c-shared -o libhierachain_simulator.so ./cmd/libsimulator
//
// The C declarations are in include/hierachain_simulator.h.
package main

/*
#cgo CFLAGS: -I${SRCDIR}
#include "types.h"
*/
import "C"

import (
	"bytes"
	"fmt"
	"runtime/cgo"
	"unsafe"

	"go.uber.org/zap"

	"github.com/VanDung-dev/HieraChain-Simulator/bridge"
)

func main() {}

//export simulator_create
func simulator_create() (handle *C.SimulatorHandle) {
	defer func() {
		if r := recover(); r != nil {
			bridge.Logger().Error("recovered panic in simulator_create", zap.Any("panic", r))
			handle = nil
		}
	}()

	h, err := bridge.Create()
	if err != nil {
		bridge.Logger().Error("failed to create simulator", zap.Error(err))
		return nil
	}

	p := tryAlloc(int(unsafe.Sizeof(C.SimulatorHandle{})))
	if p == nil {
		_ = h.Destroy()
		return nil
	}
	handle = (*C.SimulatorHandle)(p)
	handle.id = C.uintptr_t(cgo.NewHandle(h))
	return handle
}

//export simulator_destroy
func simulator_destroy(handle *C.SimulatorHandle) {
	if handle == nil {
		return
	}
	ch := cgo.Handle(handle.id)
	if h, ok := ch.Value().(*bridge.Handle); ok {
		if err := h.Destroy(); err != nil {
			bridge.Logger().Warn("failed to release simulator resources", zap.Error(err))
		}
	}
	ch.Delete()
	release(unsafe.Pointer(handle))
}

// maxRequestSize caps the length a caller may pass to simulator_execute.
const maxRequestSize = 100 * 1024 * 1024

//export simulator_execute
func simulator_execute(handle *C.SimulatorHandle, data *C.uint8_t, length C.size_t) (out C.ByteArray) {
	defer func() {
		if r := recover(); r != nil {
			bridge.Logger().Error("recovered panic in simulator_execute", zap.Any("panic", r))
			out = toByteArray(bridge.EncodeFailure(fmt.Sprintf("Internal error: %v", r)))
		}
	}()

	if uint64(length) > maxRequestSize {
		return toByteArray(bridge.EncodeFailure(fmt.Sprintf(
			"Request too large: %d bytes exceeds maximum %d", uint64(length), maxRequestSize)))
	}

	var h *bridge.Handle
	if handle != nil {
		h, _ = cgo.Handle(handle.id).Value().(*bridge.Handle)
	}
	var request []byte
	if data != nil {
		request = bytes.Clone(unsafe.Slice((*byte)(unsafe.Pointer(data)), int(length)))
	}
	return toByteArray(execute(h, request))
}

//export simulator_free_byte_array
func simulator_free_byte_array(array C.ByteArray) {
	if array.data == nil {
		return
	}
	release(unsafe.Pointer(array.data))
}

func execute(h *bridge.Handle, request []byte) (resp []byte) {
	defer func() {
		if r := recover(); r != nil {
			resp = bridge.EncodeFailure(fmt.Sprintf("Internal error: %v", r))
		}
	}()
	return h.Execute(request)
}

// toByteArray copies resp into C memory owned by the caller.
func toByteArray(resp []byte) C.ByteArray {
	p := tryAlloc(len(resp))
	if p == nil {
		bridge.Logger().Error("failed to allocate response buffer", zap.Int("size", len(resp)))
		return C.ByteArray{}
	}
	copy(unsafe.Slice((*byte)(p), len(resp)), resp)
	return C.ByteArray{data: (*C.uint8_t)(p), length: C.size_t(len(resp))}
}
