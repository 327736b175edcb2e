package main

/*
#cgo CFLAGS: -I${SRCDIR}
#include "types.h"
*/
import "C"

import "unsafe"

// Go wrappers over the exported functions for capi_test.go. A _test.go
// file cannot import "C", so they live here and are linked into the
// library; nothing on the exported C surface calls them.

type cHandle = *C.SimulatorHandle

// callExecute copies request into C memory, executes it and returns a Go
// copy of the response. A nil request is passed as a NULL pointer.
func callExecute(handle cHandle, request []byte) (resp []byte, null bool) {
	var data *C.uint8_t
	if request != nil {
		p := tryAlloc(len(request) + 1)
		defer release(p)
		copy(unsafe.Slice((*byte)(p), len(request)), request)
		data = (*C.uint8_t)(p)
	}

	return collect(simulator_execute(handle, data, C.size_t(len(request))))
}

// callExecuteLength passes length as the request size whatever the buffer
// holds. Lengths above maxRequestSize are refused before the buffer is read.
func callExecuteLength(handle cHandle, request []byte, length uint64) (resp []byte, null bool) {
	p := tryAlloc(len(request) + 1)
	defer release(p)
	copy(unsafe.Slice((*byte)(p), len(request)), request)
	return collect(simulator_execute(handle, (*C.uint8_t)(p), C.size_t(length)))
}

func collect(out C.ByteArray) (resp []byte, null bool) {
	if out.data == nil {
		return nil, true
	}
	resp = C.GoBytes(unsafe.Pointer(out.data), C.int(out.length))
	simulator_free_byte_array(out)
	return resp, false
}

func freeEmpty() {
	simulator_free_byte_array(C.ByteArray{})
}
