package main

/*
#include <stdlib.h>

static void* sim_malloc(size_t n) { return malloc(n); }
*/
import "C"

import "unsafe"

// tryAlloc returns nil when malloc fails, unlike C.malloc which aborts.
func tryAlloc(n int) unsafe.Pointer {
	if n <= 0 {
		return nil
	}
	return C.sim_malloc(C.size_t(n))
}

func release(p unsafe.Pointer) {
	C.free(p)
}
