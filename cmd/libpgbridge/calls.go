package main

/*
#include <stdlib.h>
#include "pgbridge.h"
*/
import "C"

import (
	"unsafe"

	"github.com/santif/pgbridge/bridge"
	"github.com/santif/pgbridge/handle"
)

// Go-typed calls into the exported functions. Arguments and results travel
// through the same C structs a C caller uses; the package tests drive the ABI
// through them.

type callResult struct {
	Status  bridge.Status
	Payload uint64
	Err     uint64
}

func (r callResult) OK() bool {
	return r.Status == bridge.StatusOK
}

func fromC(r C.pgb_result_t) callResult {
	return callResult{Status: bridge.Status(r.status), Payload: uint64(r.payload), Err: uint64(r.error)}
}

// cView is a buffer handed out by the library together with its C address
type cView struct {
	Buffer bridge.Buffer
	Ptr    unsafe.Pointer
}

func viewOf(b C.pgb_buffer_t) cView {
	buf, _ := goBuffer(b)
	return cView{Buffer: buf, Ptr: unsafe.Pointer(b.bytes)}
}

func callConnect(dsn string) callResult {
	return callConnectSized(dsn, uint64(len(dsn)))
}

// callConnectSized passes n as the DSN length, whatever len(dsn) is
func callConnectSized(dsn string, n uint64) callResult {
	s := C.CString(dsn)
	defer C.free(unsafe.Pointer(s))
	return fromC(pgb_connect(s, C.size_t(n)))
}

func callClose(conn uint64) callResult {
	return fromC(pgb_close(C.uint64_t(conn)))
}

func callNewQuery(conn uint64, sql string) callResult {
	s := C.CString(sql)
	defer C.free(unsafe.Pointer(s))
	return fromC(pgb_new_query(C.uint64_t(conn), s, C.size_t(len(sql))))
}

func callQueryParam(q uint64, p bridge.QueryParam) callResult {
	typeName, tp := cBuffer(p.TypeName)
	value, vp := cBuffer(p.Value)
	defer C.free(tp)
	defer C.free(vp)
	return fromC(pgb_query_param(C.uint64_t(q), C.pgb_param_t{typename: typeName, value: value}))
}

func callExec(q uint64) callResult {
	return fromC(pgb_query_exec(C.uint64_t(q)))
}

func callExecResult(q uint64) callResult {
	return fromC(pgb_query_exec_result(C.uint64_t(q)))
}

func callResultClose(stream uint64) callResult {
	return fromC(pgb_result_close(C.uint64_t(stream)))
}

func callNextRow(stream uint64) callResult {
	return fromC(pgb_next_row(C.uint64_t(stream)))
}

func callRowLen(row uint64) callResult {
	return fromC(pgb_row_len(C.uint64_t(row)))
}

func callRowClose(row uint64) callResult {
	return fromC(pgb_row_close(C.uint64_t(row)))
}

func callRowItem(row, i uint64) (callResult, cView, cView) {
	var out C.pgb_row_item_t
	r := fromC(pgb_row_item(C.uint64_t(row), C.uint64_t(i), &out))
	return r, viewOf(out.typename), viewOf(out.value)
}

func callErrorMessage(err uint64) cView {
	return viewOf(pgb_error_message(C.uint64_t(err)))
}

func callErrorCode(err uint64) bridge.Status {
	return bridge.Status(pgb_error_code(C.uint64_t(err)))
}

func callErrorFree(err uint64) callResult {
	return fromC(pgb_error_free(C.uint64_t(err)))
}

func callShutdown() bridge.Status {
	return bridge.Status(pgb_shutdown())
}

// trackedCopies reports how many C copies the arena holds for a row and whether it holds an error's message
func trackedCopies(row, err handle.Token) (int, bool) {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	_, ok := mem.errors[err]
	return len(mem.rows[row]), ok
}
