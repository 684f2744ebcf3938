// Command libpgbridge builds the bridge as a C shared library:
//
//	go build -buildmode=c-shared -o libpgbridge.so ./cmd/libpgbridge
//
// The argument and result structs are declared in pgbridge.h, which the
// generated libpgbridge.h includes. Every function returns a pgb_result_t whose
// status is 0 on success. On failure the error field holds an error handle; read
// it with pgb_error_message and release it with pgb_error_free. Buffers handed out
// point into C memory owned by the handle that produced them.
package main

/*
#include <stdlib.h>
#include "pgbridge.h"
*/
import "C"

import (
	"context"
	"math"
	"strings"
	"sync"
	"unsafe"

	"github.com/santif/pgbridge/bridge"
	"github.com/santif/pgbridge/handle"
)

var (
	initOnce sync.Once
	rt       *runtime
	mem      = newArena(func(p unsafe.Pointer) { C.free(p) })
)

func instance() *bridge.Bridge {
	initOnce.Do(func() {
		rt = newRuntime(context.Background())
	})
	return rt.bridge
}

// goBuffer views b without copying. It fails for sizes a Go slice can't hold.
func goBuffer(b C.pgb_buffer_t) (bridge.Buffer, bool) {
	if b.bytes == nil {
		return bridge.Null(), true
	}
	if uint64(b.size) > math.MaxInt {
		return bridge.Buffer{}, false
	}
	return bridge.FromBytes(unsafe.Slice((*byte)(unsafe.Pointer(b.bytes)), int(b.size))), true
}

// goString copies n bytes at p into a Go string
func goString(p *C.char, n C.size_t) (string, bool) {
	if n == 0 {
		return "", true
	}
	if p == nil || uint64(n) > math.MaxInt {
		return "", false
	}
	return strings.Clone(unsafe.String((*byte)(unsafe.Pointer(p)), int(n))), true
}

// rejected reports an argument the bridge never saw as a boundary error
func rejected(b *bridge.Bridge, what string) C.pgb_result_t {
	tok := b.ErrorNew(bridge.StatusBoundary, what+" length out of range")
	return C.pgb_result_t{status: C.uint8_t(bridge.StatusBoundary), error: C.uint64_t(tok)}
}

// cBuffer copies b into C memory. Empty views get a one byte allocation so they stay distinct from null.
func cBuffer(b bridge.Buffer) (C.pgb_buffer_t, unsafe.Pointer) {
	if b.IsNull() {
		return C.pgb_buffer_t{}, nil
	}

	n := b.Len()
	p := C.malloc(C.size_t(max(n, 1)))
	if n > 0 {
		copy(unsafe.Slice((*byte)(p), n), b.Bytes())
	}
	return C.pgb_buffer_t{size: C.size_t(n), bytes: (*C.uint8_t)(p)}, p
}

func result[T any](env bridge.Envelope[T], payload func(T) uint64) C.pgb_result_t {
	r := C.pgb_result_t{status: C.uint8_t(env.Status), error: C.uint64_t(env.Error)}
	if env.OK() {
		r.payload = C.uint64_t(payload(env.Payload))
	}
	return r
}

func token(t handle.Token) uint64 { return uint64(t) }
func count(n uint64) uint64       { return n }
func void(bridge.Void) uint64     { return 0 }

// sweep frees the row copies of rows that are no longer live
func sweep(b *bridge.Bridge) {
	mem.sweep(b.Alive)
}

//export pgb_connect
func pgb_connect(dsn *C.char, n C.size_t) C.pgb_result_t {
	b := instance()
	s, ok := goString(dsn, n)
	if !ok {
		return rejected(b, "dsn")
	}
	return result(b.Connect(context.Background(), s), token)
}

//export pgb_close
func pgb_close(conn C.uint64_t) C.pgb_result_t {
	b := instance()
	defer sweep(b)
	return result(b.Close(context.Background(), handle.Token(conn)), void)
}

//export pgb_new_query
func pgb_new_query(conn C.uint64_t, sql *C.char, n C.size_t) C.pgb_result_t {
	b := instance()
	s, ok := goString(sql, n)
	if !ok {
		return rejected(b, "sql")
	}
	return result(b.NewQuery(handle.Token(conn), s), token)
}

//export pgb_query_param
func pgb_query_param(q C.uint64_t, p C.pgb_param_t) C.pgb_result_t {
	b := instance()
	typeName, ok := goBuffer(p.typename)
	if !ok {
		return rejected(b, "type name")
	}
	value, ok := goBuffer(p.value)
	if !ok {
		return rejected(b, "value")
	}
	return result(b.AddParam(handle.Token(q), bridge.QueryParam{TypeName: typeName, Value: value}), void)
}

//export pgb_query_exec
func pgb_query_exec(q C.uint64_t) C.pgb_result_t {
	return result(instance().Exec(context.Background(), handle.Token(q)), count)
}

//export pgb_query_exec_result
func pgb_query_exec_result(q C.uint64_t) C.pgb_result_t {
	return result(instance().ExecWithResult(context.Background(), handle.Token(q)), token)
}

//export pgb_result_close
func pgb_result_close(stream C.uint64_t) C.pgb_result_t {
	b := instance()
	defer sweep(b)
	return result(b.StreamClose(handle.Token(stream)), void)
}

//export pgb_next_row
func pgb_next_row(stream C.uint64_t) C.pgb_result_t {
	b := instance()
	defer sweep(b)
	return result(b.NextRow(handle.Token(stream)), token)
}

//export pgb_row_len
func pgb_row_len(row C.uint64_t) C.pgb_result_t {
	return result(instance().RowLen(handle.Token(row)), count)
}

//export pgb_row_close
func pgb_row_close(row C.uint64_t) C.pgb_result_t {
	b := instance()
	defer sweep(b)
	return result(b.RowClose(handle.Token(row)), void)
}

// pgb_row_item writes item i of row to out. The buffers stay valid until the row is invalidated.
//
//export pgb_row_item
func pgb_row_item(row C.uint64_t, i C.uint64_t, out *C.pgb_row_item_t) C.pgb_result_t {
	b := instance()
	env := b.RowItem(handle.Token(row), uint64(i))
	if env.OK() && out != nil {
		typeName, tp := cBuffer(env.Payload.TypeName)
		value, vp := cBuffer(env.Payload.Value)
		mem.addRow(handle.Token(row), tp)
		mem.addRow(handle.Token(row), vp)
		out.typename = typeName
		out.value = value
	}
	return result(env, func(bridge.RowItem) uint64 { return 0 })
}

// pgb_error_message returns the message of err, or a null buffer if err is not a live error.
// The buffer stays valid until pgb_error_free.
//
//export pgb_error_message
func pgb_error_message(err C.uint64_t) C.pgb_buffer_t {
	b := instance()
	tok := handle.Token(err)

	e, ok := b.Err(tok).(*bridge.Error)
	if !ok {
		return C.pgb_buffer_t{}
	}

	msg := bridge.FromText(e.Message)
	p := mem.errorMessage(tok, func() unsafe.Pointer {
		_, p := cBuffer(msg)
		return p
	})
	return C.pgb_buffer_t{size: C.size_t(msg.Len()), bytes: (*C.uint8_t)(p)}
}

//export pgb_error_code
func pgb_error_code(err C.uint64_t) C.uint8_t {
	e, ok := instance().Err(handle.Token(err)).(*bridge.Error)
	if !ok {
		return C.uint8_t(bridge.StatusBoundary)
	}
	return C.uint8_t(e.Code)
}

//export pgb_error_free
func pgb_error_free(err C.uint64_t) C.pgb_result_t {
	b := instance()
	mem.freeError(handle.Token(err))
	return result(b.ErrorFree(handle.Token(err)), void)
}

// pgb_shutdown closes every connection and frees all buffers handed out
//
//export pgb_shutdown
func pgb_shutdown() C.uint8_t {
	instance()
	err := rt.shutdown(context.Background())
	mem.reset()
	if err != nil {
		rt.logger.Error("shutdown failed", err)
		return C.uint8_t(bridge.StatusConnection)
	}
	return C.uint8_t(bridge.StatusOK)
}

func main() {}
