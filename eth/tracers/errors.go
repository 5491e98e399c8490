// Copyright 2023 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package tracers

import (
	"errors"
	"fmt"
)

// The tracing service's error taxonomy. Every error surfaced across the RPC
// boundary is one of these, or wraps one of these via errors.Is/As so the
// transport layer can map it onto a stable JSON-RPC code.
var (
	errTxNotFound      = errors.New("transaction not found")
	errBlockNotFound   = errors.New("block not found")
	errStateNotFound   = errors.New("state not found")
	errGenesisTraceable = errors.New("genesis is not traceable")
	errPendingNotTraceable = errors.New("tracing on top of pending is not supported")
)

// HeaderNotFoundError reports that a block selector could not be resolved
// to a known header.
type HeaderNotFoundError struct {
	Selector string
}

func (e *HeaderNotFoundError) Error() string {
	return fmt.Sprintf("block %s not found", e.Selector)
}

// ErrorCode implements go-ethereum's rpc.Error so the JSON-RPC layer can
// attach a stable code without this package depending on the transport.
func (e *HeaderNotFoundError) ErrorCode() int { return -32001 }

// InvalidSignatureError reports that a transaction's signer could not be
// recovered under the active fork rules. Block replay has no per-transaction
// tolerance for this: the whole request fails.
type InvalidSignatureError struct {
	TxHash string
	Cause  error
}

func (e *InvalidSignatureError) Error() string {
	return fmt.Sprintf("invalid transaction signature for %s: %v", e.TxHash, e.Cause)
}

func (e *InvalidSignatureError) Unwrap() error { return e.Cause }

func (e *InvalidSignatureError) ErrorCode() int { return -32003 }

// InvalidTracerConfigError reports that a configuration bag does not fit
// the selected tracer.
type InvalidTracerConfigError struct {
	Tracer string
	Cause  error
}

func (e *InvalidTracerConfigError) Error() string {
	return fmt.Sprintf("invalid tracer config for %s: %v", e.Tracer, e.Cause)
}

func (e *InvalidTracerConfigError) Unwrap() error { return e.Cause }

func (e *InvalidTracerConfigError) ErrorCode() int { return -32602 }

// InvalidParamsError reports an argument-shape violation, e.g. an empty
// bundle list passed to traceCallMany.
type InvalidParamsError struct {
	Msg string
}

func (e *InvalidParamsError) Error() string { return e.Msg }

func (e *InvalidParamsError) ErrorCode() int { return -32602 }

// UnsupportedError reports a tracer variant that is disabled by
// configuration, or not implemented on the requested execution path.
type UnsupportedError struct {
	Feature string
}

func (e *UnsupportedError) Error() string { return e.Feature }

func (e *UnsupportedError) ErrorCode() int { return -32004 }

func unsupported(format string, args ...interface{}) error {
	return &UnsupportedError{Feature: fmt.Sprintf(format, args...)}
}

func invalidParams(format string, args ...interface{}) error {
	return &InvalidParamsError{Msg: fmt.Sprintf(format, args...)}
}

func headerNotFound(selector string) error {
	return &HeaderNotFoundError{Selector: selector}
}

// InternalError reports a failure surfaced from the EVM, the state view, or
// the trie layer — or, for the compatibility-only stub methods, a feature
// that was never given a real implementation.
type InternalError struct {
	Cause error
}

func (e *InternalError) Error() string { return e.Cause.Error() }

func (e *InternalError) Unwrap() error { return e.Cause }

func (e *InternalError) ErrorCode() int { return -32603 }

func internalError(msg string) error {
	return &InternalError{Cause: errors.New(msg)}
}
