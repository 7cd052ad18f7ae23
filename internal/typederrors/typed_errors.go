/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

package typederrors

import (
	"errors"
	"fmt"
)

// GenericError is an error structure containing common fields to be
// embedded by specific error types defined below
type GenericError struct {
	Message string
	Err     error
}

func (ge GenericError) Error() string {
	return ge.Message
}

func (ge GenericError) Unwrap() error {
	return ge.Err
}

// StoreError wraps a failure from the subscription or billing-event relational store (C1/C2).
type StoreError struct {
	GenericError
}

func NewStoreError(err error, format string, args ...interface{}) error {
	return StoreError{
		GenericError: GenericError{fmt.Sprintf(format, args...), err},
	}
}

func IsStoreError(target error) bool {
	var e StoreError
	return errors.As(target, &e)
}

// GatewayError wraps a failure talking to a carrier payment gateway (C3).
type GatewayError struct {
	GenericError
}

func NewGatewayError(err error, format string, args ...interface{}) error {
	return GatewayError{
		GenericError: GenericError{fmt.Sprintf(format, args...), err},
	}
}

func IsGatewayError(target error) bool {
	var e GatewayError
	return errors.As(target, &e)
}

// QueueError wraps a failure enqueuing or delivering a delayed job (C4).
type QueueError struct {
	GenericError
}

func NewQueueError(err error, format string, args ...interface{}) error {
	return QueueError{
		GenericError: GenericError{fmt.Sprintf(format, args...), err},
	}
}

func IsQueueError(target error) bool {
	var e QueueError
	return errors.As(target, &e)
}

// BrokerError wraps a failure publishing to, or connecting to, the notification broker (C6).
type BrokerError struct {
	GenericError
}

func NewBrokerError(err error, format string, args ...interface{}) error {
	return BrokerError{
		GenericError: GenericError{fmt.Sprintf(format, args...), err},
	}
}

func IsBrokerError(target error) bool {
	var e BrokerError
	return errors.As(target, &e)
}

// SkipError indicates a documented domain skip (missing operator config, unknown payment
// channel).  It is not a failure: the caller should log at warn and move on without appending
// to the ledger.
type SkipError struct {
	GenericError
}

func NewSkipError(format string, args ...interface{}) error {
	return SkipError{
		GenericError: GenericError{Message: fmt.Sprintf(format, args...)},
	}
}

func IsSkipError(target error) bool {
	var e SkipError
	return errors.As(target, &e)
}

// ConfigError wraps a startup configuration validation failure.
type ConfigError struct {
	GenericError
}

func NewConfigError(err error, format string, args ...interface{}) error {
	return ConfigError{
		GenericError: GenericError{fmt.Sprintf(format, args...), err},
	}
}

func IsConfigError(target error) bool {
	var e ConfigError
	return errors.As(target, &e)
}
