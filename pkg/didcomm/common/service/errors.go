/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package service

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable identifier for a core error, usable by any boundary
// (tests, a future REST layer) without string-matching error messages.
type ErrorCode string

// Error codes named by the spec.
const (
	CodePeerDIDCreationFailed ErrorCode = "PEER_DID_CREATION_FAILED"
	CodeInvalidInvitation     ErrorCode = "INVALID_INVITATION"
	CodeInvitationNotForYou   ErrorCode = "INVITATION_NOT_FOR_YOU"
	CodeDIDResolutionFailed   ErrorCode = "DID_RESOLUTION_FAILED"
	CodeEncryptionFailed      ErrorCode = "ENCRYPTION_FAILED"
	CodeDecryptionFailed      ErrorCode = "DECRYPTION_FAILED"
	CodeConnectionAlreadyExists ErrorCode = "CONNECTION_ALREADY_EXISTS"
	CodeMessageAlreadyExists  ErrorCode = "MESSAGE_ALREADY_EXISTS"
	CodeConnectionNotFound    ErrorCode = "CONNECTION_NOT_FOUND"
	CodeMessageNotFound       ErrorCode = "MESSAGE_NOT_FOUND"
	CodeConnectionNotActive   ErrorCode = "CONNECTION_NOT_ACTIVE"
	CodeNoEndpoint            ErrorCode = "NO_ENDPOINT"
	CodeDeliveryFailed        ErrorCode = "DELIVERY_FAILED"
	CodeDeliveryTimeout       ErrorCode = "DELIVERY_TIMEOUT"
	CodeRoutingFailed         ErrorCode = "ROUTING_FAILED"
	CodeInvalidMessage        ErrorCode = "INVALID_MESSAGE"
	CodeInvalidMessageState   ErrorCode = "INVALID_MESSAGE_STATE"
	CodeInvalidStateTransition ErrorCode = "INVALID_STATE_TRANSITION"
	CodeHandlerNotFound       ErrorCode = "HANDLER_NOT_FOUND"
	CodeInvalidConnectionState ErrorCode = "INVALID_CONNECTION_STATE"
	CodeInternal              ErrorCode = "INTERNAL"
)

// CoreError is the error type returned across every component boundary
// described by the spec. It wraps a cause (possibly nil) and classifies it
// with a stable Code.
type CoreError struct {
	Code    ErrorCode
	Message string
	cause   error
}

func (e *CoreError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap allows errors.Is/errors.As to see through to the cause.
func (e *CoreError) Unwrap() error {
	return e.cause
}

// NewError builds a CoreError with the given code and message.
func NewError(code ErrorCode, message string) *CoreError {
	return &CoreError{Code: code, Message: message}
}

// WrapError builds a CoreError that wraps an underlying cause.
func WrapError(code ErrorCode, message string, cause error) *CoreError {
	return &CoreError{Code: code, Message: message, cause: cause}
}

// CodeOf extracts the ErrorCode from err, if any, else returns CodeInternal.
func CodeOf(err error) ErrorCode {
	var ce *CoreError

	if errors.As(err, &ce) {
		return ce.Code
	}

	return CodeInternal
}
