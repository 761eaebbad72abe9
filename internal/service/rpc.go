// Package service exposes the household core over Connect RPC.
//
// Messages are google.protobuf.Struct values whose JSON shape mirrors the
// model types, so handlers are plain connect.NewUnaryHandler registrations
// over structpb.Struct.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mmynk/larder/internal/apperrors"
	"github.com/mmynk/larder/internal/auth"
)

// Package is the RPC package prefix of every procedure.
const Package = "larder.v1"

// Procedure returns the Connect procedure path for service and method.
func Procedure(service, method string) string {
	return fmt.Sprintf("/%s.%s/%s", Package, service, method)
}

// Route is one registered procedure.
type Route struct {
	Path    string
	Handler http.Handler
}

// unary adapts a typed handler to a structpb.Struct Connect handler.
func unary[Req, Resp any](procedure string, fn func(context.Context, *Req) (*Resp, error), opts ...connect.HandlerOption) Route {
	h := connect.NewUnaryHandler(procedure,
		func(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
			var in Req
			if err := FromStruct(req.Msg, &in); err != nil {
				return nil, connect.NewError(connect.CodeInvalidArgument, err)
			}
			out, err := fn(ctx, &in)
			if err != nil {
				return nil, ToConnectError(err)
			}
			msg, err := ToStruct(out)
			if err != nil {
				return nil, connect.NewError(connect.CodeInternal, err)
			}
			return connect.NewResponse(msg), nil
		},
		opts...,
	)
	return Route{Path: procedure, Handler: h}
}

// FromStruct decodes a Struct message into v through its JSON form.
func FromStruct(msg *structpb.Struct, v any) error {
	if msg == nil {
		msg = &structpb.Struct{}
	}
	data, err := protojson.Marshal(msg)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("malformed request: %w", err)
	}
	return nil
}

// ToStruct encodes v as a Struct message through its JSON form.
func ToStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	msg := &structpb.Struct{}
	if err := protojson.Unmarshal(data, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// ToConnectError maps error kinds onto Connect codes.
func ToConnectError(err error) error {
	var ce *connect.Error
	if errors.As(err, &ce) {
		return ce
	}
	code := connect.CodeInternal
	switch {
	case errors.Is(err, apperrors.ErrNotAuthenticated),
		errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrMissingToken):
		code = connect.CodeUnauthenticated
	case errors.Is(err, auth.ErrEmailExists):
		code = connect.CodeAlreadyExists
	case errors.Is(err, auth.ErrWeakPassword), errors.Is(err, apperrors.ErrValidation):
		code = connect.CodeInvalidArgument
	case errors.Is(err, apperrors.ErrNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, apperrors.ErrPrecondition):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, apperrors.ErrRemoteIO):
		code = connect.CodeUnavailable
	}
	cerr := connect.NewError(code, err)
	var step *apperrors.StepError
	if errors.As(err, &step) {
		cerr.Meta().Set("Larder-Protocol", step.Protocol)
		cerr.Meta().Set("Larder-Step", step.Step)
	}
	return cerr
}

// Empty is the response of procedures that return nothing.
type Empty struct{}
