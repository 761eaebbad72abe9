package service

import (
	"errors"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mmynk/larder/internal/apperrors"
	"github.com/mmynk/larder/internal/auth"
)

func TestToConnectError(t *testing.T) {
	tests := []struct {
		err  error
		want connect.Code
	}{
		{apperrors.ErrNotAuthenticated, connect.CodeUnauthenticated},
		{auth.ErrInvalidToken, connect.CodeUnauthenticated},
		{auth.ErrEmailExists, connect.CodeAlreadyExists},
		{auth.ErrWeakPassword, connect.CodeInvalidArgument},
		{apperrors.Validation("bad"), connect.CodeInvalidArgument},
		{apperrors.NotFound("households", "h1"), connect.CodeNotFound},
		{apperrors.Precondition("not yet"), connect.CodeFailedPrecondition},
		{apperrors.RemoteIO("Get", errors.New("offline")), connect.CodeUnavailable},
		{errors.New("boom"), connect.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, connect.CodeOf(ToConnectError(tt.err)))
		})
	}
}

func TestToConnectErrorStepMeta(t *testing.T) {
	err := ToConnectError(&apperrors.StepError{
		Protocol: "leave_household",
		Step:     "delete_household",
		Err:      apperrors.RemoteIO("Delete", errors.New("offline")),
	})
	var cerr *connect.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, connect.CodeUnavailable, cerr.Code())
	assert.Equal(t, "leave_household", cerr.Meta().Get("Larder-Protocol"))
	assert.Equal(t, "delete_household", cerr.Meta().Get("Larder-Step"))
}

func TestStructConversion(t *testing.T) {
	msg, err := ToStruct(StageRequest{SessionID: "s1", Ingredient: "tomato", ItemID: "i1", Amount: 1.5})
	require.NoError(t, err)
	assert.Equal(t, "tomato", msg.Fields["ingredient"].GetStringValue())

	var got StageRequest
	require.NoError(t, FromStruct(msg, &got))
	assert.Equal(t, 1.5, got.Amount)

	var empty SessionRequest
	require.NoError(t, FromStruct(nil, &empty))

	bad, err := structpb.NewStruct(map[string]any{"amount": "lots"})
	require.NoError(t, err)
	assert.Error(t, FromStruct(bad, &got))
}

func TestProcedure(t *testing.T) {
	assert.Equal(t, "/larder.v1.CookingService/Commit", Procedure("CookingService", "Commit"))
}
