package middleware

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mmynk/larder/internal/identity"
	"github.com/mmynk/larder/pkg/logging"
)

func intercept(t *testing.T, err error) string {
	t.Helper()
	var buf bytes.Buffer
	next := func(context.Context, connect.AnyRequest) (connect.AnyResponse, error) {
		if err != nil {
			return nil, err
		}
		return connect.NewResponse(&structpb.Struct{}), nil
	}
	ctx := identity.WithUser(context.Background(), "u1", "alice@example.com")
	_, got := LoggingInterceptor(logging.New(&buf, slog.LevelDebug))(next)(ctx, connect.NewRequest(&structpb.Struct{}))
	assert.Equal(t, err, got)
	return buf.String()
}

func TestLoggingInterceptorOK(t *testing.T) {
	out := intercept(t, nil)
	assert.Contains(t, out, "RPC ok")
	assert.Contains(t, out, "user_id=u1")
}

func TestLoggingInterceptorStepFailure(t *testing.T) {
	cerr := connect.NewError(connect.CodeUnavailable, errors.New("offline"))
	cerr.Meta().Set("Larder-Protocol", "leave_household")
	cerr.Meta().Set("Larder-Step", "delete_food_items")

	out := intercept(t, cerr)
	assert.Contains(t, out, "ERR")
	assert.Contains(t, out, "RPC failed")
	assert.Contains(t, out, "protocol=leave_household")
	assert.Contains(t, out, "step=delete_food_items")
}

func TestLoggingInterceptorRejected(t *testing.T) {
	out := intercept(t, connect.NewError(connect.CodeNotFound, errors.New("no such invitation")))
	assert.Contains(t, out, "WRN")
	assert.Contains(t, out, "RPC rejected")
	assert.NotContains(t, out, "protocol=")
}
