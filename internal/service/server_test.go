package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mmynk/larder/internal/models"
	"github.com/mmynk/larder/internal/storage"
	"github.com/mmynk/larder/internal/storage/memory"
)

type testServer struct {
	store *memory.Store
	srv   *Server
	http  *httptest.Server
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.New()
	srv := NewServer(store, Options{
		JWTSecret:  "test-secret-0123456789",
		TokenTTL:   time.Hour,
		BcryptCost: bcrypt.MinCost,
	})
	hs := httptest.NewServer(srv)
	t.Cleanup(func() {
		hs.Close()
		srv.Close()
	})
	return &testServer{store: store, srv: srv, http: hs}
}

// call invokes service/method with req and decodes the reply into resp.
func (ts *testServer) call(token, service, method string, req, resp any) error {
	client := connect.NewClient[structpb.Struct, structpb.Struct](http.DefaultClient, ts.http.URL+Procedure(service, method))
	msg, err := ToStruct(req)
	if err != nil {
		return err
	}
	r := connect.NewRequest(msg)
	if token != "" {
		r.Header().Set("Authorization", "Bearer "+token)
	}
	out, err := client.CallUnary(context.Background(), r)
	if err != nil {
		return err
	}
	if resp == nil {
		return nil
	}
	return FromStruct(out.Msg, resp)
}

func (ts *testServer) register(t *testing.T, name string) SessionResponse {
	t.Helper()
	var resp SessionResponse
	require.NoError(t, ts.call("", "AuthService", "Register", RegisterRequest{
		Email:    name + "@example.com",
		Username: name,
		Password: "password-" + name,
	}, &resp))
	require.NotEmpty(t, resp.Token)
	return resp
}

func codeOf(t *testing.T, err error) connect.Code {
	t.Helper()
	require.Error(t, err)
	return connect.CodeOf(err)
}

func TestRegisterAndLogin(t *testing.T) {
	ts := setupTestServer(t)
	alice := ts.register(t, "alice")
	assert.Equal(t, "alice@example.com", alice.User.Email)

	var login SessionResponse
	require.NoError(t, ts.call("", "AuthService", "Login", LoginRequest{
		Email: "alice@example.com", Password: "password-alice",
	}, &login))
	assert.Equal(t, alice.User.UID, login.User.UID)

	err := ts.call("", "AuthService", "Login", LoginRequest{Email: "alice@example.com", Password: "nope"}, nil)
	assert.Equal(t, connect.CodeUnauthenticated, codeOf(t, err))

	err = ts.call("", "AuthService", "Register", RegisterRequest{Email: "alice@example.com", Password: "password-x"}, nil)
	assert.Equal(t, connect.CodeAlreadyExists, codeOf(t, err))

	err = ts.call("", "AuthService", "Register", RegisterRequest{Email: "bob@example.com", Password: "short"}, nil)
	assert.Equal(t, connect.CodeInvalidArgument, codeOf(t, err))
}

func TestRequiresAuthentication(t *testing.T) {
	ts := setupTestServer(t)

	err := ts.call("", "HouseholdService", "CreateHousehold", CreateHouseholdRequest{Name: "Flat"}, nil)
	assert.Equal(t, connect.CodeUnauthenticated, codeOf(t, err))

	err = ts.call("garbage", "HouseholdService", "CreateHousehold", CreateHouseholdRequest{Name: "Flat"}, nil)
	assert.Equal(t, connect.CodeUnauthenticated, codeOf(t, err))
}

func TestHouseholdCookingFlow(t *testing.T) {
	ts := setupTestServer(t)
	alice := ts.register(t, "alice")
	bob := ts.register(t, "bob")

	var created HouseholdResponse
	require.NoError(t, ts.call(alice.Token, "HouseholdService", "CreateHousehold",
		CreateHouseholdRequest{Name: "Flat"}, &created))
	hid := created.Household.UID

	var added FoodItemResponse
	require.NoError(t, ts.call(alice.Token, "PantryService", "AddFoodItem", AddFoodItemRequest{
		HouseholdID: hid,
		Item: models.FoodItem{
			FoodFacts: models.FoodFacts{Name: "tomato", Quantity: models.Quantity{Amount: 3, Unit: "pcs"}},
		},
	}, &added))
	assert.Equal(t, alice.User.UID, added.Item.Owner)

	// Bob cannot see the pantry before joining.
	err := ts.call(bob.Token, "PantryService", "ListFoodItems", HouseholdRequest{HouseholdID: hid}, nil)
	assert.Equal(t, connect.CodeInvalidArgument, codeOf(t, err))

	var invited InvitationResponse
	require.NoError(t, ts.call(alice.Token, "HouseholdService", "SendInvitation",
		SendInvitationRequest{HouseholdID: hid, Email: "bob@example.com"}, &invited))
	require.NoError(t, ts.call(bob.Token, "HouseholdService", "AcceptInvitation",
		InvitationRequest{InvitationID: invited.Invitation.InvitationID}, nil))

	err = ts.call(bob.Token, "HouseholdService", "AcceptInvitation",
		InvitationRequest{InvitationID: invited.Invitation.InvitationID}, nil)
	assert.Equal(t, connect.CodeNotFound, codeOf(t, err))

	var sess SessionView
	require.NoError(t, ts.call(bob.Token, "CookingService", "StartSession", StartSessionRequest{
		HouseholdID: hid,
		Recipe: models.Recipe{
			Name:         "Salad",
			BaseServings: 2,
			Ingredients:  []models.Ingredient{{Name: "Tomato", Quantity: models.Quantity{Amount: 2, Unit: "pcs"}}},
			Instructions: []string{"chop"},
		},
	}, &sess))
	assert.Equal(t, "select_servings", sess.Step)
	assert.Equal(t, 2, sess.Servings)

	// Sessions are private to their user.
	err = ts.call(alice.Token, "CookingService", "Next", SessionRequest{SessionID: sess.SessionID}, nil)
	assert.Equal(t, connect.CodeNotFound, codeOf(t, err))

	require.NoError(t, ts.call(bob.Token, "CookingService", "Next", SessionRequest{SessionID: sess.SessionID}, &sess))
	assert.Equal(t, "select_food_for_ingredient", sess.Step)

	err = ts.call(bob.Token, "CookingService", "Next", SessionRequest{SessionID: sess.SessionID}, nil)
	assert.Equal(t, connect.CodeFailedPrecondition, codeOf(t, err))

	require.NoError(t, ts.call(bob.Token, "CookingService", "Stage", StageRequest{
		SessionID: sess.SessionID, Ingredient: "Tomato", ItemID: added.Item.UID, Amount: 2,
	}, &sess))
	require.Len(t, sess.Ingredients, 1)
	assert.Equal(t, 2.0, sess.Ingredients[0].Staged)

	require.NoError(t, ts.call(bob.Token, "CookingService", "Next", SessionRequest{SessionID: sess.SessionID}, &sess))
	assert.Equal(t, "review_instructions", sess.Step)

	var committed CommitResponse
	require.NoError(t, ts.call(bob.Token, "CookingService", "Commit", SessionRequest{SessionID: sess.SessionID}, &committed))
	assert.Equal(t, int64(1), committed.RatPoints)
	assert.Equal(t, map[string]float64{added.Item.UID: 1}, committed.Updated)

	var items FoodItemsResponse
	require.NoError(t, ts.call(alice.Token, "PantryService", "ListFoodItems", HouseholdRequest{HouseholdID: hid}, &items))
	require.Len(t, items.Items, 1)
	assert.Equal(t, 1.0, items.Items[0].FoodFacts.Quantity.Amount)

	var points PointsResponse
	require.NoError(t, ts.call(alice.Token, "HouseholdService", "GetPoints", HouseholdRequest{HouseholdID: hid}, &points))
	require.Len(t, points.Board, 2)
	assert.Equal(t, bob.User.UID, points.Board[0].UserID)
	assert.Equal(t, int64(1), points.Board[0].Rat)
}

func TestAbandonSession(t *testing.T) {
	ts := setupTestServer(t)
	alice := ts.register(t, "alice")
	bob := ts.register(t, "bob")

	var created HouseholdResponse
	require.NoError(t, ts.call(alice.Token, "HouseholdService", "CreateHousehold",
		CreateHouseholdRequest{Name: "Flat"}, &created))

	var sess SessionView
	require.NoError(t, ts.call(alice.Token, "CookingService", "StartSession", StartSessionRequest{
		HouseholdID: created.Household.UID,
		Recipe: models.Recipe{
			Name:         "Toast",
			BaseServings: 1,
			Ingredients:  []models.Ingredient{{Name: "bread", Quantity: models.Quantity{Amount: 1, Unit: "pcs"}}},
		},
	}, &sess))
	assert.Equal(t, 1, ts.srv.Allocator.Len())

	// Only the owner may abandon it.
	err := ts.call(bob.Token, "CookingService", "Abandon", SessionRequest{SessionID: sess.SessionID}, nil)
	assert.Equal(t, connect.CodeNotFound, codeOf(t, err))
	assert.Equal(t, 1, ts.srv.Allocator.Len())

	require.NoError(t, ts.call(alice.Token, "CookingService", "Abandon", SessionRequest{SessionID: sess.SessionID}, nil))
	assert.Equal(t, 0, ts.srv.Allocator.Len())

	err = ts.call(alice.Token, "CookingService", "Next", SessionRequest{SessionID: sess.SessionID}, nil)
	assert.Equal(t, connect.CodeNotFound, codeOf(t, err))
}

func TestStepFailureMetadata(t *testing.T) {
	ts := setupTestServer(t)
	alice := ts.register(t, "alice")
	bob := ts.register(t, "bob")

	var created HouseholdResponse
	require.NoError(t, ts.call(alice.Token, "HouseholdService", "CreateHousehold",
		CreateHouseholdRequest{Name: "Flat"}, &created))
	var invited InvitationResponse
	require.NoError(t, ts.call(alice.Token, "HouseholdService", "SendInvitation",
		SendInvitationRequest{HouseholdID: created.Household.UID, Email: "bob@example.com"}, &invited))

	ts.store.FailOn("Delete", storage.Invitations, errors.New("offline"))
	err := ts.call(bob.Token, "HouseholdService", "AcceptInvitation",
		InvitationRequest{InvitationID: invited.Invitation.InvitationID}, nil)

	var cerr *connect.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, connect.CodeUnavailable, cerr.Code())
	assert.Equal(t, "accept_invitation", cerr.Meta().Get("Larder-Protocol"))
	assert.Equal(t, "delete_invitation", cerr.Meta().Get("Larder-Step"))
}

func TestLeaveHousehold(t *testing.T) {
	ts := setupTestServer(t)
	alice := ts.register(t, "alice")

	var created HouseholdResponse
	require.NoError(t, ts.call(alice.Token, "HouseholdService", "CreateHousehold",
		CreateHouseholdRequest{Name: "Flat"}, &created))
	require.NoError(t, ts.call(alice.Token, "HouseholdService", "LeaveHousehold",
		HouseholdRequest{HouseholdID: created.Household.UID}, nil))

	_, err := ts.srv.Households.Get(context.Background(), created.Household.UID)
	assert.Error(t, err)
	u, err := ts.srv.Users.Get(context.Background(), alice.User.UID)
	require.NoError(t, err)
	assert.Empty(t, u.HouseholdUIDs)
	assert.Empty(t, u.SelectedHouseholdUID)
}

func TestWatchFood(t *testing.T) {
	ts := setupTestServer(t)
	alice := ts.register(t, "alice")
	bob := ts.register(t, "bob")

	var created HouseholdResponse
	require.NoError(t, ts.call(alice.Token, "HouseholdService", "CreateHousehold",
		CreateHouseholdRequest{Name: "Flat"}, &created))
	hid := created.Household.UID

	base := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/watch/food?household=" + hid

	_, resp, err := websocket.DefaultDialer.Dial(base+"&token="+bob.Token, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(base, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(base+"&token="+alice.Token, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, ts.call(alice.Token, "PantryService", "AddFoodItem", AddFoodItemRequest{
		HouseholdID: hid,
		Item: models.FoodItem{
			FoodFacts: models.FoodFacts{Name: "milk", Quantity: models.Quantity{Amount: 1, Unit: "l"}},
		},
	}, nil))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var snap FoodSnapshot
		require.NoError(t, conn.ReadJSON(&snap))
		assert.Equal(t, hid, snap.HouseholdID)
		if len(snap.Items) == 1 {
			assert.Equal(t, "milk", snap.Items[0].FoodFacts.Name)
			break
		}
	}
}
