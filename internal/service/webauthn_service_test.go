package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/descope/virtualwebauthn"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hausmeister-app/hausmeister/internal/config"
	"github.com/hausmeister-app/hausmeister/internal/models"
	"github.com/hausmeister-app/hausmeister/internal/pkg/errors"
	"github.com/hausmeister-app/hausmeister/internal/session"
)

var testRPConfig = config.WebAuthnConfig{
	RPID:          "example.com",
	RPDisplayName: "Hausmeister",
	RPOrigins:     []string{"https://example.com"},
}

var testRP = virtualwebauthn.RelyingParty{
	Name:   testRPConfig.RPDisplayName,
	ID:     testRPConfig.RPID,
	Origin: testRPConfig.RPOrigins[0],
}

type webauthnFixture struct {
	svc      WebAuthnService
	users    *fakeUserRepo
	passkeys *fakePasskeyRepo
	store    *memStore
	user     *models.User
}

func newWebauthnFixture(t *testing.T) *webauthnFixture {
	t.Helper()

	users := newFakeUserRepo()
	passkeys := newFakePasskeyRepo()
	store := newMemStore()

	svc, err := NewWebAuthnService(testRPConfig, users, passkeys, store, discardLogger())
	require.NoError(t, err)

	user := &models.User{ID: uuid.New(), Name: "Alice", Email: "alice@example.com"}
	require.NoError(t, users.Create(context.Background(), user))

	return &webauthnFixture{svc: svc, users: users, passkeys: passkeys, store: store, user: user}
}

// loginSession creates a session bound to the fixture user with the user
// slot populated, as password login would leave it.
func (f *webauthnFixture) loginSession(t *testing.T) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	id, err := f.store.Create(ctx, f.user.ID)
	require.NoError(t, err)
	_, err = session.SetTyped(ctx, f.store, id, session.SlotUser, Summarize(f.user))
	require.NoError(t, err)
	return id
}

// registerPasskey runs a full registration ceremony and loads the credential
// into the authenticator.
func (f *webauthnFixture) registerPasskey(t *testing.T, sessionID uuid.UUID, authenticator *virtualwebauthn.Authenticator, credential virtualwebauthn.Credential) {
	t.Helper()
	ctx := context.Background()

	creation, err := f.svc.StartRegistration(ctx, sessionID)
	require.NoError(t, err)

	optionsJSON, err := json.Marshal(creation.Response)
	require.NoError(t, err)
	attOpts, err := virtualwebauthn.ParseAttestationOptions(string(optionsJSON))
	require.NoError(t, err)

	attResp := virtualwebauthn.CreateAttestationResponse(testRP, *authenticator, credential, *attOpts)
	require.NoError(t, f.svc.FinishRegistration(ctx, sessionID, strings.NewReader(attResp)))

	authenticator.AddCredential(credential)
}

func TestWebauthnRegistration(t *testing.T) {
	ctx := context.Background()
	f := newWebauthnFixture(t)
	sessionID := f.loginSession(t)

	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	f.registerPasskey(t, sessionID, &authenticator, credential)

	stored, err := f.passkeys.ListByUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 1)

	// The ceremony slot was consumed.
	raw, err := f.store.GetData(ctx, sessionID, session.SlotCeremony)
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestWebauthnRegistrationRequiresUser(t *testing.T) {
	ctx := context.Background()
	f := newWebauthnFixture(t)

	anon, err := f.store.CreateAnonymous(ctx)
	require.NoError(t, err)

	_, err = f.svc.StartRegistration(ctx, anon)
	assert.ErrorIs(t, err, errors.ErrNotLoggedIn)
}

func TestWebauthnRegistrationExcludesExisting(t *testing.T) {
	ctx := context.Background()
	f := newWebauthnFixture(t)
	sessionID := f.loginSession(t)

	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	f.registerPasskey(t, sessionID, &authenticator, credential)

	creation, err := f.svc.StartRegistration(ctx, sessionID)
	require.NoError(t, err)
	assert.Len(t, creation.Response.CredentialExcludeList, 1)
}

func TestWebauthnRegistrationGarbageResponse(t *testing.T) {
	ctx := context.Background()
	f := newWebauthnFixture(t)
	sessionID := f.loginSession(t)

	_, err := f.svc.StartRegistration(ctx, sessionID)
	require.NoError(t, err)

	err = f.svc.FinishRegistration(ctx, sessionID, strings.NewReader(`{"not":"a response"}`))
	assert.ErrorIs(t, err, errors.ErrWebauthnProtocol)

	// The ceremony was consumed; finishing again reports the empty slot.
	err = f.svc.FinishRegistration(ctx, sessionID, strings.NewReader(`{}`))
	assert.Equal(t, "missing_session_data", errors.AsAPIError(err).Code)
}

func TestWebauthnFinishWithoutCeremony(t *testing.T) {
	ctx := context.Background()
	f := newWebauthnFixture(t)
	sessionID := f.loginSession(t)

	err := f.svc.FinishRegistration(ctx, sessionID, strings.NewReader(`{}`))
	assert.Equal(t, "missing_session_data", errors.AsAPIError(err).Code)
}

func TestWebauthnAuthentication(t *testing.T) {
	ctx := context.Background()
	f := newWebauthnFixture(t)

	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	f.registerPasskey(t, f.loginSession(t), &authenticator, credential)

	// Begin login: an anonymous session carries the ceremony.
	loginSession, assertion, err := f.svc.StartAuthentication(ctx, f.user.Email)
	require.NoError(t, err)

	bound, found, err := f.store.Resolve(ctx, loginSession)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Nil(t, bound)

	optionsJSON, err := json.Marshal(assertion.Response)
	require.NoError(t, err)
	asrOpts, err := virtualwebauthn.ParseAssertionOptions(string(optionsJSON))
	require.NoError(t, err)

	asrResp := virtualwebauthn.CreateAssertionResponse(testRP, authenticator, credential, *asrOpts)
	summary, err := f.svc.FinishAuthentication(ctx, loginSession, strings.NewReader(asrResp))
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, summary.ID)

	// The session is now bound to the user with the user slot set.
	bound, found, err = f.store.Resolve(ctx, loginSession)
	require.NoError(t, err)
	assert.True(t, found)
	require.NotNil(t, bound)
	assert.Equal(t, f.user.ID, *bound)

	stored, ok, err := session.GetTyped[UserSummary](ctx, f.store, loginSession, session.SlotUser)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, f.user.Email, stored.Email)
}

func TestWebauthnAuthenticationUnknownEmail(t *testing.T) {
	ctx := context.Background()
	f := newWebauthnFixture(t)

	_, _, err := f.svc.StartAuthentication(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, errors.ErrUserNotFound)
}

func TestWebauthnAuthenticationNoPasskeys(t *testing.T) {
	ctx := context.Background()
	f := newWebauthnFixture(t)

	_, _, err := f.svc.StartAuthentication(ctx, f.user.Email)
	assert.ErrorIs(t, err, errors.ErrNoPasskeysRegistered)
}

func TestWebauthnCeremonyKindMismatch(t *testing.T) {
	ctx := context.Background()
	f := newWebauthnFixture(t)
	sessionID := f.loginSession(t)

	// Start a registration ceremony, then try to finish it as a login.
	_, err := f.svc.StartRegistration(ctx, sessionID)
	require.NoError(t, err)

	_, err = f.svc.FinishAuthentication(ctx, sessionID, strings.NewReader(`{}`))
	assert.ErrorIs(t, err, errors.ErrWebauthnProtocol)

	// The mismatch consumed the ceremony, so the registration cannot be
	// finished either.
	err = f.svc.FinishRegistration(ctx, sessionID, strings.NewReader(`{}`))
	assert.Equal(t, "missing_session_data", errors.AsAPIError(err).Code)
}

func TestWebauthnNewCeremonyOverwritesOld(t *testing.T) {
	ctx := context.Background()
	f := newWebauthnFixture(t)
	sessionID := f.loginSession(t)

	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	// First ceremony is abandoned; a second one replaces it.
	stale, err := f.svc.StartRegistration(ctx, sessionID)
	require.NoError(t, err)

	fresh, err := f.svc.StartRegistration(ctx, sessionID)
	require.NoError(t, err)
	require.NotEqual(t, stale.Response.Challenge, fresh.Response.Challenge)

	// A response to the stale challenge fails verification.
	staleJSON, err := json.Marshal(stale.Response)
	require.NoError(t, err)
	staleOpts, err := virtualwebauthn.ParseAttestationOptions(string(staleJSON))
	require.NoError(t, err)
	staleResp := virtualwebauthn.CreateAttestationResponse(testRP, authenticator, credential, *staleOpts)

	err = f.svc.FinishRegistration(ctx, sessionID, strings.NewReader(staleResp))
	assert.ErrorIs(t, err, errors.ErrWebauthnProtocol)
}

func TestWebauthnAssertionAgainstWrongSession(t *testing.T) {
	ctx := context.Background()
	f := newWebauthnFixture(t)

	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	f.registerPasskey(t, f.loginSession(t), &authenticator, credential)

	_, assertion, err := f.svc.StartAuthentication(ctx, f.user.Email)
	require.NoError(t, err)

	// Finish against a different anonymous session that carries no ceremony.
	other, err := f.store.CreateAnonymous(ctx)
	require.NoError(t, err)

	optionsJSON, err := json.Marshal(assertion.Response)
	require.NoError(t, err)
	asrOpts, err := virtualwebauthn.ParseAssertionOptions(string(optionsJSON))
	require.NoError(t, err)
	asrResp := virtualwebauthn.CreateAssertionResponse(testRP, authenticator, credential, *asrOpts)

	_, err = f.svc.FinishAuthentication(ctx, other, strings.NewReader(asrResp))
	assert.Equal(t, "missing_session_data", errors.AsAPIError(err).Code)
}
