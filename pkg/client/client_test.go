package client

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	jwttoken "assetregistry/internal/jwt_token"
	"assetregistry/internal/registry/handler"
	"assetregistry/internal/registry/models"
	"assetregistry/internal/registry/service"
	"assetregistry/internal/registry/store"
	"assetregistry/pkg/domain"
	dErrors "assetregistry/pkg/domain-errors"
	"assetregistry/pkg/platform/middleware/auth"
)

const (
	alice = domain.Identity("0x52908400098527886E0F7030069857D2E4169EE7")
	bob   = domain.Identity("0x8617E340B3D01FA5F11F306F4090FD50E238070D")
)

// ClientSuite drives the client against the real handler stack.
type ClientSuite struct {
	suite.Suite
	server *httptest.Server
	tokens *jwttoken.JWTService
	ctx    context.Context
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := service.New(store.NewInMemory())
	s.Require().NoError(err)

	s.tokens = jwttoken.NewJWTService("client-test-key", "assetregistry")
	r := chi.NewRouter()
	handler.New(svc, nil, logger).Register(r, auth.RequireAuth(jwttoken.NewValidator(s.tokens), logger))
	s.server = httptest.NewServer(r)
	s.ctx = context.Background()
}

func (s *ClientSuite) TearDownTest() {
	s.server.Close()
}

func (s *ClientSuite) clientFor(identity domain.Identity) *Client {
	var opts []Option
	if identity != "" {
		token, err := s.tokens.GenerateAccessToken(identity, time.Now(), time.Hour)
		s.Require().NoError(err)
		opts = append(opts, WithToken(token))
	}
	c, err := New(s.server.URL+"/", opts...)
	s.Require().NoError(err)
	return c
}

func (s *ClientSuite) TestNew() {
	for _, raw := range []string{"", "localhost:8080", "://bad"} {
		_, err := New(raw)
		s.Error(err, raw)
	}
}

func (s *ClientSuite) TestLifecycle() {
	owner := s.clientFor(alice)
	anon := s.clientFor("")
	id := domain.HashAssetName("bike-frame-77")

	receipt, err := owner.Register(s.ctx, RegisterInput{Name: "bike-frame-77", Metadata: "red"})
	s.Require().NoError(err)
	s.Equal(id, receipt.Record.AssetID)
	s.Equal(alice, receipt.Record.Owner)

	exists, err := anon.Exists(s.ctx, id)
	s.Require().NoError(err)
	s.True(exists)

	_, err = owner.UpdateMetadata(s.ctx, id, "blue")
	s.Require().NoError(err)

	_, err = owner.Transfer(s.ctx, id, bob)
	s.Require().NoError(err)

	record, err := anon.Verify(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(bob, record.Owner)
	s.Equal("blue", record.Metadata)

	ownerOf, err := anon.Owner(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(bob, ownerOf)

	owned, err := anon.OwnedAssets(s.ctx, bob)
	s.Require().NoError(err)
	s.Equal([]domain.AssetID{id}, owned)

	owned, err = anon.OwnedAssets(s.ctx, alice)
	s.Require().NoError(err)
	s.Empty(owned)

	history, err := anon.History(s.ctx, id)
	s.Require().NoError(err)
	s.Require().Len(history, 3)
	s.Equal([]models.EventKind{
		models.EventAssetRegistered,
		models.EventAssetMetadataUpdated,
		models.EventOwnershipTransferred,
	}, []models.EventKind{history[0].Kind, history[1].Kind, history[2].Kind})

	page, err := anon.Events(s.ctx, 1, 1)
	s.Require().NoError(err)
	s.Require().Len(page.Events, 1)
	s.Equal(int64(2), page.Next)
}

func (s *ClientSuite) TestErrors() {
	owner := s.clientFor(alice)
	id := domain.HashAssetName("lamp")

	s.Run("unknown asset", func() {
		_, err := owner.Verify(s.ctx, id)
		s.True(HasCode(err, dErrors.CodeNotFound), "got %v", err)
	})

	s.Run("missing token", func() {
		_, err := s.clientFor("").Register(s.ctx, RegisterInput{Name: "lamp"})
		var apiErr *APIError
		s.Require().ErrorAs(err, &apiErr)
		s.Equal(http.StatusUnauthorized, apiErr.StatusCode)
	})

	s.Run("duplicate registration", func() {
		_, err := owner.Register(s.ctx, RegisterInput{Name: "lamp"})
		s.Require().NoError(err)
		_, err = owner.Register(s.ctx, RegisterInput{Name: "lamp"})
		s.True(HasCode(err, dErrors.CodeConflict), "got %v", err)
	})

	s.Run("transfer by non-owner", func() {
		_, err := s.clientFor(bob).Transfer(s.ctx, id, bob)
		s.True(HasCode(err, dErrors.CodeForbidden), "got %v", err)
	})
}

func TestDecodeErrorFallsBackToBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Exists(context.Background(), domain.HashAssetName("x"))
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusBadGateway || apiErr.Description != "upstream unavailable" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}
