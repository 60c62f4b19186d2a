package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fusetalk/fusetalk-server/internal/service"
)

func TestFuseHandler(t *testing.T) {
	f := newAPIFixture(t)
	sessionID := f.pair(t, "alice", "bob")
	f.do(t, http.MethodPost, "/api/sessions/"+sessionID+"/like", "alice", nil)
	rec := f.do(t, http.MethodPost, "/api/sessions/"+sessionID+"/like", "bob", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	momentID := decodeBody[service.LikeResult](t, rec).FuseMomentID

	t.Run("share contact", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/fuse-moments/"+momentID+"/share-contact", "alice",
			map[string]string{"instagram": "@alice"})
		require.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("empty contact is rejected", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/fuse-moments/"+momentID+"/share-contact", "alice", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("outsider cannot share", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/fuse-moments/"+momentID+"/share-contact", "carol",
			map[string]string{"note": "hi"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("partner sees the shared contact", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/fuse-moments", "bob", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		page := decodeBody[paginatedResponse[service.FuseMomentView]](t, rec)
		assert.Equal(t, 1, page.Total)
		require.Len(t, page.Results, 1)
		view := page.Results[0]
		assert.Equal(t, "Alice", view.PartnerNickname)
		assert.Equal(t, "Great conversation between Alice and Bob!", view.SummaryText)
		require.NotNil(t, view.ReceivedContact)
		assert.Equal(t, "@alice", view.ReceivedContact.Instagram)
	})
}
