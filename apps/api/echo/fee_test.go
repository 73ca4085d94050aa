package echoapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elimuhq/elimu/core/fee"
	"github.com/elimuhq/elimu/core/payment"
	"github.com/elimuhq/elimu/core/user"
)

func Test_feeApi(t *testing.T) {
	app := newTestApp()
	student := createUser(t, app, "Jane", "jane", "jane@test.ke", "pwd", user.StudentRoles, true)
	admin := createUser(t, app, "Boss", "boss", "boss@test.ke", "pwd", []string{user.RoleAdmin}, true)

	t.Run("students cannot record manual entries", func(t *testing.T) {
		body := marchallObj(t, fee.ManualEntry{StudentID: student.ID, Amount: 2000})
		req, rec := newAuthRequest(http.MethodPost, "/v1/fees/manual", getToken(t, student), body)
		app.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin records a manual entry", func(t *testing.T) {
		body := marchallObj(t, fee.ManualEntry{StudentID: student.ID, Amount: 2000, Note: "cash"})
		req, rec := newAuthRequest(http.MethodPost, "/v1/fees/manual", getToken(t, admin), body)
		app.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var entry fee.Entry
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
		assert.Equal(t, payment.MethodManual, entry.Method)
		assert.Equal(t, "boss", entry.RecordedBy)
	})

	t.Run("student reads their own statement", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/fees/statement", getToken(t, student))
		app.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var st fee.Statement
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
		assert.Equal(t, student.ID, st.StudentID)
		assert.Equal(t, int64(2000), st.Total)
		assert.Len(t, st.Entries, 1)
	})

	t.Run("admin reads any statement", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/fees/statements/"+student.ID, getToken(t, admin))
		app.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var st fee.Statement
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
		assert.Equal(t, int64(2000), st.Total)
	})

	t.Run("students cannot read other statements", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/fees/statements/"+admin.ID, getToken(t, student))
		app.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
