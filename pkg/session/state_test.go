package session

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/yeep/pkg/apiclient"
)

func TestParseAuthType(t *testing.T) {
	tests := []struct {
		in      string
		want    AuthType
		wantErr bool
	}{
		{"", AuthBearer, false},
		{"bearer", AuthBearer, false},
		{" Cookie ", AuthCookie, false},
		{"basic", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAuthType(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "unauthenticated", StateUnauthenticated.String())
	assert.Equal(t, "bearer", StateBearer.String())
	assert.Equal(t, "cookie", StateCookie.String())
	assert.Equal(t, "unknown", Kind(42).String())
	assert.False(t, State{}.Authenticated())
	assert.True(t, State{Kind: StateCookie}.Authenticated())
}

func TestCredentialsValidate(t *testing.T) {
	tests := []struct {
		name  string
		creds Credentials
		field string
	}{
		{"Valid", Credentials{User: "alice", Password: "secret"}, ""},
		{"MissingUser", Credentials{Password: "secret"}, "user"},
		{"MissingPassword", Credentials{User: "alice"}, "password"},
		{"MissingBothReportsUser", Credentials{}, "user"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.creds.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var ve *apiclient.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.Equal(t, "expected non-empty string", ve.Reason)
		})
	}
}

func TestHydrateRequestValidate(t *testing.T) {
	var ve *apiclient.ValidationError
	require.ErrorAs(t, HydrateRequest{}.Validate(), &ve)
	assert.Equal(t, "token", ve.Field)
	assert.NoError(t, HydrateRequest{Token: "x"}.Validate())
}

func TestTimestamp(t *testing.T) {
	t.Run("RFC3339", func(t *testing.T) {
		var ts Timestamp
		require.NoError(t, json.Unmarshal([]byte(`"2024-05-01T10:00:00Z"`), &ts))
		assert.True(t, ts.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))
	})

	t.Run("EpochMillis", func(t *testing.T) {
		var ts Timestamp
		require.NoError(t, json.Unmarshal([]byte(`1700000000000`), &ts))
		assert.True(t, ts.Equal(testEpoch))
	})

	t.Run("NullAndEmpty", func(t *testing.T) {
		var ts Timestamp
		require.NoError(t, json.Unmarshal([]byte(`null`), &ts))
		assert.True(t, ts.IsZero())
		require.NoError(t, json.Unmarshal([]byte(`""`), &ts))
		assert.True(t, ts.IsZero())
	})

	t.Run("Invalid", func(t *testing.T) {
		var ts Timestamp
		assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
		assert.Error(t, json.Unmarshal([]byte(`true`), &ts))
	})

	t.Run("Marshal", func(t *testing.T) {
		out, err := json.Marshal(Timestamp{Time: testEpoch})
		require.NoError(t, err)
		assert.Equal(t, `"2023-11-14T22:13:20Z"`, string(out))

		out, err = json.Marshal(Timestamp{})
		require.NoError(t, err)
		assert.Equal(t, `null`, string(out))
	})
}

func TestDecodeIssued(t *testing.T) {
	exp := testEpoch.Add(time.Hour)

	t.Run("ExpFromClaims", func(t *testing.T) {
		claims, got, err := decodeIssued(&tokenResponse{Token: tokenExpiring(t, exp)})
		require.NoError(t, err)
		assert.True(t, got.Equal(exp))
		assert.Equal(t, "alice", claims["sub"])
	})

	t.Run("ResponseExpiryWins", func(t *testing.T) {
		override := testEpoch.Add(2 * time.Hour)
		_, got, err := decodeIssued(&tokenResponse{
			Token:     tokenExpiring(t, exp),
			ExpiresAt: Timestamp{Time: override},
		})
		require.NoError(t, err)
		assert.True(t, got.Equal(override))
	})

	t.Run("MissingToken", func(t *testing.T) {
		_, _, err := decodeIssued(&tokenResponse{})
		var de *apiclient.DecodeError
		assert.ErrorAs(t, err, &de)
	})

	t.Run("Malformed", func(t *testing.T) {
		_, _, err := decodeIssued(&tokenResponse{Token: "not-a-jwt"})
		var de *apiclient.DecodeError
		assert.ErrorAs(t, err, &de)
	})

	t.Run("NoExpiry", func(t *testing.T) {
		_, _, err := decodeIssued(&tokenResponse{Token: signToken(t, jwt.MapClaims{"sub": "alice"})})
		var de *apiclient.DecodeError
		require.ErrorAs(t, err, &de)
		assert.ErrorIs(t, err, errNoExpiry)
	})
}
