package reconcile

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRemoteFailure_Message(t *testing.T) {
	tests := []struct {
		name    string
		failure RemoteFailure
		want    string
	}{
		{name: "message field", failure: RemoteFailure{Status: 500, Body: []byte(`{"message":"boom"}`)}, want: "boom"},
		{name: "errors array", failure: RemoteFailure{Status: 422, Body: []byte(`{"errors":[{"message":"tasks[0].type: must not be null"}]}`)}, want: "tasks[0].type: must not be null"},
		{name: "error field", failure: RemoteFailure{Status: 401, Body: []byte(`{"error":"Unauthorized"}`)}, want: "Unauthorized"},
		{name: "plain text", failure: RemoteFailure{Status: 502, Body: []byte("Bad Gateway\n")}, want: "Bad Gateway"},
		{name: "transport", failure: RemoteFailure{Err: errors.New("dial tcp: refused")}, want: "dial tcp: refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.failure.Message())
		})
	}
}

func TestRemoteFailure_ErrorIncludesVerbatimBody(t *testing.T) {
	err := &RemoteFailure{Op: OpUpdate, Status: 500, Body: []byte(`{"message":"boom"}`)}
	require.Equal(t, `update failed: HTTP 500: {"message":"boom"}`, err.Error())
	require.ErrorIs(t, err, ErrRemote)
}
