package payments

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignature(t *testing.T) {
	body := []byte(`{"response":{"ResultCode":0}}`)
	sig := Sign("s3cret", body)

	assert.True(t, VerifySignature("s3cret", body, sig))
	assert.True(t, VerifySignature("s3cret", body, " "+sig+" "))
	assert.False(t, VerifySignature("other", body, sig))
	assert.False(t, VerifySignature("s3cret", append(body, ' '), sig))
	assert.False(t, VerifySignature("s3cret", body, ""))
}

func TestParseCallback(t *testing.T) {
	t.Run("nested response", func(t *testing.T) {
		cb, err := ParseCallback([]byte(`{"status":true,"response":{
			"ExternalReference":"BID_abc_1714550400","ResultCode":0,"Status":"Success",
			"MpesaReceiptNumber":"SGL7ZQ1ABC","CheckoutRequestID":"ws_CO_01","ResultDesc":"ok","Amount":1500}}`))
		require.NoError(t, err)
		assert.Equal(t, "BID_abc_1714550400", cb.Reference)
		assert.True(t, cb.HasResultCode)
		assert.Equal(t, "SGL7ZQ1ABC", cb.Receipt)
		assert.Equal(t, "ws_CO_01", cb.CheckoutID)
		assert.Equal(t, OutcomePaid, cb.Outcome())
	})

	t.Run("flat fields with string code", func(t *testing.T) {
		cb, err := ParseCallback([]byte(`{"external_reference":"r1","result_code":"1032","status":"cancelled"}`))
		require.NoError(t, err)
		assert.Equal(t, 1032, cb.ResultCode)
		assert.Equal(t, OutcomeFailed, cb.Outcome())
	})

	t.Run("result code wins over status", func(t *testing.T) {
		cb, err := ParseCallback([]byte(`{"reference":"r1","ResultCode":1,"Status":"Success"}`))
		require.NoError(t, err)
		assert.Equal(t, OutcomeFailed, cb.Outcome())
	})

	t.Run("status only", func(t *testing.T) {
		cb, err := ParseCallback([]byte(`{"reference":"r1","status":"QUEUED"}`))
		require.NoError(t, err)
		assert.False(t, cb.HasResultCode)
		assert.Equal(t, OutcomeNoChange, cb.Outcome())
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := ParseCallback([]byte(`{not json`))
		assert.Error(t, err)
		_, err = ParseCallback([]byte(`{"ResultCode":"abc"}`))
		assert.Error(t, err)
	})
}

func TestReference(t *testing.T) {
	at := time.Unix(1714550400, 0)
	ref := Reference("3f1c2b9e-5a1d-4c1e-9a55-0d6f1f2b7c10", at)
	assert.Equal(t, "BID_3f1c2b9e-5a1d-4c1e-9a55-0d6f1f2b7c10_1714550400", ref)

	id, ok := BidIDFromReference(ref)
	require.True(t, ok)
	assert.Equal(t, "3f1c2b9e-5a1d-4c1e-9a55-0d6f1f2b7c10", id)

	for _, bad := range []string{"", "ORDER_1_2", "BID_", "BID_abc", "BID_abc_xyz"} {
		_, ok := BidIDFromReference(bad)
		assert.False(t, ok, bad)
	}
}
