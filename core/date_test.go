package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDate_UnmarshalJSON(t *testing.T) {
	march1 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{`"2024-03-01"`, march1, false},
		{`"2024-03-01T00:00:00Z"`, march1, false},
		{`"2024-03-01T23:30:00+05:30"`, march1, false}, // the day as written
		{`null`, time.Time{}, false},
		{`""`, time.Time{}, false},
		{`"01/03/2024"`, time.Time{}, true},
		{`20240301`, time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var d Date
			err := json.Unmarshal([]byte(tt.in), &d)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(d.Time), d.Time)
		})
	}
}

func TestDate_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Day  Date `json:"day"`
		None Date `json:"none"`
	}{Day: NewDate(time.Date(2024, 3, 1, 15, 4, 5, 0, time.UTC))})
	require.NoError(t, err)
	assert.JSONEq(t, `{"day":"2024-03-01","none":null}`, string(b))
}

func TestDate_ScanValue(t *testing.T) {
	var d Date
	require.NoError(t, d.Scan(time.Date(2024, 3, 1, 0, 0, 0, 0, time.FixedZone("", 3600))))
	assert.Equal(t, "2024-03-01", d.String())

	require.NoError(t, d.Scan([]byte("2024-04-02")))
	assert.Equal(t, "2024-04-02", d.String())
	require.NoError(t, d.Scan("2024-04-03 00:00:00+00"))
	assert.Equal(t, "2024-04-03", d.String())

	val, err := d.Value()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 4, 3, 0, 0, 0, 0, time.UTC), val)

	require.NoError(t, d.Scan(nil))
	assert.True(t, d.IsZero())
	assert.False(t, d.NullTime().Valid)
	val, err = d.Value()
	require.NoError(t, err)
	assert.Nil(t, val)

	assert.Error(t, d.Scan(42))
}

func TestDecodeFieldError(t *testing.T) {
	var body struct {
		Payment struct {
			PaymentDate Date `json:"payment_date"`
		} `json:"payment"`
		Amount int `json:"amount"`
	}

	err := json.Unmarshal([]byte(`{"payment":{"payment_date":"yesterday"}}`), &body)
	fErr, ok := DecodeFieldError(err)
	require.True(t, ok, err)
	assert.Equal(t, FieldError{Field: "payment.payment_date", Error: "must be a date (YYYY-MM-DD)"}, fErr)

	err = json.Unmarshal([]byte(`{"amount":"ten"}`), &body)
	fErr, ok = DecodeFieldError(err)
	require.True(t, ok, err)
	assert.Equal(t, FieldError{Field: "amount", Error: "invalid value"}, fErr)

	_, ok = DecodeFieldError(json.Unmarshal([]byte(`{`), &body))
	assert.False(t, ok)
}
