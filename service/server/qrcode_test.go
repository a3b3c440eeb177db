package server

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressURI(t *testing.T) {
	assert.Equal(t, "solana:"+testAddress, addressURI(testAddress))
}

func TestAddressQRCode(t *testing.T) {
	encoded, err := addressQRCode(testAddress)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, qrCodeSize, img.Bounds().Dx())
	assert.Equal(t, qrCodeSize, img.Bounds().Dy())
}

func TestHandleAddressQRCode(t *testing.T) {
	h := handleAddressQRCode(slog.Default())

	t.Run("valid address", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/address/"+testAddress+"/qr.png", nil)
		req.SetPathValue("address", testAddress)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
		_, err := png.Decode(rec.Body)
		assert.NoError(t, err)
	})

	t.Run("invalid address", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/address/nope/qr.png", nil)
		req.SetPathValue("address", "nope")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
