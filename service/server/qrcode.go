package server

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/brojonat/roxscan/service/solana"
	"github.com/skip2/go-qrcode"
)

const qrCodeSize = 256

// addressURI is the wallet URI a QR code for address encodes.
func addressURI(address string) string {
	return "solana:" + address
}

// encodeQRCode renders data as a PNG QR code with medium error correction.
func encodeQRCode(data string) ([]byte, error) {
	qr, err := qrcode.New(data, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to create QR code: %w", err)
	}
	png, err := qr.PNG(qrCodeSize)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code as PNG: %w", err)
	}
	return png, nil
}

// addressQRCode returns the address QR code as a base64 PNG for inline
// embedding.
func addressQRCode(address string) (string, error) {
	png, err := encodeQRCode(addressURI(address))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(png), nil
}

// handleAddressQRCode serves the address QR code as an image.
// GET /address/{address}/qr.png
func handleAddressQRCode(logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if _, err := solana.ParseAddress(address); err != nil {
			writeError(w, fmt.Sprintf(`Address "%s" is not valid`, address), http.StatusBadRequest)
			return
		}

		png, err := encodeQRCode(addressURI(address))
		if err != nil {
			logger.Error("failed to generate QR code", "address", address, "error", err)
			writeError(w, "failed to generate QR code", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.WriteHeader(http.StatusOK)
		w.Write(png)
	})
}
