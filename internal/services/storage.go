package services

import (
	"bytes"
	"context"
	"fmt"
	"image/png"

	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"
)

const (
	qrCodeSize        = 256
	qrCodeContentType = "image/png"
)

// GenerateQRCode renders content as a PNG QR code of size x size pixels
func GenerateQRCode(content string, size int) ([]byte, error) {
	if content == "" {
		return nil, fmt.Errorf("QR content is empty")
	}

	qr, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}

	buf := new(bytes.Buffer)
	if err := png.Encode(buf, qr.Image(size)); err != nil {
		return nil, fmt.Errorf("failed to render QR code: %w", err)
	}
	return buf.Bytes(), nil
}

// QRCodeKey is the storage key for a booking's QR image
func QRCodeKey(bookingReference string) string {
	return fmt.Sprintf("tickets/qr/%s.png", bookingReference)
}

// TicketAssets renders and stores the QR images sent with confirmation emails
type TicketAssets struct {
	storage StorageService
	logger  *logrus.Logger
}

// NewTicketAssets creates the asset helper. storage may be nil, in which case
// QR codes are rendered but never uploaded.
func NewTicketAssets(storage StorageService, logger *logrus.Logger) *TicketAssets {
	return &TicketAssets{storage: storage, logger: logger}
}

// QRCode renders the QR image for a booking reference and makes sure a copy is
// stored. The returned URL is empty when nothing could be stored; the image is
// still returned so it can be attached inline.
func (a *TicketAssets) QRCode(ctx context.Context, bookingReference string) ([]byte, string, error) {
	image, err := GenerateQRCode(bookingReference, qrCodeSize)
	if err != nil {
		return nil, "", err
	}

	if a.storage == nil {
		return image, "", nil
	}

	key := QRCodeKey(bookingReference)
	exists, err := a.storage.Exists(ctx, key)
	if err != nil {
		a.logger.WithError(err).WithField("key", key).Warn("Failed to check QR code in storage")
	}
	if exists {
		return image, a.storage.GetURL(key), nil
	}

	url, err := a.storage.Upload(ctx, key, bytes.NewReader(image), qrCodeContentType, int64(len(image)))
	if err != nil {
		a.logger.WithError(err).WithField("key", key).Warn("Failed to upload QR code")
		return image, "", nil
	}
	return image, url, nil
}
