package inference

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/jpeg"
	"strings"
)

const dataURLPrefix = "data:image/jpeg;base64,"

// ErrBadImage is returned by DecodeDataURL for input that is not base64
// image data.
var ErrBadImage = errors.New("inference: invalid image data")

// EncodeDataURL encodes img as a "data:image/jpeg;base64," URL, the form
// field the analyze endpoint expects. Out-of-range qualities use the JPEG
// default.
func EncodeDataURL(img image.Image, quality int) (string, error) {
	if quality < 1 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	var sb strings.Builder
	sb.WriteString(dataURLPrefix)
	enc := base64.NewEncoder(base64.StdEncoding, &sb)
	if err := jpeg.Encode(enc, img, &jpeg.Options{Quality: quality}); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// DecodeDataURL decodes a data URL or bare base64 payload. Like the service,
// it takes everything after the first comma as the payload.
func DecodeDataURL(s string) (image.Image, error) {
	if _, payload, ok := strings.Cut(s, ","); ok {
		s = payload
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.Join(ErrBadImage, err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Join(ErrBadImage, err)
	}
	return img, nil
}
