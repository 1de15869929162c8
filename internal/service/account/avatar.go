package account

import (
	"encoding/base64"
	"errors"
	"mime"
	"strings"
)

// MaxAvatarBytes bounds the decoded avatar image size.
const MaxAvatarBytes = 5 << 20

var (
	// ErrInvalidAvatar is returned for anything that is not a base64 image data URI.
	ErrInvalidAvatar = errors.New("avatar must be a base64 encoded image data URI")
	// ErrAvatarTooLarge is returned when the decoded image exceeds MaxAvatarBytes.
	ErrAvatarTooLarge = errors.New("avatar image must be 5MB or smaller")
)

// ValidateAvatarDataURI checks that uri is "data:image/<type>;base64,<payload>"
// and that the payload decodes to at most MaxAvatarBytes.
func ValidateAvatarDataURI(uri string) error {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return ErrInvalidAvatar
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return ErrInvalidAvatar
	}
	mediaType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return ErrInvalidAvatar
	}
	parsed, _, err := mime.ParseMediaType(mediaType)
	if err != nil || !strings.HasPrefix(parsed, "image/") {
		return ErrInvalidAvatar
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > MaxAvatarBytes+2 {
		return ErrAvatarTooLarge
	}
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return ErrInvalidAvatar
	}
	if len(decoded) > MaxAvatarBytes {
		return ErrAvatarTooLarge
	}
	return nil
}
