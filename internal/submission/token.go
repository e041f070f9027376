package submission

import (
	"encoding/base64"
	"strconv"
	"time"
)

const tokenWidth = 16

// AnonymizationToken stands in for the voter's contact in stored records:
// base64 of contact plus unix-millis, cut to 16 characters. Sixteen characters
// hold twelve input bytes, so for a ten-digit phone the cut drops all but the
// first two timestamp digits and the token decodes back to the phone number.
// It is obfuscation only, not a hash.
func AnonymizationToken(contact string, at time.Time) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(contact + strconv.FormatInt(at.UnixMilli(), 10)))
	return encoded[:min(tokenWidth, len(encoded))]
}
