package slack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"
)

// Request signing headers sent by Slack with every Events API call.
const (
	HeaderTimestamp = "X-Slack-Request-Timestamp"
	HeaderSignature = "X-Slack-Signature"
)

// MaxClockSkew is how far a request timestamp may drift from local time,
// in either direction, before the request is treated as a replay.
const MaxClockSkew = 5 * time.Minute

const signatureVersion = "v0"

// Sign returns the X-Slack-Signature value for body sent at timestamp.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signatureVersion + ":" + timestamp + ":"))
	mac.Write(body)
	return signatureVersion + "=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether the request carrying header and the raw
// body was signed with secret and is fresh relative to now. body must be
// the bytes exactly as received. Any malformed input yields false.
func VerifySignature(header http.Header, body []byte, secret string, now time.Time) bool {
	timestamp := header.Get(HeaderTimestamp)
	signature := header.Get(HeaderSignature)
	if timestamp == "" || signature == "" || secret == "" {
		return false
	}

	sec, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	current, skew := now.Unix(), int64(MaxClockSkew/time.Second)
	if sec < current-skew || sec > current+skew {
		return false
	}

	expected := Sign(secret, timestamp, body)
	return hmac.Equal([]byte(signature), []byte(expected))
}
